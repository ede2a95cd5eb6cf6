//go:build linux || darwin

package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReader_ReadAt(t *testing.T) {
	path := writeTemp(t, []byte("CSTM0123456789"))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(14), r.Size())

	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "CSTM", string(buf))

	n, err = r.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf[:n]))
	assert.Equal(t, int64(8), r.BytesRead())
}

func TestReader_ReadAtPastEnd(t *testing.T) {
	path := writeTemp(t, []byte("abcdef"))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 4)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ef", string(buf[:n]))

	n, err = r.ReadAt(buf, 6)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = r.ReadAt(buf, -1)
	assert.Error(t, err)
}

func TestReader_EmptyFile(t *testing.T) {
	path := writeTemp(t, nil)

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReader_Close(t *testing.T) {
	path := writeTemp(t, []byte("abc"))

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReader_ImplementsReaderAt(t *testing.T) {
	var _ io.ReaderAt = (*Reader)(nil)
}
