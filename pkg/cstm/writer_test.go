package cstm

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

func scenarioColumns() []Column {
	return []Column{
		Int32Column("id", 1, 2, 3),
		Float64Column("score", 1.5, 2.25, 3.0),
		StringColumn("name", "a", "", "bc"),
	}
}

func writeBuffer(t *testing.T, columns []Column, opts ...Option) (*Buffer, *Header) {
	t.Helper()
	var buf Buffer
	w := NewWriter(&buf, opts...)
	require.NoError(t, w.Write(context.Background(), columns))
	return &buf, w.Header()
}

func TestWriter_Scenario(t *testing.T) {
	buf, h := writeBuffer(t, scenarioColumns())
	data := buf.Bytes()

	assert.Equal(t, "CSTM", string(data[:4]))
	assert.Equal(t, byte(1), data[4])
	assert.Equal(t, make([]byte, 7), data[5:12])

	headerLen := binary.LittleEndian.Uint64(data[12:20])
	assert.Equal(t, uint64(EncodedHeaderSize(h)), headerLen)

	require.Len(t, h.Columns, 3)
	assert.Equal(t, uint64(3), h.TotalRows)

	// Blocks follow the header back to back.
	next := uint64(PreambleSize) + headerLen
	for _, d := range h.Columns {
		assert.Equal(t, next, d.BlockOffset, d.Name)
		assert.Equal(t, uint64(3), d.NumValues)
		next += d.CompressedSize
	}
	assert.Equal(t, uint64(len(data)), next)

	assert.Equal(t, uint64(12), h.Columns[0].UncompressedSize)
	assert.Equal(t, uint64(24), h.Columns[1].UncompressedSize)
	assert.Equal(t, uint64(16+3), h.Columns[2].UncompressedSize)

	// The header on disk is the patched one.
	onDisk, err := DecodeHeader(data[PreambleSize : PreambleSize+headerLen])
	require.NoError(t, err)
	assert.Equal(t, h, onDisk)
}

func TestWriter_StringOffsetsOnDisk(t *testing.T) {
	buf, h := writeBuffer(t, scenarioColumns())
	d := h.Columns[2]

	bc := compression.NewBlockCompressor(compression.Default)
	raw, err := bc.Decompress(buf.Bytes()[d.BlockOffset:d.BlockOffset+d.CompressedSize], d.UncompressedSize)
	require.NoError(t, err)

	offsets, err := StringOffsets(raw, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 1, 3}, offsets)
}

func TestWriter_ZeroColumns(t *testing.T) {
	buf, h := writeBuffer(t, nil)
	assert.Equal(t, uint64(0), h.TotalRows)
	assert.Empty(t, h.Columns)
	assert.Equal(t, PreambleSize+headerFixedSize, buf.Len())
}

func TestWriter_ZeroRows(t *testing.T) {
	_, h := writeBuffer(t, []Column{Int32Column("a"), StringColumn("b")})
	assert.Equal(t, uint64(0), h.TotalRows)
	assert.Equal(t, uint64(0), h.Columns[0].UncompressedSize)
	assert.Equal(t, uint64(4), h.Columns[1].UncompressedSize)
}

func TestWriter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		errType cstmerrors.ErrorType
	}{
		{
			name:    "length mismatch",
			columns: []Column{Int32Column("a", 1, 2), Int32Column("b", 1)},
			errType: cstmerrors.ErrorTypeValidation,
		},
		{
			name:    "payload does not match type",
			columns: []Column{{Name: "a", Type: String, Int32s: []int32{1}}},
			errType: cstmerrors.ErrorTypeValidation,
		},
		{
			name:    "duplicate names",
			columns: []Column{Int32Column("a", 1), Int32Column("a", 2)},
			errType: cstmerrors.ErrorTypeSchema,
		},
		{
			name:    "unknown type",
			columns: []Column{{Name: "a", Type: ColumnType(4)}},
			errType: cstmerrors.ErrorTypeSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf Buffer
			err := NewWriter(&buf).Write(context.Background(), tt.columns)
			require.Error(t, err)
			assert.True(t, cstmerrors.IsType(err, tt.errType), "got %v", err)
			assert.Zero(t, buf.Len(), "nothing is written for invalid input")
		})
	}
}

func TestWriter_SingleUse(t *testing.T) {
	var buf Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(context.Background(), scenarioColumns()))

	err := w.Write(context.Background(), scenarioColumns())
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
}

func TestWriter_NotReusableAfterFailure(t *testing.T) {
	var buf Buffer
	w := NewWriter(&buf)
	require.Error(t, w.Write(context.Background(), []Column{Int32Column("a", 1), Int32Column("b")}))

	err := w.Write(context.Background(), scenarioColumns())
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
	assert.Nil(t, w.Header())
}

func TestWriter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf Buffer
	err := NewWriter(&buf).Write(ctx, scenarioColumns())
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSink struct {
	Buffer
	failWriteAfter int
	failWriteAt    bool
	writes         int
}

func (s *failingSink) Write(p []byte) (int, error) {
	s.writes++
	if s.failWriteAfter > 0 && s.writes > s.failWriteAfter {
		return 0, errors.New("disk full")
	}
	return s.Buffer.Write(p)
}

func (s *failingSink) WriteAt(p []byte, off int64) (int, error) {
	if s.failWriteAt {
		return 0, errors.New("read-only")
	}
	return s.Buffer.WriteAt(p, off)
}

func TestWriter_IOErrors(t *testing.T) {
	t.Run("block write", func(t *testing.T) {
		sink := &failingSink{failWriteAfter: 3}
		err := NewWriter(sink).Write(context.Background(), scenarioColumns())
		require.Error(t, err)
		assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
	})

	t.Run("header patch", func(t *testing.T) {
		sink := &failingSink{failWriteAt: true}
		err := NewWriter(sink).Write(context.Background(), scenarioColumns())
		require.Error(t, err)
		assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
	})
}

func TestWriter_SchemaSignature(t *testing.T) {
	_, h := writeBuffer(t, scenarioColumns(), WithSchemaSignature(42))
	assert.Equal(t, uint32(42), h.SchemaSignature)

	_, h = writeBuffer(t, scenarioColumns(), WithAutoSchemaSignature())
	assert.Equal(t, SchemaSignature(scenarioColumns()), h.SchemaSignature)

	_, h = writeBuffer(t, scenarioColumns())
	assert.Zero(t, h.SchemaSignature)
}

func TestWriter_LogsAndStats(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var buf Buffer
	w := NewWriter(&buf, WithLogger(zap.New(core)), WithCompressionLevel(compression.Best))
	require.NoError(t, w.Write(context.Background(), scenarioColumns()))

	assert.Equal(t, 3, logs.FilterMessage("block written").Len())
	assert.Equal(t, 1, logs.FilterMessage("file written").Len())

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.BlocksCompressed)
	assert.Equal(t, int64(12+24+19), stats.BytesIn)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cstm")
	h, err := WriteFile(context.Background(), path, scenarioColumns())
	require.NoError(t, err)

	st, err := os.Stat(path)
	require.NoError(t, err)
	last := h.Columns[len(h.Columns)-1]
	assert.Equal(t, int64(last.BlockOffset+last.CompressedSize), st.Size())
}

func TestWriteFile_BadPath(t *testing.T) {
	_, err := WriteFile(context.Background(), filepath.Join(t.TempDir(), "missing", "out.cstm"), scenarioColumns())
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
}

func TestWriter_ConcurrencyProducesSameBytes(t *testing.T) {
	columns := append(scenarioColumns(),
		Int32Column("big", make([]int32, 3)...),
		NullableStringColumn("maybe", []NullString{NewNullString("x"), {}, NewNullString("")}),
	)

	seq, _ := writeBuffer(t, columns)
	par, h := writeBuffer(t, columns, WithConcurrency(4))
	assert.Equal(t, seq.Bytes(), par.Bytes())
	assert.Equal(t, uint64(3), h.TotalRows)
}

func TestWriter_ConcurrencyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf Buffer
	err := NewWriter(&buf, WithConcurrency(2)).Write(ctx, scenarioColumns())
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeWrite))
	assert.ErrorIs(t, err, context.Canceled)
}
