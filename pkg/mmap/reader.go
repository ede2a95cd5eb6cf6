// Package mmap provides a memory-mapped io.ReaderAt for reading CSTM files
// without copying whole blocks through the page cache twice.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// ErrEmpty is returned when mapping a zero-length file.
	ErrEmpty = errors.New("mmap: file is empty")
	// ErrClosed is returned by ReadAt after Close.
	ErrClosed = errors.New("mmap: reader closed")
)

// Reader is a read-only memory mapping of a whole file. ReadAt may be called
// concurrently; Close waits for in-flight reads.
type Reader struct {
	file *os.File
	data []byte
	size int64

	bytesRead atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open maps the file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	r, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewReader maps an already open file. On success the Reader owns file and
// closes it on Close.
func NewReader(file *os.File) (*Reader, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	if size == 0 {
		return nil, ErrEmpty
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("file too large to map: %d bytes", size)
	}

	data, err := mmap(int(file.Fd()), 0, int(size), ProtRead, MapShared)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	// Column reads jump between blocks, so readahead mostly wastes pages.
	_ = madvise(data, MadvRandom)

	return &Reader{
		file: file,
		data: data,
		size: size,
	}, nil
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap: negative offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	n := copy(p, r.data[off:])
	r.bytesRead.Add(int64(n))
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the mapped length.
func (r *Reader) Size() int64 {
	return r.size
}

// BytesRead returns the number of bytes copied out by ReadAt.
func (r *Reader) BytesRead() int64 {
	return r.bytesRead.Load()
}

// Close unmaps the file and closes it. Calling Close twice is a no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := munmap(r.data); err != nil {
		errs = append(errs, fmt.Errorf("failed to munmap: %w", err))
	}
	r.data = nil
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close file: %w", err))
	}
	return errors.Join(errs...)
}
