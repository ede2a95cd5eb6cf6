package cstm

import (
	"errors"
	"io"
)

// Buffer is an in-memory Sink that can also be read back with NewReader.
type Buffer struct {
	buf []byte
}

// Write appends p.
func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteAt overwrites bytes at off, growing the buffer if needed.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("cstm: negative offset")
	}
	end := int(off) + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("cstm: negative offset")
	}
	if off >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Size returns Len as an int64, for NewReader.
func (b *Buffer) Size() int64 {
	return int64(len(b.buf))
}
