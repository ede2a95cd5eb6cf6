//go:build !linux && !darwin
// +build !linux,!darwin

package mmap

import "errors"

var errUnsupported = errors.New("mmap: not supported on this platform")

func mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return nil, errUnsupported
}

func munmap(b []byte) error {
	return nil
}

func madvise(b []byte, advice int) error {
	return nil
}

const (
	ProtRead     = 0
	MapShared    = 0
	MadvRandom   = 0
)
