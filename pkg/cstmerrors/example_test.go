package cstmerrors_test

import (
	"errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// Example demonstrates basic error creation with context.
func Example() {
	err := cstmerrors.New(cstmerrors.ErrorTypeNotFound, "column not found").
		WithDetail("column", "score")

	fmt.Println(err.Error())
	fmt.Println(err.Details["column"])

	// Output:
	// not_found: column not found
	// score
}

// ExampleWrap shows how to wrap an I/O error.
func ExampleWrap() {
	err := cstmerrors.Wrap(io.ErrUnexpectedEOF, cstmerrors.ErrorTypeCorruption, "block truncated").
		WithDetail("column", "id")

	if cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption) {
		fmt.Println("corruption")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// corruption
	// caused by unexpected EOF
}

// ExampleErrUnsupportedVersion shows matching a sentinel cause.
func ExampleErrUnsupportedVersion() {
	err := cstmerrors.Wrap(cstmerrors.ErrUnsupportedVersion, cstmerrors.ErrorTypeFormat, "cannot read file").
		WithDetail("version", 2)

	fmt.Println(errors.Is(err, cstmerrors.ErrUnsupportedVersion))
	fmt.Println(cstmerrors.TypeOf(err))
	fmt.Println(err)

	// Output:
	// true
	// format
	// format: cannot read file: unsupported version
}

// ExampleIsType demonstrates that foreign errors are never typed.
func ExampleIsType() {
	fmt.Println(cstmerrors.IsType(io.EOF, cstmerrors.ErrorTypeFormat))
	fmt.Println(cstmerrors.TypeOf(io.EOF))
	fmt.Println(cstmerrors.Wrap(nil, cstmerrors.ErrorTypeWrite, "noop") == nil)

	// Output:
	// false
	// internal
	// true
}
