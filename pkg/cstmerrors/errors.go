// Package cstmerrors provides structured error handling for the CSTM format with
// error categorization, key-value context and stack traces.
//
// # Overview
//
// Every failure surfaced by the codec, writer and reader is an *Error carrying
// an ErrorType. Callers branch on the category with IsType and on specific
// conditions with errors.Is against the exported sentinels:
//
//	r, err := cstm.Open(path)
//	if cstmerrors.IsType(err, cstmerrors.ErrorTypeFormat) {
//	    if errors.Is(err, cstmerrors.ErrUnsupportedVersion) {
//	        // written by a newer release
//	    }
//	}
//
// # Error Types
//
//   - format: bad magic, unsupported version, malformed header
//   - corruption: size mismatch, truncated or garbled block, invalid offsets
//   - schema: duplicate or oversized column name, unknown type tag
//   - not_found: unknown column name or index on read
//   - write: I/O failure during a write
//   - read: I/O failure while opening or reading a file
//   - validation: row-count mismatch, invalid caller input
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Add details with
// WithDetail before sharing an error across goroutines.
package cstmerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeFormat represents a bad preamble or malformed header
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeCorruption represents damaged block data
	ErrorTypeCorruption ErrorType = "corruption"
	// ErrorTypeSchema represents an invalid column set
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeNotFound represents an unknown column
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeWrite represents an I/O failure while writing
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeRead represents an I/O failure while reading
	ErrorTypeRead ErrorType = "read"
	// ErrorTypeValidation represents inconsistent or invalid input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel causes for the two preamble failures that callers commonly need to
// tell apart. Both are reported with ErrorTypeFormat.
var (
	// ErrInvalidMagic is the cause when a file does not start with "CSTM".
	ErrInvalidMagic = errors.New("invalid magic")
	// ErrUnsupportedVersion is the cause when the version byte is not recognized.
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: categorizes the error
//   - Message: human-readable description
//   - Cause: the underlying error, if any
//   - Details: key-value pairs such as column name or offset
//   - Stack: call stack at the point of creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
//
// Example:
//
//	return cstmerrors.New(cstmerrors.ErrorTypeNotFound, "column not found").
//	    WithDetail("column", name)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving it as
// the cause. If err is already an *Error its stack is kept. Returns nil if
// err is nil.
//
// Example:
//
//	if _, err := f.Write(block); err != nil {
//	    return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to write block").
//	        WithDetail("column", name)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether the outermost *Error in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack, skipping the given number
// of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
