// Package dberr defines the error types returned by the connector.
//
// Lifecycle and metadata errors abort the whole operation. Decode errors
// abort the row being decoded. Truncation errors can be resolved by raising
// the maximum text length and running the statement again. Nothing in the
// connector retries on its own.
package dberr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported marks operations the connector refuses to run.
	ErrUnsupported = errors.New("tinyodbc: unsupported operation")
	// ErrUnimplemented marks parameter shapes the literal encoder cannot render.
	ErrUnimplemented = errors.New("tinyodbc: unimplemented")
	// ErrClosed is returned by every operation on a released session.
	ErrClosed = errors.New("tinyodbc: session closed")
	// ErrConnectivity is the generic failure reported by Ping.
	ErrConnectivity = errors.New("tinyodbc: connectivity check failed")
)

// ConnectionError reports a failure to establish or use the link.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return "tinyodbc: connection: " + e.Err.Error()
	}
	return fmt.Sprintf("tinyodbc: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedError is returned when a statement is sent to a path that
// cannot handle it, e.g. "commit" sent as a query.
type UnsupportedError struct {
	Statement string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("tinyodbc: %s: %q", e.Reason, e.Statement)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// TruncationError reports a cell that did not fit its column buffer.
// Required is zero when the engine did not report the needed width.
type TruncationError struct {
	Column   string
	Index    int
	Width    int
	Required int
}

func (e *TruncationError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("tinyodbc: value of column %q (index %d) exceeds buffer of %d bytes, need at least %d; raise max_str_len",
			e.Column, e.Index, e.Width, e.Required)
	}
	return fmt.Sprintf("tinyodbc: value of column %q (index %d) exceeds buffer of %d bytes; raise max_str_len",
		e.Column, e.Index, e.Width)
}

// DescribeError reports a failed column metadata lookup.
type DescribeError struct {
	Column int
	Err    error
}

func (e *DescribeError) Error() string {
	return fmt.Sprintf("tinyodbc: describe column %d: %v", e.Column, e.Err)
}

func (e *DescribeError) Unwrap() error { return e.Err }

// DecodeError reports a cell whose text could not be converted to the type
// implied by its column.
type DecodeError struct {
	Value  string
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tinyodbc: cannot decode %q as %s", e.Value, e.Target)
	}
	return fmt.Sprintf("tinyodbc: cannot decode %q as %s: %v", e.Value, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a parameter that cannot be rendered as a literal.
type EncodeError struct {
	Param int
	Shape string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("tinyodbc: encode parameter %d (%s): %v", e.Param, e.Shape, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
