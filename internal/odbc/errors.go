package odbc

import (
	"fmt"
	"strings"
)

// DiagRecord is one diagnostic record (SQLGetDiagRec).
type DiagRecord struct {
	State       string
	NativeError int32
	Message     string
}

func (r DiagRecord) String() string {
	return fmt.Sprintf("State: %s, Native error: %d, Message: %s", r.State, r.NativeError, r.Message)
}

// Error is a failed call together with the diagnostics the driver reported.
type Error struct {
	Function string
	Records  []DiagRecord
}

func (e *Error) Error() string {
	if len(e.Records) == 0 {
		return "odbc: " + e.Function + " failed"
	}
	parts := make([]string, len(e.Records))
	for i, r := range e.Records {
		parts[i] = r.String()
	}
	return "odbc: " + e.Function + ": " + strings.Join(parts, "; ")
}

// TooLargeValueError is returned by BlockCursor.Fetch when truncation is
// checked and a cell did not fit its buffer. Required is -1 when the
// driver could not report the full length.
type TooLargeValueError struct {
	BufferIndex int
	Required    int
}

func (e *TooLargeValueError) Error() string {
	if e.Required < 0 {
		return fmt.Sprintf("odbc: value in buffer %d too large, length unknown", e.BufferIndex)
	}
	return fmt.Sprintf("odbc: value in buffer %d too large, need %d bytes", e.BufferIndex, e.Required)
}
