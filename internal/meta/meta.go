// Package meta derives column descriptors and text buffer widths for a
// freshly executed statement.
package meta

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

// DefaultMaxTextLen is the width clamp used when none is configured.
const DefaultMaxTextLen = 65536

// FallbackWidth is used for types whose text length the engine cannot
// derive, clamped like every other width.
const FallbackWidth = 255

// Column describes one result column.
type Column struct {
	Name     string
	Type     odbc.DataType
	Nullable bool
	// Width is the text buffer size in bytes.
	Width int
}

// Describe fetches the descriptors of every result column of cur. Any
// failing describe call fails the whole call.
func Describe(cur odbc.Cursor, maxTextLen int) ([]Column, error) {
	n, err := cur.NumResultCols()
	if err != nil {
		return nil, &dberr.DescribeError{Column: 0, Err: err}
	}
	lower := cases.Lower(language.Und)
	cols := make([]Column, 0, n)
	for i := 1; i <= n; i++ {
		d, err := cur.DescribeCol(i)
		if err != nil {
			return nil, &dberr.DescribeError{Column: i, Err: err}
		}
		cols = append(cols, Column{
			Name:     lower.String(d.Name),
			Type:     d.Type,
			Nullable: d.Nullability != odbc.NoNulls,
			Width:    Width(d.Type, maxTextLen),
		})
	}
	return cols, nil
}

// Width returns the text buffer width for a column of type dt: the
// type's UTF-8 length when known, maxTextLen for sized types whose length
// is unknown (long and unbounded columns), FallbackWidth for types the
// engine gives no text length for. The result never exceeds maxTextLen;
// maxTextLen <= 0 means DefaultMaxTextLen.
func Width(dt odbc.DataType, maxTextLen int) int {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxTextLen
	}
	w, ok := dt.Utf8Len()
	if !ok {
		switch dt.Kind {
		case odbc.Unknown, odbc.Other:
			w = FallbackWidth
		default:
			w = maxTextLen
		}
	}
	if w > maxTextLen {
		w = maxTextLen
	}
	return w
}

// Widths collects the buffer widths of cols.
func Widths(cols []Column) []int {
	ws := make([]int, len(cols))
	for i, c := range cols {
		ws[i] = c.Width
	}
	return ws
}

// Names collects the column names of cols.
func Names(cols []Column) []string {
	ns := make([]string, len(cols))
	for i, c := range cols {
		ns[i] = c.Name
	}
	return ns
}
