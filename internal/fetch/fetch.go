// Package fetch materializes a cursor into rows of raw text cells.
//
// What: binds a fixed-width text row set sized from the column metadata,
// pulls batches until the cursor is exhausted and copies every cell out.
// How: one TextRowSet is reused for all batches. Cells are copied before
// the next fetch overwrites the buffer. All rows of one execution share
// the same column slice.
// Why: the underlying interface is string oriented; typing happens later,
// per cell, in the decode package.
package fetch

import (
	"errors"
	"fmt"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/meta"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

// DefaultBatchSize is the number of rows fetched per round trip when the
// caller does not configure one.
const DefaultBatchSize = 100

// RawCell is one fetched cell. Bytes is nil when the cell is NULL.
type RawCell struct {
	Bytes []byte
	Null  bool
	Type  odbc.DataType
}

// Row is a materialized row. Its column slice is shared with every other
// row of the same execution and must not be modified.
type Row struct {
	columns []meta.Column
	Cells   []RawCell
}

// NewRow builds a row over a shared column slice.
func NewRow(columns []meta.Column, cells []RawCell) *Row {
	return &Row{columns: columns, Cells: cells}
}

func (r *Row) Columns() []meta.Column { return r.columns }
func (r *Row) ColumnLen() int         { return len(r.columns) }

func (r *Row) ColumnName(i int) string { return r.columns[i].Name }

// ColumnType returns the engine type of column i in its textual form.
func (r *Row) ColumnType(i int) string { return r.columns[i].Type.String() }

// ColumnNames returns a copy of the column names.
func (r *Row) ColumnNames() []string { return meta.Names(r.columns) }

// Get returns cell i.
func (r *Row) Get(i int) (RawCell, error) {
	if i < 0 || i >= len(r.Cells) {
		return RawCell{}, fmt.Errorf("tinyodbc: column index %d out of range [0,%d)", i, len(r.Cells))
	}
	return r.Cells[i], nil
}

// Lookup returns the cell of the column named name.
func (r *Row) Lookup(name string) (RawCell, bool) {
	for i, c := range r.columns {
		if c.Name == name {
			return r.Cells[i], true
		}
	}
	return RawCell{}, false
}

// Options controls batch size and buffer widths.
type Options struct {
	BatchSize  int
	MaxTextLen int
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Rows describes the columns of cur and materializes every row. The cursor
// is left open; the caller closes it. On any error no rows are returned.
func Rows(cur odbc.Cursor, opts Options) ([]*Row, error) {
	var out []*Row
	err := Each(cur, opts, func(r *Row) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Each describes the columns of cur and calls fn for every row in engine
// order. Rows of a batch are handed to fn only after the whole batch was
// fetched without error. fn's error stops the iteration and is returned.
func Each(cur odbc.Cursor, opts Options, fn func(*Row) error) error {
	cols, err := meta.Describe(cur, opts.MaxTextLen)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	return Materialize(cur, cols, opts.batchSize(), fn)
}

// Materialize binds a row set for cols to cur and streams rows to fn.
func Materialize(cur odbc.Cursor, cols []meta.Column, batchSize int, fn func(*Row) error) error {
	rs, err := odbc.NewTextRowSet(batchSize, meta.Widths(cols))
	if err != nil {
		return err
	}
	bc, err := cur.BindBuffer(rs)
	if err != nil {
		return fmt.Errorf("tinyodbc: bind buffer: %w", err)
	}
	defer bc.Close()

	for {
		n, err := bc.Fetch(true)
		if err != nil {
			return truncation(err, cols)
		}
		if n == 0 {
			return nil
		}
		batch := make([]*Row, n)
		for row := 0; row < n; row++ {
			cells := make([]RawCell, len(cols))
			for col := range cols {
				cells[col] = cell(rs, col, row, cols[col].Type)
			}
			batch[row] = &Row{columns: cols, Cells: cells}
		}
		for _, r := range batch {
			if err := fn(r); err != nil {
				return err
			}
		}
	}
}

func cell(rs *odbc.TextRowSet, col, row int, dt odbc.DataType) RawCell {
	b := rs.At(col, row)
	if b == nil {
		return RawCell{Null: true, Type: dt}
	}
	return RawCell{Bytes: append(make([]byte, 0, len(b)), b...), Type: dt}
}

// truncation names the offending column of a too-large-value condition.
func truncation(err error, cols []meta.Column) error {
	var tl *odbc.TooLargeValueError
	if !errors.As(err, &tl) || tl.BufferIndex < 0 || tl.BufferIndex >= len(cols) {
		return fmt.Errorf("tinyodbc: fetch: %w", err)
	}
	c := cols[tl.BufferIndex]
	te := &dberr.TruncationError{Column: c.Name, Index: tl.BufferIndex, Width: c.Width}
	if tl.Required > 0 {
		te.Required = tl.Required
	}
	return te
}
