package odbc

import "fmt"

// NullData is the length indicator of a NULL cell.
const NullData = -1

// NoTotal is the indicator of a truncated cell whose full length is unknown.
const NoTotal = -4

// TextRowSet is a column-wise buffer of fixed-width text cells. Column c
// holds Capacity() slots of MaxLen(c) bytes each, plus one length indicator
// per slot.
type TextRowSet struct {
	capacity int
	widths   []int
	data     [][]byte
	ind      [][]int
	rows     int
}

// NewTextRowSet allocates a row set for capacity rows with the given
// per-column maximum widths.
func NewTextRowSet(capacity int, widths []int) (*TextRowSet, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("tinyodbc: row set capacity must be > 0, got %d", capacity)
	}
	rs := &TextRowSet{
		capacity: capacity,
		widths:   append([]int(nil), widths...),
		data:     make([][]byte, len(widths)),
		ind:      make([][]int, len(widths)),
	}
	for i, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("tinyodbc: column %d buffer width must be > 0, got %d", i, w)
		}
		rs.data[i] = make([]byte, capacity*w)
		rs.ind[i] = make([]int, capacity)
	}
	return rs, nil
}

func (rs *TextRowSet) Capacity() int      { return rs.capacity }
func (rs *TextRowSet) NumCols() int       { return len(rs.widths) }
func (rs *TextRowSet) NumRows() int       { return rs.rows }
func (rs *TextRowSet) MaxLen(col int) int { return rs.widths[col] }

// Reset empties the row set before a new batch.
func (rs *TextRowSet) Reset() { rs.rows = 0 }

// SetNumRows records how many slots the last fetch filled.
func (rs *TextRowSet) SetNumRows(n int) { rs.rows = n }

// Slot returns the raw buffer and indicator of a cell for a fetcher to
// fill in place.
func (rs *TextRowSet) Slot(col, row int) (buf []byte, ind *int) {
	w := rs.widths[col]
	return rs.data[col][row*w : (row+1)*w], &rs.ind[col][row]
}

// Set copies b into a slot and records its length. Bytes beyond the slot
// width are cut off; the indicator still carries the full length so a
// truncation can be detected.
func (rs *TextRowSet) Set(col, row int, b []byte) {
	buf, ind := rs.Slot(col, row)
	copy(buf, b)
	*ind = len(b)
}

// SetNull marks a slot as NULL.
func (rs *TextRowSet) SetNull(col, row int) {
	rs.ind[col][row] = NullData
}

// Indicator returns the raw length indicator of a cell.
func (rs *TextRowSet) Indicator(col, row int) int { return rs.ind[col][row] }

// At returns the bytes of a cell, or nil for NULL. A truncated cell yields
// the bytes that fit.
func (rs *TextRowSet) At(col, row int) []byte {
	ind := rs.ind[col][row]
	if ind == NullData {
		return nil
	}
	w := rs.widths[col]
	n := ind
	if n < 0 || n > w {
		n = w
	}
	return rs.data[col][row*w : row*w+n]
}

// Truncated reports the first cell of the current batch whose indicator
// exceeds its buffer. required is the full length, or -1 when unknown.
func (rs *TextRowSet) Truncated() (col int, required int, found bool) {
	for row := 0; row < rs.rows; row++ {
		for c, w := range rs.widths {
			ind := rs.ind[c][row]
			switch {
			case ind == NoTotal:
				return c, -1, true
			case ind > w:
				return c, ind, true
			}
		}
	}
	return 0, 0, false
}
