// Package decode converts raw text cells into typed values according to
// the engine type of their column.
package decode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/fetch"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// Decoder decodes cells. The zero Decoder expects UTF-8 text.
type Decoder struct {
	enc encoding.Encoding
}

// New returns a decoder for text in the named IANA charset. An empty name
// or any spelling of UTF-8 means no transcoding.
func New(charset string) (*Decoder, error) {
	switch strings.ToLower(strings.ReplaceAll(charset, "-", "")) {
	case "", "utf8", "pg_utf8":
		return &Decoder{}, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("tinyodbc: unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("tinyodbc: charset %q is not supported", charset)
	}
	return &Decoder{enc: enc}, nil
}

var std Decoder

// Cell decodes c with the UTF-8 decoder.
func Cell(c fetch.RawCell) (value.Value, error) { return std.Cell(c) }

// Row decodes every cell of r with the UTF-8 decoder.
func Row(r *fetch.Row) ([]value.Value, error) { return std.Row(r) }

// Row decodes every cell of r. The first failing cell aborts the row.
func (d *Decoder) Row(r *fetch.Row) ([]value.Value, error) {
	out := make([]value.Value, len(r.Cells))
	for i, c := range r.Cells {
		v, err := d.Cell(c)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", r.ColumnName(i), err)
		}
		out[i] = v
	}
	return out, nil
}

// Map decodes r into an ordered map keyed by column name.
func (d *Decoder) Map(r *fetch.Row) (*value.Map, error) {
	vals, err := d.Row(r)
	if err != nil {
		return nil, err
	}
	m := value.NewMap()
	for i, v := range vals {
		m.Set(r.ColumnName(i), v)
	}
	return m, nil
}

// Cell decodes a single cell. NULL and absent bytes decode to Null.
func (d *Decoder) Cell(c fetch.RawCell) (value.Value, error) {
	if c.Null || c.Bytes == nil {
		return value.Null, nil
	}
	dt := c.Type
	if dt.IsBinary() {
		return value.Binary(append([]byte(nil), c.Bytes...)), nil
	}
	s, err := d.text(c.Bytes)
	if err != nil {
		return value.Null, err
	}

	switch dt.Kind {
	case odbc.Numeric, odbc.Decimal:
		return numeric(s, dt.Precision, dt.Scale)
	case odbc.SmallInt, odbc.Integer:
		return parseI32(s)
	case odbc.BigInt:
		return parseI64(s)
	case odbc.Float:
		if dt.Precision >= 24 {
			return parseF64(s)
		}
		return parseF32(s)
	case odbc.Double:
		return parseF64(s)
	case odbc.Char, odbc.Varchar, odbc.WChar, odbc.WVarchar:
		return value.String(s), nil
	case odbc.Date:
		return epochExt(value.ExtDate, s)
	case odbc.Time:
		return epochExt(value.ExtTime, s)
	case odbc.Timestamp:
		return epochExt(value.ExtTimestamp, s)
	case odbc.Other:
		return other(dt.Code, s)
	}
	return value.String(s), nil
}

func (d *Decoder) text(b []byte) (string, error) {
	if d.enc != nil {
		out, err := d.enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", &dberr.DecodeError{Value: string(b), Target: "text", Err: err}
		}
		b = out
	}
	if !utf8.Valid(b) {
		return "", &dberr.DecodeError{Value: string(b), Target: "UTF-8 text"}
	}
	return string(b), nil
}

// numeric picks I32, I64 or Decimal for a NUMERIC/DECIMAL cell. A positive
// scale always yields Decimal. Otherwise the declared precision decides:
// up to 9 digits fit I32, up to 18 fit I64, anything wider is Decimal.
// NUMBER(*) columns declare no precision, so the digit count of the value
// itself decides, and fractional values are Decimal. Without a declared
// scale the Decimal keeps the cell text as the driver rendered it.
func numeric(s string, precision, scale int) (value.Value, error) {
	if precision == odbc.NumberStarPrecision && scale == odbc.NumberStarScale {
		dec, err := parseDecimal(s)
		if err != nil {
			return value.Null, err
		}
		if !dec.IsInteger() {
			return value.Decimal(strings.TrimSpace(s)), nil
		}
		ip := dec.IntPart()
		switch digits := integerDigits(dec); {
		case digits >= 1 && digits <= 9:
			return value.I32(int32(ip)), nil
		case digits >= 10 && digits <= 18:
			return value.I64(ip), nil
		}
		return value.Decimal(strings.TrimSpace(s)), nil
	}
	switch {
	case scale > 0:
		dec, err := parseDecimal(s)
		if err != nil {
			return value.Null, err
		}
		return value.Decimal(dec.StringFixed(int32(scale))), nil
	case precision >= 1 && precision <= 9:
		return parseI32(s)
	case precision >= 10 && precision <= 18:
		return parseI64(s)
	}
	if _, err := parseDecimal(s); err != nil {
		return value.Null, err
	}
	return value.Decimal(strings.TrimSpace(s)), nil
}

func integerDigits(dec decimal.Decimal) int {
	return len(strings.TrimPrefix(dec.Truncate(0).String(), "-"))
}

// other decodes engine specific types by their raw SQL type code.
func other(code odbc.SQLType, s string) (value.Value, error) {
	switch code {
	case odbc.SQLInteger, odbc.SQLSmallInt, odbc.SQLTinyInt, odbc.SQLBit:
		return parseI32(s)
	case odbc.SQLFloat, odbc.SQLReal:
		return parseF32(s)
	case odbc.SQLDouble:
		return parseF64(s)
	case odbc.SQLBigInt:
		return parseI64(s)
	}
	return value.String(s), nil
}

func epochExt(tag value.ExtTag, s string) (value.Value, error) {
	t, err := value.ParseDateTime(s, time.UTC)
	if err != nil {
		return value.Null, &dberr.DecodeError{Value: s, Target: tag.String(), Err: err}
	}
	return value.Ext(tag, value.I64(t.UnixMilli())), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	dec, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, &dberr.DecodeError{Value: s, Target: "Decimal", Err: err}
	}
	return dec, nil
}

func parseI32(s string) (value.Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return value.Null, &dberr.DecodeError{Value: s, Target: "I32", Err: err}
	}
	return value.I32(int32(n)), nil
}

func parseI64(s string) (value.Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return value.Null, &dberr.DecodeError{Value: s, Target: "I64", Err: err}
	}
	return value.I64(n), nil
}

func parseF32(s string) (value.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return value.Null, &dberr.DecodeError{Value: s, Target: "F32", Err: err}
	}
	return value.F32(float32(f)), nil
}

func parseF64(s string) (value.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return value.Null, &dberr.DecodeError{Value: s, Target: "F64", Err: err}
	}
	return value.F64(f), nil
}
