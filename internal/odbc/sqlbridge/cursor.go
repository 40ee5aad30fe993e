package sqlbridge

import (
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

type cursor struct {
	rows  *sql.Rows
	cols  []*sql.ColumnType
	types []odbc.DataType
}

func newCursor(rows *sql.Rows, eng engine) (odbc.Cursor, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	if len(cols) == 0 {
		// statement without a result set
		err := rows.Close()
		return nil, err
	}
	types := make([]odbc.DataType, len(cols))
	for i, ct := range cols {
		types[i] = dataType(ct.DatabaseTypeName(), eng.affinity)
	}
	return &cursor{rows: rows, cols: cols, types: types}, nil
}

func (c *cursor) NumResultCols() (int, error) { return len(c.cols), nil }

func (c *cursor) DescribeCol(i int) (odbc.ColumnDescription, error) {
	if i < 1 || i > len(c.cols) {
		return odbc.ColumnDescription{}, fmt.Errorf("sqlbridge: invalid column number %d", i)
	}
	ct := c.cols[i-1]
	n := odbc.NullableUnknown
	if nullable, ok := ct.Nullable(); ok {
		n = odbc.NoNulls
		if nullable {
			n = odbc.Nullable
		}
	}
	return odbc.ColumnDescription{Name: ct.Name(), Type: c.types[i-1], Nullability: n}, nil
}

func (c *cursor) BindBuffer(rs *odbc.TextRowSet) (odbc.BlockCursor, error) {
	if rs.NumCols() != len(c.cols) {
		return nil, fmt.Errorf("sqlbridge: row set has %d columns, result has %d", rs.NumCols(), len(c.cols))
	}
	dest := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	return &block{c: c, rs: rs, dest: dest, ptrs: ptrs}, nil
}

func (c *cursor) Close() error { return c.rows.Close() }

type block struct {
	c    *cursor
	rs   *odbc.TextRowSet
	dest []any
	ptrs []any
	done bool
}

func (b *block) Fetch(truncationCheck bool) (int, error) {
	b.rs.Reset()
	if b.done {
		return 0, nil
	}
	n := 0
	for n < b.rs.Capacity() {
		if !b.c.rows.Next() {
			b.done = true
			if err := b.c.rows.Err(); err != nil {
				return 0, err
			}
			break
		}
		if err := b.c.rows.Scan(b.ptrs...); err != nil {
			return 0, err
		}
		for col, v := range b.dest {
			if v == nil {
				b.rs.SetNull(col, n)
				continue
			}
			b.rs.Set(col, n, render(v, b.c.types[col]))
		}
		n++
	}
	b.rs.SetNumRows(n)
	if truncationCheck {
		if col, req, found := b.rs.Truncated(); found {
			return n, &odbc.TooLargeValueError{BufferIndex: col, Required: req}
		}
	}
	return n, nil
}

func (b *block) Close() error { return nil }

// dataType derives the call-level type of a column from its declared type
// name, e.g. "VARCHAR(20)" or "DECIMAL(10,2)". An empty declaration, as
// for expression columns, is treated as text of unknown length.
func dataType(decl string, affinity bool) odbc.DataType {
	base, args := splitDecl(decl)
	arg := func(i, def int) int {
		if i < len(args) {
			return args[i]
		}
		return def
	}
	switch {
	case base == "":
		return odbc.DataTypeFromSQL(odbc.SQLVarchar, 0, 0)
	case base == "BOOLEAN" || base == "BOOL":
		return odbc.DataType{Kind: odbc.Other, Code: odbc.SQLBit}
	case base == "UUID":
		return odbc.DataTypeFromSQL(odbc.SQLChar, 36, 0)
	case strings.HasPrefix(base, "INTERVAL"):
		return odbc.DataTypeFromSQL(odbc.SQLVarchar, 0, 0)
	case base == "HUGEINT" || base == "UHUGEINT" || base == "UBIGINT":
		return odbc.DataTypeFromSQL(odbc.SQLNumeric, 38, 0)
	case strings.Contains(base, "INT"):
		if affinity {
			return odbc.DataTypeFromSQL(odbc.SQLBigInt, 0, 0)
		}
		switch base {
		case "TINYINT", "UTINYINT":
			return odbc.DataType{Kind: odbc.Other, Code: odbc.SQLTinyInt}
		case "SMALLINT", "USMALLINT", "INT2":
			return odbc.DataTypeFromSQL(odbc.SQLSmallInt, 0, 0)
		case "INTEGER", "INT", "INT4":
			return odbc.DataTypeFromSQL(odbc.SQLInteger, 0, 0)
		}
		return odbc.DataTypeFromSQL(odbc.SQLBigInt, 0, 0)
	case base == "CHAR" || base == "NCHAR" || base == "CHARACTER":
		return odbc.DataTypeFromSQL(odbc.SQLChar, arg(0, 0), 0)
	case strings.Contains(base, "CHAR") || strings.Contains(base, "CLOB") ||
		strings.Contains(base, "TEXT") || base == "STRING":
		return odbc.DataTypeFromSQL(odbc.SQLVarchar, arg(0, 0), 0)
	case strings.Contains(base, "BLOB") || strings.Contains(base, "BINARY") || base == "BYTEA":
		return odbc.DataTypeFromSQL(odbc.SQLVarbinary, arg(0, 0), 0)
	case base == "FLOAT" || base == "FLOAT4":
		if affinity {
			return odbc.DataTypeFromSQL(odbc.SQLDouble, 0, 0)
		}
		return odbc.DataTypeFromSQL(odbc.SQLFloat, 7, 0)
	case strings.Contains(base, "REAL") || strings.Contains(base, "FLOA") || strings.Contains(base, "DOUB"):
		return odbc.DataTypeFromSQL(odbc.SQLDouble, 0, 0)
	case base == "NUMERIC" || base == "DECIMAL" || base == "NUMBER":
		if len(args) == 0 {
			return odbc.DataTypeFromSQL(odbc.SQLNumeric, odbc.NumberStarPrecision, odbc.NumberStarScale)
		}
		return odbc.DataTypeFromSQL(odbc.SQLNumeric, arg(0, 0), arg(1, 0))
	case base == "DATE":
		return odbc.DataTypeFromSQL(odbc.SQLTypeDate, 10, 0)
	case strings.HasPrefix(base, "TIMESTAMP") || base == "DATETIME":
		return odbc.DataTypeFromSQL(odbc.SQLTypeTimestamp, 29, 9)
	case strings.HasPrefix(base, "TIME"):
		return odbc.DataTypeFromSQL(odbc.SQLTypeTime, 18, 9)
	}
	return odbc.DataTypeFromSQL(odbc.SQLVarchar, 0, 0)
}

// splitDecl splits "DECIMAL(10, 2)" into "DECIMAL" and [10 2].
func splitDecl(decl string) (string, []int) {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	base, rest, ok := strings.Cut(decl, "(")
	base = strings.TrimSpace(base)
	if !ok {
		return base, nil
	}
	rest, _, _ = strings.Cut(rest, ")")
	var args []int
	for _, a := range strings.Split(rest, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return base, nil
		}
		args = append(args, n)
	}
	return base, args
}

// float prefers plain notation and falls back to exponent form when the
// plain text would not fit a DOUBLE buffer.
func float(f float64, bits int) []byte {
	b := strconv.AppendFloat(nil, f, 'f', -1, bits)
	if len(b) > 24 {
		b = strconv.AppendFloat(b[:0], f, 'g', -1, bits)
	}
	return b
}

// render converts a scanned value to the text a driver would place in a
// character buffer.
func render(v any, dt odbc.DataType) []byte {
	switch x := v.(type) {
	case []byte:
		if dt.Kind == odbc.Char && dt.Length == 36 && len(x) == 16 {
			return []byte(uuid.UUID(x).String())
		}
		return x
	case string:
		return []byte(x)
	case bool:
		if x {
			return []byte("1")
		}
		return []byte("0")
	case int64:
		return strconv.AppendInt(nil, x, 10)
	case int32:
		return strconv.AppendInt(nil, int64(x), 10)
	case int16:
		return strconv.AppendInt(nil, int64(x), 10)
	case int8:
		return strconv.AppendInt(nil, int64(x), 10)
	case int:
		return strconv.AppendInt(nil, int64(x), 10)
	case uint64:
		return strconv.AppendUint(nil, x, 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint8:
		return strconv.AppendUint(nil, uint64(x), 10)
	case float64:
		return float(x, 64)
	case float32:
		return float(float64(x), 32)
	case *big.Int:
		return []byte(x.String())
	case [16]byte:
		return []byte(uuid.UUID(x).String())
	case time.Time:
		switch dt.Kind {
		case odbc.Date:
			return []byte(x.Format("2006-01-02"))
		case odbc.Time:
			return []byte(x.Format("15:04:05.999999999"))
		}
		return []byte(x.Format("2006-01-02 15:04:05.999999999"))
	case fmt.Stringer:
		return []byte(x.String())
	}
	return []byte(fmt.Sprint(v))
}
