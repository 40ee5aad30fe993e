// Package testhelper provides a scripted in-memory call-level interface
// for tests. Statements are matched verbatim against a script; every call
// that reaches the fake is recorded so tests can assert on the sequence.
package testhelper

import (
	"fmt"
	"strings"
	"sync"

	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

// Result scripts the outcome of one statement.
type Result struct {
	// Columns describes the result set. A Result without columns produces
	// no cursor.
	Columns []odbc.ColumnDescription
	// Rows holds cells as string, []byte or nil for NULL.
	Rows [][]any
	// DescribeErr fails DescribeCol for the given 1-based column.
	DescribeErr map[int]error
	// HideLength makes truncation report an unknown required length.
	HideLength bool
	// RowCount is reported by Prepared.RowCount; RowCountUnknown hides it.
	RowCount        int64
	RowCountUnknown bool
	// Err fails the execution itself.
	Err error
}

// Env is a fake environment. The zero value is usable.
type Env struct {
	mu sync.Mutex

	// DBMS is the banner returned by DBMSName.
	DBMS string
	// ConnectErr fails Connect.
	ConnectErr error
	// Script maps statement text to its result. Unscripted statements
	// succeed without a result set.
	Script map[string]Result

	// FailAutocommit, FailCommit and FailRollback make those calls fail.
	FailAutocommit bool
	FailCommit     bool
	FailRollback   bool

	calls     []string
	connected int
}

// NewEnv returns an Env with the given banner and an empty script.
func NewEnv(dbms string) *Env {
	return &Env{DBMS: dbms, Script: map[string]Result{}}
}

// On scripts the result of sql.
func (e *Env) On(sql string, r Result) *Env {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Script == nil {
		e.Script = map[string]Result{}
	}
	e.Script[sql] = r
	return e
}

// Calls returns the recorded calls in order.
func (e *Env) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Called reports whether call was recorded.
func (e *Env) Called(call string) bool {
	for _, c := range e.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

// Open reports the number of connections not yet closed.
func (e *Env) Open() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

func (e *Env) record(format string, args ...any) {
	e.mu.Lock()
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

func (e *Env) lookup(sql string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Script[sql]
}

func (e *Env) Connect(connString string) (odbc.Connection, error) {
	e.record("connect %s", connString)
	if e.ConnectErr != nil {
		return nil, e.ConnectErr
	}
	e.mu.Lock()
	e.connected++
	e.mu.Unlock()
	return &conn{env: e}, nil
}

type conn struct {
	env    *Env
	closed bool
}

func (c *conn) Execute(sql string) (odbc.Cursor, error) {
	c.env.record("execute %s", sql)
	return c.run(sql)
}

func (c *conn) run(sql string) (odbc.Cursor, error) {
	r := c.env.lookup(sql)
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Columns) == 0 {
		return nil, nil
	}
	return &cursor{env: c.env, res: r}, nil
}

func (c *conn) Prepare(sql string) (odbc.Prepared, error) {
	c.env.record("prepare %s", sql)
	return &prepared{c: c, sql: sql}, nil
}

func (c *conn) SetAutocommit(on bool) error {
	c.env.record("autocommit %v", on)
	if c.env.FailAutocommit {
		return fmt.Errorf("fake: autocommit refused")
	}
	return nil
}

func (c *conn) Commit() error {
	c.env.record("commit")
	if c.env.FailCommit {
		return fmt.Errorf("fake: commit refused")
	}
	return nil
}

func (c *conn) Rollback() error {
	c.env.record("rollback")
	if c.env.FailRollback {
		return fmt.Errorf("fake: rollback refused")
	}
	return nil
}

func (c *conn) DBMSName() (string, error) { return c.env.DBMS, nil }

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.env.record("disconnect")
	c.env.mu.Lock()
	c.env.connected--
	c.env.mu.Unlock()
	return nil
}

type prepared struct {
	c   *conn
	sql string
	res Result
}

func (p *prepared) Execute() (odbc.Cursor, error) {
	p.c.env.record("execute-prepared %s", p.sql)
	p.res = p.c.env.lookup(p.sql)
	return p.c.run(p.sql)
}

func (p *prepared) RowCount() (int64, bool, error) {
	if p.res.RowCountUnknown {
		return 0, false, nil
	}
	return p.res.RowCount, true, nil
}

func (p *prepared) Close() error { return nil }

type cursor struct {
	env *Env
	res Result
}

func (c *cursor) NumResultCols() (int, error) { return len(c.res.Columns), nil }

func (c *cursor) DescribeCol(i int) (odbc.ColumnDescription, error) {
	if err := c.res.DescribeErr[i]; err != nil {
		return odbc.ColumnDescription{}, err
	}
	if i < 1 || i > len(c.res.Columns) {
		return odbc.ColumnDescription{}, fmt.Errorf("fake: no column %d", i)
	}
	return c.res.Columns[i-1], nil
}

func (c *cursor) BindBuffer(rs *odbc.TextRowSet) (odbc.BlockCursor, error) {
	if rs.NumCols() != len(c.res.Columns) {
		return nil, fmt.Errorf("fake: row set has %d columns, result has %d", rs.NumCols(), len(c.res.Columns))
	}
	return &block{c: c, rs: rs}, nil
}

func (c *cursor) Close() error {
	c.env.record("close-cursor")
	return nil
}

type block struct {
	c   *cursor
	rs  *odbc.TextRowSet
	pos int
}

func (b *block) Fetch(truncationCheck bool) (int, error) {
	b.c.env.record("fetch")
	b.rs.Reset()
	rows := b.c.res.Rows
	n := 0
	for n < b.rs.Capacity() && b.pos < len(rows) {
		for col, cell := range rows[b.pos] {
			switch v := cell.(type) {
			case nil:
				b.rs.SetNull(col, n)
			case []byte:
				b.set(col, n, v)
			case string:
				b.set(col, n, []byte(v))
			default:
				b.set(col, n, []byte(fmt.Sprint(v)))
			}
		}
		n++
		b.pos++
	}
	b.rs.SetNumRows(n)
	if truncationCheck {
		if col, req, found := b.rs.Truncated(); found {
			return n, &odbc.TooLargeValueError{BufferIndex: col, Required: req}
		}
	}
	return n, nil
}

func (b *block) set(col, row int, v []byte) {
	b.rs.Set(col, row, v)
	if b.c.res.HideLength && len(v) > b.rs.MaxLen(col) {
		_, ind := b.rs.Slot(col, row)
		*ind = odbc.NoTotal
	}
}

func (b *block) Close() error { return nil }

// Col builds a column description.
func Col(name string, dt odbc.DataType, nullable bool) odbc.ColumnDescription {
	n := odbc.NoNulls
	if nullable {
		n = odbc.Nullable
	}
	return odbc.ColumnDescription{Name: name, Type: dt, Nullability: n}
}

// Varchar is shorthand for a VARCHAR(n) type.
func Varchar(n int) odbc.DataType {
	return odbc.DataType{Kind: odbc.Varchar, Length: n, Code: odbc.SQLVarchar}
}

// Number is shorthand for a NUMERIC(p,s) type.
func Number(p, s int) odbc.DataType {
	return odbc.DataType{Kind: odbc.Numeric, Precision: p, Scale: s, Code: odbc.SQLNumeric}
}

// HasPrefix reports whether any recorded call starts with prefix.
func (e *Env) HasPrefix(prefix string) bool {
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
