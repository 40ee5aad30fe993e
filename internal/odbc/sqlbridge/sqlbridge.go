// Package sqlbridge emulates the call-level interface on top of
// database/sql so embedded engines can stand in for a driver manager.
//
// What: an odbc.Environment that accepts connection strings such as
// "Driver={SQLite3};Database=:memory:" and serves them from a database/sql
// driver. Unknown drivers are handed to the next environment.
// How: every connection pins one *sql.Conn. Autocommit off is emulated with
// a *sql.Tx that is renewed after each commit or rollback. Result values
// are rendered to text exactly as they would land in a text row set.
// Why: tests and small deployments get the full connector without an
// installed driver manager.
package sqlbridge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

// engine describes one database/sql driver served by the bridge.
type engine struct {
	// driver is the database/sql driver name.
	driver string
	// banner is reported as SQL_DBMS_NAME.
	banner string
	// affinity follows SQLite type affinity: every integer declaration is
	// BIGINT and every floating point one DOUBLE.
	affinity bool
	// dsn turns the Database attribute into a driver DSN.
	dsn func(database string) string
}

var (
	enginesMu sync.RWMutex
	engines   = map[string]engine{}
)

// register makes e available under the given Driver attribute values.
func register(e engine, names ...string) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	for _, n := range names {
		engines[strings.ToLower(n)] = e
	}
}

func lookup(name string) (engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, ok := engines[strings.ToLower(name)]
	return e, ok
}

// Supports reports whether driver is served by the bridge.
func Supports(driver string) bool {
	_, ok := lookup(driver)
	return ok
}

// Env is an odbc.Environment for embedded engines.
type Env struct {
	next odbc.Environment
}

// New returns an environment that serves known embedded engines and
// passes any other connection string to next. next may be nil.
func New(next odbc.Environment) *Env { return &Env{next: next} }

func (e *Env) Connect(connString string) (odbc.Connection, error) {
	kv := odbc.ParseConnString(connString)
	name := odbc.DriverName(kv)
	eng, ok := lookup(name)
	if !ok {
		if e.next != nil {
			return e.next.Connect(connString)
		}
		return nil, fmt.Errorf("sqlbridge: no engine for driver %q", name)
	}
	database := kv["database"]
	db, err := sql.Open(eng.driver, eng.dsn(database))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	c, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &conn{eng: eng, db: db, c: c, database: database, autocommit: true}, nil
}

// querier is implemented by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type conn struct {
	eng      engine
	db       *sql.DB
	c        *sql.Conn
	database string

	autocommit bool
	tx         *sql.Tx
}

func (c *conn) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.c
}

// returnsRows guesses from the leading keyword whether a statement yields a
// result set.
func returnsRows(stmt string) bool {
	f := strings.Fields(stmt)
	if len(f) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimLeft(f[0], "(")) {
	case "select", "with", "values", "pragma", "explain", "show", "describe", "summarize", "table", "from":
		return true
	}
	return false
}

// isOwnUse matches "USE <database>" for the database already opened.
// Engines without USE would otherwise fail the schema switch.
func (c *conn) isOwnUse(stmt string) bool {
	f := strings.Fields(stmt)
	return len(f) == 2 && strings.EqualFold(f[0], "use") && f[1] == c.database
}

func (c *conn) Execute(stmt string) (odbc.Cursor, error) {
	if c.isOwnUse(stmt) {
		return nil, nil
	}
	ctx := context.Background()
	if returnsRows(stmt) {
		rows, err := c.q().QueryContext(ctx, stmt)
		if err != nil {
			return nil, err
		}
		return newCursor(rows, c.eng)
	}
	if _, err := c.q().ExecContext(ctx, stmt); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *conn) Prepare(stmt string) (odbc.Prepared, error) {
	if c.isOwnUse(stmt) {
		return &prepared{noop: true}, nil
	}
	st, err := c.q().PrepareContext(context.Background(), stmt)
	if err != nil {
		return nil, err
	}
	return &prepared{c: c, st: st, rows: returnsRows(stmt)}, nil
}

func (c *conn) begin() error {
	tx, err := c.c.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *conn) SetAutocommit(on bool) error {
	if on == c.autocommit {
		return nil
	}
	c.autocommit = on
	if !on {
		return c.begin()
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

// end finishes the pending transaction and, with autocommit off, opens
// the next one.
func (c *conn) end(commit bool) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	var err error
	if commit {
		err = tx.Commit()
	} else {
		err = tx.Rollback()
	}
	if err != nil {
		return err
	}
	if !c.autocommit {
		return c.begin()
	}
	return nil
}

func (c *conn) Commit() error   { return c.end(true) }
func (c *conn) Rollback() error { return c.end(false) }

func (c *conn) DBMSName() (string, error) { return c.eng.banner, nil }

func (c *conn) Close() error {
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	err := c.c.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	return err
}

type prepared struct {
	c    *conn
	st   *sql.Stmt
	rows bool
	noop bool

	affected int64
	known    bool
}

func (p *prepared) Execute() (odbc.Cursor, error) {
	p.known = false
	if p.noop {
		return nil, nil
	}
	ctx := context.Background()
	if p.rows {
		rows, err := p.st.QueryContext(ctx)
		if err != nil {
			return nil, err
		}
		return newCursor(rows, p.c.eng)
	}
	res, err := p.st.ExecContext(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil {
		p.affected, p.known = n, true
	}
	return nil, nil
}

func (p *prepared) RowCount() (int64, bool, error) { return p.affected, p.known, nil }

func (p *prepared) Close() error {
	if p.st == nil {
		return nil
	}
	return p.st.Close()
}
