// Package session implements the connection lifecycle on top of the
// call-level interface.
//
// What: Establish opens a link, optionally switches schema and hands out a
// Session. A Session runs queries, statements, pings and the three
// transaction sentinels "begin", "commit" and "rollback".
// How: the link is owned by one guarded struct shared by every clone of a
// Session. Each operation takes the guard on a dispatch worker, does the
// blocking calls there and resolves a Future. Blocking variants await the
// future under a context.
// Why: the underlying handles are neither goroutine safe nor cheap to
// block on, and an abandoned transaction must never outlive its session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/decode"
	"github.com/SimonWaldherr/tinyodbc/internal/dispatch"
	"github.com/SimonWaldherr/tinyodbc/internal/encode"
	"github.com/SimonWaldherr/tinyodbc/internal/fetch"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/options"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// Banners of engines that select a schema with "set schema".
var damengBanners = []string{"DM DATABASE MANAGEMENT SYSTEM", "达梦数据库管理系统"}

const pingStatement = "SELECT 1"

// ExecResult is the outcome of Exec.
type ExecResult struct {
	RowsAffected uint64
	// LastInsertID is a best-effort guess, see Exec. Null when unknown.
	LastInsertID value.Value
}

// link is the physical connection shared by all clones of a session.
type link struct {
	mu     sync.Mutex
	conn   odbc.Connection
	inTx   bool
	refs   int
	closed bool

	id     string
	banner string
}

// release drops one reference. The last one rolls back an open
// transaction and disconnects.
func (l *link) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	l.closed = true
	log := logger(l.id)
	if l.inTx {
		log.Warn("rolling back abandoned transaction")
		if err := l.conn.Rollback(); err != nil {
			log.Error("rollback on release failed", "err", err)
		}
		l.inTx = false
	}
	if err := l.conn.Close(); err != nil {
		return &dberr.ConnectionError{Op: "disconnect", Err: err}
	}
	log.Debug("disconnected")
	return nil
}

// Session is one handle on a link. Clones share the link; each must be
// closed. Sessions are safe for concurrent use; operations on the same
// link run one at a time.
type Session struct {
	l        *link
	opts     options.Options
	dec      *decode.Decoder
	pool     *dispatch.Pool
	released atomic.Bool
	cleanup  runtime.Cleanup
}

func logger(id string) *slog.Logger {
	return slog.Default().With("component", "session", "session", id)
}

func (s *Session) log() *slog.Logger { return logger(s.l.id) }

// ID identifies the link in log records.
func (s *Session) ID() string { return s.l.id }

// Banner returns the engine name reported at connect time.
func (s *Session) Banner() string { return s.l.banner }

// Options returns the options the session was established with.
func (s *Session) Options() options.Options { return s.opts }

// Decoder returns the cell decoder configured for the session charset.
func (s *Session) Decoder() *decode.Decoder { return s.dec }

// InTransaction reports whether a "begin" is pending.
func (s *Session) InTransaction() bool {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	return s.l.inTx
}

func newSession(l *link, opts options.Options, dec *decode.Decoder, pool *dispatch.Pool) *Session {
	s := &Session{l: l, opts: opts, dec: dec, pool: pool}
	s.cleanup = runtime.AddCleanup(s, func(l *link) {
		if err := l.release(); err != nil {
			logger(l.id).Error("release of unreachable session failed", "err", err)
		}
	}, l)
	return s
}

// Clone returns another handle on the same link.
func (s *Session) Clone() *Session {
	s.l.mu.Lock()
	if !s.l.closed {
		s.l.refs++
	}
	s.l.mu.Unlock()
	return newSession(s.l, s.opts, s.dec, s.pool)
}

// EstablishAsync opens a session on a dispatch worker.
func EstablishAsync(env odbc.Environment, opts options.Options, pool *dispatch.Pool) *dispatch.Future[*Session] {
	return dispatch.Go(pool, func() (*Session, error) {
		return establish(env, opts, pool)
	})
}

// Establish opens a connection with opts.ConnString and returns a session.
// When the connection string names a schema or database the session
// switches to it; a failed switch is logged and otherwise ignored.
func Establish(ctx context.Context, env odbc.Environment, opts options.Options) (*Session, error) {
	return EstablishAsync(env, opts, nil).Await(ctx)
}

func establish(env odbc.Environment, opts options.Options, pool *dispatch.Pool) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dec, err := decode.New(opts.Charset)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log := logger(id)

	conn, err := env.Connect(opts.ConnString)
	if err != nil {
		return nil, &dberr.ConnectionError{Op: "connect", Err: err}
	}
	banner, err := conn.DBMSName()
	if err != nil {
		log.Warn("cannot read engine banner", "err", err)
	}
	l := &link{conn: conn, refs: 1, id: id, banner: banner}
	log.Debug("connected", "dbms", banner)

	if stmt := schemaStatement(opts.ConnString, banner); stmt != "" {
		cur, err := conn.Execute(stmt)
		if err != nil {
			log.Warn("schema switch failed", "statement", stmt, "err", err)
		} else if cur != nil {
			cur.Close()
		}
	}
	return newSession(l, opts, dec, pool), nil
}

// schemaStatement picks the statement that selects the schema named in the
// connection string, or "" when none is named.
func schemaStatement(connString, banner string) string {
	kv := odbc.ParseConnString(connString)
	name := kv["schema"]
	if name == "" {
		name = kv["database"]
	}
	if name == "" {
		return ""
	}
	if isDameng(banner) {
		return "set schema " + name
	}
	return "USE " + name
}

func isDameng(banner string) bool {
	for _, b := range damengBanners {
		if banner == b {
			return true
		}
	}
	// DM7, DM8 and vendor builds all carry "DM" in their banner.
	return strings.Contains(banner, "DM")
}

type sentinel int

const (
	notSentinel sentinel = iota
	sentinelBegin
	sentinelCommit
	sentinelRollback
)

func classify(sql string) sentinel {
	switch strings.ToLower(strings.TrimSpace(sql)) {
	case "begin":
		return sentinelBegin
	case "commit":
		return sentinelCommit
	case "rollback":
		return sentinelRollback
	}
	return notSentinel
}

// locked runs fn with the link guard held.
func (s *Session) locked(fn func(l *link) error) error {
	if s.released.Load() {
		return dberr.ErrClosed
	}
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if s.l.closed {
		return dberr.ErrClosed
	}
	return fn(s.l)
}

// GetRowsAsync is the non-blocking form of GetRows.
func (s *Session) GetRowsAsync(sql string, params []value.Value) *dispatch.Future[[]*fetch.Row] {
	if classify(sql) != notSentinel {
		return dispatch.Ready[[]*fetch.Row](nil, &dberr.UnsupportedError{
			Statement: sql,
			Reason:    "transactional statements unsupported for queries",
		})
	}
	return dispatch.Go(s.pool, func() ([]*fetch.Row, error) {
		var rows []*fetch.Row
		err := s.locked(func(l *link) error {
			var err error
			rows, err = s.query(l, sql, params)
			return err
		})
		return rows, err
	})
}

// GetRows runs a query and materializes every row. Transaction sentinels
// are rejected with an UnsupportedError.
func (s *Session) GetRows(ctx context.Context, sql string, params []value.Value) ([]*fetch.Row, error) {
	return s.GetRowsAsync(sql, params).Await(ctx)
}

// Query runs GetRows and decodes every row into an ordered map.
func (s *Session) Query(ctx context.Context, sql string, params []value.Value) ([]*value.Map, error) {
	rows, err := s.GetRows(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	out := make([]*value.Map, 0, len(rows))
	for _, r := range rows {
		m, err := s.dec.Map(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Session) query(l *link, sql string, params []value.Value) ([]*fetch.Row, error) {
	stmt, err := encode.Statement(sql, params)
	if err != nil {
		return nil, err
	}
	s.log().Debug("query", "sql", stmt)
	cur, err := l.conn.Execute(stmt)
	if err != nil {
		return nil, fmt.Errorf("tinyodbc: execute: %w", err)
	}
	if cur == nil {
		return nil, nil
	}
	defer cur.Close()
	return fetch.Rows(cur, fetch.Options{BatchSize: s.opts.BatchSize, MaxTextLen: s.opts.MaxTextLen})
}

// ExecAsync is the non-blocking form of Exec.
func (s *Session) ExecAsync(sql string, params []value.Value) *dispatch.Future[ExecResult] {
	return dispatch.Go(s.pool, func() (ExecResult, error) {
		res := ExecResult{LastInsertID: value.Null}
		err := s.locked(func(l *link) error {
			switch classify(sql) {
			case sentinelBegin:
				return s.begin(l)
			case sentinelCommit:
				return s.finish(l, "commit", l.conn.Commit)
			case sentinelRollback:
				return s.finish(l, "rollback", l.conn.Rollback)
			}
			var err error
			res, err = s.exec(l, sql, params)
			return err
		})
		return res, err
	})
}

// Exec runs a statement that returns no rows, or one of the transaction
// sentinels. RowsAffected is 0 when the driver cannot report it.
//
// For statements starting with "insert into" the session also runs
// "select max(id) from <table>" and reports the result as LastInsertID.
// This assumes a column named id and no concurrent inserts; treat it as a
// hint only.
func (s *Session) Exec(ctx context.Context, sql string, params []value.Value) (ExecResult, error) {
	return s.ExecAsync(sql, params).Await(ctx)
}

func (s *Session) begin(l *link) error {
	if err := l.conn.SetAutocommit(false); err != nil {
		return fmt.Errorf("tinyodbc: begin: %w", err)
	}
	l.inTx = true
	s.log().Debug("begin")
	return nil
}

// finish ends a transaction. The flag is cleared only when end succeeds.
func (s *Session) finish(l *link, op string, end func() error) error {
	if err := end(); err != nil {
		return fmt.Errorf("tinyodbc: %s: %w", op, err)
	}
	l.inTx = false
	s.log().Debug(op)
	if err := l.conn.SetAutocommit(true); err != nil {
		return fmt.Errorf("tinyodbc: %s: restore autocommit: %w", op, err)
	}
	return nil
}

func (s *Session) exec(l *link, sql string, params []value.Value) (ExecResult, error) {
	res := ExecResult{LastInsertID: value.Null}
	stmt, err := encode.Statement(sql, params)
	if err != nil {
		return res, err
	}
	s.log().Debug("exec", "sql", stmt)
	p, err := l.conn.Prepare(stmt)
	if err != nil {
		return res, fmt.Errorf("tinyodbc: prepare: %w", err)
	}
	defer p.Close()
	cur, err := p.Execute()
	if err != nil {
		return res, fmt.Errorf("tinyodbc: execute: %w", err)
	}
	if cur != nil {
		cur.Close()
	}
	n, known, err := p.RowCount()
	if err == nil && known && n > 0 {
		res.RowsAffected = uint64(n)
	}
	if table := insertTable(stmt); table != "" {
		res.LastInsertID = s.maxID(l, table)
	}
	return res, nil
}

// insertTable returns the table of an "insert into <table> ..." statement.
func insertTable(stmt string) string {
	if len(stmt) < len("insert into") || !strings.EqualFold(stmt[:len("insert into")], "insert into") {
		return ""
	}
	f := strings.Fields(stmt)
	if len(f) < 3 {
		return ""
	}
	table, _, _ := strings.Cut(f[2], "(")
	return table
}

func (s *Session) maxID(l *link, table string) value.Value {
	cur, err := l.conn.Execute("select max(id) from " + table)
	if err != nil || cur == nil {
		if err != nil {
			s.log().Debug("last insert id unavailable", "table", table, "err", err)
		}
		return value.Null
	}
	defer cur.Close()
	rows, err := fetch.Rows(cur, fetch.Options{BatchSize: 1, MaxTextLen: s.opts.MaxTextLen})
	if err != nil || len(rows) == 0 || len(rows[0].Cells) == 0 {
		return value.Null
	}
	v, err := s.dec.Cell(rows[0].Cells[0])
	if err != nil {
		return value.Null
	}
	return v
}

// PingAsync is the non-blocking form of Ping.
func (s *Session) PingAsync() *dispatch.Future[struct{}] {
	return dispatch.Go(s.pool, func() (struct{}, error) {
		return struct{}{}, s.locked(func(l *link) error {
			cur, err := l.conn.Execute(pingStatement)
			if err != nil {
				return fmt.Errorf("%w: %w", dberr.ErrConnectivity, err)
			}
			if cur != nil {
				cur.Close()
			}
			return nil
		})
	})
}

// Ping checks the link with a trivial query. Any failure matches
// dberr.ErrConnectivity.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.PingAsync().Await(ctx)
	return err
}

// CloseAsync is the non-blocking form of Close.
func (s *Session) CloseAsync() *dispatch.Future[struct{}] {
	if !s.released.CompareAndSwap(false, true) {
		return dispatch.Ready(struct{}{}, nil)
	}
	s.cleanup.Stop()
	return dispatch.Go(s.pool, func() (struct{}, error) {
		return struct{}{}, s.l.release()
	})
}

// Close releases this handle. Closing the last handle of a link rolls back
// an open transaction and disconnects. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.CloseAsync().Await(ctx)
	return err
}

// With establishes a session, runs fn and always releases the session,
// including when fn panics.
func With(ctx context.Context, env odbc.Environment, opts options.Options, fn func(*Session) error) (err error) {
	s, err := Establish(ctx, env, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Closed reports whether this handle was released.
func (s *Session) Closed() bool { return s.released.Load() }

// IsClosed reports whether err means the session was already released.
func IsClosed(err error) bool { return errors.Is(err, dberr.ErrClosed) }
