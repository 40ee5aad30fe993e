// Package tinyodbc is a connectivity adapter for Dameng (DM) and other
// engines reachable through an ODBC driver manager.
//
// It turns typed parameters into SQL literal text, runs statements over a
// call-level interface, fetches result sets in fixed-width text batches and
// decodes every cell into a typed Value. Sessions expose non-blocking
// operations returning a Future and blocking variants taking a context.
//
// # Basic Usage
//
// Connect with a DSN, run statements and read decoded rows:
//
//	ctx := context.Background()
//	s, err := tinyodbc.Connect(ctx, "dameng://SYSDBA:secret@db:5236/APP")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close(ctx)
//
//	s.Exec(ctx, "insert into users values (?, ?)",
//	    []tinyodbc.Value{tinyodbc.I32(1), tinyodbc.String(`"Alice"`)})
//
//	rows, _ := s.Query(ctx, "select id, name from users", nil)
//	for _, row := range rows {
//	    name, _ := row.Get("name")
//	    fmt.Println(name.Text())
//	}
//
// # Parameters
//
// Parameters are never bound natively. Each '?' is replaced by the literal
// form of the next parameter and afterwards every double quote in the
// statement becomes a single quote. Strings are inserted as they are, so a
// string literal is passed as `"text"`. The encoder does not escape:
// never pass untrusted input as a parameter.
//
// # Transactions
//
// The statements "begin", "commit" and "rollback" sent through Exec control
// the session's transaction. Closing the last handle of a session rolls back
// a transaction that is still open.
//
// # Embedded engines
//
// Connection strings naming Driver={SQLite3} (or {DuckDB} when built with
// the duckdb tag) are served in-process, which makes the adapter usable
// without a driver manager:
//
//	s, _ := tinyodbc.Connect(ctx, "Driver={SQLite3};Database=:memory:")
//
// For database/sql users the driver package registers the "tinyodbc" driver.
package tinyodbc

import (
	"context"
	"time"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/dispatch"
	idriver "github.com/SimonWaldherr/tinyodbc/internal/driver"
	"github.com/SimonWaldherr/tinyodbc/internal/encode"
	"github.com/SimonWaldherr/tinyodbc/internal/fetch"
	"github.com/SimonWaldherr/tinyodbc/internal/keepalive"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/options"
	"github.com/SimonWaldherr/tinyodbc/internal/session"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// ============================================================================
// Core Types - Re-exported from internal packages for public API
// ============================================================================

// Value is a typed value: a parameter before encoding or a decoded cell.
type Value = value.Value

// Kind is the variant of a Value.
type Kind = value.Kind

// ExtTag names the extension variant of a Value of kind KindExt.
type ExtTag = value.ExtTag

// Map is an insertion-ordered string-keyed map of values. Decoded rows are
// Maps keyed by column name in select order.
type Map = value.Map

// Options configures a session. See ParseDSN and LoadConfig.
type Options = options.Options

// Session is a handle to an established connection.
type Session = session.Session

// ExecResult is the outcome of Session.Exec.
type ExecResult = session.ExecResult

// Row is a materialized row of raw text cells.
type Row = fetch.Row

// RawCell is one fetched, not yet decoded cell.
type RawCell = fetch.RawCell

// DataType describes a column's engine type.
type DataType = odbc.DataType

// Environment opens connections. The default environment serves embedded
// engines in-process and hands everything else to the driver manager.
type Environment = odbc.Environment

// Future is the pending result of a non-blocking session operation.
type Future[T any] = dispatch.Future[T]

// Heartbeat pings sessions on a cron schedule.
type Heartbeat = keepalive.Heartbeat

const (
	KindNull   = value.KindNull
	KindBool   = value.KindBool
	KindI32    = value.KindI32
	KindI64    = value.KindI64
	KindU32    = value.KindU32
	KindU64    = value.KindU64
	KindF32    = value.KindF32
	KindF64    = value.KindF64
	KindString = value.KindString
	KindBinary = value.KindBinary
	KindArray  = value.KindArray
	KindMap    = value.KindMap
	KindExt    = value.KindExt
)

const (
	ExtDate      = value.ExtDate
	ExtTime      = value.ExtTime
	ExtDateTime  = value.ExtDateTime
	ExtTimestamp = value.ExtTimestamp
	ExtDecimal   = value.ExtDecimal
	ExtUuid      = value.ExtUuid
	ExtJson      = value.ExtJson
)

// ============================================================================
// Errors
// ============================================================================

var (
	ErrUnsupported   = dberr.ErrUnsupported
	ErrUnimplemented = dberr.ErrUnimplemented
	ErrClosed        = dberr.ErrClosed
	ErrConnectivity  = dberr.ErrConnectivity
)

type (
	ConnectionError  = dberr.ConnectionError
	UnsupportedError = dberr.UnsupportedError
	TruncationError  = dberr.TruncationError
	DescribeError    = dberr.DescribeError
	DecodeError      = dberr.DecodeError
	EncodeError      = dberr.EncodeError
)

// ============================================================================
// Value constructors
// ============================================================================

// Null is the absent value.
var Null = value.Null

var (
	Bool      = value.Bool
	I32       = value.I32
	I64       = value.I64
	U32       = value.U32
	U64       = value.U64
	F32       = value.F32
	F64       = value.F64
	String    = value.String
	Binary    = value.Binary
	Array     = value.Array
	MapOf     = value.MapOf
	NewMap    = value.NewMap
	Ext       = value.Ext
	Date      = value.Date
	Time      = value.Time
	DateTime  = value.DateTime
	Timestamp = value.Timestamp
	Decimal   = value.Decimal
	Uuid      = value.Uuid
	Json      = value.Json
	FromJSON  = value.FromJSON
)

// ============================================================================
// Encoding
// ============================================================================

// Literal returns the SQL literal text of v. Binaries, Json extensions and
// malformed Decimal or Uuid payloads fail with an *EncodeError.
func Literal(v Value) (string, error) { return encode.Literal(v) }

// Statement substitutes params into sql and applies the quote rewrite.
// It is what Exec and Query send to the engine.
func Statement(sql string, params ...Value) (string, error) {
	return encode.Statement(sql, params)
}

// ============================================================================
// Configuration
// ============================================================================

// DefaultOptions returns options with default batch size and text length
// and no connection string.
func DefaultOptions() Options { return options.Default() }

// ParseDSN turns a dameng:// or odbc:// URL, or a raw driver connection
// string, into options.
func ParseDSN(dsn string) (Options, error) { return options.Parse(dsn) }

// LoadConfig reads options from a YAML file.
func LoadConfig(path string) (Options, error) { return options.Load(path) }

// ============================================================================
// Sessions
// ============================================================================

// DefaultEnvironment returns the environment Connect and Establish use.
func DefaultEnvironment() Environment { return idriver.Environment() }

// Connect parses dsn and establishes a session in the default environment.
func Connect(ctx context.Context, dsn string) (*Session, error) {
	opts, err := options.Parse(dsn)
	if err != nil {
		return nil, err
	}
	return Establish(ctx, opts)
}

// Establish opens a session with opts in the default environment.
func Establish(ctx context.Context, opts Options) (*Session, error) {
	return session.Establish(ctx, DefaultEnvironment(), opts)
}

// EstablishAsync is the non-blocking form of Establish.
func EstablishAsync(opts Options) *Future[*Session] {
	return session.EstablishAsync(DefaultEnvironment(), opts, dispatch.Default)
}

// With establishes a session, runs fn and releases the session on every
// exit path.
func With(ctx context.Context, opts Options, fn func(*Session) error) error {
	return session.With(ctx, DefaultEnvironment(), opts, fn)
}

// IsClosed reports whether err means the session was already released.
func IsClosed(err error) bool { return session.IsClosed(err) }

// ============================================================================
// Keepalive
// ============================================================================

// NewHeartbeat returns a stopped heartbeat whose pings time out after
// timeout.
func NewHeartbeat(timeout time.Duration) *Heartbeat { return keepalive.New(timeout) }

// KeepAlive schedules pings for s on h using the session's keepalive
// schedule. Sessions without one are left alone.
func KeepAlive(h *Heartbeat, s *Session) error {
	spec := s.Options().Keepalive
	if spec == "" {
		return nil
	}
	return h.Add(spec, s)
}
