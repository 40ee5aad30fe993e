package session

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/options"
	"github.com/SimonWaldherr/tinyodbc/internal/testhelper"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

var ctx = context.Background()

func opts(cs string) options.Options {
	o := options.Default()
	o.ConnString = cs
	return o
}

func open(t *testing.T, env *testhelper.Env, cs string) *Session {
	t.Helper()
	s, err := Establish(ctx, env, opts(cs))
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	return s
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

func TestBeginRollbackRestoresAutocommit(t *testing.T) {
	env := testhelper.NewEnv("DM DATABASE MANAGEMENT SYSTEM")
	s := open(t, env, "Driver={DM8};Server=h")
	defer s.Close(ctx)

	if _, err := s.Exec(ctx, "begin", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !s.InTransaction() {
		t.Fatalf("begin should set the transaction flag")
	}
	if _, err := s.Exec(ctx, "rollback", nil); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if s.InTransaction() {
		t.Fatalf("rollback should clear the transaction flag")
	}
	calls := env.Calls()
	off, rb, on := indexOf(calls, "autocommit false"), indexOf(calls, "rollback"), indexOf(calls, "autocommit true")
	if off < 0 || rb < off || on < rb {
		t.Fatalf("unexpected call order %v", calls)
	}
	if env.HasPrefix("prepare") || env.HasPrefix("execute") {
		t.Fatalf("sentinels must not reach the driver as statements: %v", calls)
	}
}

func TestCommitFailureKeepsTransaction(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	env.FailCommit = true
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)
	s.Exec(ctx, "BEGIN", nil)
	if _, err := s.Exec(ctx, " Commit ", nil); err == nil {
		t.Fatalf("commit should fail")
	}
	if !s.InTransaction() {
		t.Fatalf("failed commit must leave the transaction open")
	}
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	s := open(t, env, "Driver={DM8}")
	s.Exec(ctx, "begin", nil)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls := env.Calls()
	rb, dc := indexOf(calls, "rollback"), indexOf(calls, "disconnect")
	if rb < 0 || dc < rb {
		t.Fatalf("rollback must precede disconnect: %v", calls)
	}
	if env.Open() != 0 {
		t.Fatalf("link still open")
	}
}

// abandonInTransaction opens a session, starts a transaction and drops the
// handle without closing it.
func abandonInTransaction(t *testing.T, env *testhelper.Env) {
	t.Helper()
	s := open(t, env, "Driver={DM8}")
	if _, err := s.Exec(ctx, "begin", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func TestUnreachableSessionRollsBack(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	abandonInTransaction(t, env)

	deadline := time.Now().Add(5 * time.Second)
	for env.Open() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("abandoned session never released: %v", env.Calls())
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	calls := env.Calls()
	rb, dc := indexOf(calls, "rollback"), indexOf(calls, "disconnect")
	if rb < 0 || dc < rb {
		t.Fatalf("rollback must precede disconnect: %v", calls)
	}
	if indexOf(calls, "commit") >= 0 {
		t.Fatalf("abandoned transaction must not commit: %v", calls)
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	func() {
		defer func() { recover() }()
		With(ctx, env, opts("Driver={DM8}"), func(s *Session) error {
			s.Exec(ctx, "begin", nil)
			panic("boom")
		})
	}()
	if !env.Called("rollback") || env.Open() != 0 {
		t.Fatalf("panic path did not release the session: %v", env.Calls())
	}
}

func TestClonesShareLink(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	s := open(t, env, "Driver={DM8}")
	c := s.Clone()
	if c.ID() != s.ID() {
		t.Fatalf("clone should share the link")
	}
	c.Exec(ctx, "begin", nil)
	if !s.InTransaction() {
		t.Fatalf("transaction flag is per link")
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if env.Open() != 1 {
		t.Fatalf("link closed while a clone is alive")
	}
	if err := s.Ping(ctx); !errors.Is(err, dberr.ErrClosed) {
		t.Fatalf("released handle should report ErrClosed, got %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("clone Ping: %v", err)
	}
	c.Close(ctx)
	if env.Open() != 0 || !env.Called("rollback") {
		t.Fatalf("last close should roll back and disconnect: %v", env.Calls())
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestGetRowsRejectsSentinels(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)
	for _, sql := range []string{"begin", "commit", "ROLLBACK"} {
		_, err := s.GetRows(ctx, sql, nil)
		var ue *dberr.UnsupportedError
		if !errors.As(err, &ue) || !errors.Is(err, dberr.ErrUnsupported) {
			t.Fatalf("%s: got %v", sql, err)
		}
	}
	if env.HasPrefix("execute") {
		t.Fatalf("sentinel query reached the driver: %v", env.Calls())
	}
}

func TestSchemaSwitch(t *testing.T) {
	dm := testhelper.NewEnv("DM DATABASE MANAGEMENT SYSTEM")
	s := open(t, dm, "Driver={DM8};SCHEMA=APP")
	s.Close(ctx)
	if !dm.Called("execute set schema APP") {
		t.Fatalf("dameng should use set schema: %v", dm.Calls())
	}

	other := testhelper.NewEnv("MySQL")
	s = open(t, other, "Driver={MySQL};database=shop")
	s.Close(ctx)
	if !other.Called("execute USE shop") {
		t.Fatalf("other engines should use USE: %v", other.Calls())
	}

	none := testhelper.NewEnv("DM8")
	s = open(t, none, "Driver={DM8};Server=h")
	s.Close(ctx)
	if none.HasPrefix("execute") {
		t.Fatalf("no schema named, nothing to run: %v", none.Calls())
	}
}

func TestSchemaSwitchFailureIsNotFatal(t *testing.T) {
	env := testhelper.NewEnv("DM8").On("set schema NOPE", testhelper.Result{Err: errors.New("no such schema")})
	s := open(t, env, "Driver={DM8};SCHEMA=NOPE")
	defer s.Close(ctx)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("session should be usable: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	env.ConnectErr = errors.New("refused")
	_, err := Establish(ctx, env, opts("Driver={DM8}"))
	var ce *dberr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if _, err := Establish(ctx, env, options.Default()); err == nil {
		t.Fatalf("empty connection string should fail")
	}
}

func TestExecRowCountAndLastInsertID(t *testing.T) {
	env := testhelper.NewEnv("DM8").
		On("insert into t(a) values ('x')", testhelper.Result{RowCount: 1}).
		On("select max(id) from t", testhelper.Result{
			Columns: []odbc.ColumnDescription{testhelper.Col("max(id)", odbc.DataType{Kind: odbc.Integer, Code: odbc.SQLInteger}, true)},
			Rows:    [][]any{{"7"}},
		}).
		On("delete from t", testhelper.Result{RowCountUnknown: true})
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)

	res, err := s.Exec(ctx, "insert into t(a) values (?)", []value.Value{value.String(`"x"`)})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.RowsAffected != 1 || !res.LastInsertID.Equal(value.I32(7)) {
		t.Fatalf("Exec = %+v", res)
	}

	res, err = s.Exec(ctx, "delete from t", nil)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.RowsAffected != 0 || !res.LastInsertID.IsNull() {
		t.Fatalf("unknown count should be 0 with Null id, got %+v", res)
	}
}

func TestExecRejectsUnencodableParams(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)
	_, err := s.Exec(ctx, "update t set b=?", []value.Value{value.Binary([]byte{1})})
	if !errors.Is(err, dberr.ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
	if env.HasPrefix("prepare") {
		t.Fatalf("statement must not reach the driver")
	}
}

func TestQueryDecodesRows(t *testing.T) {
	env := testhelper.NewEnv("DM8").On("select id, name from t where id=5", testhelper.Result{
		Columns: []odbc.ColumnDescription{
			testhelper.Col("ID", testhelper.Number(5, 0), false),
			testhelper.Col("NAME", testhelper.Varchar(10), true),
		},
		Rows: [][]any{{"5", "five"}, {"6", nil}},
	})
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)

	rows, err := s.Query(ctx, "select id, name from t where id=?", []value.Value{value.I64(5)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if v, _ := rows[0].Get("id"); !v.Equal(value.I32(5)) {
		t.Fatalf("id = %v", v)
	}
	if v, _ := rows[1].Get("name"); !v.IsNull() {
		t.Fatalf("name = %v", v)
	}
}

func TestPingMapsFailures(t *testing.T) {
	env := testhelper.NewEnv("DM8").On("SELECT 1", testhelper.Result{Err: errors.New("gone")})
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)
	if err := s.Ping(ctx); !errors.Is(err, dberr.ErrConnectivity) {
		t.Fatalf("expected ErrConnectivity, got %v", err)
	}
}

func TestCancelledContextAbandonsResult(t *testing.T) {
	env := testhelper.NewEnv("DM8")
	s := open(t, env, "Driver={DM8}")
	defer s.Close(ctx)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	f := s.ExecAsync("update t set a=1", nil)
	if _, err := f.Await(cctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await = %v", err)
	}
	if _, err := f.Result(); err != nil {
		t.Fatalf("work should still complete: %v", err)
	}
	if !env.Called("execute-prepared update t set a=1") {
		t.Fatalf("statement was not executed: %v", env.Calls())
	}
}

func TestInsertTable(t *testing.T) {
	cases := map[string]string{
		"insert into t(a) values (1)": "t",
		"INSERT INTO users values(1)": "users",
		"insert into":                 "",
		"update t set a=1":            "",
	}
	for in, want := range cases {
		if got := insertTable(in); got != want {
			t.Errorf("insertTable(%q) = %q, want %q", in, got, want)
		}
	}
}
