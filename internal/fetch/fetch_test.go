package fetch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/testhelper"
)

func open(t *testing.T, env *testhelper.Env, sql string) odbc.Cursor {
	t.Helper()
	c, err := env.Connect("fake")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	cur, err := c.Execute(sql)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return cur
}

func TestRowsAcrossBatches(t *testing.T) {
	var rows [][]any
	for i := 0; i < 7; i++ {
		rows = append(rows, []any{fmt.Sprint(i), nil})
	}
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns: []odbc.ColumnDescription{
			testhelper.Col("N", testhelper.Number(5, 0), false),
			testhelper.Col("S", testhelper.Varchar(4), true),
		},
		Rows: rows,
	})
	got, err := Rows(open(t, env, "q"), Options{BatchSize: 3})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d rows", len(got))
	}
	for i, r := range got {
		if string(r.Cells[0].Bytes) != fmt.Sprint(i) {
			t.Fatalf("row %d out of order: %q", i, r.Cells[0].Bytes)
		}
		if !r.Cells[1].Null || r.Cells[1].Bytes != nil {
			t.Fatalf("row %d: expected NULL cell", i)
		}
		if r.Cells[0].Type.Kind != odbc.Numeric {
			t.Fatalf("cell type not carried: %v", r.Cells[0].Type)
		}
	}
	if &got[0].Columns()[0] != &got[6].Columns()[0] {
		t.Fatalf("rows should share one column slice")
	}
	if names := got[0].ColumnNames(); strings.Join(names, ",") != "n,s" {
		t.Fatalf("names = %v", names)
	}
	fetches := 0
	for _, c := range env.Calls() {
		if c == "fetch" {
			fetches++
		}
	}
	if fetches != 4 {
		t.Fatalf("expected 4 fetches for 7 rows in batches of 3, got %d", fetches)
	}
}

func TestCellsAreCopied(t *testing.T) {
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns: []odbc.ColumnDescription{testhelper.Col("a", testhelper.Varchar(2), true)},
		Rows:    [][]any{{"ab"}, {"cd"}},
	})
	got, err := Rows(open(t, env, "q"), Options{BatchSize: 1})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if string(got[0].Cells[0].Bytes) != "ab" || string(got[1].Cells[0].Bytes) != "cd" {
		t.Fatalf("buffer reuse leaked into rows: %q %q", got[0].Cells[0].Bytes, got[1].Cells[0].Bytes)
	}
}

func TestTruncationNamesColumn(t *testing.T) {
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns: []odbc.ColumnDescription{
			testhelper.Col("ID", testhelper.Number(5, 0), false),
			testhelper.Col("Title", testhelper.Varchar(2), true),
			testhelper.Col("Body", testhelper.Varchar(50), true),
		},
		Rows: [][]any{
			{"1", "ok", "x"},
			{"2", strings.Repeat("z", 30), "y"},
		},
	})
	got, err := Rows(open(t, env, "q"), Options{MaxTextLen: 8})
	var te *dberr.TruncationError
	if !errors.As(err, &te) {
		t.Fatalf("expected TruncationError, got %v", err)
	}
	if te.Column != "title" || te.Index != 1 || te.Required != 30 || te.Width != 8 {
		t.Fatalf("unexpected truncation details %+v", te)
	}
	if got != nil {
		t.Fatalf("partial rows returned: %d", len(got))
	}
}

func TestTruncationUnknownLength(t *testing.T) {
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns:    []odbc.ColumnDescription{testhelper.Col("c", testhelper.Varchar(1), true)},
		Rows:       [][]any{{"toolong"}},
		HideLength: true,
	})
	_, err := Rows(open(t, env, "q"), Options{})
	var te *dberr.TruncationError
	if !errors.As(err, &te) || te.Required != 0 || te.Column != "c" {
		t.Fatalf("expected truncation with unknown length, got %v", err)
	}
}

func TestEachStopsOnCallbackError(t *testing.T) {
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns: []odbc.ColumnDescription{testhelper.Col("a", testhelper.Varchar(2), true)},
		Rows:    [][]any{{"1"}, {"2"}, {"3"}},
	})
	stop := errors.New("stop")
	seen := 0
	err := Each(open(t, env, "q"), Options{}, func(r *Row) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 2 {
		t.Fatalf("err=%v seen=%d", err, seen)
	}
}

func TestRowAccessors(t *testing.T) {
	env := testhelper.NewEnv("x").On("q", testhelper.Result{
		Columns: []odbc.ColumnDescription{testhelper.Col("Name", testhelper.Varchar(5), true)},
		Rows:    [][]any{{"bob"}},
	})
	got, err := Rows(open(t, env, "q"), Options{})
	if err != nil || len(got) != 1 {
		t.Fatalf("Rows: %v", err)
	}
	r := got[0]
	if r.ColumnLen() != 1 || r.ColumnName(0) != "name" || r.ColumnType(0) != "Varchar(5)" {
		t.Fatalf("metadata accessors: %d %q %q", r.ColumnLen(), r.ColumnName(0), r.ColumnType(0))
	}
	if c, ok := r.Lookup("name"); !ok || string(c.Bytes) != "bob" {
		t.Fatalf("Lookup failed")
	}
	if _, err := r.Get(3); err == nil {
		t.Fatalf("Get out of range should fail")
	}
}
