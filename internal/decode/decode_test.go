package decode

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/fetch"
	"github.com/SimonWaldherr/tinyodbc/internal/meta"
	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// Structure mirrors testdata/cells.yml
type cellsFile struct {
	Cases []struct {
		Name string `yaml:"name"`
		Type struct {
			Kind      string `yaml:"kind"`
			Length    int    `yaml:"length"`
			Precision int    `yaml:"precision"`
			Scale     int    `yaml:"scale"`
			Code      int    `yaml:"code"`
		} `yaml:"type"`
		Cell string `yaml:"cell"`
		Kind string `yaml:"kind"`
		Text string `yaml:"text"`
	} `yaml:"cases"`
}

func typeKind(t *testing.T, name string) odbc.TypeKind {
	t.Helper()
	for k := odbc.Unknown; k <= odbc.Other; k++ {
		if k.String() == name {
			return k
		}
	}
	t.Fatalf("unknown type kind %q", name)
	return odbc.Unknown
}

func kindName(v value.Value) string {
	if v.Kind() == value.KindExt {
		return v.Tag().String()
	}
	return v.Kind().String()
}

func TestCellsYAML(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("testdata", "cells.yml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	var f cellsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	if len(f.Cases) == 0 {
		t.Fatalf("fixture has no cases")
	}
	for _, c := range f.Cases {
		dt := odbc.DataType{
			Kind:      typeKind(t, c.Type.Kind),
			Length:    c.Type.Length,
			Precision: c.Type.Precision,
			Scale:     c.Type.Scale,
			Code:      odbc.SQLType(c.Type.Code),
		}
		got, err := Cell(fetch.RawCell{Bytes: []byte(c.Cell), Type: dt})
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.Name, err)
			continue
		}
		if kindName(got) != c.Kind || got.Text() != c.Text {
			t.Errorf("%s: got %s %q, want %s %q", c.Name, kindName(got), got.Text(), c.Kind, c.Text)
		}
	}
}

func TestNullCells(t *testing.T) {
	for _, c := range []fetch.RawCell{
		{Null: true, Type: odbc.DataType{Kind: odbc.Integer}},
		{Bytes: nil, Type: odbc.DataType{Kind: odbc.Varchar}},
		{Null: true, Type: odbc.DataType{Kind: odbc.Binary}},
	} {
		v, err := Cell(c)
		if err != nil || !v.IsNull() {
			t.Fatalf("expected Null, got %v, %v", v, err)
		}
	}
}

func TestBinaryCells(t *testing.T) {
	raw := []byte{0xff, 0x00, 0x10}
	for _, k := range []odbc.TypeKind{odbc.Binary, odbc.Varbinary, odbc.LongVarbinary} {
		v, err := Cell(fetch.RawCell{Bytes: raw, Type: odbc.DataType{Kind: k}})
		if err != nil {
			t.Fatalf("%v: %v", k, err)
		}
		if v.Kind() != value.KindBinary || string(v.Bytes()) != string(raw) {
			t.Fatalf("%v: got %v", k, v)
		}
	}
}

func TestPrecisionBoundaries(t *testing.T) {
	n5 := odbc.DataType{Kind: odbc.Numeric, Precision: 5}
	if v, _ := Cell(fetch.RawCell{Bytes: []byte("99999"), Type: n5}); v.Kind() != value.KindI32 {
		t.Fatalf("NUMBER(5) should decode to I32, got %v", v.Kind())
	}
	for p := 1; p <= 9; p++ {
		v, err := Cell(fetch.RawCell{Bytes: []byte("1"), Type: odbc.DataType{Kind: odbc.Numeric, Precision: p}})
		if err != nil || v.Kind() != value.KindI32 {
			t.Fatalf("precision %d: %v %v", p, v.Kind(), err)
		}
	}
	for p := 10; p <= 18; p++ {
		v, err := Cell(fetch.RawCell{Bytes: []byte("1"), Type: odbc.DataType{Kind: odbc.Numeric, Precision: p}})
		if err != nil || v.Kind() != value.KindI64 {
			t.Fatalf("precision %d: %v %v", p, v.Kind(), err)
		}
	}
	for _, dt := range []odbc.DataType{
		{Kind: odbc.Numeric, Precision: 19},
		{Kind: odbc.Numeric, Precision: 38},
		{Kind: odbc.Numeric, Precision: 5, Scale: 1},
	} {
		v, err := Cell(fetch.RawCell{Bytes: []byte("1"), Type: dt})
		if err != nil || !v.IsExt(value.ExtDecimal) {
			t.Fatalf("%v: expected Decimal, got %v %v", dt, v, err)
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int64{0, -1, 42, 1 << 50, -(1 << 60)} {
		in := value.I64(n)
		v, err := Cell(fetch.RawCell{Bytes: []byte(in.Text()), Type: odbc.DataType{Kind: odbc.BigInt}})
		if err != nil || !v.Equal(in) {
			t.Fatalf("round trip of %d gave %v, %v", n, v, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []fetch.RawCell{
		{Bytes: []byte("abc"), Type: odbc.DataType{Kind: odbc.Integer}},
		{Bytes: []byte("99999999999"), Type: odbc.DataType{Kind: odbc.SmallInt}},
		{Bytes: []byte("x1"), Type: odbc.DataType{Kind: odbc.Numeric, Precision: 10, Scale: 2}},
		{Bytes: []byte("yesterday"), Type: odbc.DataType{Kind: odbc.Timestamp}},
		{Bytes: []byte{0xff, 0xfe}, Type: odbc.DataType{Kind: odbc.Varchar}},
	}
	for _, c := range cases {
		_, err := Cell(c)
		var de *dberr.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%v %q: expected DecodeError, got %v", c.Type, c.Bytes, err)
		}
	}
}

func TestRowAbortsOnFirstError(t *testing.T) {
	cols := []meta.Column{
		{Name: "a", Type: odbc.DataType{Kind: odbc.Integer}},
		{Name: "b", Type: odbc.DataType{Kind: odbc.Integer}},
	}
	r := fetch.NewRow(cols, []fetch.RawCell{
		{Bytes: []byte("1"), Type: cols[0].Type},
		{Bytes: []byte("nope"), Type: cols[1].Type},
	})
	if _, err := Row(r); err == nil {
		t.Fatalf("expected error")
	}
	good := fetch.NewRow(cols, []fetch.RawCell{
		{Bytes: []byte("1"), Type: cols[0].Type},
		{Null: true, Type: cols[1].Type},
	})
	m, err := std.Map(good)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if v, _ := m.Get("a"); !v.Equal(value.I32(1)) {
		t.Fatalf("a = %v", v)
	}
}

func TestCharsetTranscoding(t *testing.T) {
	d, err := New("ISO-8859-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := d.Cell(fetch.RawCell{Bytes: []byte{'c', 0xe9}, Type: odbc.DataType{Kind: odbc.Varchar}})
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	if s, _ := v.Str(); s != "cé" {
		t.Fatalf("transcoded = %q", s)
	}
	if _, err := New("no-such-charset"); err == nil {
		t.Fatalf("unknown charset should fail")
	}
	if d, err := New("PG_UTF8"); err != nil || d.enc != nil {
		t.Fatalf("PG_UTF8 should mean plain UTF-8")
	}
}
