package value

import "testing"

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v.Kind() != KindNull {
		t.Fatalf("zero value should be Null, got %v", v.Kind())
	}
	if !v.Equal(Null) {
		t.Fatalf("zero value not equal to Null")
	}
}

func TestExtPayload(t *testing.T) {
	ts := Timestamp(1700000000123)
	if !ts.IsExt(ExtTimestamp) {
		t.Fatalf("expected Timestamp ext, got %v", ts.Tag())
	}
	n, ok := ts.Payload().Int()
	if !ok || n != 1700000000123 {
		t.Fatalf("unexpected payload %v", ts.Payload())
	}
	if got := Decimal("1.50").Text(); got != "1.50" {
		t.Fatalf("decimal text = %q", got)
	}
	if I32(3).Payload().Kind() != KindNull {
		t.Fatalf("non-ext payload should be Null")
	}
}

func TestGenericString(t *testing.T) {
	m := NewMap()
	m.Set("b", I32(2))
	m.Set("a", String("x"))
	cases := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{Bool(true), "true"},
		{I64(-7), "-7"},
		{U64(7), "7"},
		{F64(1.5), "1.5"},
		{String("hi"), `"hi"`},
		{Binary([]byte{1, 2}), "[1,2]"},
		{Array(I32(1), String("a")), `[1,"a"]`},
		{MapOf(m), `{"b":2,"a":"x"}`},
		{Uuid("u"), `Uuid("u")`},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String(%v) = %q, want %q", c.v.Kind(), got, c.want)
		}
	}
}

func TestMapKeepsOrderOnReplace(t *testing.T) {
	m := NewMap()
	m.Set("x", I32(1))
	m.Set("y", I32(2))
	m.Set("x", I32(3))
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Fatalf("keys = %v", keys)
	}
	if v, _ := m.Get("x"); !v.Equal(I32(3)) {
		t.Fatalf("x = %v", v)
	}
}

func TestEqualDistinguishesKinds(t *testing.T) {
	if I32(1).Equal(I64(1)) {
		t.Fatalf("I32 and I64 must differ")
	}
	if !Array(I32(1)).Equal(Array(I32(1))) {
		t.Fatalf("arrays should be equal")
	}
	if Date("2024-01-01").Equal(DateTime("2024-01-01")) {
		t.Fatalf("different ext tags must differ")
	}
}

func TestParseExtTag(t *testing.T) {
	tag, ok := ParseExtTag("Timestamp")
	if !ok || tag != ExtTimestamp {
		t.Fatalf("ParseExtTag(Timestamp) = %v, %v", tag, ok)
	}
	if _, ok := ParseExtTag(""); ok {
		t.Fatalf("empty tag should not parse")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := NewMap()
	m.Set("z", Array(I64(1), Bool(false), Null))
	m.Set("a", String(`q"uote`))
	b, err := MapOf(m).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"z":[1,false,null],"a":"q\"uote"}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
	back, err := FromJSON(b)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !back.Equal(MapOf(m)) {
		t.Fatalf("round trip mismatch: %v", back)
	}
}

func TestZeroMapSet(t *testing.T) {
	var m Map
	m.Set("a", I32(1))
	m.Set("b", I32(2))
	m.Set("a", I32(3))
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}
	if v, ok := m.Get("a"); !ok || !v.Equal(I32(3)) {
		t.Fatalf("a = %v, %v", v, ok)
	}
}

func TestSlicesAreNotShared(t *testing.T) {
	raw := []byte{1, 2, 3}
	b := Binary(raw)
	raw[0] = 9
	got := b.Bytes()
	got[1] = 9
	if !b.Equal(Binary([]byte{1, 2, 3})) {
		t.Fatalf("binary changed: %v", b.Bytes())
	}

	elems := []Value{I32(1), I32(2)}
	a := Array(elems...)
	elems[0] = String("x")
	a.Array()[1] = String("y")
	if !a.Equal(Array(I32(1), I32(2))) {
		t.Fatalf("array changed: %v", a)
	}
}

func TestIntRejectsLargeUnsigned(t *testing.T) {
	if n, ok := U64(1 << 63).Int(); ok {
		t.Fatalf("Int = %d, want failure", n)
	}
	if n, ok := U64(42).Int(); !ok || n != 42 {
		t.Fatalf("Int = %d, %v", n, ok)
	}
	if n, ok := U64(1 << 63).Uint(); !ok || n != 1<<63 {
		t.Fatalf("Uint = %d, %v", n, ok)
	}
}
