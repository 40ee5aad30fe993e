// Package value implements the dynamically typed values exchanged between
// callers and the connector: statement parameters going in, decoded cells
// coming out.
//
// A Value is a closed tagged union. Kind selects the variant; extension
// values (dates, decimals, uuids, ...) carry an ExtTag and a payload Value
// whose representation depends on the tag:
//
//	Timestamp        payload is epoch milliseconds (I64)
//	Date/Time/DateTime payload is ISO-like text (String) when built by callers,
//	                 epoch milliseconds (I64) when produced by the decoder
//	Decimal          payload is a decimal literal (String)
//	Uuid, Json       payload is text (String)
//
// Values are immutable once constructed.
package value

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind enumerates the Value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI32
	KindI64
	KindU32
	KindU64
	KindF32
	KindF64
	KindString
	KindBinary
	KindArray
	KindMap
	KindExt
)

var kindNames = [...]string{
	KindNull:   "Null",
	KindBool:   "Bool",
	KindI32:    "I32",
	KindI64:    "I64",
	KindU32:    "U32",
	KindU64:    "U64",
	KindF32:    "F32",
	KindF64:    "F64",
	KindString: "String",
	KindBinary: "Binary",
	KindArray:  "Array",
	KindMap:    "Map",
	KindExt:    "Ext",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ExtTag names the extension variant of a KindExt value.
type ExtTag uint8

const (
	ExtNone ExtTag = iota
	ExtDate
	ExtTime
	ExtDateTime
	ExtTimestamp
	ExtDecimal
	ExtUuid
	ExtJson
)

var extNames = [...]string{
	ExtNone:      "",
	ExtDate:      "Date",
	ExtTime:      "Time",
	ExtDateTime:  "DateTime",
	ExtTimestamp: "Timestamp",
	ExtDecimal:   "Decimal",
	ExtUuid:      "Uuid",
	ExtJson:      "Json",
}

func (t ExtTag) String() string {
	if int(t) < len(extNames) {
		return extNames[t]
	}
	return "ExtTag(" + strconv.Itoa(int(t)) + ")"
}

// ParseExtTag maps an extension name ("Date", "Timestamp", ...) to its tag.
func ParseExtTag(name string) (ExtTag, bool) {
	for i, n := range extNames {
		if i > 0 && n == name {
			return ExtTag(i), true
		}
	}
	return ExtNone, false
}

// Value is a single typed value. The zero Value is Null.
type Value struct {
	kind Kind
	ext  ExtTag

	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	bin []byte
	arr []Value
	m   *Map
	pl  *Value
}

// Null is the Null value.
var Null = Value{}

func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func I32(n int32) Value       { return Value{kind: KindI32, i: int64(n)} }
func I64(n int64) Value       { return Value{kind: KindI64, i: n} }
func U32(n uint32) Value      { return Value{kind: KindU32, u: uint64(n)} }
func U64(n uint64) Value      { return Value{kind: KindU64, u: n} }
func F32(f float32) Value     { return Value{kind: KindF32, f: float64(f)} }
func F64(f float64) Value     { return Value{kind: KindF64, f: f} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func Binary(b []byte) Value   { return Value{kind: KindBinary, bin: slices.Clone(b)} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: slices.Clone(vs)} }

// MapOf wraps an ordered map. A nil map is treated as empty.
func MapOf(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Ext builds an extension value.
func Ext(tag ExtTag, payload Value) Value {
	p := payload
	return Value{kind: KindExt, ext: tag, pl: &p}
}

func Date(s string) Value      { return Ext(ExtDate, String(s)) }
func Time(s string) Value      { return Ext(ExtTime, String(s)) }
func DateTime(s string) Value  { return Ext(ExtDateTime, String(s)) }
func Timestamp(ms int64) Value { return Ext(ExtTimestamp, I64(ms)) }
func Decimal(s string) Value   { return Ext(ExtDecimal, String(s)) }
func Uuid(s string) Value      { return Ext(ExtUuid, String(s)) }
func Json(s string) Value      { return Ext(ExtJson, String(s)) }

func (v Value) Kind() Kind          { return v.kind }
func (v Value) IsNull() bool        { return v.kind == KindNull }
func (v Value) Tag() ExtTag         { return v.ext }
func (v Value) Map() *Map           { return v.m }
func (v Value) BoolValue() bool     { return v.b }
func (v Value) Float() float64      { return v.f }
func (v Value) IsExt(t ExtTag) bool { return v.kind == KindExt && v.ext == t }

// Array returns a copy of the elements of an Array value.
func (v Value) Array() []Value { return slices.Clone(v.arr) }

// Bytes returns a copy of the content of a Binary value.
func (v Value) Bytes() []byte { return slices.Clone(v.bin) }

// Payload returns the payload of an extension value, or Null.
func (v Value) Payload() Value {
	if v.kind != KindExt || v.pl == nil {
		return Null
	}
	return *v.pl
}

// Int returns the value as int64 for signed and unsigned integer kinds.
// Unsigned values above math.MaxInt64 fail.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindI32, KindI64:
		return v.i, true
	case KindU32, KindU64:
		if v.u > math.MaxInt64 {
			return 0, false
		}
		return int64(v.u), true
	}
	return 0, false
}

// Uint returns the value as uint64 for integer kinds; negative numbers fail.
func (v Value) Uint() (uint64, bool) {
	switch v.kind {
	case KindU32, KindU64:
		return v.u, true
	case KindI32, KindI64:
		if v.i < 0 {
			return 0, false
		}
		return uint64(v.i), true
	}
	return 0, false
}

// Str returns the string content of a String value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Text returns the plain text of scalars without any quoting. Extension
// values yield the text of their payload.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindI32, KindI64:
		return strconv.FormatInt(v.i, 10)
	case KindU32, KindU64:
		return strconv.FormatUint(v.u, 10)
	case KindF32:
		return strconv.FormatFloat(v.f, 'f', -1, 32)
	case KindF64:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindExt:
		return v.Payload().Text()
	}
	return v.String()
}

// String renders the value in its generic textual form: strings are double
// quoted, binaries are shown as a byte list, collections as JSON-like text.
func (v Value) String() string {
	var sb strings.Builder
	v.writeTo(&sb)
	return sb.String()
}

func (v Value) writeTo(sb *strings.Builder) {
	switch v.kind {
	case KindString:
		sb.WriteByte('"')
		sb.WriteString(v.s)
		sb.WriteByte('"')
	case KindBinary:
		sb.WriteByte('[')
		for i, c := range v.bin {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(int(c)))
		}
		sb.WriteByte(']')
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeTo(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		if v.m != nil {
			for i, k := range v.m.keys {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString(strconv.Quote(k))
				sb.WriteByte(':')
				v.m.vals[i].writeTo(sb)
			}
		}
		sb.WriteByte('}')
	case KindExt:
		fmt.Fprintf(sb, "%s(", v.ext)
		v.Payload().writeTo(sb)
		sb.WriteByte(')')
	default:
		sb.WriteString(v.Text())
	}
}

// Equal reports deep equality, including the variant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindI32, KindI64:
		return v.i == o.i
	case KindU32, KindU64:
		return v.u == o.u
	case KindF32, KindF64:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBinary:
		return string(v.bin) == string(o.bin)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	case KindExt:
		return v.ext == o.ext && v.Payload().Equal(o.Payload())
	}
	return false
}
