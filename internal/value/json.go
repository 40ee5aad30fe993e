package value

import (
	"bytes"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// MarshalJSON renders the value as JSON. Extension values are rendered as
// their payload, binaries as an array of byte values, and non-finite floats
// as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindI32, KindI64:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindU32, KindU64:
		buf.WriteString(strconv.FormatUint(v.u, 10))
	case KindF32, KindF64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		bits := 64
		if v.kind == KindF32 {
			bits = 32
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, bits))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBinary:
		buf.WriteByte('[')
		for i, c := range v.bin {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(int(c)))
		}
		buf.WriteByte(']')
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		var err error
		first := true
		v.m.Range(func(k string, e Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			var kb []byte
			if kb, err = json.Marshal(k); err != nil {
				return false
			}
			buf.Write(kb)
			buf.WriteByte(':')
			err = e.appendJSON(buf)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	case KindExt:
		return v.Payload().appendJSON(buf)
	}
	return nil
}

// FromJSON converts decoded JSON into a Value. Objects keep their key order.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return readJSON(dec)
}

func readJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null, err
	}
	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return I64(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null, err
		}
		return F64(f), nil
	case json.Delim:
		switch t {
		case '[':
			var out []Value
			for dec.More() {
				e, err := readJSON(dec)
				if err != nil {
					return Null, err
				}
				out = append(out, e)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return Array(out...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Null, err
				}
				k, _ := kt.(string)
				e, err := readJSON(dec)
				if err != nil {
					return Null, err
				}
				m.Set(k, e)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return MapOf(m), nil
		}
	}
	return Null, nil
}
