// Package encode turns statement parameters into SQL literal text and
// inlines them into the statement.
//
// The connector never uses native parameter binding. Every '?' in the
// statement is replaced, left to right, by the literal form of the next
// parameter, and once all parameters are in place every double quote in
// the whole statement becomes a single quote. Strings are inserted as they
// are, so callers that want a quoted string literal pass it with double
// quotes ("abc") and let the rewrite turn them into 'abc'.
//
// The rewrite applies to every double quote in the final text, including
// ones inside string parameters, JSON renderings and the statement itself.
// Callers must not pass untrusted text as parameters: the encoder does no
// escaping and the resulting statement is open to injection.
package encode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"

	"github.com/SimonWaldherr/tinyodbc/internal/dberr"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// Placeholder is the positional parameter marker.
const Placeholder = '?'

const dateTimeLiteral = "'2006-01-02 15:04:05'"
const dateTimeLiteralMillis = "'2006-01-02 15:04:05.000'"

// now is swapped in tests.
var now = time.Now

// Render returns the literal text for v. It never fails: malformed payloads
// fall back to their generic textual form.
func Render(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "NULL"
	case value.KindString:
		s, _ := v.Str()
		return s
	case value.KindI32, value.KindI64:
		n, _ := v.Int()
		return integer(n)
	case value.KindU32, value.KindU64:
		n, _ := v.Uint()
		return integer(n)
	case value.KindF32, value.KindF64:
		return v.Text()
	case value.KindArray:
		if len(v.Array()) == 0 {
			return "[]"
		}
		return jsonText(v)
	case value.KindMap:
		if v.Map().Len() == 0 {
			return "{}"
		}
		return jsonText(v)
	case value.KindExt:
		return renderExt(v)
	}
	return v.String()
}

func renderExt(v value.Value) string {
	p := v.Payload()
	switch v.Tag() {
	case value.ExtTimestamp:
		return integer(epochMillis(p))
	case value.ExtDateTime:
		return dateTime(p)
	case value.ExtDate, value.ExtTime:
		return p.Text()
	case value.ExtUuid:
		if s, ok := p.Str(); ok {
			if id, err := uuid.Parse(s); err == nil {
				return `"` + id.String() + `"`
			}
		}
	}
	return p.String()
}

// epochMillis reads a Timestamp payload as an unsigned millisecond count.
// Anything that is not a non-negative integer renders as 0.
func epochMillis(p value.Value) uint64 {
	if n, ok := p.Uint(); ok {
		return n
	}
	if s, ok := p.Str(); ok {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func dateTime(p value.Value) string {
	var t time.Time
	if ms, ok := p.Int(); ok {
		t = time.UnixMilli(ms).UTC()
	} else if parsed, err := value.ParseDateTime(p.Text(), time.Local); err == nil {
		t = parsed
	} else {
		t = now()
	}
	if t.Nanosecond()/int(time.Millisecond) != 0 {
		return t.Format(dateTimeLiteralMillis)
	}
	return t.Format(dateTimeLiteral)
}

func integer[T constraints.Integer](n T) string {
	if n < 0 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatUint(uint64(n), 10)
}

func jsonText(v value.Value) string {
	b, err := v.MarshalJSON()
	if err != nil {
		return v.String()
	}
	return string(b)
}

// Literal validates v and returns its literal text. Parameters the encoder
// cannot represent fail with an *dberr.EncodeError: binary values, Json
// extensions, unknown extension tags, and Decimal or Uuid payloads that do
// not parse.
func Literal(v value.Value) (string, error) {
	if err := check(v); err != nil {
		return "", &dberr.EncodeError{Shape: shape(v), Err: err}
	}
	return Render(v), nil
}

func check(v value.Value) error {
	switch v.Kind() {
	case value.KindBinary:
		return dberr.ErrUnimplemented
	case value.KindExt:
		p := v.Payload()
		switch v.Tag() {
		case value.ExtDate, value.ExtTime, value.ExtDateTime, value.ExtTimestamp:
			return nil
		case value.ExtDecimal:
			if _, err := decimal.NewFromString(p.Text()); err != nil {
				return fmt.Errorf("invalid decimal %q: %w", p.Text(), err)
			}
			return nil
		case value.ExtUuid:
			if _, err := uuid.Parse(p.Text()); err != nil {
				return fmt.Errorf("invalid uuid %q: %w", p.Text(), err)
			}
			return nil
		}
		return dberr.ErrUnimplemented
	}
	return nil
}

func shape(v value.Value) string {
	if v.Kind() == value.KindExt {
		return v.Tag().String()
	}
	return v.Kind().String()
}

// Substitute replaces placeholders in sql with the rendered parameters in a
// single left to right pass over the statement, then rewrites every double
// quote to a single quote. Text inserted for one parameter is never scanned
// for placeholders. Surplus placeholders stay in place and surplus
// parameters are ignored.
func Substitute(sql string, params []value.Value) string {
	var sb strings.Builder
	sb.Grow(len(sql) + len(params)*8)
	next := 0
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == Placeholder && next < len(params) {
			sb.WriteString(Render(params[next]))
			next++
			continue
		}
		sb.WriteByte(ch)
	}
	return strings.ReplaceAll(sb.String(), `"`, "'")
}

// Statement validates every parameter with Literal and returns the
// rewritten statement. The first invalid parameter aborts the call.
func Statement(sql string, params []value.Value) (string, error) {
	for i, p := range params {
		if err := check(p); err != nil {
			return "", &dberr.EncodeError{Param: i, Shape: shape(p), Err: err}
		}
	}
	return Substitute(sql, params), nil
}

// Quote wraps s as a string literal parameter. Single quotes are doubled.
// Text containing a double quote cannot survive the quote rewrite and is
// refused.
func Quote(s string) (value.Value, error) {
	if strings.ContainsRune(s, '"') {
		return value.Null, fmt.Errorf("tinyodbc: text %q contains a double quote", s)
	}
	return value.String(`"` + strings.ReplaceAll(s, "'", "''") + `"`), nil
}
