package value

import (
	"fmt"
	"strings"
	"time"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

const timeOfDayLayout = "15:04:05.999999999"

// ParseDateTime parses the date and time spellings produced by engines and
// accepted from callers: ISO 8601 with either 'T' or ' ' as separator,
// optional fraction and offset, a bare date, or a bare time of day (on
// 1970-01-01). Values without an offset are interpreted in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(timeOfDayLayout, s, loc); err == nil {
		return time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
	}
	return time.Time{}, fmt.Errorf("tinyodbc: unrecognized date/time %q", s)
}
