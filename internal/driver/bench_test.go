package driver

import (
	"database/sql/driver"
	"testing"

	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

func nvArg(i int, v any) driver.NamedValue { return driver.NamedValue{Ordinal: i + 1, Value: v} }

func BenchmarkToValue_String(b *testing.B) {
	s := "This is a test string with 'single quotes' and more content to escape"
	for i := 0; i < b.N; i++ {
		_, _ = toValue(s)
	}
}

func BenchmarkBindArgs(b *testing.B) {
	args := make([]driver.NamedValue, 10)
	for i := range args {
		args[i] = nvArg(i, int64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = bindArgs(args)
	}
}

func BenchmarkDriverValue_Timestamp(b *testing.B) {
	v := value.Timestamp(1704164645000)
	for i := 0; i < b.N; i++ {
		_, _ = driverValue(v)
	}
}
