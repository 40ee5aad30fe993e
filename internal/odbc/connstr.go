package odbc

import "strings"

// ParseConnString splits a driver connection string such as
// "Driver={DM8 ODBC Driver};Server=h:5236;SCHEMA=app" into its attributes.
// Keys are lower-cased and both sides trimmed. Segments that do not split
// into exactly one key and one value are ignored.
func ParseConnString(s string) map[string]string {
	kv := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(parts[0]))
		if k == "" {
			continue
		}
		kv[k] = strings.TrimSpace(parts[1])
	}
	return kv
}

// DriverName returns the Driver attribute without surrounding braces.
func DriverName(kv map[string]string) string {
	d := kv["driver"]
	d = strings.TrimPrefix(d, "{")
	d = strings.TrimSuffix(d, "}")
	return d
}
