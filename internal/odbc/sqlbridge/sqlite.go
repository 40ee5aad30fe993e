package sqlbridge

import (
	_ "modernc.org/sqlite"
)

func init() {
	register(engine{
		driver:   "sqlite",
		banner:   "SQLite",
		affinity: true,
		dsn: func(database string) string {
			if database == "" {
				return ":memory:"
			}
			return database
		},
	}, "SQLite3", "SQLite", "SQLite3 ODBC Driver")
}
