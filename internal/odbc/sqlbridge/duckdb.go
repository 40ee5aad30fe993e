//go:build duckdb

package sqlbridge

import (
	_ "github.com/duckdb/duckdb-go/v2"
)

func init() {
	register(engine{
		driver: "duckdb",
		banner: "DuckDB",
		dsn:    func(database string) string { return database },
	}, "DuckDB", "DuckDB Driver")
}
