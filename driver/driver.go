package driver

import (
	"database/sql"

	id "github.com/SimonWaldherr/tinyodbc/internal/driver"
)

// DriverName is the registered database/sql driver name for tinyodbc.
const DriverName = id.DriverName

// Open is a convenience wrapper around `sql.Open(DriverName, dsn)`.
func Open(dsn string) (*sql.DB, error) { return sql.Open(DriverName, dsn) }

// OpenSQLite opens an embedded SQLite database through the driver. An
// empty path opens a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	return Open("Driver={SQLite3};Database=" + path)
}

// Re-export selected symbols from the internal driver package so external
// consumers can use a stable public API while the implementation remains
// hidden under `internal/driver`.
var (
	IsUnsupported         = id.IsUnsupported
	SetDefaultEnvironment = id.SetDefaultEnvironment
)
