// Package unixodbc binds the system ODBC driver manager (unixODBC, iODBC
// or odbc32 on Windows) to the odbc interfaces.
//
// The binding needs cgo and the driver manager headers, so it is only
// compiled with the unixodbc build tag:
//
//	go build -tags unixodbc ./...
//
// Other builds get an environment whose Connect fails with
// ErrNoDriverManager.
package unixodbc

import "github.com/SimonWaldherr/tinyodbc/internal/odbc"

// Lazy returns an environment that allocates the process wide environment
// on the first Connect, so programs that never reach a driver manager do
// not need one installed.
func Lazy() odbc.Environment { return lazy{} }

type lazy struct{}

func (lazy) Connect(connString string) (odbc.Connection, error) {
	e, err := Default()
	if err != nil {
		return nil, err
	}
	return e.Connect(connString)
}
