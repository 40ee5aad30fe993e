//go:build !cgo || !unixodbc

package unixodbc

import (
	"errors"

	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

// ErrNoDriverManager is returned when the binary was built without cgo or
// without the unixodbc tag.
var ErrNoDriverManager = errors.New("unixodbc: no driver manager binding, build with cgo and -tags unixodbc")

// Env is unusable without the binding.
type Env struct{}

func Default() (*Env, error) { return nil, ErrNoDriverManager }
func New() (*Env, error)     { return nil, ErrNoDriverManager }

func (e *Env) Close() error { return nil }

func (e *Env) Connect(string) (odbc.Connection, error) { return nil, ErrNoDriverManager }
