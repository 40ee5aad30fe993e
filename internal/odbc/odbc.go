// Package odbc describes the call-level interface the connector drives.
//
// What: a small set of interfaces modelled on ODBC handles (environment,
// connection, statement, block cursor) plus the fixed-width text row set
// used to fetch result batches.
// How: implementations live in sub packages. unixodbc binds the real
// driver manager through cgo, sqlbridge emulates the same contract on top
// of database/sql for embedded engines. Tests script their own.
// Why: the session, introspection and fetch code only ever see these
// interfaces, so they behave identically against every backend.
//
// None of the interfaces are safe for concurrent use. Callers serialize
// access per connection.
package odbc

// Environment opens connections from driver connection strings.
type Environment interface {
	Connect(connString string) (Connection, error)
}

// Connection is an open link to a data source.
type Connection interface {
	// Execute runs sql directly. The cursor is nil when the statement
	// produced no result set.
	Execute(sql string) (Cursor, error)
	Prepare(sql string) (Prepared, error)
	SetAutocommit(on bool) error
	Commit() error
	Rollback() error
	// DBMSName returns the engine banner (SQL_DBMS_NAME).
	DBMSName() (string, error)
	Close() error
}

// Prepared is a prepared statement.
type Prepared interface {
	// Execute runs the statement. The cursor is nil when there is no result set.
	Execute() (Cursor, error)
	// RowCount reports the rows affected by the last Execute. known is
	// false when the driver cannot tell.
	RowCount() (n int64, known bool, err error)
	Close() error
}

// Cursor is an open result set.
type Cursor interface {
	NumResultCols() (int, error)
	// DescribeCol describes result column i, counting from 1.
	DescribeCol(i int) (ColumnDescription, error)
	// BindBuffer binds rs to the cursor for block fetching.
	BindBuffer(rs *TextRowSet) (BlockCursor, error)
	Close() error
}

// BlockCursor fetches batches into the bound TextRowSet.
type BlockCursor interface {
	// Fetch fills the row set with the next batch and returns the number of
	// rows it holds. Zero rows means the result set is exhausted. With
	// truncationCheck set, a cell wider than its buffer fails the fetch
	// with a *TooLargeValueError.
	Fetch(truncationCheck bool) (int, error)
	Close() error
}
