//go:build cgo && unixodbc

// Result columns are bound column-wise into C memory, SQL_C_CHAR for text
// and SQL_C_BINARY for binary columns, and copied into the caller's
// TextRowSet after every block fetch.
package unixodbc

/*
#cgo linux LDFLAGS: -lodbc
#cgo darwin LDFLAGS: -lodbc
#cgo freebsd LDFLAGS: -lodbc
#cgo windows LDFLAGS: -lodbc32
#include <stdlib.h>
#include <sql.h>
#include <sqlext.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/SimonWaldherr/tinyodbc/internal/odbc"
)

func ok(ret C.SQLRETURN) bool {
	return ret == C.SQL_SUCCESS || ret == C.SQL_SUCCESS_WITH_INFO
}

// diag collects the diagnostic records of a failed call.
func diag(fn string, handleType C.SQLSMALLINT, h C.SQLHANDLE) error {
	e := &odbc.Error{Function: fn}
	for rec := C.SQLSMALLINT(1); ; rec++ {
		var (
			state  [6]C.SQLCHAR
			native C.SQLINTEGER
			msg    [1024]C.SQLCHAR
			n      C.SQLSMALLINT
		)
		ret := C.SQLGetDiagRec(handleType, h, rec, &state[0], &native, &msg[0], C.SQLSMALLINT(len(msg)), &n)
		if !ok(ret) {
			break
		}
		if int(n) > len(msg)-1 {
			n = C.SQLSMALLINT(len(msg) - 1)
		}
		e.Records = append(e.Records, odbc.DiagRecord{
			State:       C.GoStringN((*C.char)(unsafe.Pointer(&state[0])), 5),
			NativeError: int32(native),
			Message:     C.GoStringN((*C.char)(unsafe.Pointer(&msg[0])), C.int(n)),
		})
	}
	return e
}

func ptr(n uintptr) C.SQLPOINTER { return C.SQLPOINTER(unsafe.Pointer(n)) }

// Env is an ODBC 3 environment handle.
type Env struct {
	h C.SQLHANDLE
}

var (
	defaultOnce sync.Once
	defaultEnv  *Env
	defaultErr  error
)

// Default returns the process wide environment, allocating it on first use.
func Default() (*Env, error) {
	defaultOnce.Do(func() { defaultEnv, defaultErr = New() })
	return defaultEnv, defaultErr
}

// New allocates an environment handle declaring ODBC 3 behaviour.
func New() (*Env, error) {
	var h C.SQLHANDLE
	if ret := C.SQLAllocHandle(C.SQL_HANDLE_ENV, C.SQLHANDLE(nil), &h); !ok(ret) {
		return nil, fmt.Errorf("unixodbc: SQLAllocHandle(ENV) returned %d", int(ret))
	}
	ret := C.SQLSetEnvAttr(C.SQLHENV(h), C.SQL_ATTR_ODBC_VERSION, ptr(C.SQL_OV_ODBC3), 0)
	if !ok(ret) {
		err := diag("SQLSetEnvAttr", C.SQL_HANDLE_ENV, h)
		C.SQLFreeHandle(C.SQL_HANDLE_ENV, h)
		return nil, err
	}
	return &Env{h: h}, nil
}

// Close frees the environment handle.
func (e *Env) Close() error {
	if ret := C.SQLFreeHandle(C.SQL_HANDLE_ENV, e.h); !ok(ret) {
		return diag("SQLFreeHandle", C.SQL_HANDLE_ENV, e.h)
	}
	return nil
}

func (e *Env) Connect(connString string) (odbc.Connection, error) {
	var h C.SQLHANDLE
	if ret := C.SQLAllocHandle(C.SQL_HANDLE_DBC, e.h, &h); !ok(ret) {
		return nil, diag("SQLAllocHandle", C.SQL_HANDLE_ENV, e.h)
	}
	cs := C.CString(connString)
	defer C.free(unsafe.Pointer(cs))
	ret := C.SQLDriverConnect(C.SQLHDBC(h), nil, (*C.SQLCHAR)(unsafe.Pointer(cs)), C.SQL_NTS,
		nil, 0, nil, C.SQL_DRIVER_NOPROMPT)
	if !ok(ret) {
		err := diag("SQLDriverConnect", C.SQL_HANDLE_DBC, h)
		C.SQLFreeHandle(C.SQL_HANDLE_DBC, h)
		return nil, err
	}
	return &conn{h: h}, nil
}

type conn struct {
	h C.SQLHANDLE
}

func (c *conn) stmt() (C.SQLHANDLE, error) {
	var h C.SQLHANDLE
	if ret := C.SQLAllocHandle(C.SQL_HANDLE_STMT, c.h, &h); !ok(ret) {
		return nil, diag("SQLAllocHandle", C.SQL_HANDLE_DBC, c.h)
	}
	return h, nil
}

func freeStmt(h C.SQLHANDLE) { C.SQLFreeHandle(C.SQL_HANDLE_STMT, h) }

// resultCursor returns a cursor for h when the last execution produced a
// result set.
func resultCursor(h C.SQLHANDLE, owned bool) (odbc.Cursor, error) {
	var n C.SQLSMALLINT
	if ret := C.SQLNumResultCols(C.SQLHSTMT(h), &n); !ok(ret) {
		return nil, diag("SQLNumResultCols", C.SQL_HANDLE_STMT, h)
	}
	if n == 0 {
		return nil, nil
	}
	return &cursor{h: h, cols: int(n), owned: owned}, nil
}

func (c *conn) Execute(sql string) (odbc.Cursor, error) {
	h, err := c.stmt()
	if err != nil {
		return nil, err
	}
	text := C.CString(sql)
	defer C.free(unsafe.Pointer(text))
	ret := C.SQLExecDirect(C.SQLHSTMT(h), (*C.SQLCHAR)(unsafe.Pointer(text)), C.SQL_NTS)
	if !ok(ret) && ret != C.SQL_NO_DATA {
		err := diag("SQLExecDirect", C.SQL_HANDLE_STMT, h)
		freeStmt(h)
		return nil, err
	}
	cur, err := resultCursor(h, true)
	if cur == nil {
		freeStmt(h)
	}
	return cur, err
}

func (c *conn) Prepare(sql string) (odbc.Prepared, error) {
	h, err := c.stmt()
	if err != nil {
		return nil, err
	}
	text := C.CString(sql)
	defer C.free(unsafe.Pointer(text))
	if ret := C.SQLPrepare(C.SQLHSTMT(h), (*C.SQLCHAR)(unsafe.Pointer(text)), C.SQL_NTS); !ok(ret) {
		err := diag("SQLPrepare", C.SQL_HANDLE_STMT, h)
		freeStmt(h)
		return nil, err
	}
	return &prepared{h: h}, nil
}

func (c *conn) SetAutocommit(on bool) error {
	v := uintptr(C.SQL_AUTOCOMMIT_OFF)
	if on {
		v = uintptr(C.SQL_AUTOCOMMIT_ON)
	}
	ret := C.SQLSetConnectAttr(C.SQLHDBC(c.h), C.SQL_ATTR_AUTOCOMMIT, ptr(v), C.SQL_IS_UINTEGER)
	if !ok(ret) {
		return diag("SQLSetConnectAttr", C.SQL_HANDLE_DBC, c.h)
	}
	return nil
}

func (c *conn) endTran(kind C.SQLSMALLINT) error {
	if ret := C.SQLEndTran(C.SQL_HANDLE_DBC, c.h, kind); !ok(ret) {
		return diag("SQLEndTran", C.SQL_HANDLE_DBC, c.h)
	}
	return nil
}

func (c *conn) Commit() error   { return c.endTran(C.SQL_COMMIT) }
func (c *conn) Rollback() error { return c.endTran(C.SQL_ROLLBACK) }

func (c *conn) DBMSName() (string, error) {
	var (
		buf [256]C.SQLCHAR
		n   C.SQLSMALLINT
	)
	ret := C.SQLGetInfo(C.SQLHDBC(c.h), C.SQL_DBMS_NAME, C.SQLPOINTER(unsafe.Pointer(&buf[0])), C.SQLSMALLINT(len(buf)), &n)
	if !ok(ret) {
		return "", diag("SQLGetInfo", C.SQL_HANDLE_DBC, c.h)
	}
	if int(n) > len(buf)-1 {
		n = C.SQLSMALLINT(len(buf) - 1)
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(&buf[0])), C.int(n)), nil
}

func (c *conn) Close() error {
	if ret := C.SQLDisconnect(C.SQLHDBC(c.h)); !ok(ret) {
		err := diag("SQLDisconnect", C.SQL_HANDLE_DBC, c.h)
		C.SQLFreeHandle(C.SQL_HANDLE_DBC, c.h)
		return err
	}
	C.SQLFreeHandle(C.SQL_HANDLE_DBC, c.h)
	return nil
}

type prepared struct {
	h C.SQLHANDLE
}

func (p *prepared) Execute() (odbc.Cursor, error) {
	ret := C.SQLExecute(C.SQLHSTMT(p.h))
	if !ok(ret) && ret != C.SQL_NO_DATA {
		return nil, diag("SQLExecute", C.SQL_HANDLE_STMT, p.h)
	}
	return resultCursor(p.h, false)
}

func (p *prepared) RowCount() (int64, bool, error) {
	var n C.SQLLEN
	if ret := C.SQLRowCount(C.SQLHSTMT(p.h), &n); !ok(ret) {
		return 0, false, diag("SQLRowCount", C.SQL_HANDLE_STMT, p.h)
	}
	if n < 0 {
		return 0, false, nil
	}
	return int64(n), true, nil
}

func (p *prepared) Close() error {
	freeStmt(p.h)
	return nil
}

// cursor is an open result set on a statement handle. A cursor from a
// direct execution owns its handle; one from a prepared statement only
// closes the result set.
type cursor struct {
	h     C.SQLHANDLE
	cols  int
	owned bool
}

func (c *cursor) NumResultCols() (int, error) { return c.cols, nil }

func (c *cursor) DescribeCol(i int) (odbc.ColumnDescription, error) {
	var (
		name     [256]C.SQLCHAR
		nameLen  C.SQLSMALLINT
		code     C.SQLSMALLINT
		size     C.SQLULEN
		digits   C.SQLSMALLINT
		nullable C.SQLSMALLINT
	)
	ret := C.SQLDescribeCol(C.SQLHSTMT(c.h), C.SQLUSMALLINT(i), &name[0], C.SQLSMALLINT(len(name)),
		&nameLen, &code, &size, &digits, &nullable)
	if !ok(ret) {
		return odbc.ColumnDescription{}, diag("SQLDescribeCol", C.SQL_HANDLE_STMT, c.h)
	}
	if int(nameLen) > len(name)-1 {
		nameLen = C.SQLSMALLINT(len(name) - 1)
	}
	return odbc.ColumnDescription{
		Name:        C.GoStringN((*C.char)(unsafe.Pointer(&name[0])), C.int(nameLen)),
		Type:        odbc.DataTypeFromSQL(odbc.SQLType(code), int(size), int(digits)),
		Nullability: odbc.Nullability(nullable),
	}, nil
}

func (c *cursor) BindBuffer(rs *odbc.TextRowSet) (odbc.BlockCursor, error) {
	if rs.NumCols() != c.cols {
		return nil, fmt.Errorf("unixodbc: row set has %d columns, result has %d", rs.NumCols(), c.cols)
	}
	b := &block{h: c.h, rs: rs}
	capacity := rs.Capacity()
	b.fetched = (*C.SQLULEN)(C.malloc(C.size_t(unsafe.Sizeof(C.SQLULEN(0)))))
	attrs := []struct {
		attr C.SQLINTEGER
		val  C.SQLPOINTER
	}{
		{C.SQL_ATTR_ROW_BIND_TYPE, ptr(C.SQL_BIND_BY_COLUMN)},
		{C.SQL_ATTR_ROW_ARRAY_SIZE, ptr(uintptr(capacity))},
		{C.SQL_ATTR_ROWS_FETCHED_PTR, C.SQLPOINTER(unsafe.Pointer(b.fetched))},
	}
	for _, a := range attrs {
		if ret := C.SQLSetStmtAttr(C.SQLHSTMT(c.h), a.attr, a.val, 0); !ok(ret) {
			b.Close()
			return nil, diag("SQLSetStmtAttr", C.SQL_HANDLE_STMT, c.h)
		}
	}
	for col := 0; col < c.cols; col++ {
		d, err := c.DescribeCol(col + 1)
		if err != nil {
			b.Close()
			return nil, err
		}
		cb := colBuf{width: rs.MaxLen(col), ctype: C.SQL_C_CHAR}
		cb.stride = cb.width + 1
		if d.Type.IsBinary() {
			cb.ctype, cb.stride = C.SQL_C_BINARY, cb.width
		}
		cb.data = C.malloc(C.size_t(capacity * cb.stride))
		cb.ind = (*C.SQLLEN)(C.malloc(C.size_t(capacity) * C.size_t(unsafe.Sizeof(C.SQLLEN(0)))))
		b.bufs = append(b.bufs, cb)
		ret := C.SQLBindCol(C.SQLHSTMT(c.h), C.SQLUSMALLINT(col+1), cb.ctype, C.SQLPOINTER(cb.data), C.SQLLEN(cb.stride), cb.ind)
		if !ok(ret) {
			b.Close()
			return nil, diag("SQLBindCol", C.SQL_HANDLE_STMT, c.h)
		}
	}
	return b, nil
}

func (c *cursor) Close() error {
	if c.owned {
		freeStmt(c.h)
		return nil
	}
	C.SQLFreeStmt(C.SQLHSTMT(c.h), C.SQL_CLOSE)
	return nil
}

type colBuf struct {
	data   unsafe.Pointer
	ind    *C.SQLLEN
	width  int
	stride int
	ctype  C.SQLSMALLINT
}

type block struct {
	h       C.SQLHANDLE
	rs      *odbc.TextRowSet
	bufs    []colBuf
	fetched *C.SQLULEN
}

func (b *block) Fetch(truncationCheck bool) (int, error) {
	b.rs.Reset()
	ret := C.SQLFetch(C.SQLHSTMT(b.h))
	if ret == C.SQL_NO_DATA {
		return 0, nil
	}
	if !ok(ret) {
		return 0, diag("SQLFetch", C.SQL_HANDLE_STMT, b.h)
	}
	n := int(*b.fetched)
	for col, cb := range b.bufs {
		inds := unsafe.Slice(cb.ind, b.rs.Capacity())
		data := unsafe.Slice((*byte)(cb.data), b.rs.Capacity()*cb.stride)
		for row := 0; row < n; row++ {
			ind := int(inds[row])
			if ind == C.SQL_NULL_DATA {
				b.rs.SetNull(col, row)
				continue
			}
			buf, slot := b.rs.Slot(col, row)
			m := ind
			if ind == C.SQL_NO_TOTAL || m > cb.width {
				m = cb.width
			}
			copy(buf, data[row*cb.stride:row*cb.stride+m])
			if ind == C.SQL_NO_TOTAL {
				*slot = odbc.NoTotal
			} else {
				*slot = ind
			}
		}
	}
	b.rs.SetNumRows(n)
	if truncationCheck {
		if col, req, found := b.rs.Truncated(); found {
			return n, &odbc.TooLargeValueError{BufferIndex: col, Required: req}
		}
	}
	return n, nil
}

func (b *block) Close() error {
	C.SQLFreeStmt(C.SQLHSTMT(b.h), C.SQL_UNBIND)
	for _, cb := range b.bufs {
		C.free(cb.data)
		C.free(unsafe.Pointer(cb.ind))
	}
	b.bufs = nil
	if b.fetched != nil {
		C.free(unsafe.Pointer(b.fetched))
		b.fetched = nil
	}
	return nil
}
