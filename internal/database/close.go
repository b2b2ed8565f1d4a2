package database

import (
	"fmt"
	"io"
)

// CloseStatement closes a prepared statement or any other statement handle.
func (m *Materializer) CloseStatement(stmt io.Closer) { m.closeQuietly("statement", stmt) }

// CloseRows closes a result set.
func (m *Materializer) CloseRows(rows Rows) {
	if rows == nil {
		return
	}
	m.closeQuietly("rows", rows)
}

// CloseConn closes a connection or pool.
func (m *Materializer) CloseConn(conn io.Closer) { m.closeQuietly("connection", conn) }

// closeQuietly is nil safe and never fails: errors and panics raised while
// closing are logged as warnings.
func (m *Materializer) closeQuietly(what string, c io.Closer) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.WarnWith("panic while closing "+what, fmt.Errorf("%v", r), nil)
		}
	}()
	if err := c.Close(); err != nil {
		m.log.WarnWith("failed to close "+what, err, nil)
	}
}
