package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/errs"
)

// stubDriver is a database/sql driver answering every query with one fixed
// row. Statements containing "fail" error; the DSN "down" refuses pings.
type stubDriver struct {
	mu      sync.Mutex
	commits int
	rolls   int
}

var stub = &stubDriver{}

func init() { sql.Register("sqldbstub", stub) }

func (d *stubDriver) Open(dsn string) (driver.Conn, error) { return &stubConn{d: d, dsn: dsn}, nil }

type stubConn struct {
	d   *stubDriver
	dsn string
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) { return &stubStmt{query: query}, nil }
func (c *stubConn) Close() error                              { return nil }
func (c *stubConn) Begin() (driver.Tx, error)                 { return &stubTx{d: c.d}, nil }

func (c *stubConn) Ping(context.Context) error {
	if c.dsn == "down" {
		return errors.New("connection refused")
	}
	return nil
}

type stubStmt struct{ query string }

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec([]driver.Value) (driver.Result, error) {
	if strings.Contains(s.query, "fail") {
		return nil, errors.New("syntax error")
	}
	return driver.RowsAffected(2), nil
}

func (s *stubStmt) Query([]driver.Value) (driver.Rows, error) {
	if strings.Contains(s.query, "fail") {
		return nil, errors.New("syntax error")
	}
	return &stubRows{values: [][]driver.Value{{int64(1), "alice"}}}, nil
}

type stubRows struct {
	values [][]driver.Value
}

func (r *stubRows) Columns() []string { return []string{"id", "name"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	copy(dest, r.values[0])
	r.values = r.values[1:]
	return nil
}

type stubTx struct{ d *stubDriver }

func (t *stubTx) Commit() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.rolls++
	return nil
}

func mapStub(err error, msg string) error {
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func openStub(t *testing.T, dsn string) (*DB, error) {
	t.Helper()
	cfg := database.DefaultConfig(dsn)
	return Open(context.Background(), "sqldbstub", database.DialectMySQL, cfg, mapStub)
}

func TestOpen_PingFailure(t *testing.T) {
	_, err := openStub(t, "down")
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, err.Error(), "ping failed")
}

func TestDB_Query(t *testing.T) {
	db, err := openStub(t, "up")
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, database.DialectMySQL, db.Dialect())

	ctx := context.Background()
	mat := database.NewMaterializer(nil)
	rows, err := mat.ReadRows(ctx, db, "SELECT id, name FROM t")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "alice"}}, rows)

	var id int64
	var name string
	require.NoError(t, db.QueryRow(ctx, "SELECT id, name FROM t").Scan(&id, &name))
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "alice", name)

	_, err = db.Query(ctx, "SELECT fail")
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, err.Error(), "query failed")
}

func TestDB_ExecAndTx(t *testing.T) {
	db, err := openStub(t, "up")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	n, err := db.Exec(ctx, "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = db.Exec(ctx, "fail")
	assert.True(t, errs.IsQueryFailed(err))

	mat := database.NewMaterializer(nil)
	res := mat.ExecuteUpdate(ctx, db, "UPDATE t SET a = 2")
	assert.True(t, res.OK())
	assert.Equal(t, int64(2), res.RowsAffected)

	res = mat.ExecuteUpdate(ctx, db, "UPDATE fail")
	assert.False(t, res.OK())

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.GreaterOrEqual(t, stub.commits, 1)
	assert.GreaterOrEqual(t, stub.rolls, 1)
}
