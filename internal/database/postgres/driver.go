// Package postgres implements database.DB for PostgreSQL. New uses pgx and
// its pool; NewPQ uses lib/pq through database/sql for deployments that
// standardise on it.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/rowsource/internal/database"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
//
// Result sets returned by Query implement database.Warner: notices the server
// sends while the query runs are reported as warnings.
type Driver struct {
	pool    *pgxpool.Pool
	notices *noticeLog
}

var _ database.DB = (*Driver)(nil)

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, mapError(err, "invalid DSN")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	notices := newNoticeLog()
	poolCfg.ConnConfig.OnNotice = notices.record

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}

	d := &Driver{pool: pool, notices: notices}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

func (d *Driver) Dialect() database.Dialect { return database.DialectPostgres }

// Query holds a pooled connection until the returned rows are closed.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	pg := conn.Conn().PgConn()
	d.notices.watch(pg)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		d.notices.forget(pg)
		conn.Release()
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows, conn: conn, pg: pg, notices: d.notices}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: d.pool.QueryRow(ctx, sql, args...)}
}

func (d *Driver) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "begin failed")
	}
	return &pgxTx{tx: tx}, nil
}

// ListTables returns the base tables of the current schema.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	return database.ListTables(ctx, d, database.DialectPostgres)
}

// TableExists reports whether a table with the given name exists.
func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	return database.TableExists(ctx, d, database.DialectPostgres, table)
}

// InspectTable fetches the columns and primary key of one table.
func (d *Driver) InspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	return database.InspectTable(ctx, d, database.DialectPostgres, table)
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows and database.Warner.
type pgxRows struct {
	rows     pgx.Rows
	conn     *pgxpool.Conn
	pg       *pgconn.PgConn
	notices  *noticeLog
	released bool
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

func (r *pgxRows) Close() error {
	r.rows.Close()
	if !r.released {
		r.released = true
		r.notices.forget(r.pg)
		r.conn.Release()
	}
	return nil
}

// Warnings returns the notices received for this query so far.
func (r *pgxRows) Warnings() []string {
	return r.notices.collected(r.pg)
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err, "commit failed")
	}
	return nil
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return mapError(err, "rollback failed")
	}
	return nil
}

// --- notices ---

// noticeLog collects server notices per connection while a query result on
// that connection is open. Notices on unwatched connections are dropped.
type noticeLog struct {
	mu     sync.Mutex
	byConn map[*pgconn.PgConn][]string
}

func newNoticeLog() *noticeLog {
	return &noticeLog{byConn: make(map[*pgconn.PgConn][]string)}
}

func (l *noticeLog) record(c *pgconn.PgConn, n *pgconn.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if buf, ok := l.byConn[c]; ok {
		l.byConn[c] = append(buf, formatNotice(n))
	}
}

func (l *noticeLog) watch(c *pgconn.PgConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byConn[c] = []string{}
}

func (l *noticeLog) forget(c *pgconn.PgConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byConn, c)
}

func (l *noticeLog) collected(c *pgconn.PgConn) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.byConn[c]...)
}

func formatNotice(n *pgconn.Notice) string {
	return fmt.Sprintf("%s %s: %s", n.Severity, n.Code, n.Message)
}
