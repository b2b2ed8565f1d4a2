// Package sqldb adapts a database/sql pool, through sqlx, to database.DB.
// It backs the MySQL driver and the lib/pq flavour of the PostgreSQL driver.
package sqldb

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/errs"
)

// ErrorMapper translates a driver error into an *errs.Error carrying msg.
type ErrorMapper func(err error, msg string) error

// DB is a database.DB over *sqlx.DB.
// It is safe for concurrent use by multiple goroutines.
type DB struct {
	db      *sqlx.DB
	dialect database.Dialect
	mapErr  ErrorMapper
}

var _ database.DB = (*DB)(nil)

// Open opens a pool for a registered database/sql driver name.
func Open(ctx context.Context, driverName string, dialect database.Dialect, cfg *database.Config, mapErr ErrorMapper) (*DB, error) {
	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	return New(ctx, db, dialect, cfg, mapErr)
}

// New applies the pool settings of cfg to db and pings it within
// cfg.ConnectTimeout. db is closed when the ping fails.
func New(ctx context.Context, db *sqlx.DB, dialect database.Dialect, cfg *database.Config, mapErr ErrorMapper) (*DB, error) {
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &DB{db: db, dialect: dialect, mapErr: mapErr}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.mapErr(err, "ping failed")
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Dialect() database.Dialect { return d.dialect }

func (d *DB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, d.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &sqlRow{row: d.db.QueryRowxContext(ctx, query, args...), mapErr: d.mapErr}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, d.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (d *DB) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, d.mapErr(err, "begin failed")
	}
	return &sqlTx{tx: tx, mapErr: d.mapErr}, nil
}

func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	return database.ListTables(ctx, d, d.dialect)
}

func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	return database.TableExists(ctx, d, d.dialect, table)
}

func (d *DB) InspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	return database.InspectTable(ctx, d, d.dialect, table)
}

// rowsAffected is -1 when the driver cannot report it.
func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

type sqlRows struct {
	rows *sqlx.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close() error               { return r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

type sqlRow struct {
	row    *sqlx.Row
	mapErr ErrorMapper
}

func (r *sqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return r.mapErr(err, "scan failed")
	}
	return nil
}

type sqlTx struct {
	tx     *sqlx.Tx
	mapErr ErrorMapper
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (t *sqlTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return t.mapErr(err, "commit failed")
	}
	return nil
}

func (t *sqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return t.mapErr(err, "rollback failed")
	}
	return nil
}
