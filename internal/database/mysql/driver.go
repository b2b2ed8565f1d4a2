// Package mysql implements database.DB for MySQL on top of sqldb.
package mysql

import (
	"context"
	"database/sql"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/database/sqldb"
	"github.com/koustreak/rowsource/internal/errs"
)

// Driver is a MySQL implementation of database.DB.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	*sqldb.DB
}

var _ database.DB = (*Driver)(nil)

// New opens a MySQL connection pool using the provided Config and returns a
// Driver. DATE and DATETIME columns are scanned as time.Time.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	mc, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	mc.ParseTime = true
	if mc.Timeout == 0 {
		mc.Timeout = cfg.ConnectTimeout
	}

	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}

	db, err := sqldb.New(ctx, sqlx.NewDb(sql.OpenDB(connector), "mysql"), database.DialectMySQL, cfg, mapError)
	if err != nil {
		return nil, err
	}
	return &Driver{DB: db}, nil
}
