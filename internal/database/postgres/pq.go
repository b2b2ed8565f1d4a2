package postgres

import (
	"context"

	_ "github.com/lib/pq" // register "postgres" database/sql driver

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/database/sqldb"
)

// NewPQ connects through lib/pq. Its result sets do not report notices.
func NewPQ(ctx context.Context, cfg *database.Config) (*sqldb.DB, error) {
	return sqldb.Open(ctx, "postgres", database.DialectPostgres, cfg, mapPQError)
}
