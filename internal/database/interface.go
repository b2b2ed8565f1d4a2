package database

import "context"

// Querier runs statements that return rows.
type Querier interface {
	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// DB is the central contract for all database operations.
// All layers above this package talk only to this interface;
// they never import the postgres or mysql packages directly.
type DB interface {
	Querier
	Beginner

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close() error

	// Exec runs a statement that returns no rows and reports the rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Dialect reports the SQL dialect used for quoting and placeholders.
	Dialect() Dialect

	// ListTables returns the base tables of the connection's current schema.
	ListTables(ctx context.Context) ([]string, error)

	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// InspectTable returns the columns and primary key of one table.
	InspectTable(ctx context.Context, table string) (*TableInfo, error)
}

// Tx is an open transaction.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close() error

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}

// Warner is implemented by result sets that collect server warnings, such as
// PostgreSQL notices raised while the query ran.
type Warner interface {
	Warnings() []string
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name      string
	DataType  string
	Nullable  bool
	Default   *string
	IsPrimary bool
}

// TableInfo describes a table and its columns in ordinal order.
type TableInfo struct {
	Name       string
	Columns    []*ColumnInfo
	PrimaryKey []string
}

// ColumnNames returns the column names in ordinal order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
