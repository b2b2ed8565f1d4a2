package database

import (
	"context"
	"strings"

	"github.com/koustreak/rowsource/internal/errs"
)

// Introspection runs the same information_schema queries on every driver.
// Queries are written with ? placeholders and a {schema} token that resolves
// to the connection's current schema, or to an explicit schema when the table
// name is qualified ("sales.orders").

const schemaToken = "{schema}"

const listTablesSQL = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = {schema}
	  AND table_type   = 'BASE TABLE'
	ORDER BY table_name`

const tableExistsSQL = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = {schema}
	  AND table_type   = 'BASE TABLE'
	  AND table_name   = ?`

const columnsSQL = `
	SELECT column_name,
	       data_type,
	       is_nullable,
	       column_default
	FROM information_schema.columns
	WHERE table_schema = {schema}
	  AND table_name   = ?
	ORDER BY ordinal_position`

const primaryKeySQL = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name
	 AND tc.table_schema    = kcu.table_schema
	 AND tc.table_name      = kcu.table_name
	WHERE tc.constraint_type = 'PRIMARY KEY'
	  AND tc.table_schema    = {schema}
	  AND tc.table_name      = ?
	ORDER BY kcu.ordinal_position`

func currentSchema(d Dialect) string {
	if d == DialectMySQL {
		return "DATABASE()"
	}
	return "current_schema()"
}

// scoped renders q for table and returns the statement, its arguments and the
// unqualified table name.
func scoped(d Dialect, q, table string) (string, []any, string) {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return d.Rebind(strings.ReplaceAll(q, schemaToken, "?")), []any{schema, name}, name
	}
	return d.Rebind(strings.ReplaceAll(q, schemaToken, currentSchema(d))), []any{table}, table
}

// ListTables returns the base tables of the current schema.
func ListTables(ctx context.Context, q Querier, d Dialect) ([]string, error) {
	query := d.Rebind(strings.ReplaceAll(listTablesSQL, schemaToken, currentSchema(d)))
	tables, err := readStrings(ctx, q, query)
	if err != nil {
		return nil, annotate(err, "failed to list tables")
	}
	return tables, nil
}

// TableExists reports whether table names a base table.
func TableExists(ctx context.Context, q Querier, d Dialect, table string) (bool, error) {
	query, args, _ := scoped(d, tableExistsSQL, table)
	found, err := readStrings(ctx, q, query, args...)
	if err != nil {
		return false, annotate(err, "failed to check table existence")
	}
	return len(found) > 0, nil
}

// InspectTable reads the columns and primary key of table. A table with no
// visible columns is reported as not found.
func InspectTable(ctx context.Context, q Querier, d Dialect, table string) (*TableInfo, error) {
	query, args, name := scoped(d, columnsSQL, table)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, annotate(err, "failed to fetch columns of %q", table)
	}
	defer rows.Close()

	info := &TableInfo{Name: name}
	for rows.Next() {
		var (
			c        ColumnInfo
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.Default); err != nil {
			return nil, annotate(err, "failed to scan column info of %q", table)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		info.Columns = append(info.Columns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, annotate(err, "error iterating columns of %q", table)
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q not found", table)
	}

	query, args, _ = scoped(d, primaryKeySQL, table)
	pks, err := readStrings(ctx, q, query, args...)
	if err != nil {
		return nil, annotate(err, "failed to fetch primary key of %q", table)
	}
	info.PrimaryKey = pks

	pkSet := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk] = true
	}
	for _, c := range info.Columns {
		c.IsPrimary = pkSet[c.Name]
	}
	return info, nil
}

// readStrings runs a query that returns a single text column.
func readStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// annotate adds context to err while keeping the kind a driver assigned to it.
func annotate(err error, format string, args ...any) error {
	kind := errs.KindOf(err)
	if kind == errs.ErrKindUnknown {
		kind = errs.ErrKindQueryFailed
	}
	return errs.Wrapf(kind, err, format, args...)
}
