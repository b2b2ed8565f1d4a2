package database_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/database/dbtest"
	"github.com/koustreak/rowsource/internal/errs"
)

// catalogHandler answers the information_schema queries for one table.
func catalogHandler(t *testing.T) func(string, []any) (*dbtest.Result, error) {
	return func(sql string, args []any) (*dbtest.Result, error) {
		switch {
		case strings.Contains(sql, "information_schema.columns"):
			if args[len(args)-1] != "orders" {
				return &dbtest.Result{Columns: []string{"column_name", "data_type", "is_nullable", "column_default"}}, nil
			}
			return &dbtest.Result{
				Columns: []string{"column_name", "data_type", "is_nullable", "column_default"},
				Rows: [][]any{
					{"id", "integer", "NO", "nextval('orders_id_seq')"},
					{"name", "text", "YES", nil},
				},
			}, nil
		case strings.Contains(sql, "PRIMARY KEY"):
			return &dbtest.Result{Columns: []string{"column_name"}, Rows: [][]any{{"id"}}}, nil
		case strings.Contains(sql, "information_schema.tables"):
			if len(args) > 0 && args[len(args)-1] != "orders" {
				return &dbtest.Result{Columns: []string{"table_name"}}, nil
			}
			return &dbtest.Result{Columns: []string{"table_name"}, Rows: [][]any{{"orders"}}}, nil
		}
		t.Fatalf("unexpected query %s", sql)
		return nil, nil
	}
}

func TestInspectTable(t *testing.T) {
	ctx := context.Background()
	db := &dbtest.DB{Handler: catalogHandler(t)}

	info, err := database.InspectTable(ctx, db, database.DialectPostgres, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)
	assert.Equal(t, []string{"id", "name"}, info.ColumnNames())
	assert.Equal(t, []string{"id"}, info.PrimaryKey)
	assert.True(t, info.Columns[0].IsPrimary)
	assert.False(t, info.Columns[0].Nullable)
	require.NotNil(t, info.Columns[0].Default)
	assert.True(t, info.Columns[1].Nullable)
	assert.Nil(t, info.Columns[1].Default)

	q := db.Queries()[0]
	assert.Contains(t, q.SQL, "current_schema()")
	assert.Contains(t, q.SQL, "$1")
	assert.Equal(t, []any{"orders"}, q.Args)
}

func TestInspectTable_QualifiedName(t *testing.T) {
	ctx := context.Background()
	db := &dbtest.DB{Handler: catalogHandler(t)}

	info, err := database.InspectTable(ctx, db, database.DialectMySQL, "shop.orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)

	q := db.Queries()[0]
	assert.NotContains(t, q.SQL, "DATABASE()")
	assert.Equal(t, []any{"shop", "orders"}, q.Args)
}

func TestInspectTable_Missing(t *testing.T) {
	db := &dbtest.DB{Handler: catalogHandler(t)}
	_, err := database.InspectTable(context.Background(), db, database.DialectPostgres, "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestListTablesAndExists(t *testing.T) {
	ctx := context.Background()
	db := &dbtest.DB{Handler: catalogHandler(t)}

	tables, err := database.ListTables(ctx, db, database.DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tables)
	assert.Contains(t, db.Queries()[0].SQL, "DATABASE()")

	ok, err := database.TableExists(ctx, db, database.DialectPostgres, "orders")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = database.TableExists(ctx, db, database.DialectPostgres, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntrospection_KeepsDriverErrorKind(t *testing.T) {
	db := &dbtest.DB{Handler: func(string, []any) (*dbtest.Result, error) {
		return nil, errs.New(errs.ErrKindPermissionDenied, "denied")
	}}
	_, err := database.ListTables(context.Background(), db, database.DialectPostgres)
	assert.True(t, errs.IsPermissionDenied(err))
}
