package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/koustreak/rowsource/internal/config"
	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/database/dbtest"
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
	"github.com/koustreak/rowsource/internal/source"
)

const itemsSelect = `SELECT "sku", "qty" FROM "items" ORDER BY "sku" ASC`

func budgetBook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range [][]any{{"id", "amount"}, {1, 10}, {2, 20}} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "budget.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func shopDB() *dbtest.DB {
	return &dbtest.DB{
		Handler: dbtest.Answer(map[string]*dbtest.Result{
			itemsSelect: {Columns: []string{"sku", "qty"}, Rows: [][]any{{"a-1", int64(3)}}},
		}),
		Tables: map[string]*database.TableInfo{
			"items": {
				Name: "items",
				Columns: []*database.ColumnInfo{
					{Name: "sku", DataType: "text", IsPrimary: true},
					{Name: "qty", DataType: "integer"},
				},
				PrimaryKey: []string{"sku"},
			},
		},
	}
}

func newCatalog(t *testing.T, extra string, opts ...Option) (*Catalog, *dbtest.DB, *atomic.Int32) {
	t.Helper()
	yaml := fmt.Sprintf(`
databases:
  shop: {dsn: "postgres://fake/shop"}
sources:
  - {name: budget, path: %q, sheet: Sheet1, key_columns: [id]}
  - {name: items, database: shop, table: items}
%s`, budgetBook(t), extra)

	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)

	db := shopDB()
	var connects atomic.Int32
	opener := WithDatabaseOpener(func(_ context.Context, cfg *database.Config) (database.DB, error) {
		connects.Add(1)
		assert.Equal(t, "postgres://fake/shop", cfg.DSN)
		return db, nil
	})
	return New(cfg, nil, append([]Option{opener}, opts...)...), db, &connects
}

func TestCatalog_OpenFileSource(t *testing.T) {
	ctx := context.Background()
	cat, _, connects := newCatalog(t, "")
	defer cat.Close()

	assert.Equal(t, []string{"budget", "items"}, cat.Names())
	assert.Equal(t, []string{"shop"}, cat.Databases())

	src, err := cat.Open(ctx, "budget")
	require.NoError(t, err)
	assert.Equal(t, source.KindFile, src.Kind())
	require.NoError(t, src.Open(ctx))
	defer src.Close()

	assert.Equal(t, []string{"id"}, src.KeyColumnNames())
	row, err := src.NextRow()
	require.NoError(t, err)
	assert.Equal(t, source.Row{"1", "10"}, row)
	assert.Zero(t, connects.Load(), "file sources never touch databases")
}

func TestCatalog_OpenDatabaseSource(t *testing.T) {
	ctx := context.Background()
	cat, db, connects := newCatalog(t, "")

	for i := 0; i < 2; i++ {
		src, err := cat.Open(ctx, "items")
		require.NoError(t, err)
		assert.Equal(t, source.KindDatabase, src.Kind())
		assert.Equal(t, "db://shop/items", src.URI())

		require.NoError(t, src.Open(ctx))
		row, err := src.NextRow()
		require.NoError(t, err)
		assert.Equal(t, source.Row{"a-1", int64(3)}, row)
		require.NoError(t, src.Close())
	}
	assert.EqualValues(t, 1, connects.Load(), "pool is shared")

	cat.Close()
	assert.True(t, db.Closed())
}

func TestCatalog_OpenUnknown(t *testing.T) {
	cat, _, _ := newCatalog(t, "")
	defer cat.Close()

	_, err := cat.Open(context.Background(), "nope")
	assert.True(t, errs.IsNotFound(err))

	_, err = cat.Tables(context.Background(), "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestCatalog_Tables(t *testing.T) {
	cat, _, _ := newCatalog(t, "")
	defer cat.Close()

	tables, err := cat.Tables(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, tables)
}

func TestCatalog_ConnectFailureKeepsKind(t *testing.T) {
	cfg, err := config.Parse([]byte("databases:\n  shop: {dsn: x}\nsources:\n  - {name: items, database: shop, table: items}\n"))
	require.NoError(t, err)

	cat := New(cfg, nil, WithDatabaseOpener(func(context.Context, *database.Config) (database.DB, error) {
		return nil, errs.New(errs.ErrKindConnectionFailed, "refused")
	}))
	_, err = cat.Open(context.Background(), "items")
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestCatalog_ValidateAll(t *testing.T) {
	cat, _, _ := newCatalog(t, `  - {name: ghost, path: /nonexistent/ghost.xlsx, sheet: Data}
  - {name: orphan, database: shop, table: missing}
`, WithConcurrency(2))
	defer cat.Close()

	results, err := cat.ValidateAll(context.Background())
	require.Error(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "budget", results[0].Source)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Width)

	assert.Equal(t, "items", results[1].Source)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "db://shop/items", results[1].URI)

	assert.True(t, errs.IsNotFound(results[2].Err))
	assert.True(t, errs.IsNotFound(results[3].Err))
	assert.Contains(t, err.Error(), `source "ghost"`)
	assert.Contains(t, err.Error(), `source "orphan"`)
}

func TestCatalog_ObjectSourceNeedsStore(t *testing.T) {
	cat, _, _ := newCatalog(t, "  - {name: remote, path: s3://fixtures/budget.xlsx, sheet: Data}\n")
	defer cat.Close()

	_, err := cat.Open(context.Background(), "remote")
	assert.True(t, errs.IsInvalidInput(err))
}

type missingStore struct{ closed atomic.Bool }

func (s *missingStore) Ping(context.Context) error { return nil }
func (s *missingStore) Close() error               { s.closed.Store(true); return nil }

func (s *missingStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	return nil, errs.Newf(errs.ErrKindNotFound, "no object %s", filestore.ObjectURI(bucket, key))
}

func (s *missingStore) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	return nil, errs.Newf(errs.ErrKindNotFound, "no object %s", filestore.ObjectURI(bucket, key))
}

func TestCatalog_ObjectSourceUsesStore(t *testing.T) {
	store := &missingStore{}
	var dials atomic.Int32
	cat, _, _ := newCatalog(t,
		"  - {name: remote, path: s3://fixtures/budget.xlsx, sheet: Data}\nfilestore: {endpoint: minio:9000}\n",
		WithStoreOpener(func(_ context.Context, cfg *filestore.Config) (filestore.Store, error) {
			dials.Add(1)
			assert.Equal(t, filestore.ProviderMinIO, cfg.Provider)
			return store, nil
		}),
	)

	ctx := context.Background()
	_, err := cat.Open(ctx, "budget")
	require.NoError(t, err)
	assert.Zero(t, dials.Load(), "local paths do not connect the store")

	src, err := cat.Open(ctx, "remote")
	require.NoError(t, err)
	assert.Equal(t, "s3://fixtures/budget.xlsx", src.URI())
	assert.True(t, errs.IsNotFound(src.Open(ctx)))
	assert.EqualValues(t, 1, dials.Load())

	cat.Close()
	assert.True(t, store.closed.Load())
}
