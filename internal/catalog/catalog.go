// Package catalog turns a loaded configuration into named row sources.
//
// A Catalog owns the shared connections (database pools and the object store)
// and hands out a fresh source per Open call. Sources are single-goroutine
// objects; the caller that opens one closes it.
//
// Usage:
//
//	cat := catalog.New(cfg, log)
//	defer cat.Close()
//
//	src, err := cat.Open(ctx, "orders")
//	if err != nil { ... }
//	defer src.Close()
package catalog

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/rowsource/internal/config"
	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/database/mysql"
	"github.com/koustreak/rowsource/internal/database/postgres"
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
	"github.com/koustreak/rowsource/internal/filestore/minio"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/source"
	"github.com/koustreak/rowsource/internal/source/dbsource"
	"github.com/koustreak/rowsource/internal/source/spreadsheet"
)

// DefaultConcurrency bounds how many sources ValidateAll checks at once.
const DefaultConcurrency = 4

// DatabaseOpener connects to one configured database.
type DatabaseOpener func(ctx context.Context, cfg *database.Config) (database.DB, error)

// StoreOpener connects to the configured object store.
type StoreOpener func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error)

// Option customises a Catalog.
type Option func(*Catalog)

// WithDatabaseOpener replaces the driver switch, typically with a fake.
func WithDatabaseOpener(fn DatabaseOpener) Option {
	return func(c *Catalog) { c.openDB = fn }
}

// WithStoreOpener replaces the MinIO connector.
func WithStoreOpener(fn StoreOpener) Option {
	return func(c *Catalog) { c.openStore = fn }
}

// WithBundled makes resources in fsys resolvable by name.
func WithBundled(fsys fs.FS) Option {
	return func(c *Catalog) { c.bundled = fsys }
}

// WithConcurrency sets how many sources ValidateAll checks at once.
func WithConcurrency(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Catalog is safe for concurrent use. Connections are established on first
// use, so a catalog over an unreachable database still serves file sources.
type Catalog struct {
	cfg         *config.Config
	root        *logger.Logger
	log         *logger.Logger
	mat         *database.Materializer
	openDB      DatabaseOpener
	openStore   StoreOpener
	bundled     fs.FS
	concurrency int

	mu    sync.Mutex
	dbs   map[string]database.DB
	store filestore.Store
}

// New builds a catalog over cfg. cfg must already be validated.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Catalog {
	root := logger.OrNop(log)
	c := &Catalog{
		cfg:         cfg,
		root:        root,
		log:         root.Named("catalog"),
		mat:         database.NewMaterializer(root),
		openDB:      OpenDatabase,
		openStore:   openMinIO,
		concurrency: DefaultConcurrency,
		dbs:         make(map[string]database.DB),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenDatabase connects with the driver named in cfg.
func OpenDatabase(ctx context.Context, cfg *database.Config) (database.DB, error) {
	var (
		db  database.DB
		err error
	)
	switch cfg.Driver {
	case database.DriverPostgres:
		db, err = postgres.New(ctx, cfg)
	case database.DriverPQ:
		db, err = postgres.NewPQ(ctx, cfg)
	case database.DriverMySQL:
		db, err = mysql.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openMinIO(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	store, err := minio.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Names lists the configured sources in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.cfg.Sources))
	for i, s := range c.cfg.Sources {
		names[i] = s.Name
	}
	return names
}

// Databases lists the configured database names, sorted.
func (c *Catalog) Databases() []string {
	names := make([]string, 0, len(c.cfg.Databases))
	for name := range c.cfg.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs a new, caller-owned source. Whether it is already open
// depends on the source's validate_lazily setting.
func (c *Catalog) Open(ctx context.Context, name string) (source.RowSource, error) {
	sc, err := c.cfg.Source(name)
	if err != nil {
		return nil, err
	}
	opts, err := sc.Options()
	if err != nil {
		return nil, err
	}

	log := c.root.With().Str("source", name).Logger()

	if sc.Kind == source.KindDatabase {
		db, err := c.Database(ctx, sc.Database)
		if err != nil {
			return nil, err
		}
		src, err := dbsource.New(ctx, db, opts, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	resolver, err := c.resolver(ctx, opts.Path)
	if err != nil {
		return nil, err
	}
	src, err := spreadsheet.New(ctx, opts, resolver, log)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Tables lists the tables of a configured database.
func (c *Catalog) Tables(ctx context.Context, dbName string) ([]string, error) {
	db, err := c.Database(ctx, dbName)
	if err != nil {
		return nil, err
	}
	return db.ListTables(ctx)
}

// Result is the outcome of validating one source.
type Result struct {
	Source string
	URI    string
	Width  int
	Err    error
}

// ValidateAll opens and closes every configured source, at most
// DefaultConcurrency (or WithConcurrency) at a time. Each check owns its
// source instance. Results are in declaration order; the returned error joins
// every failure.
func (c *Catalog) ValidateAll(ctx context.Context) ([]Result, error) {
	names := c.Names()
	results := make([]Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = c.validate(gctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, errs.Wrapf(errs.KindOf(r.Err), r.Err, "source %q", r.Source))
		}
	}
	return results, errors.Join(failed...)
}

func (c *Catalog) validate(ctx context.Context, name string) Result {
	res := Result{Source: name}

	src, err := c.Open(ctx, name)
	if err != nil {
		res.Err = err
		return res
	}
	res.URI = src.URI()

	if err := src.Open(ctx); err != nil {
		res.Err = err
		return res
	}
	m, err := src.Model(ctx)
	if err == nil {
		res.Width = m.Width()
	}
	res.Err = errors.Join(err, src.Close())

	if res.Err != nil {
		c.log.WarnWith("source failed validation", res.Err, map[string]any{"source": name})
	} else {
		c.log.DebugWith("source validated", map[string]any{"source": name, "width": res.Width})
	}
	return res
}

// Close releases every connection the catalog established. Failures are
// logged, not returned.
func (c *Catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, db := range c.dbs {
		c.mat.CloseConn(db)
		delete(c.dbs, name)
	}
	if c.store != nil {
		c.mat.CloseConn(c.store)
		c.store = nil
	}
}

// Database returns the shared connection to a configured database,
// connecting on first use. The catalog owns it; callers must not close it.
func (c *Catalog) Database(ctx context.Context, name string) (database.DB, error) {
	cfg, ok := c.cfg.Databases[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no database named %q", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[name]; ok {
		return db, nil
	}
	db, err := c.openDB(ctx, cfg)
	if err != nil {
		return nil, errs.Wrapf(errs.KindOf(err), err, "connect database %q", name)
	}
	c.log.Infof("connected database %s (%s)", name, cfg.Driver)
	c.dbs[name] = db
	return db, nil
}

// resolver connects the object store only when path needs it.
func (c *Catalog) resolver(ctx context.Context, path string) (*source.Resolver, error) {
	r := &source.Resolver{Bundled: c.bundled}
	if !filestore.IsObjectURI(path) || !c.cfg.Filestore.Enabled() {
		return r, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		store, err := c.openStore(ctx, c.cfg.Filestore)
		if err != nil {
			return nil, errs.Wrapf(errs.KindOf(err), err, "connect filestore %s", c.cfg.Filestore.Endpoint)
		}
		c.log.Infof("connected filestore %s", c.cfg.Filestore.Endpoint)
		c.store = store
	}
	r.Store = c.store
	return r, nil
}
