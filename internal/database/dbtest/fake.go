// Package dbtest provides an in-memory database.DB for tests. Queries are
// answered from canned results; statements run through Exec or a transaction
// are recorded.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/errs"
)

var _ database.DB = (*DB)(nil)

// Result is the canned answer to one query.
type Result struct {
	Columns  []string
	Rows     [][]any
	Warnings []string
	// IterErr is reported by Rows.Err once the rows are exhausted.
	IterErr error
	// CloseErr is returned by Rows.Close.
	CloseErr error
	// ClosePanic makes Rows.Close panic with this value.
	ClosePanic any
}

// Query is one recorded call to Query or QueryRow.
type Query struct {
	SQL  string
	Args []any
}

// DB is a fake database.DB. The zero value answers every query with an error.
type DB struct {
	mu sync.Mutex

	SQLDialect database.Dialect
	// Handler answers queries. When nil, queries fail.
	Handler func(sql string, args []any) (*Result, error)
	Tables  map[string]*database.TableInfo

	BeginErr  error
	ExecErr   error
	CommitErr error
	CloseErr  error
	PingErr   error

	queries   []Query
	committed []string
	rollbacks int
	closed    bool
	opened    []*Rows
}

// Answer returns a handler that serves results by exact SQL text.
func Answer(results map[string]*Result) func(string, []any) (*Result, error) {
	return func(sql string, _ []any) (*Result, error) {
		if r, ok := results[sql]; ok {
			return r, nil
		}
		return nil, errs.Newf(errs.ErrKindQueryFailed, "unexpected query: %s", sql)
	}
}

func (d *DB) Ping(context.Context) error { return d.PingErr }

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.CloseErr
}

func (d *DB) Dialect() database.Dialect { return d.SQLDialect }

func (d *DB) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "query canceled", err)
	}
	d.mu.Lock()
	d.queries = append(d.queries, Query{SQL: sql, Args: args})
	handler := d.Handler
	d.mu.Unlock()

	if handler == nil {
		return nil, errs.New(errs.ErrKindQueryFailed, "no handler configured")
	}
	res, err := handler(sql, args)
	if err != nil {
		return nil, err
	}
	rows := NewRows(res)
	d.mu.Lock()
	d.opened = append(d.opened, rows)
	d.mu.Unlock()
	return rows, nil
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	rows, err := d.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

func (d *DB) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	if d.ExecErr != nil {
		return 0, d.ExecErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.committed = append(d.committed, sql)
	return 1, nil
}

func (d *DB) Begin(context.Context) (database.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	return &tx{db: d}, nil
}

func (d *DB) ListTables(context.Context) ([]string, error) {
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *DB) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := d.Tables[table]
	return ok, nil
}

func (d *DB) InspectTable(_ context.Context, table string) (*database.TableInfo, error) {
	info, ok := d.Tables[table]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q not found", table)
	}
	return info, nil
}

// Queries returns the recorded queries.
func (d *DB) Queries() []Query {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Query(nil), d.queries...)
}

// Committed returns the statements applied through Exec or a committed transaction.
func (d *DB) Committed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.committed...)
}

// Rollbacks counts rolled back transactions.
func (d *DB) Rollbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollbacks
}

// Closed reports whether Close was called.
func (d *DB) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// OpenRows counts result sets handed out and not yet closed.
func (d *DB) OpenRows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.opened {
		if !r.closed {
			n++
		}
	}
	return n
}

type tx struct {
	db      *DB
	pending []string
	done    bool
}

func (t *tx) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	if t.done {
		return 0, errs.New(errs.ErrKindInvalidState, "transaction is closed")
	}
	if t.db.ExecErr != nil {
		return 0, t.db.ExecErr
	}
	t.pending = append(t.pending, sql)
	return 1, nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return errs.New(errs.ErrKindInvalidState, "transaction is closed")
	}
	if t.db.CommitErr != nil {
		return t.db.CommitErr
	}
	t.done = true
	t.db.mu.Lock()
	t.db.committed = append(t.db.committed, t.pending...)
	t.db.mu.Unlock()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return errs.New(errs.ErrKindInvalidState, "transaction is closed")
	}
	t.done = true
	t.db.mu.Lock()
	t.db.rollbacks++
	t.db.mu.Unlock()
	return nil
}

// Rows is a fake result set over a Result.
type Rows struct {
	res    *Result
	pos    int
	closed bool
}

var (
	_ database.Rows   = (*Rows)(nil)
	_ database.Warner = (*Rows)(nil)
)

// NewRows returns a result set positioned before the first row.
func NewRows(res *Result) *Rows {
	return &Rows{res: res, pos: -1}
}

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.res.Rows) {
		return false
	}
	r.pos++
	return r.pos < len(r.res.Rows)
}

func (r *Rows) Columns() ([]string, error) {
	if r.closed {
		return nil, errors.New("rows are closed")
	}
	return r.res.Columns, nil
}

func (r *Rows) Scan(dest ...any) error {
	if r.closed {
		return errors.New("rows are closed")
	}
	if r.pos < 0 || r.pos >= len(r.res.Rows) {
		return errors.New("scan called without a current row")
	}
	return Assign(r.res.Rows[r.pos], dest...)
}

func (r *Rows) Close() error {
	r.closed = true
	if r.res.ClosePanic != nil {
		panic(r.res.ClosePanic)
	}
	return r.res.CloseErr
}

func (r *Rows) Err() error {
	if r.pos >= len(r.res.Rows) {
		return r.res.IterErr
	}
	return nil
}

func (r *Rows) Warnings() []string { return r.res.Warnings }

// IsClosed reports whether Close was called.
func (r *Rows) IsClosed() bool { return r.closed }

type row struct {
	rows database.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return errs.New(errs.ErrKindNotFound, "no rows in result set")
	}
	return r.rows.Scan(dest...)
}

// Assign copies values into scan destinations the way a driver would: *any
// receives the value as is, typed pointers receive a converted value, and
// pointer-to-pointer destinations receive nil for a nil value.
func Assign(values []any, dest ...any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("expected %d destinations, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", dest)
	}
	target := dv.Elem()

	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	if target.Kind() == reflect.Pointer && target.Type() != src.Type() {
		p := reflect.New(target.Type().Elem())
		if err := assign(p.Interface(), v); err != nil {
			return err
		}
		target.Set(p)
		return nil
	}
	switch {
	case src.Type().AssignableTo(target.Type()):
		target.Set(src)
	case src.Type().ConvertibleTo(target.Type()):
		target.Set(src.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, target.Type())
	}
	return nil
}
