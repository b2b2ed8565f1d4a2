// Package dbsource implements a RowSource over a relational table. Rows are
// selected in key order, read as text through the Materializer and parsed
// with the model's column parsers, so a table and a spreadsheet holding the
// same data produce the same rows.
package dbsource

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/model"
	"github.com/koustreak/rowsource/internal/source"
)

var _ source.RowSource = (*Source)(nil)

// Source reads the rows of one table. opts.Name is the table, optionally
// schema qualified; opts.Path names the database for diagnostics. The DB is
// borrowed and never closed by the source. Not safe for concurrent use.
type Source struct {
	id   uuid.UUID
	opts source.Options
	db   database.DB
	mat  *database.Materializer
	log  *logger.Logger
	lc   source.Lifecycle

	model *model.TableModel
	info  *database.TableInfo

	rows      database.Rows
	names     []string
	kinds     []database.ReadKind
	exhausted bool
	lastIndex int64
}

// New builds a table source. With opts.ValidateLazily false the table is
// inspected and the query started before New returns.
func New(ctx context.Context, db database.DB, opts source.Options, log *logger.Logger) (*Source, error) {
	log = logger.OrNop(log).Named("dbsource")
	log.DebugWith("new table source", map[string]any{
		"database":        opts.Path,
		"table":           opts.Name,
		"model":           opts.Model,
		"key_columns":     opts.KeyColumnNames,
		"validate_lazily": opts.ValidateLazily,
	})

	if err := opts.Negotiate(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table source requires a table name")
	}
	if db == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "table source requires a database")
	}

	s := &Source{
		id:        uuid.New(),
		opts:      opts,
		db:        db,
		mat:       database.NewMaterializer(log),
		model:     opts.Model,
		lastIndex: -1,
	}
	s.log = log.With().Str("source", s.String()).Logger()

	if !opts.ValidateLazily {
		if err := s.Open(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open inspects the table, binds the model and starts the ordered select.
func (s *Source) Open(ctx context.Context) error {
	proceed, err := s.lc.BeginOpen(s.String())
	if err != nil || !proceed {
		return err
	}

	if err := s.bind(ctx); err != nil {
		return err
	}
	m := s.model

	sel := database.Select(s.opts.Name, s.db.Dialect()).Columns(m.ColumnNames()...)
	for _, k := range m.KeyColumnNames() {
		sel.OrderBy(k, database.Asc)
	}
	query, args, err := sel.Build()
	if err != nil {
		return err
	}
	s.log.Debugf("sql->%s", query)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.log.ErrorWith("select failed", err, nil)
		return err
	}

	s.rows = rows
	s.names = m.ColumnNames()
	s.kinds = make([]database.ReadKind, m.Width())
	for i, c := range m.Columns() {
		s.kinds[i] = readKind(c.Type)
	}

	s.lc.Opened()
	s.log.InfoWith("opened", map[string]any{"table": s.opts.Name, "columns": m.Width()})
	return nil
}

// Model returns the bound model. Without an explicit model it is inferred
// once from the table's columns: types from the data types, the key from
// opts.KeyColumnNames, else the primary key, else the first column.
func (s *Source) Model(ctx context.Context) (*model.TableModel, error) {
	if s.model != nil {
		return s.model, nil
	}
	if err := s.bind(ctx); err != nil {
		return nil, err
	}
	return s.model, nil
}

// bind inspects the table once and checks or infers the model against it.
func (s *Source) bind(ctx context.Context) error {
	if s.info != nil {
		return nil
	}

	info, err := s.db.InspectTable(ctx, s.opts.Name)
	if err != nil {
		s.log.ErrorWith("couldn't inspect table", err, nil)
		return err
	}

	if s.model != nil {
		if err := checkModel(s.model, info); err != nil {
			return err
		}
	} else {
		m, err := inferModel(s.opts, info)
		if err != nil {
			return err
		}
		s.model = m
		s.log.Debugf("inferred model: %s", m)
	}
	s.info = info
	return nil
}

func checkModel(m *model.TableModel, info *database.TableInfo) error {
	have := make(map[string]bool, len(info.Columns))
	for _, c := range info.Columns {
		have[c.Name] = true
	}
	for _, name := range m.ColumnNames() {
		if !have[name] {
			return errs.Newf(errs.ErrKindShapeMismatch, "model column %q is not a column of table %q %q",
				name, info.Name, info.ColumnNames())
		}
	}
	return nil
}

func inferModel(opts source.Options, info *database.TableInfo) (*model.TableModel, error) {
	header := info.ColumnNames()

	var key []int
	switch {
	case opts.KeyColumnNames != nil:
		var err error
		if key, err = source.ResolveKeyIndices(header, opts.KeyColumnNames); err != nil {
			return nil, err
		}
	case len(info.PrimaryKey) > 0:
		var err error
		if key, err = source.ResolveKeyIndices(header, info.PrimaryKey); err != nil {
			return nil, err
		}
	default:
		key = []int{0}
	}

	cols := make([]model.ColumnModel, len(info.Columns))
	for i, c := range info.Columns {
		cols[i] = model.NewColumn(c.Name, columnType(c.DataType))
	}
	return model.NewTableModel(opts.Name, cols, key)
}

// NextRow returns the next row in key order, or nil once the table is
// exhausted. NULL columns are nil.
func (s *Source) NextRow() (source.Row, error) {
	if err := s.lc.EnsureOpen(s.String(), "NextRow"); err != nil {
		return nil, err
	}
	if s.exhausted {
		return nil, nil
	}
	if !s.rows.Next() {
		s.exhausted = true
		if err := s.rows.Err(); err != nil {
			kind := errs.KindOf(err)
			if kind == errs.ErrKindUnknown {
				kind = errs.ErrKindQueryFailed
			}
			return nil, errs.Wrapf(kind, err, "%s: read after row %d", s, s.lastIndex)
		}
		return nil, nil
	}

	values, err := s.mat.ReadRow(s.rows, s.names, s.kinds)
	if err != nil {
		return nil, err
	}

	row := make(source.Row, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		col := s.model.Column(i)
		parsed, err := col.Parse(v.(string))
		if err != nil {
			s.log.ErrorWith("parse failed", err, map[string]any{"row": s.lastIndex + 1, "column": col.Name})
			return nil, errs.Wrapf(errs.ErrKindParse, err, "%s: row %d column %q", s, s.lastIndex+1, col.Name)
		}
		row[i] = parsed
	}
	s.lastIndex++
	return row, nil
}

// Close releases the result set. The database stays open.
func (s *Source) Close() error {
	if err := s.lc.EnsureOpen(s.String(), "Close"); err != nil {
		return err
	}
	s.mat.CloseRows(s.rows)
	s.rows = nil
	s.lc.Closed()
	s.log.InfoWith("closed", map[string]any{"rows": s.lastIndex + 1})
	return nil
}

func (s *Source) LastIndex() int64         { return s.lastIndex }
func (s *Source) KeyColumnNames() []string { return s.opts.KeyColumnNames }
func (s *Source) ReadColumnIdxs() []int    { return s.opts.ReadColumnIdxs }
func (s *Source) IsSorted() bool           { return s.opts.IsSorted }
func (s *Source) ValidateLazily() bool     { return s.opts.ValidateLazily }
func (s *Source) Kind() source.Kind        { return source.KindDatabase }
func (s *Source) State() source.State      { return s.lc.State() }

// URI identifies the table as db://<database>/<table>.
func (s *Source) URI() string {
	return fmt.Sprintf("db://%s/%s", s.opts.Path, s.opts.Name)
}

func (s *Source) String() string {
	return fmt.Sprintf("Source@%s[%s]", s.id.String()[:8], s.URI())
}
