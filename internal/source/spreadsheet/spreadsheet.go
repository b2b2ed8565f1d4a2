// Package spreadsheet implements a RowSource over one sheet of an
// .xlsx workbook. The first non-blank row of the sheet is the header; every
// later non-blank row is a logical row.
package spreadsheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/model"
	"github.com/koustreak/rowsource/internal/source"
)

var _ source.RowSource = (*Source)(nil)

// Source reads rows from a sheet. It is not safe for concurrent use.
type Source struct {
	id   uuid.UUID
	opts source.Options
	res  source.Resource
	log  *logger.Logger
	lc   source.Lifecycle

	book      *excelize.File
	rows      *excelize.Rows
	physical  int // 1-based number of the last physical row consumed
	exhausted bool

	header      []string
	headerIndex map[string]int
	model       *model.TableModel
	lastIndex   int64
}

// New builds a spreadsheet source. opts.Name is the sheet name. With
// opts.ValidateLazily false the workbook is opened before New returns.
func New(ctx context.Context, opts source.Options, resolver *source.Resolver, log *logger.Logger) (*Source, error) {
	log = logger.OrNop(log).Named("spreadsheet")
	log.DebugWith("new spreadsheet source", map[string]any{
		"path":            opts.Path,
		"sheet":           opts.Name,
		"model":           opts.Model,
		"key_columns":     opts.KeyColumnNames,
		"read_column_idx": opts.ReadColumnIdxs,
		"sorted":          opts.IsSorted,
		"validate_lazily": opts.ValidateLazily,
	})

	if err := opts.Negotiate(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "spreadsheet source requires a sheet name")
	}

	res, err := resolver.Resolve(opts.Path)
	if err != nil {
		return nil, err
	}

	s := &Source{
		id:        uuid.New(),
		opts:      opts,
		res:       res,
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

// Open validates the resource, opens the workbook, locates the sheet and
// consumes the header row. It is a no-op on an open source.
func (s *Source) Open(ctx context.Context) error {
	proceed, err := s.lc.BeginOpen(s.String())
	if err != nil || !proceed {
		return err
	}

	if err := s.res.Validate(ctx); err != nil {
		return err
	}

	book, err := s.openBook(ctx)
	if err != nil {
		return err
	}

	if idx, err := book.GetSheetIndex(s.opts.Name); err != nil || idx < 0 {
		sheets := book.GetSheetList()
		_ = book.Close()
		s.log.Errorf("couldn't find sheet named: %s", s.opts.Name)
		return errs.Wrapf(errs.ErrKindNotFound, err, "%s: no sheet named %q (sheets: %q)", s, s.opts.Name, sheets)
	}

	rows, err := book.Rows(s.opts.Name)
	if err != nil {
		_ = book.Close()
		return errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: read sheet %q", s, s.opts.Name)
	}
	s.book, s.rows = book, rows

	if err := s.readHeader(); err != nil {
		_ = s.release()
		return err
	}
	if err := s.bindModel(); err != nil {
		_ = s.release()
		return err
	}

	s.lc.Opened()
	s.log.InfoWith("opened", map[string]any{"sheet": s.opts.Name, "columns": len(s.header)})
	return nil
}

func (s *Source) openBook(ctx context.Context) (*excelize.File, error) {
	rc, err := s.res.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	book, err := excelize.OpenReader(rc)
	if err != nil {
		s.log.ErrorWith("couldn't open workbook", err, nil)
		return nil, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: open workbook", s)
	}
	return book, nil
}

func (s *Source) readHeader() error {
	cells, ok, err := s.readLine()
	if err != nil {
		return err
	}
	if !ok {
		s.log.Error("no headers present")
		return errs.Newf(errs.ErrKindInvalidInput, "%s: sheet %q has no header row", s, s.opts.Name)
	}
	for i, name := range cells {
		if name == "" {
			s.log.Warnf("no header for header index: %d", i)
		}
	}
	s.header = cells
	s.log.Debugf("header: %q", s.header)
	return nil
}

// bindModel either checks an explicit model against the header or infers a
// text model from it.
func (s *Source) bindModel() error {
	s.headerIndex = make(map[string]int, len(s.header))
	for i, name := range s.header {
		if _, seen := s.headerIndex[name]; !seen {
			s.headerIndex[name] = i
		}
	}

	if s.model != nil {
		for _, c := range s.model.Columns() {
			if pos, ok := s.headerIndex[c.Name]; !ok {
				s.log.Warnf("model column %q not found in header", c.Name)
			} else if pos != c.Index {
				s.log.Warnf("model column %q is at header position %d, read as position %d", c.Name, pos, c.Index)
			}
		}
		return nil
	}

	key := []int{0}
	if s.opts.KeyColumnNames != nil {
		var err error
		if key, err = source.ResolveKeyIndices(s.header, s.opts.KeyColumnNames); err != nil {
			return err
		}
	}
	m, err := model.NewGenericStringModel(s.opts.Name, s.header, key)
	if err != nil {
		return err
	}
	s.model = m
	return nil
}

// NextRow returns the next non-blank row, or nil at the end of the sheet.
func (s *Source) NextRow() (source.Row, error) {
	if err := s.lc.EnsureOpen(s.String(), "NextRow"); err != nil {
		return nil, err
	}
	cells, ok, err := s.readLine()
	if err != nil || !ok {
		return nil, err
	}
	row, err := s.createRow(cells)
	if err != nil {
		return nil, err
	}
	s.lastIndex++
	return row, nil
}

// readLine returns the next non-blank physical row as text. ok is false once
// the sheet is exhausted.
func (s *Source) readLine() ([]string, bool, error) {
	for !s.exhausted {
		if !s.rows.Next() {
			s.exhausted = true
			if err := s.rows.Error(); err != nil {
				return nil, false, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: iterate sheet %q", s, s.opts.Name)
			}
			return nil, false, nil
		}
		s.physical++

		raw, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, false, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: read row %d", s, s.physical)
		}
		if isBlank(raw) {
			s.log.Debugf("skipping blank row %d", s.physical)
			continue
		}

		cells, err := s.coerceRow(raw)
		if err != nil {
			return nil, false, err
		}
		return cells, true, nil
	}
	return nil, false, nil
}

// coerceRow looks up each cell's type and formatted value on the workbook.
// The stream reader yields neither, and the first lookup loads the whole
// worksheet, so rows holds only the read position. We accept that memory
// cost to keep numbers, booleans and styled cells apart.
func (s *Source) coerceRow(raw []string) ([]string, error) {
	cells := make([]string, len(raw))
	for i, v := range raw {
		if v == "" {
			continue
		}
		ref, err := excelize.CoordinatesToCellName(i+1, s.physical)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: cell (%d,%d)", s, i+1, s.physical)
		}
		typ, err := s.book.GetCellType(s.opts.Name, ref)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: cell type of %s", s, ref)
		}
		text, err := cellText(typ, v, func() (string, error) {
			return s.book.GetCellValue(s.opts.Name, ref)
		})
		if err != nil {
			return nil, errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: value of %s", s, ref)
		}
		cells[i] = text
	}
	return cells, nil
}

func (s *Source) createRow(cells []string) (source.Row, error) {
	if len(cells) != s.model.Width() {
		return nil, errs.Newf(errs.ErrKindShapeMismatch,
			"columnCount->%d in row %d %q does not match modelled table->%s",
			len(cells), s.physical, cells, s.model)
	}

	row := make(source.Row, len(cells))
	for i, text := range cells {
		col := s.model.Column(i)
		v, err := col.Parse(text)
		if err != nil {
			s.log.ErrorWith("parse failed", err, map[string]any{"row": s.physical, "column": col.Name})
			return nil, errs.Wrapf(errs.ErrKindParse, err, "%s: row %d column %q", s, s.physical, col.Name)
		}
		row[i] = v
	}
	return row, nil
}

// Close releases the workbook. The source must be open and cannot be reopened.
func (s *Source) Close() error {
	if err := s.lc.EnsureOpen(s.String(), "Close"); err != nil {
		return err
	}
	err := s.release()
	s.lc.Closed()
	s.log.InfoWith("closed", map[string]any{"rows": s.lastIndex + 1})
	return err
}

func (s *Source) release() error {
	var rowsErr, bookErr error
	if s.rows != nil {
		rowsErr = s.rows.Close()
	}
	if s.book != nil {
		bookErr = s.book.Close()
	}
	s.rows, s.book = nil, nil
	s.physical, s.exhausted = 0, false
	if err := errors.Join(rowsErr, bookErr); err != nil {
		return errs.Wrapf(errs.ErrKindResourceFailed, err, "%s: release workbook", s)
	}
	return nil
}

// Model returns the bound model, opening the source when it must be inferred.
func (s *Source) Model(ctx context.Context) (*model.TableModel, error) {
	if s.model != nil {
		return s.model, nil
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s.model, nil
}

// HeaderColumnNames returns the header read during Open.
func (s *Source) HeaderColumnNames() []string {
	return append([]string(nil), s.header...)
}

func (s *Source) LastIndex() int64         { return s.lastIndex }
func (s *Source) KeyColumnNames() []string { return s.opts.KeyColumnNames }
func (s *Source) ReadColumnIdxs() []int    { return s.opts.ReadColumnIdxs }
func (s *Source) IsSorted() bool           { return s.opts.IsSorted }
func (s *Source) ValidateLazily() bool     { return s.opts.ValidateLazily }
func (s *Source) Kind() source.Kind        { return source.KindFile }
func (s *Source) URI() string              { return s.res.URI() }
func (s *Source) State() source.State      { return s.lc.State() }

func (s *Source) String() string {
	uri := ""
	if s.res != nil {
		uri = s.res.URI()
	}
	return fmt.Sprintf("Source@%s[%s#%s]", s.id.String()[:8], uri, s.opts.Name)
}
