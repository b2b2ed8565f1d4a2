package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/model"
)

// ReadKind selects how a column value is extracted from a result row.
type ReadKind int

const (
	// ReadObject keeps the value the driver produced.
	ReadObject ReadKind = iota
	// ReadString renders the value as text. NULL stays nil.
	ReadString
	// ReadText is ReadString for large character columns.
	ReadText
)

func (k ReadKind) String() string {
	switch k {
	case ReadObject:
		return "object"
	case ReadString:
		return "string"
	case ReadText:
		return "text"
	default:
		return fmt.Sprintf("ReadKind(%d)", int(k))
	}
}

// Materializer drains result sets into rows. It never owns the DB or the
// result sets it is given, except where a method says it closes them.
// Failures to close or to run an update are logged and swallowed.
type Materializer struct {
	log *logger.Logger
}

// NewMaterializer returns a Materializer logging to log (nil discards).
func NewMaterializer(log *logger.Logger) *Materializer {
	return &Materializer{log: logger.OrNop(log).Named("materializer")}
}

// ExecuteQuery runs query on q and returns the open result set. It returns
// nil without error when there is nothing to run.
func (m *Materializer) ExecuteQuery(ctx context.Context, q Querier, query string) (Rows, error) {
	m.log.Debugf("sql->%s", query)
	if query == "" || q == nil {
		return nil, nil
	}
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadRows runs query and materializes every row as a column-name keyed map.
// The result set is closed before returning. A nil slice means there was no
// data to return.
func (m *Materializer) ReadRows(ctx context.Context, q Querier, query string) ([]map[string]any, error) {
	rows, err := m.ExecuteQuery(ctx, q, query)
	if err != nil || rows == nil {
		return nil, err
	}
	defer m.CloseRows(rows)
	return m.ReadRowsFrom(rows)
}

// ReadRowsFrom materializes the remaining rows of rows without closing it.
// It returns nil when rows is nil, has no columns, carries warnings or
// yields no rows.
func (m *Materializer) ReadRowsFrom(rows Rows) ([]map[string]any, error) {
	if rows == nil {
		return nil, nil
	}
	if w, ok := rows.(Warner); ok {
		if warnings := w.Warnings(); len(warnings) > 0 {
			m.log.WarnWith("result carries warnings, not materializing", nil, map[string]any{"warnings": warnings})
			return nil, nil
		}
	}

	names, err := ColumnNames(rows)
	if err != nil {
		return nil, err
	}
	if names == nil {
		m.log.Warn("no column names for result")
		return nil, nil
	}

	var maps []map[string]any
	for rows.Next() {
		values, err := extract(rows, names, names, nil)
		if err != nil {
			return nil, err
		}
		row := toMap(names, values)
		m.log.DebugWith("map", row)
		maps = append(maps, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return maps, nil
}

// ReadRow extracts the current row of rows into an array holding the named
// columns in the given order, each read with its ReadKind. It returns nil
// when there is nothing to read.
func (m *Materializer) ReadRow(rows Rows, names []string, kinds []ReadKind) ([]any, error) {
	if rows == nil || len(names) == 0 || kinds == nil {
		return nil, nil
	}
	if len(kinds) != len(names) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%d column names but %d read kinds", len(names), len(kinds))
	}
	header, err := ColumnNames(rows)
	if err != nil {
		return nil, err
	}
	return extract(rows, header, names, kinds)
}

// RowMap extracts the named columns of the current row as objects.
func (m *Materializer) RowMap(rows Rows, names []string) (map[string]any, error) {
	if rows == nil || names == nil {
		return nil, nil
	}
	header, err := ColumnNames(rows)
	if err != nil {
		return nil, err
	}
	values, err := extract(rows, header, names, nil)
	if err != nil {
		return nil, err
	}
	return toMap(names, values), nil
}

// ColumnNames returns the result's column names, or nil when it has none.
func ColumnNames(rows Rows) ([]string, error) {
	if rows == nil {
		return nil, nil
	}
	names, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

// extract scans the current row and returns the values of names in order.
// header is the full column list of the result. A nil kinds reads every
// column as ReadObject.
func extract(rows Rows, header, names []string, kinds []ReadKind) ([]any, error) {
	dest := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	out := make([]any, len(names))
	for i, name := range names {
		p, ok := pos[name]
		if !ok {
			return nil, errs.Newf(errs.ErrKindNotFound, "column %q not in result %q", name, header)
		}
		kind := ReadObject
		if kinds != nil {
			kind = kinds[i]
		}
		v, err := readAs(dest[p], kind)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toMap(names []string, values []any) map[string]any {
	row := make(map[string]any, len(names))
	for i, name := range names {
		row[name] = values[i]
	}
	return row
}

func readAs(v any, kind ReadKind) (any, error) {
	switch kind {
	case ReadObject:
		return v, nil
	case ReadString, ReadText:
		s, ok, err := textOf(v)
		if err != nil || !ok {
			return nil, err
		}
		return s, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unrecognized read kind %s", kind)
	}
}

// textOf renders a driver value as text. ok is false for NULL.
func textOf(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case []byte:
		return string(t), true, nil
	case int64:
		return strconv.FormatInt(t, 10), true, nil
	case int32:
		return strconv.FormatInt(int64(t), 10), true, nil
	case int:
		return strconv.Itoa(t), true, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	case time.Time:
		return formatTime(t), true, nil
	case [16]byte:
		return uuid.UUID(t).String(), true, nil
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return "", false, errs.Wrap(errs.ErrKindParse, "failed to read driver value", err)
		}
		if _, again := dv.(driver.Valuer); again {
			return fmt.Sprint(dv), true, nil
		}
		return textOf(dv)
	case fmt.Stringer:
		return t.String(), true, nil
	default:
		return fmt.Sprint(t), true, nil
	}
}

// formatTime writes dates without a clock part and everything else with
// fractional seconds only when present. Values outside UTC carry their
// offset so the instant survives parsing.
func formatTime(t time.Time) string {
	if _, offset := t.Zone(); offset != 0 {
		return t.Format(model.ZonedTimeLayout)
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(model.DateLayout)
	}
	return t.Format("2006-01-02 15:04:05.999999999")
}
