package database

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/rowsource/internal/errs"
)

// WriteKind selects how a value is rendered as a SQL literal.
type WriteKind int

const (
	WriteNumber WriteKind = iota
	WriteString
	WriteDate
	WriteTime
)

func (k WriteKind) String() string {
	switch k {
	case WriteNumber:
		return "number"
	case WriteString:
		return "string"
	case WriteDate:
		return "date"
	case WriteTime:
		return "time"
	default:
		return fmt.Sprintf("WriteKind(%d)", int(k))
	}
}

// Literal layouts for WriteDate and WriteTime.
const (
	SQLDateLayout = "2006-01-02"
	SQLTimeLayout = "2006-01-02 15:04:05"
)

// NullLiteral is what every kind renders for a nil value.
const NullLiteral = "NULL"

// FormatForSQL renders v as a literal of the given kind. Values implementing
// driver.Valuer are rendered through their driver value, so sql.NullString
// and friends format as NULL when invalid.
func FormatForSQL(v any, kind WriteKind) (string, error) {
	v, err := unwrapValue(v)
	if err != nil {
		return "", err
	}
	if v == nil {
		return NullLiteral, nil
	}

	switch kind {
	case WriteNumber:
		return numberLiteral(v), nil
	case WriteString:
		return QuoteString(fmt.Sprint(v)), nil
	case WriteDate, WriteTime:
		t, ok := v.(time.Time)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput, "%s literal needs a time.Time, got %T", kind, v)
		}
		layout := SQLDateLayout
		if kind == WriteTime {
			layout = SQLTimeLayout
		}
		return QuoteString(t.Format(layout)), nil
	default:
		return "", errs.Newf(errs.ErrKindInvalidInput, "unrecognized write kind %s", kind)
	}
}

// QuoteString single-quotes s, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func unwrapValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		dv, err := valuer.Value()
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read driver value", err)
		}
		return dv, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return unwrapValue(rv.Elem().Interface())
	}
	return v, nil
}

func numberLiteral(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case []byte:
		return string(n)
	default:
		return fmt.Sprint(n)
	}
}
