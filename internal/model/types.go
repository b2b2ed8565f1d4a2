package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnType selects the parse function a column applies to raw text.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
	TypeDecimal
	TypeBoolean
	TypeDate
	TypeTime
)

// Layouts used for the date and time column types.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"
	// ZonedTimeLayout keeps the UTC offset of a timestamp.
	ZonedTimeLayout = "2006-01-02 15:04:05.999999999-07:00"
)

// ParseFunc converts raw text into a typed value. It must be pure.
type ParseFunc func(text string) (any, error)

func (t ColumnType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// ParseType maps a type name (as written in config files) to a ColumnType.
func ParseType(name string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "string":
		return TypeText, nil
	case "integer", "int":
		return TypeInteger, nil
	case "real", "float", "double":
		return TypeReal, nil
	case "decimal", "numeric":
		return TypeDecimal, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "time", "timestamp", "datetime":
		return TypeTime, nil
	default:
		return TypeText, fmt.Errorf("unknown column type %q", name)
	}
}

// Parser returns the parse function for t. Non-text types parse blank text to nil.
func (t ColumnType) Parser() ParseFunc {
	switch t {
	case TypeInteger:
		return blankAsNil(parseInteger)
	case TypeReal:
		return blankAsNil(parseReal)
	case TypeDecimal:
		return blankAsNil(parseDecimal)
	case TypeBoolean:
		return blankAsNil(parseBoolean)
	case TypeDate:
		return blankAsNil(parseDate)
	case TypeTime:
		return blankAsNil(parseTime)
	default:
		return parseText
	}
}

func blankAsNil(fn ParseFunc) ParseFunc {
	return func(text string) (any, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		return fn(text)
	}
}

func parseText(text string) (any, error) {
	return text, nil
}

// parseInteger accepts integral decimal text, including "42.0" as produced by
// spreadsheet numeric cells.
func parseInteger(text string) (any, error) {
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return nil, fmt.Errorf("not an integer: %q", text)
	}
	return d.IntPart(), nil
}

func parseReal(text string) (any, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("not a real number: %q", text)
	}
	return v, nil
}

func parseDecimal(text string) (any, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("not a decimal: %q", text)
	}
	return d, nil
}

func parseBoolean(text string) (any, error) {
	switch strings.ToLower(text) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return nil, fmt.Errorf("not a boolean: %q", text)
}

var timeLayouts = []string{
	ZonedTimeLayout,
	TimeLayout,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	DateLayout,
}

func parseDate(text string) (any, error) {
	t, err := parseAnyTime(text)
	if err != nil {
		return nil, fmt.Errorf("not a date: %q", text)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func parseTime(text string) (any, error) {
	t, err := parseAnyTime(text)
	if err != nil {
		return nil, fmt.Errorf("not a time: %q", text)
	}
	return t, nil
}

func parseAnyTime(text string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
