// Package model describes the shape of the rows a source produces: an ordered
// list of columns, each with a parse function, and the subset of column
// positions that form the row key.
package model

import (
	"fmt"
	"strings"

	"github.com/koustreak/rowsource/internal/errs"
)

// ColumnModel is one column: its name, its position in the row and the
// function that turns raw text into the column's typed value.
type ColumnModel struct {
	Name  string
	Index int
	Type  ColumnType
	parse ParseFunc
}

// NewColumn creates a column of the given type. Index is assigned by NewTableModel.
func NewColumn(name string, typ ColumnType) ColumnModel {
	return ColumnModel{Name: name, Type: typ, parse: typ.Parser()}
}

// NewCustomColumn creates a column with a caller-supplied parse function.
func NewCustomColumn(name string, typ ColumnType, parse ParseFunc) ColumnModel {
	if parse == nil {
		parse = typ.Parser()
	}
	return ColumnModel{Name: name, Type: typ, parse: parse}
}

// Parse converts raw text into this column's typed value.
func (c ColumnModel) Parse(text string) (any, error) {
	if c.parse == nil {
		return c.Type.Parser()(text)
	}
	return c.parse(text)
}

func (c ColumnModel) String() string {
	return fmt.Sprintf("%s(%d,%s)", c.Name, c.Index, c.Type)
}

// TableModel is an ordered, immutable set of columns plus the key column positions.
type TableModel struct {
	name    string
	columns []ColumnModel
	key     []int
}

// NewTableModel validates and builds a model. Non-empty column names must be
// unique and every key index must address a column.
func NewTableModel(name string, columns []ColumnModel, key []int) (*TableModel, error) {
	if len(columns) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table model %q has no columns", name)
	}

	cols := make([]ColumnModel, len(columns))
	seen := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name != "" {
			if prev, dup := seen[c.Name]; dup {
				return nil, errs.Newf(errs.ErrKindInvalidInput,
					"table model %q: column %q appears at %d and %d", name, c.Name, prev, i)
			}
			seen[c.Name] = i
		}
		c.Index = i
		if c.parse == nil {
			c.parse = c.Type.Parser()
		}
		cols[i] = c
	}

	for _, k := range key {
		if k < 0 || k >= len(cols) {
			return nil, errs.Newf(errs.ErrKindInvalidInput,
				"table model %q: key index %d out of range [0,%d)", name, k, len(cols))
		}
	}

	return &TableModel{name: name, columns: cols, key: append([]int(nil), key...)}, nil
}

// NewGenericStringModel builds a model where every column is text.
func NewGenericStringModel(name string, headers []string, key []int) (*TableModel, error) {
	cols := make([]ColumnModel, len(headers))
	for i, h := range headers {
		cols[i] = NewColumn(h, TypeText)
	}
	return NewTableModel(name, cols, key)
}

// Name returns the model name.
func (m *TableModel) Name() string { return m.name }

// Width is the number of columns.
func (m *TableModel) Width() int { return len(m.columns) }

// Columns returns a copy of the columns in read order.
func (m *TableModel) Columns() []ColumnModel {
	return append([]ColumnModel(nil), m.columns...)
}

// Column returns the column at position i.
func (m *TableModel) Column(i int) ColumnModel { return m.columns[i] }

// Key returns a copy of the key column positions.
func (m *TableModel) Key() []int {
	return append([]int(nil), m.key...)
}

// ColumnNames returns the column names in read order.
func (m *TableModel) ColumnNames() []string {
	names := make([]string, len(m.columns))
	for i, c := range m.columns {
		names[i] = c.Name
	}
	return names
}

// KeyColumnNames returns the names of the key columns in key order.
func (m *TableModel) KeyColumnNames() []string {
	names := make([]string, len(m.key))
	for i, k := range m.key {
		names[i] = m.columns[k].Name
	}
	return names
}

// IndexOf returns the position of the named column, or -1.
func (m *TableModel) IndexOf(name string) int {
	for i, c := range m.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (m *TableModel) String() string {
	parts := make([]string, len(m.columns))
	for i, c := range m.columns {
		parts[i] = c.String()
	}
	return fmt.Sprintf("TableModel[%s](%s) key=%v", m.name, strings.Join(parts, ", "), m.key)
}
