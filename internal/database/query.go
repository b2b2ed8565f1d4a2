package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/koustreak/rowsource/internal/errs"
)

// Dialect controls placeholder style and identifier quoting.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "double quoted" identifiers.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `backquoted` identifiers.
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgres"
}

// Placeholder returns the parameter marker for the 1-based argument idx.
func (d Dialect) Placeholder(idx int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", idx)
}

// QuoteIdent quotes a table or column name. A dotted name is quoted per part,
// so "sales.orders" addresses table orders in schema sales.
func (d Dialect) QuoteIdent(name string) string {
	q := `"`
	if d == DialectMySQL {
		q = "`"
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Rebind rewrites a query written with ? placeholders for this dialect.
func (d Dialect) Rebind(query string) string {
	if d == DialectMySQL {
		return sqlx.Rebind(sqlx.QUESTION, query)
	}
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected; the operator position cannot be
// parameterized.
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string.
//
// Usage:
//
//	sql, args, err := Select("orders", DialectPostgres).
//	    Columns("id", "customer", "amount").
//	    Where("amount", ">", 10).
//	    OrderBy("id", Asc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "select: table name is empty")
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.dialect.QuoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdent(b.table))

	var args []any
	argIdx := 1

	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] || (op == "ILIKE" && b.dialect == DialectMySQL) {
				return "", nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", b.dialect.QuoteIdent(w.column), op, b.dialect.Placeholder(argIdx)))
			args = append(args, w.value)
			argIdx++
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.dialect.QuoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %s", b.dialect.Placeholder(argIdx))
		args = append(args, *b.limit)
		argIdx++
	}

	if b.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %s", b.dialect.Placeholder(argIdx))
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}
