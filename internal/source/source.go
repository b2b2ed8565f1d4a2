// Package source defines the sequential, pull-based contract every row source
// implements, and the pieces concrete sources share: construction options and
// capability negotiation, the open/closed lifecycle, resource resolution and
// key-column resolution.
//
// A caller drives a source like this:
//
//	src, err := spreadsheet.New(ctx, opts, resolver, log)
//	if err != nil { ... }
//	if err := src.Open(ctx); err != nil { ... }
//	defer src.Close()
//	for {
//	    row, err := src.NextRow()
//	    if err != nil { ... }
//	    if row == nil {
//	        break // exhausted
//	    }
//	    ...
//	}
//
// Sources are not safe for concurrent use; a single reader owns the cursor.
package source

import (
	"context"

	"github.com/koustreak/rowsource/internal/model"
)

// Kind identifies the family of backing store behind a source.
type Kind string

const (
	KindFile     Kind = "file"
	KindDatabase Kind = "database"
)

// Row is one logical row: values positionally aligned with the model's columns.
type Row []any

// RowSource is the lifecycle and iteration protocol of every concrete source.
type RowSource interface {
	// Open acquires the backing resource. Calling it on an open source is a no-op;
	// calling it on a closed source fails.
	Open(ctx context.Context) error

	// NextRow returns the next logical row. It returns a nil Row and a nil error
	// once the source is exhausted, and keeps doing so on later calls.
	// The source must be open.
	NextRow() (Row, error)

	// Close releases the backing resource. The source must be open.
	Close() error

	// LastIndex is the index of the last row returned by NextRow, -1 before the first.
	LastIndex() int64

	// Model returns the bound table model. Inferring it reads the resource:
	// a spreadsheet source opens itself, a table source inspects the table.
	Model(ctx context.Context) (*model.TableModel, error)

	KeyColumnNames() []string
	ReadColumnIdxs() []int
	IsSorted() bool
	ValidateLazily() bool
	Kind() Kind

	// URI identifies the backing resource for diagnostics.
	URI() string
}
