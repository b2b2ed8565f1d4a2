package source

import (
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/model"
)

// Options are the construction parameters shared by all sources.
type Options struct {
	// Path locates the backing resource: a filesystem path, a bundled resource
	// name, or an s3://bucket/key object URI. Database sources carry the
	// configured database name here for diagnostics.
	Path string

	// Name is the logical sub-resource: a sheet name or a table name.
	Name string

	// Model is an explicit table model. Mutually exclusive with KeyColumnNames.
	Model *model.TableModel

	// KeyColumnNames selects key columns of an inferred model by header name.
	KeyColumnNames []string

	// ReadColumnIdxs would restrict reads to a subset of columns. Not supported;
	// it must be nil.
	ReadColumnIdxs []int

	// IsSorted must be true: rows are assumed to arrive in key order.
	IsSorted bool

	// ValidateLazily defers touching the resource until first use. When false the
	// source is resolved, validated and opened during construction.
	ValidateLazily bool
}

// DefaultOptions returns the only supported capability set.
func DefaultOptions(path, name string) Options {
	return Options{
		Path:           path,
		Name:           name,
		IsSorted:       true,
		ValidateLazily: true,
	}
}

// Negotiate rejects option combinations the sources cannot honor.
func (o Options) Negotiate() error {
	if o.Model != nil && o.KeyColumnNames != nil {
		return errs.New(errs.ErrKindInvalidInput, "options Model and KeyColumnNames are mutually exclusive")
	}
	if o.ReadColumnIdxs != nil {
		return errs.Newf(errs.ErrKindUnsupported, "ReadColumnIdxs %v: reading a subset of columns is not supported", o.ReadColumnIdxs)
	}
	if !o.IsSorted {
		return errs.New(errs.ErrKindUnsupported, "IsSorted=false: unsorted sources are not supported")
	}
	return nil
}
