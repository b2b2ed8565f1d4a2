package config

import (
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/model"
	"github.com/koustreak/rowsource/internal/source"
)

// SourceConfig declares one named source.
type SourceConfig struct {
	Name string      `yaml:"name"`
	Kind source.Kind `yaml:"kind"`

	// Path and Sheet locate a file source.
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`

	// Database (a key of Config.Databases) and Table locate a database source.
	Database string `yaml:"database"`
	Table    string `yaml:"table"`

	// Columns declares an explicit model. Columns flagged key form its key.
	Columns []ColumnConfig `yaml:"columns"`

	// KeyColumns selects key columns of an inferred model.
	KeyColumns []string `yaml:"key_columns"`

	Sorted         *bool `yaml:"sorted"`
	ValidateLazily *bool `yaml:"validate_lazily"`
}

// ColumnConfig is one column of an explicit model.
type ColumnConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Key  bool   `yaml:"key"`
}

func (s *SourceConfig) applyDefaults() {
	if s.Kind == "" {
		if s.Database != "" || s.Table != "" {
			s.Kind = source.KindDatabase
		} else {
			s.Kind = source.KindFile
		}
	}
	if s.Sorted == nil {
		s.Sorted = boolPtr(true)
	}
	if s.ValidateLazily == nil {
		s.ValidateLazily = boolPtr(true)
	}
}

func (s *SourceConfig) validate(c *Config) error {
	switch s.Kind {
	case source.KindFile:
		if s.Path == "" || s.Sheet == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "file source %q needs path and sheet", s.Name)
		}
	case source.KindDatabase:
		if s.Table == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "database source %q needs a table", s.Name)
		}
		if _, ok := c.Databases[s.Database]; !ok {
			return errs.Newf(errs.ErrKindInvalidInput, "database source %q refers to unknown database %q", s.Name, s.Database)
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "source %q has unknown kind %q", s.Name, s.Kind)
	}

	// Capability values are checked the way the sources check them.
	_, err := s.Options()
	return err
}

// Model builds the explicit model, or returns nil when no columns are declared.
func (s *SourceConfig) Model() (*model.TableModel, error) {
	if len(s.Columns) == 0 {
		return nil, nil
	}
	cols := make([]model.ColumnModel, len(s.Columns))
	var key []int
	for i, c := range s.Columns {
		typ := model.TypeText
		if c.Type != "" {
			var err error
			if typ, err = model.ParseType(c.Type); err != nil {
				return nil, errs.Wrapf(errs.ErrKindInvalidInput, err, "column %q", c.Name)
			}
		}
		cols[i] = model.NewColumn(c.Name, typ)
		if c.Key {
			key = append(key, i)
		}
	}
	if len(key) == 0 {
		key = []int{0}
	}
	return model.NewTableModel(s.subResource(), cols, key)
}

// Options returns the construction options of the source after capability
// negotiation.
func (s *SourceConfig) Options() (source.Options, error) {
	m, err := s.Model()
	if err != nil {
		return source.Options{}, errs.Wrapf(errs.KindOf(err), err, "source %q", s.Name)
	}

	opts := source.DefaultOptions(s.Path, s.subResource())
	if s.Kind == source.KindDatabase {
		opts.Path = s.Database
	}
	opts.Model = m
	opts.KeyColumnNames = s.KeyColumns
	if s.Sorted != nil {
		opts.IsSorted = *s.Sorted
	}
	if s.ValidateLazily != nil {
		opts.ValidateLazily = *s.ValidateLazily
	}

	if err := opts.Negotiate(); err != nil {
		return source.Options{}, errs.Wrapf(errs.KindOf(err), err, "source %q", s.Name)
	}
	return opts, nil
}

func (s *SourceConfig) subResource() string {
	if s.Kind == source.KindDatabase {
		return s.Table
	}
	return s.Sheet
}

func boolPtr(b bool) *bool { return &b }
