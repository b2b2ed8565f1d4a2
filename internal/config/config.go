// Package config loads the rowsource configuration: logging, named
// databases, the object store and the named sources built on them.
//
// The file is YAML. ${VAR} references are expanded from the environment, which
// may be seeded from .env files first. Any other '$' is kept as written:
//
//	databases:
//	  shop:
//	    driver: postgres
//	    dsn: ${SHOP_DSN}
//	sources:
//	  - name: orders
//	    kind: database
//	    database: shop
//	    table: orders
//	  - name: budget
//	    kind: file
//	    path: s3://fixtures/budget.xlsx
//	    sheet: Data
//	    key_columns: [id]
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
	"github.com/koustreak/rowsource/internal/logger"
)

// Config is the whole configuration file.
type Config struct {
	Log       LogConfig                   `yaml:"log"`
	Server    ServerConfig                `yaml:"server"`
	Databases map[string]*database.Config `yaml:"databases"`
	Filestore *filestore.Config           `yaml:"filestore"`
	Sources   []SourceConfig              `yaml:"sources"`
}

// LogConfig mirrors logger.Config without the output writer.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	TimeFormat string `yaml:"time_format"`
}

// ServerConfig configures the preview HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxRows caps the rows one preview request may return.
	MaxRows int `yaml:"max_rows"`
}

// Logger builds the logger described by c, writing to out.
func (c LogConfig) Logger(out io.Writer) *logger.Logger {
	return logger.New(&logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		TimeFormat: c.TimeFormat,
		Output:     out,
	})
}

// LoadEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errs.Wrapf(errs.ErrKindInvalidInput, err, "load env file %s", f)
		}
	}
	return nil
}

// Load reads, expands, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrapf(errs.ErrKindNotFound, err, "config file %s", path)
		}
		return nil, errs.Wrapf(errs.ErrKindResourceFailed, err, "read config file %s", path)
	}
	return Parse(data)
}

var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// expandEnv replaces ${VAR} references only, so DSNs and passwords may
// contain a literal '$'.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.TimeFormat == "" {
		c.Log.TimeFormat = "rfc3339"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.MaxRows == 0 {
		c.Server.MaxRows = 1000
	}

	for name, db := range c.Databases {
		if db == nil {
			continue
		}
		def := database.DefaultConfig(db.DSN)
		if db.Driver == "" {
			db.Driver = def.Driver
		}
		if db.MaxConns == 0 {
			db.MaxConns = def.MaxConns
		}
		if db.MinConns == 0 {
			db.MinConns = min(def.MinConns, db.MaxConns)
		}
		if db.MaxConnLifetime == 0 {
			db.MaxConnLifetime = def.MaxConnLifetime
		}
		if db.MaxConnIdleTime == 0 {
			db.MaxConnIdleTime = def.MaxConnIdleTime
		}
		if db.ConnectTimeout == 0 {
			db.ConnectTimeout = def.ConnectTimeout
		}
		if db.QueryTimeout == 0 {
			db.QueryTimeout = def.QueryTimeout
		}
		c.Databases[name] = db
	}

	if c.Filestore != nil && c.Filestore.Provider == "" {
		c.Filestore.Provider = filestore.ProviderMinIO
	}

	for i := range c.Sources {
		c.Sources[i].applyDefaults()
	}
}

// Validate checks cross references and the rules each source enforces at
// construction, so a bad file fails at load time.
func (c *Config) Validate() error {
	for name, db := range c.Databases {
		if db == nil {
			return errs.Newf(errs.ErrKindInvalidInput, "database %q has no settings", name)
		}
		if err := db.Validate(); err != nil {
			return errs.Wrapf(errs.KindOf(err), err, "database %q", name)
		}
	}

	if c.Filestore != nil && c.Filestore.Provider != filestore.ProviderMinIO {
		return errs.Newf(errs.ErrKindInvalidInput, "unknown filestore provider %q", c.Filestore.Provider)
	}

	if c.Server.MaxRows < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "server max_rows must be positive, got %d", c.Server.MaxRows)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "source #%d has no name", i+1)
		}
		if seen[s.Name] {
			return errs.Newf(errs.ErrKindInvalidInput, "source %q is defined twice", s.Name)
		}
		seen[s.Name] = true

		if err := s.validate(c); err != nil {
			return err
		}
	}
	return nil
}

// Source returns the source named name.
func (c *Config) Source(name string) (*SourceConfig, error) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], nil
		}
	}
	return nil, errs.Newf(errs.ErrKindNotFound, "no source named %q", name)
}
