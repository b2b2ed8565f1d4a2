package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Format: "json", Output: buf}), buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "custom json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "nil output", config: &Config{Level: "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	log, buf := newBufLogger("info")

	log.Info("test message")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_Named(t *testing.T) {
	log, buf := newBufLogger("info")

	log.Named("spreadsheet").Infof("opened %s", "Data")

	entry := decode(t, buf)
	assert.Equal(t, "spreadsheet", entry["component"])
	assert.Equal(t, "opened Data", entry["message"])
}

func TestLogger_WithFields(t *testing.T) {
	log, buf := newBufLogger("info")

	child := log.With().
		Str("sheet", "Data").
		Int("row", 7).
		Bool("lazy", true).
		Logger()

	child.Info("row skipped")

	entry := decode(t, buf)
	assert.Equal(t, "Data", entry["sheet"])
	assert.Equal(t, float64(7), entry["row"])
	assert.Equal(t, true, entry["lazy"])
}

func TestLogger_WarnWithFields(t *testing.T) {
	log, buf := newBufLogger("warn")

	log.WarnWith("close failed", errors.New("handle gone"), map[string]any{"resource": "rows"})

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "handle gone", entry["error"])
	assert.Equal(t, "rows", entry["resource"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	log, buf := newBufLogger("error")

	log.ErrorWith("update failed", errors.New("deadlock"), map[string]any{"sql": "UPDATE t SET a = 1"})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "deadlock", entry["error"])
	assert.Equal(t, "UPDATE t SET a = 1", entry["sql"])
}

func TestLogger_Context(t *testing.T) {
	log, buf := newBufLogger("info")

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", decode(t, buf)["message"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Same(t, Global(), FromContext(context.Background()))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("nothing")
		OrNop(nil).ErrorWith("nothing", errors.New("x"), nil)
	})
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("debug message") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("debug message") }, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("error message") }, true},
		{"error level skips warn", "error", func(l *Logger) { l.Warn("warn message") }, false},
		{"levels are per logger", "info", func(l *Logger) {
			New(&Config{Level: "error", Output: io.Discard})
			l.Info("still logged")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufLogger(tt.level)

			tt.logFunc(log)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func BenchmarkLogger_WithFields(b *testing.B) {
	log := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.With().
			Str("source", "orders").
			Int("row", i).
			Logger().
			Info("benchmark message")
	}
}
