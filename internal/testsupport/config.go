package testsupport

import (
	"path/filepath"
	"testing"

	"facereview/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Monitor timings are shortened so polling tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.BaseURL = "http://127.0.0.1:1"
	cfgVal.API.RequestTimeout = 5
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.State.Backend = "sqlite"
	cfgVal.State.Path = filepath.Join(base, "state", "state.db")
	cfgVal.Monitor.PollInterval = 1
	cfgVal.Monitor.Timeout = 30
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return builder.cfg
}

// WithAPIURL points the config at a test server.
func WithAPIURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithFileState switches the key/value backend to the JSON file store.
func WithFileState() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.State.Backend = "file"
		b.cfg.State.Path = filepath.Join(b.baseDir, "state", "state.json")
	}
}

// WithRollbackCreatedPerson enables deletion of persons whose assignment failed.
func WithRollbackCreatedPerson() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Assign.RollbackCreatedPerson = true
	}
}

// WithStreamingDisabled forces job monitoring to poll.
func WithStreamingDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.DisableStream = true
	}
}

// WithMetricsTextfile enables the metrics textfile export inside the temp dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, "metrics", "facereview.prom")
	}
}
