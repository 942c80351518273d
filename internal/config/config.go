package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains connection settings for the review backend.
type API struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// State selects the durable key/value backend used for local session state.
type State struct {
	Backend string `toml:"backend"` // "sqlite" or "file"
	Path    string `toml:"path"`
}

// Recent contains configuration for the recent person selection cache.
type Recent struct {
	Capacity int `toml:"capacity"`
}

// Assign contains configuration for single-face assignment operations.
type Assign struct {
	// RollbackCreatedPerson deletes a person created by create-and-assign when
	// the follow-up assignment fails. Off by default: the person is kept.
	RollbackCreatedPerson bool `toml:"rollback_created_person"`
	MaxNameLength         int  `toml:"max_name_length"`
}

// Bulk contains defaults for bulk accept/reject requests.
type Bulk struct {
	AutoFindMore           bool `toml:"auto_find_more"`
	FindMorePrototypeCount int  `toml:"find_more_prototype_count"`
}

// Monitor contains job progress monitoring settings.
type Monitor struct {
	PollInterval    int  `toml:"poll_interval"` // seconds
	Timeout         int  `toml:"timeout"`       // seconds
	MaxStreams      int  `toml:"max_streams"`
	MaxReconnects   int  `toml:"max_reconnects"`
	MaxPollFailures int  `toml:"max_poll_failures"`
	DisableStream   bool `toml:"disable_stream"`
}

// FindMore contains defaults for "find more suggestions" jobs.
type FindMore struct {
	PrototypeCount int     `toml:"prototype_count"`
	MaxSuggestions int     `toml:"max_suggestions"`
	MinConfidence  float64 `toml:"min_confidence"`
}

// Loader contains per-face suggestion loading settings.
type Loader struct {
	MinConfidence float64 `toml:"min_confidence"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   bool   `toml:"file"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for facereview.
//
// Configuration sections by subsystem:
//   - API: backend base URL, token and request timeout
//   - Paths: state and log directories
//   - State: key/value backend for persisted session state
//   - Recent: recent person selection cache
//   - Assign: single-face assignment behaviour
//   - Bulk: bulk action defaults
//   - Monitor: job progress streaming/polling
//   - FindMore: "find more suggestions" job defaults
//   - Loader: per-face suggestion loading
//   - Logging: log format and level
//   - Metrics: Prometheus textfile export
type Config struct {
	API      API      `toml:"api"`
	Paths    Paths    `toml:"paths"`
	State    State    `toml:"state"`
	Recent   Recent   `toml:"recent"`
	Assign   Assign   `toml:"assign"`
	Bulk     Bulk     `toml:"bulk"`
	Monitor  Monitor  `toml:"monitor"`
	FindMore FindMore `toml:"find_more"`
	Loader   Loader   `toml:"loader"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("facereview.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request backend timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// PollInterval returns the job status polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollInterval) * time.Second
}

// MonitorTimeout returns the hard ceiling for a job monitoring session.
func (c *Config) MonitorTimeout() time.Duration {
	return time.Duration(c.Monitor.Timeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "facereview")
	}
	return defaultStateDirFallback
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML. The API token is redacted.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.API.Token != "" {
		clone.API.Token = "<redacted>"
	}
	return toml.Marshal(clone)
}
