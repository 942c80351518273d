package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLimits()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if value, ok := os.LookupEnv("FACEREVIEW_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = strings.TrimSpace(value)
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("FACEREVIEW_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeState() error {
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	if c.State.Backend == "" {
		c.State.Backend = defaultStateBackend
	}
	if strings.TrimSpace(c.State.Path) == "" {
		name := "state.db"
		if c.State.Backend == "file" {
			name = "state.json"
		}
		c.State.Path = filepath.Join(c.Paths.StateDir, name)
	}
	var err error
	if c.State.Path, err = expandPath(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLimits() {
	if c.Recent.Capacity <= 0 {
		c.Recent.Capacity = defaultRecentCapacity
	}
	if c.Assign.MaxNameLength <= 0 {
		c.Assign.MaxNameLength = defaultMaxNameLength
	}
	if c.Bulk.FindMorePrototypeCount <= 0 {
		c.Bulk.FindMorePrototypeCount = defaultFindMorePrototypeCount
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = defaultPollInterval
	}
	if c.Monitor.Timeout <= 0 {
		c.Monitor.Timeout = defaultMonitorTimeout
	}
	if c.Monitor.MaxStreams < 0 {
		c.Monitor.MaxStreams = 0
	}
	if c.Monitor.MaxReconnects < 0 {
		c.Monitor.MaxReconnects = 0
	}
	if c.Monitor.MaxPollFailures <= 0 {
		c.Monitor.MaxPollFailures = defaultMaxPollFailures
	}
	if c.FindMore.PrototypeCount <= 0 {
		c.FindMore.PrototypeCount = defaultFindMorePrototypeCount
	}
	if c.FindMore.MaxSuggestions <= 0 {
		c.FindMore.MaxSuggestions = defaultFindMoreMaxSuggestions
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	c.Metrics.TextfilePath = strings.TrimSpace(c.Metrics.TextfilePath)
	if c.Metrics.TextfilePath == "" {
		return nil
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(c.Metrics.TextfilePath); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}
