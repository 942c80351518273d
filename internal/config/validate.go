package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url must be set (or set FACEREVIEW_API_URL)")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api.base_url must include a host, got %q", c.API.BaseURL)
	}
	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("state.backend must be \"sqlite\" or \"file\", got %q", c.State.Backend)
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return errors.New("state.path must be set")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if err := ensurePositiveMap(map[string]int{
		"api.request_timeout":       c.API.RequestTimeout,
		"monitor.poll_interval":     c.Monitor.PollInterval,
		"monitor.timeout":           c.Monitor.Timeout,
		"monitor.max_poll_failures": c.Monitor.MaxPollFailures,
		"recent.capacity":           c.Recent.Capacity,
	}); err != nil {
		return err
	}
	if c.Monitor.Timeout <= c.Monitor.PollInterval {
		return errors.New("monitor.timeout must be greater than monitor.poll_interval")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.FindMore.MinConfidence < 0 || c.FindMore.MinConfidence > 1 {
		return errors.New("find_more.min_confidence must be between 0 and 1")
	}
	if c.Loader.MinConfidence < 0 || c.Loader.MinConfidence > 1 {
		return errors.New("loader.min_confidence must be between 0 and 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
