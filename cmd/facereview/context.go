package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"facereview/internal/config"
	"facereview/internal/engine"
	"facereview/internal/logging"
	"facereview/internal/services"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withEngine builds an engine for the duration of fn. Close errors are only
// reported when fn itself succeeded.
func (c *commandContext) withEngine(fn func(*engine.Engine) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	eng, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(eng)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// describeError appends a next step for error kinds a user can act on.
func describeError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, services.ErrBusy):
		return msg + "\nAnother change to this face is still running; retry once it finishes."
	case errors.Is(err, services.ErrAlreadyReviewed):
		return msg + "\nRefresh with `facereview suggestions show <id>` to see the current state."
	case errors.Is(err, services.ErrTimeout), errors.Is(err, services.ErrTransport):
		return msg + "\nCheck that api.base_url is reachable, then retry."
	default:
		return msg
	}
}
