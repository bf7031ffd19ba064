package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBusiness(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must not be empty")
	}
	return nil
}

func (c *Config) validateBusiness() error {
	if len(c.Business.Units) == 0 {
		return errors.New("business.units must list at least one partition label")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.DefaultLease < 30 || c.Queue.DefaultLease > 3600 {
		return fmt.Errorf("queue.default_lease_seconds %d outside [30, 3600]", c.Queue.DefaultLease)
	}
	if dir := strings.TrimSpace(c.Queue.PayloadSchemaDir); dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("queue.payload_schema_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("queue.payload_schema_dir %q is not a directory", dir)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
