package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.Paths.UploadDir == c.Paths.ExportDir {
		return errors.New("paths.upload_dir and paths.export_dir must differ")
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.BinaryPath) == "" {
		return errors.New("engine.binary_path is required")
	}
	if c.Engine.Port < 1 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port %d out of range", c.Engine.Port)
	}
	if c.Engine.RestartBackoffBase > c.Engine.RestartBackoffCap {
		return fmt.Errorf("engine.restart_backoff_base %d exceeds cap %d",
			c.Engine.RestartBackoffBase, c.Engine.RestartBackoffCap)
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
