package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeWorkflow()
	c.normalizeCleanup()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = filepath.Join(c.Paths.DataDir, "uploads")
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		c.Paths.ExportDir = filepath.Join(c.Paths.DataDir, "exports")
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("ASSETRIP_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.BinaryPath = strings.TrimSpace(c.Engine.BinaryPath)
	if c.Engine.Port <= 0 {
		c.Engine.Port = defaultEnginePort
	}
	if c.Engine.StartupTimeout <= 0 {
		c.Engine.StartupTimeout = defaultStartupTimeout
	}
	if c.Engine.ProbeInterval <= 0 {
		c.Engine.ProbeInterval = defaultProbeInterval
	}
	if c.Engine.ProbeTimeout <= 0 {
		c.Engine.ProbeTimeout = defaultProbeTimeout
	}
	if c.Engine.LoadTimeout <= 0 {
		c.Engine.LoadTimeout = defaultLoadTimeout
	}
	if c.Engine.ExportTimeout <= 0 {
		c.Engine.ExportTimeout = defaultExportTimeout
	}
	if c.Engine.MaxRestartAttempts <= 0 {
		c.Engine.MaxRestartAttempts = defaultMaxRestartAttempts
	}
	if c.Engine.RestartBackoffBase <= 0 {
		c.Engine.RestartBackoffBase = defaultBackoffBase
	}
	if c.Engine.RestartBackoffCap <= 0 {
		c.Engine.RestartBackoffCap = defaultBackoffCap
	}
	if c.Engine.StopGracePeriod <= 0 {
		c.Engine.StopGracePeriod = defaultStopGracePeriod
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.ReadyWaitTimeout <= 0 {
		c.Workflow.ReadyWaitTimeout = defaultReadyWaitTimeout
	}
}

func (c *Config) normalizeCleanup() {
	if c.Cleanup.RetentionDays <= 0 {
		c.Cleanup.RetentionDays = defaultRetentionDays
	}
	if c.Cleanup.SweepIntervalHours <= 0 {
		c.Cleanup.SweepIntervalHours = defaultSweepIntervalHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
