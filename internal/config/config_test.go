package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"assetrip/internal/config"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Engine.Port != 8765 {
		t.Fatalf("expected default engine port, got %d", cfg.Engine.Port)
	}
	if cfg.Engine.ExportTimeout != 3600 {
		t.Fatalf("expected default export timeout, got %d", cfg.Engine.ExportTimeout)
	}
	if !strings.HasSuffix(cfg.Paths.UploadDir, filepath.Join("assetrip", "uploads")) {
		t.Fatalf("expected upload dir derived from data dir, got %q", cfg.Paths.UploadDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `"

[engine]
binary_path = "/opt/engine/AssetRipper"
port = 9200
export_timeout = 120

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q to be found, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Engine.Port != 9200 || cfg.Engine.ExportTimeout != 120 {
		t.Fatalf("overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging overrides not applied: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty binary path", func(c *config.Config) { c.Engine.BinaryPath = "" }},
		{"port out of range", func(c *config.Config) { c.Engine.Port = 70000 }},
		{"backoff base above cap", func(c *config.Config) {
			c.Engine.RestartBackoffBase = 120
			c.Engine.RestartBackoffCap = 60
		}},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "yaml" }},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			cfg.Paths.UploadDir = filepath.Join(cfg.Paths.DataDir, "uploads")
			cfg.Paths.ExportDir = filepath.Join(cfg.Paths.DataDir, "exports")
			cfg.Logging.Format = "console"
			cfg.Logging.Level = "info"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.UploadDir = filepath.Join(base, "data", "uploads")
	cfg.Paths.ExportDir = filepath.Join(base, "data", "exports")
	cfg.Paths.LogDir = filepath.Join(base, "data", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.ExportDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[engine]") {
		t.Fatal("sample config missing [engine] section")
	}
}
