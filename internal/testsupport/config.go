package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"assetrip/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ExportDir = filepath.Join(base, "exports")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Engine.BinaryPath = filepath.Join(base, "bin", "engine")
	cfgVal.Engine.Port = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the API auth token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithEnginePort overrides the engine control port on the test config.
func WithEnginePort(port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Port = port
	}
}

// WithStubbedEngine writes a stub engine executable that sleeps until killed
// and points the config at it. Tests that spawn the real process use this to
// avoid requiring the actual extraction engine.
func WithStubbedEngine() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "engine")
		script := []byte("#!/bin/sh\nwhile true; do sleep 1; done\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write stub engine: %v", err)
		}
		b.cfg.Engine.BinaryPath = target
	}
}
