package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"assetrip/internal/config"
	"assetrip/internal/logging"
	"assetrip/internal/services"
)

// Engine owns the lifecycle of the single external extraction process and its
// HTTP control surface. Exactly one Engine exists per daemon; the health
// monitor and the task worker share it.
type Engine struct {
	cfg    *config.Config
	state  *State
	client *Client
	logger *slog.Logger

	cmd     *exec.Cmd
	waitCh  chan error
	logFile *os.File
}

// New constructs an Engine supervising the configured binary, speaking HTTP
// to the configured local port.
func New(cfg *config.Config, state *State, logger *slog.Logger) *Engine {
	return NewWithClient(cfg, state, NewClient(cfg.EngineBaseURL(), nil), logger)
}

// NewWithClient constructs an Engine with an explicit control-plane client.
// Tests use it to point the engine at a stand-in HTTP server.
func NewWithClient(cfg *config.Config, state *State, client *Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		state:  state,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "engine")),
	}
}

// State returns the shared supervisory record.
func (e *Engine) State() *State {
	return e.state
}

// Running reports whether the spawned process is currently alive.
func (e *Engine) Running() bool {
	return e.cmd != nil && e.waitCh != nil
}

// Start spawns the engine binary and blocks until its root endpoint answers
// or the startup timeout elapses. On timeout the process is stopped and the
// error carries the start-timeout code.
func (e *Engine) Start(ctx context.Context) error {
	if e.Running() {
		return nil
	}

	args := []string{
		"--port", strconv.Itoa(e.cfg.Engine.Port),
		"--launch-browser=false",
	}
	cmd := exec.Command(e.cfg.Engine.BinaryPath, args...)

	if logDir := e.cfg.Paths.LogDir; logDir != "" {
		if file, err := openEngineLog(logDir); err == nil {
			cmd.Stdout = file
			cmd.Stderr = file
			e.logFile = file
		} else {
			e.logger.Warn("engine log unavailable, discarding process output", logging.Error(err))
		}
	}

	if err := cmd.Start(); err != nil {
		e.closeLogFile()
		return services.Wrap(services.CodeStartTimeout, "start engine", "spawn engine process", err)
	}

	e.cmd = cmd
	e.waitCh = make(chan error, 1)
	go func(ch chan error) {
		ch <- cmd.Wait()
	}(e.waitCh)

	e.state.MarkStarting(cmd.Process.Pid)
	e.logger.Info("engine process started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("binary", e.cfg.Engine.BinaryPath),
		logging.Int("port", e.cfg.Engine.Port))

	if err := e.awaitReadiness(ctx); err != nil {
		_ = e.Stop(context.WithoutCancel(ctx))
		return err
	}

	e.state.MarkReady()
	e.logger.Info("engine ready", logging.String("base_url", e.client.BaseURL()))
	return nil
}

func (e *Engine) awaitReadiness(ctx context.Context) error {
	startupTimeout := time.Duration(e.cfg.Engine.StartupTimeout) * time.Second
	probeTimeout := time.Duration(e.cfg.Engine.ProbeTimeout) * time.Second
	deadline := time.NewTimer(startupTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := e.client.Probe(probeCtx)
		cancel()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return services.Wrap(services.CodeStartTimeout, "start engine", "startup canceled", ctx.Err())
		case waitErr := <-e.waitCh:
			e.clearProcess()
			return services.Wrap(services.CodeStartTimeout, "start engine",
				"engine process exited before becoming ready", waitErr)
		case <-deadline.C:
			return services.Wrap(services.CodeStartTimeout, "start engine",
				fmt.Sprintf("engine not ready within %s", startupTimeout), err)
		case <-tick.C:
		}
	}
}

// Stop terminates the engine process: SIGTERM first, then a force kill once
// the grace period expires. It always leaves the state stopped.
func (e *Engine) Stop(ctx context.Context) error {
	defer e.state.MarkStopped()

	if !e.Running() {
		e.clearProcess()
		return nil
	}

	grace := time.Duration(e.cfg.Engine.StopGracePeriod) * time.Second
	pid := e.cmd.Process.Pid

	if err := e.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		e.logger.Warn("signal engine process", logging.Int("pid", pid), logging.Error(err))
	}

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-e.waitCh:
		e.logger.Info("engine stopped gracefully", logging.Int("pid", pid))
	case <-graceTimer.C:
		e.logger.Warn("engine ignored termination signal, killing", logging.Int("pid", pid))
		_ = e.cmd.Process.Kill()
		<-e.waitCh
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		<-e.waitCh
	}

	e.clearProcess()
	return nil
}

func (e *Engine) clearProcess() {
	e.cmd = nil
	e.waitCh = nil
	e.closeLogFile()
}

func (e *Engine) closeLogFile() {
	if e.logFile != nil {
		_ = e.logFile.Close()
		e.logFile = nil
	}
}

// Probe checks the engine's root endpoint once.
func (e *Engine) Probe(ctx context.Context) error {
	return e.client.Probe(ctx)
}

// LoadInput asks the engine to ingest the archive at path.
func (e *Engine) LoadInput(ctx context.Context, path string) error {
	return e.client.LoadFile(ctx, path)
}

// ExportContent asks the engine to extract the loaded archive into exportDir.
// The caller bounds the call with a context deadline.
func (e *Engine) ExportContent(ctx context.Context, exportDir string) error {
	return e.client.ExportPrimaryContent(ctx, exportDir)
}

// Reset clears engine session state between tasks.
func (e *Engine) Reset(ctx context.Context) error {
	return e.client.Reset(ctx)
}

func openEngineLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, "engine.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open engine log: %w", err)
	}
	return file, nil
}
