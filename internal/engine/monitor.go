package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"assetrip/internal/config"
	"assetrip/internal/logging"
	"assetrip/internal/services"
)

// Controller is the slice of Engine the monitor drives. It exists so monitor
// tests can supervise a fake engine without spawning a process.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Probe(ctx context.Context) error
}

// MonitorOptions configures probe cadence and the restart ladder.
type MonitorOptions struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	MaxRestarts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	ReadyPollEvery   time.Duration
	Logger           *slog.Logger
}

// MonitorOptionsFromConfig derives monitor options from daemon configuration.
func MonitorOptionsFromConfig(cfg *config.Config) MonitorOptions {
	return MonitorOptions{
		ProbeInterval:    time.Duration(cfg.Engine.ProbeInterval) * time.Second,
		ProbeTimeout:     time.Duration(cfg.Engine.ProbeTimeout) * time.Second,
		FailureThreshold: 1,
		MaxRestarts:      cfg.Engine.MaxRestartAttempts,
		BackoffBase:      time.Duration(cfg.Engine.RestartBackoffBase) * time.Second,
		BackoffCap:       time.Duration(cfg.Engine.RestartBackoffCap) * time.Second,
	}
}

// Monitor probes the engine on a fixed cadence and drives the bounded-backoff
// restart ladder when liveness is lost. It is the only component that calls
// Start and Stop after boot, which keeps restart decisions in one place.
type Monitor struct {
	engine  Controller
	state   *State
	opts    MonitorOptions
	logger  *slog.Logger
	backoff Backoff

	restartCh chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor builds a health monitor over the shared engine state.
func NewMonitor(engine Controller, state *State, opts MonitorOptions) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 1
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = opts.BackoffBase
	}
	if opts.ReadyPollEvery <= 0 {
		opts.ReadyPollEvery = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		engine:    engine,
		state:     state,
		opts:      opts,
		logger:    logger.With(logging.String(logging.FieldComponent, "health-monitor")),
		backoff:   Backoff{Base: opts.BackoffBase, Cap: opts.BackoffCap},
		restartCh: make(chan struct{}, 1),
	}
}

// Start launches the probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx)
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Status returns the current supervisory snapshot for health reporting.
func (m *Monitor) Status() Snapshot {
	return m.state.Snapshot()
}

// RequestRestart asks the monitor to cycle the engine out of band, used by
// the worker when an export times out or the transport drops mid-task. The
// request is coalesced if one is already pending.
func (m *Monitor) RequestRestart() {
	m.state.MarkUnhealthy()
	select {
	case m.restartCh <- struct{}{}:
	default:
	}
}

// AwaitReady blocks until the engine can be acquired for a task, the timeout
// elapses, or the context is canceled. On success the engine is transitioned
// to busy and the caller must release it with ReleaseTask.
func (m *Monitor) AwaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.opts.ReadyPollEvery)
	defer tick.Stop()

	for {
		if m.state.Fatal() {
			return services.Wrap(services.CodeUnavailable, "acquire engine",
				"engine restart attempts exhausted, manual intervention required", nil)
		}
		if m.state.BeginTask() {
			return nil
		}
		select {
		case <-ctx.Done():
			return services.Wrap(services.CodeUnavailable, "acquire engine", "shutdown in progress", ctx.Err())
		case <-deadline.C:
			return services.Wrap(services.CodeUnavailable, "acquire engine",
				fmt.Sprintf("engine not ready within %s (phase %s)", timeout, m.state.Phase()), nil)
		case <-tick.C:
		}
	}
}

// ReleaseTask returns the engine to the pool after a task's pipeline ends.
func (m *Monitor) ReleaseTask() {
	m.state.EndTask()
}

// MarkUnhealthy degrades the engine phase without forcing an immediate
// restart. The next scheduled probe decides whether recovery is needed.
func (m *Monitor) MarkUnhealthy() {
	m.state.MarkUnhealthy()
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.restartCh:
			m.restart(ctx)
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	if m.state.Fatal() {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	err := m.engine.Probe(probeCtx)
	cancel()

	now := time.Now()
	if err == nil {
		phase := m.state.RecordProbeSuccess(now)
		m.logger.Debug("probe succeeded", logging.String(logging.FieldEnginePhase, string(phase)))
		return
	}

	failures, phase := m.state.RecordProbeFailure(now)
	m.logger.Warn("probe failed",
		logging.Int("consecutive_failures", failures),
		logging.String(logging.FieldEnginePhase, string(phase)),
		logging.Error(err))

	if failures >= m.opts.FailureThreshold {
		m.restart(ctx)
	}
}

// restart runs the three-tier recovery ladder: cycle the process with
// exponentially increasing delays until it comes back, recovery is exhausted,
// or shutdown begins.
func (m *Monitor) restart(ctx context.Context) {
	for {
		if ctx.Err() != nil || m.state.Fatal() {
			return
		}
		if m.backoff.Attempts() >= m.opts.MaxRestarts {
			m.state.MarkFatal()
			m.logger.Error("engine restart attempts exhausted",
				logging.String(logging.FieldErrorCode, string(services.CodeRestartExhausted)),
				logging.Int("attempts", m.backoff.Attempts()))
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()
		m.state.MarkRestarting(attempt)
		m.logger.Info("restarting engine",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", m.opts.MaxRestarts),
			logging.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := m.engine.Stop(ctx); err != nil {
			m.logger.Warn("stop before restart", logging.Error(err))
		}
		if err := m.engine.Start(ctx); err != nil {
			m.logger.Warn("restart attempt failed", logging.Int("attempt", attempt), logging.Error(err))
			continue
		}

		m.backoff.Reset()
		m.state.ResetRestarts()
		m.logger.Info("engine recovered", logging.Int("attempts_used", attempt))
		return
	}
}
