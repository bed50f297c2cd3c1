package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"assetrip/internal/cleanup"
	"assetrip/internal/config"
	"assetrip/internal/engine"
	"assetrip/internal/logging"
	"assetrip/internal/queue"
	"assetrip/internal/storage"
	"assetrip/internal/worker"
)

// Daemon wires the engine supervisor, health monitor, task worker, retention
// sweeper, and HTTP API together, and enforces single-instance execution via
// a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	files   *storage.Manager
	engine  *engine.Engine
	monitor *engine.Monitor
	worker  *worker.Worker
	sweeper *cleanup.Sweeper
	api     *apiServer

	lockPath  string
	lock      *flock.Flock
	startedAt time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with all subsystems wired but not started.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	files := storage.NewManager(cfg)
	state := engine.NewState()
	eng := engine.New(cfg, state, logger)

	monitorOpts := engine.MonitorOptionsFromConfig(cfg)
	monitorOpts.Logger = logger
	monitor := engine.NewMonitor(eng, state, monitorOpts)

	workerOpts := worker.OptionsFromConfig(cfg)
	workerOpts.Logger = logger
	wrk := worker.New(store, eng, monitor, files, workerOpts)

	var sweeper *cleanup.Sweeper
	if cfg.Cleanup.Enabled {
		sweeper = cleanup.NewSweeper(store, files, cfg, logger)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "assetripd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		files:    files,
		engine:   eng,
		monitor:  monitor,
		worker:   wrk,
		sweeper:  sweeper,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, boots the engine, and launches every
// subsystem. A failed engine boot is not fatal: the monitor's restart ladder
// takes over recovery while the API keeps serving status queries.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another assetripd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.startedAt = time.Now()

	if err := d.engine.Start(d.ctx); err != nil {
		d.logger.Error("engine failed to start, recovery delegated to monitor", logging.Error(err))
	}

	if err := d.worker.Start(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("start worker: %w", err)
	}
	d.monitor.Start(d.ctx)
	if d.engine.State().Phase() != engine.PhaseReady {
		d.monitor.RequestRestart()
	}
	if d.sweeper != nil {
		d.sweeper.Start(d.ctx)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.Stop()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop shuts subsystems down in dependency order: no new admissions, wait for
// the in-flight pipeline, halt monitoring, and stop the engine process last.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	d.worker.Stop()
	d.monitor.Stop()

	stopCtx, cancelStop := context.WithTimeout(context.Background(),
		time.Duration(d.cfg.Engine.StopGracePeriod+5)*time.Second)
	defer cancelStop()
	_ = d.engine.Stop(stopCtx)

	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	if d.running.Load() {
		d.Stop()
	}
	return d.store.Close()
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
}

// APIAddr returns the bound API address, resolved after Start when the
// configured port is ephemeral.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if d.startedAt.IsZero() {
		return 0
	}
	return time.Since(d.startedAt)
}

// EngineStatus returns the current engine supervisory snapshot.
func (d *Daemon) EngineStatus() engine.Snapshot {
	return d.monitor.Status()
}

// CurrentTask returns the in-flight task ID, if any.
func (d *Daemon) CurrentTask() (string, bool) {
	return d.worker.CurrentTask()
}
