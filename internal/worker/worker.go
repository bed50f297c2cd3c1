package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assetrip/internal/config"
	"assetrip/internal/engine"
	"assetrip/internal/logging"
	"assetrip/internal/queue"
	"assetrip/internal/services"
	"assetrip/internal/storage"
)

// EngineClient is the slice of the engine a task pipeline drives.
type EngineClient interface {
	LoadInput(ctx context.Context, path string) error
	ExportContent(ctx context.Context, exportDir string) error
	Reset(ctx context.Context) error
}

// Admission coordinates exclusive engine access with the health monitor.
type Admission interface {
	AwaitReady(ctx context.Context, timeout time.Duration) error
	ReleaseTask()
	RequestRestart()
	MarkUnhealthy()
}

// Options configures worker timing.
type Options struct {
	PollInterval     time.Duration
	ErrorRetry       time.Duration
	ReadyWaitTimeout time.Duration
	LoadTimeout      time.Duration
	ExportTimeout    time.Duration
	ResetTimeout     time.Duration
	Logger           *slog.Logger
}

// OptionsFromConfig derives worker options from daemon configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:     time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		ErrorRetry:       time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		ReadyWaitTimeout: time.Duration(cfg.Workflow.ReadyWaitTimeout) * time.Second,
		LoadTimeout:      time.Duration(cfg.Engine.LoadTimeout) * time.Second,
		ExportTimeout:    time.Duration(cfg.Engine.ExportTimeout) * time.Second,
		ResetTimeout:     time.Duration(cfg.Engine.ProbeTimeout) * time.Second,
	}
}

// Worker is the single consumer of the pending task queue. It dequeues the
// oldest pending task, acquires the engine, drives the load-export-verify
// pipeline, and records the terminal outcome. Exactly one task is in flight
// at any instant.
type Worker struct {
	store     *queue.Store
	engine    EngineClient
	admission Admission
	files     *storage.Manager
	opts      Options
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current string
}

// New constructs a Worker.
func New(store *queue.Store, eng EngineClient, admission Admission, files *storage.Manager, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ErrorRetry <= 0 {
		opts.ErrorRetry = 5 * time.Second
	}
	if opts.ReadyWaitTimeout <= 0 {
		opts.ReadyWaitTimeout = 30 * time.Second
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 5 * time.Minute
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = time.Hour
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		engine:    eng,
		admission: admission,
		files:     files,
		opts:      opts,
		logger:    logger.With(logging.String(logging.FieldComponent, "task-worker")),
	}
}

// Start reconciles interrupted tasks and launches the consume loop.
// Reconciliation happens before any new work is admitted: a task found in the
// processing state can only be a leftover from a previous run.
func (w *Worker) Start(ctx context.Context) error {
	reconciled, err := w.Reconcile(ctx)
	if err != nil {
		return err
	}
	if reconciled > 0 {
		w.logger.Warn("failed tasks interrupted by previous shutdown", logging.Int64("count", reconciled))
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	return nil
}

// Stop halts the consume loop. An in-flight pipeline runs to completion or to
// its own timeouts; only admission of new tasks stops immediately.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Reconcile fails every task left in the processing state by a prior run.
func (w *Worker) Reconcile(ctx context.Context) (int64, error) {
	return w.store.FailInterrupted(ctx,
		string(services.CodeInterrupted),
		"processing was interrupted by a service restart; resubmit the upload")
}

// CurrentTask returns the ID of the in-flight task, if any.
func (w *Worker) CurrentTask() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.current != ""
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything already pending before sleeping.
		var pollErr error
		for ctx.Err() == nil {
			processed, err := w.processNext(ctx)
			if err != nil {
				pollErr = err
				w.logger.Error("queue poll failed", logging.Error(err))
				break
			}
			if !processed {
				break
			}
		}

		if pollErr != nil {
			// A store error gets a shorter retry than the idle poll cadence.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.ErrorRetry):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// processNext dequeues and fully executes one pending task. It reports
// whether a task was found.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	task, err := w.store.NextPending(ctx)
	if err != nil || task == nil {
		return false, err
	}

	w.setCurrent(task.ID)
	defer w.setCurrent("")

	// The pipeline ignores shutdown cancellation so an admitted task runs to
	// a terminal state; each step is bounded by its own timeout.
	w.execute(context.WithoutCancel(ctx), ctx, task)
	return true, nil
}

func (w *Worker) execute(pipeCtx, admitCtx context.Context, task *queue.Task) {
	logger := w.logger.With(logging.String(logging.FieldTaskID, task.ID))
	logger.Info("task started", logging.String("filename", task.OriginalFilename))

	task.SetProcessing(time.Now())
	if err := w.store.Update(pipeCtx, task); err != nil {
		logger.Error("persist processing transition", logging.Error(err))
		return
	}

	if err := w.admission.AwaitReady(admitCtx, w.opts.ReadyWaitTimeout); err != nil {
		// Fail rather than requeue: leaving the task pending would starve
		// silently behind a dead engine.
		w.fail(pipeCtx, task, logger, err)
		return
	}
	defer w.admission.ReleaseTask()
	defer w.resetEngine(pipeCtx, logger)

	if err := w.runPipeline(pipeCtx, task, logger); err != nil {
		w.fail(pipeCtx, task, logger, err)
		return
	}

	exportDir := w.files.TaskExportDir(task.ID)
	exportSize, err := storage.DirSize(exportDir)
	if err != nil {
		logger.Warn("measure export size", logging.Error(err))
	}

	task.SetCompleted(time.Now(), exportDir, exportSize)
	if err := w.store.Update(pipeCtx, task); err != nil {
		logger.Error("persist completed transition", logging.Error(err))
		return
	}
	logger.Info("task completed",
		logging.String("export_path", exportDir),
		logging.Int64("export_size_bytes", exportSize))
}

func (w *Worker) runPipeline(ctx context.Context, task *queue.Task, logger *slog.Logger) error {
	loadCtx, cancelLoad := context.WithTimeout(ctx, w.opts.LoadTimeout)
	err := w.engine.LoadInput(loadCtx, task.SourcePath)
	cancelLoad()
	if err != nil {
		// A load rejection is task-local (poison input); only a dead
		// transport implicates the engine itself.
		if services.IsTransport(err) || services.IsTimeout(err) {
			w.admission.RequestRestart()
		}
		return err
	}

	exportDir := w.files.TaskExportDir(task.ID)
	if err := w.files.EnsureTaskDirs(task.ID); err != nil {
		return services.Wrap(services.CodeExportError, "prepare export", "create export directory", err)
	}

	exportCtx, cancelExport := context.WithTimeout(ctx, w.opts.ExportTimeout)
	err = w.engine.ExportContent(exportCtx, exportDir)
	cancelExport()
	if err != nil {
		// A timed-out or dropped export leaves the engine in an unknown
		// state; the process restart is the only way back to a known one.
		if services.CodeOf(err) == services.CodeExportTimeout || services.IsTransport(err) {
			w.admission.RequestRestart()
		}
		return err
	}

	if err := w.files.VerifyExport(task.ID); err != nil {
		return services.Wrap(services.CodeVerificationFailed, "verify export",
			"engine reported success but produced no assets", err)
	}
	return nil
}

// resetEngine clears engine session state after every task, success or
// failure. A failed reset does not change the task outcome but degrades the
// engine so the monitor re-checks it.
func (w *Worker) resetEngine(ctx context.Context, logger *slog.Logger) {
	resetCtx, cancel := context.WithTimeout(ctx, w.opts.ResetTimeout)
	defer cancel()
	if err := w.engine.Reset(resetCtx); err != nil {
		logger.Warn("engine reset failed", logging.Error(err))
		w.admission.MarkUnhealthy()
	}
}

func (w *Worker) fail(ctx context.Context, task *queue.Task, logger *slog.Logger, cause error) {
	code := services.CodeOf(cause)
	if code == "" {
		code = services.CodeExportError
	}
	task.SetFailed(time.Now(), string(code), services.Message(cause))
	if err := w.store.Update(ctx, task); err != nil {
		logger.Error("persist failed transition", logging.Error(err))
		return
	}
	logger.Error("task failed",
		logging.String(logging.FieldErrorCode, string(code)),
		logging.Error(cause))
}

func (w *Worker) setCurrent(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = id
}

var _ EngineClient = (*engine.Engine)(nil)
var _ Admission = (*engine.Monitor)(nil)
