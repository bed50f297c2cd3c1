package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assetrip/internal/config"
	"assetrip/internal/logging"
	"assetrip/internal/queue"
	"assetrip/internal/storage"
)

const reasonRetentionExpired = "retention_expired"

// Sweeper deletes upload and export artifacts for tasks older than the
// retention window. Task records stay in the database; only their files are
// removed, and each removal is logged so a task is never swept twice.
type Sweeper struct {
	store     *queue.Store
	files     *storage.Manager
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper builds a retention sweeper from daemon configuration.
func NewSweeper(store *queue.Store, files *storage.Manager, cfg *config.Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		store:     store,
		files:     files,
		retention: time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour,
		interval:  time.Duration(cfg.Cleanup.SweepIntervalHours) * time.Hour,
		logger:    logger.With(logging.String(logging.FieldComponent, "cleanup")),
	}
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(runCtx); err != nil {
					s.logger.Error("sweep failed", logging.Error(err))
				}
			}
		}
	}()
	s.logger.Info("retention sweeper started",
		logging.Duration("retention", s.retention),
		logging.Duration("interval", s.interval))
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// SweepOnce removes artifacts for every task past retention and returns how
// many tasks were swept. Tasks still pending or processing are skipped so the
// sweeper never races the worker.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)
	stale, err := s.store.TasksCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	swept := 0
	for _, task := range stale {
		if !task.IsTerminal() {
			continue
		}
		if err := s.files.CleanupTask(task.ID); err != nil {
			s.logger.Warn("remove task files",
				logging.String(logging.FieldTaskID, task.ID),
				logging.Error(err))
			continue
		}
		entry := queue.CleanupEntry{
			TaskID:     task.ID,
			UploadPath: task.SourcePath,
			ExportPath: task.ExportPath,
			Reason:     reasonRetentionExpired,
		}
		if err := s.store.RecordCleanup(ctx, entry); err != nil {
			s.logger.Warn("record cleanup",
				logging.String(logging.FieldTaskID, task.ID),
				logging.Error(err))
			continue
		}
		swept++
	}

	s.logger.Info("sweep finished",
		logging.Int("candidates", len(stale)),
		logging.Int("swept", swept))
	return swept, nil
}
