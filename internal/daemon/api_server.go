package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetrip/internal/api"
	"assetrip/internal/config"
	"assetrip/internal/engine"
	"assetrip/internal/logging"
	"assetrip/internal/queue"
	"assetrip/internal/storage"
)

// maxUploadBytes bounds a single archive upload (2 GiB).
const maxUploadBytes = 2 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/upload", authMiddleware(token, srv.handleUpload))
	mux.HandleFunc("/api/v1/tasks", authMiddleware(token, srv.handleTasks))
	mux.HandleFunc("/api/v1/tasks/", authMiddleware(token, srv.handleTask))
	mux.HandleFunc("/api/v1/download/", authMiddleware(token, srv.handleDownload))
	mux.HandleFunc("/api/v1/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address, useful when the bind port is ephemeral.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	filename := storage.SanitizeFilename(header.Filename)
	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}

	// Store the bytes before the task row exists so the worker can never
	// dequeue a task whose upload is still streaming in.
	id := uuid.NewString()
	uploadPath := s.daemon.files.TaskUploadPath(id, filename)
	size, hash, err := s.daemon.files.SaveUpload(file, uploadPath)
	if err != nil {
		s.logger.Error("save upload", logging.String(logging.FieldTaskID, id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	if prior, err := s.daemon.store.FindByHash(r.Context(), hash); err == nil && prior != nil {
		s.logger.Info("duplicate upload content",
			logging.String(logging.FieldTaskID, id),
			logging.String("prior_task", prior.ID),
			logging.String("hash", hash))
	}

	task, err := s.daemon.store.NewTask(r.Context(), queue.NewTaskParams{
		ID:               id,
		OriginalFilename: filename,
		SourcePath:       uploadPath,
		FileSizeBytes:    size,
		FileHash:         hash,
		SubmittedBy:      clientIP(r),
	})
	if err != nil {
		_ = s.daemon.files.CleanupTask(id)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("upload accepted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("filename", filename),
		logging.Int64("bytes", size))

	s.writeJSON(w, http.StatusAccepted, api.UploadResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Message:   "file uploaded successfully, task queued for processing",
		CreatedAt: task.CreatedAt,
	})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	tasks, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.daemon.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]api.TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, api.FromTask(task))
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: views, Stats: api.FromStats(stats)})
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/tasks/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := s.daemon.store.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if task == nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", id))
			return
		}
		s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
	case http.MethodDelete:
		task, err := s.daemon.store.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if task == nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", id))
			return
		}
		if task.Status == queue.StatusProcessing {
			s.writeError(w, http.StatusConflict, "task is currently processing")
			return
		}
		if err := s.daemon.files.CleanupTask(id); err != nil {
			s.logger.Warn("cleanup task files", logging.String(logging.FieldTaskID, id), logging.Error(err))
		}
		if _, err := s.daemon.store.Remove(r.Context(), id); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.DeleteResponse{
			Message: fmt.Sprintf("task %s deleted", id),
			TaskID:  id,
		})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := pathTail(r.URL.Path, "/api/v1/download/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	if task.Status != queue.StatusCompleted {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("task %s is not completed (status: %s)", id, task.Status))
		return
	}
	if err := s.daemon.files.VerifyExport(id); err != nil {
		s.writeError(w, http.StatusGone, fmt.Sprintf("export files for task %s have been cleaned up", id))
		return
	}

	base := strings.TrimSuffix(task.OriginalFilename, ".zip")
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"_assets.zip"))
	if err := storage.WriteZip(w, s.daemon.files.TaskAssetsDir(id), "Assets"); err != nil {
		// Headers are already sent; all we can do is log and drop the conn.
		s.logger.Error("stream download", logging.String(logging.FieldTaskID, id), logging.Error(err))
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.daemon.EngineStatus()
	pending, err := s.daemon.store.CountPending(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dbHealth, dbErr := s.daemon.store.CheckHealth(r.Context())
	if dbErr != nil && dbHealth.Error == "" {
		dbHealth.Error = dbErr.Error()
	}

	healthy := (snap.Phase == engine.PhaseReady || snap.Phase == engine.PhaseBusy) && dbErr == nil
	payload := api.HealthResponse{
		Status:        "healthy",
		Engine:        api.FromEngineSnapshot(snap),
		QueueSize:     pending,
		UptimeSeconds: int64(s.daemon.Uptime().Seconds()),
		Database:      api.FromDatabaseHealth(dbHealth),
	}
	if current, ok := s.daemon.CurrentTask(); ok {
		payload.CurrentTask = current
	}

	status := http.StatusOK
	if !healthy {
		payload.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	if tail == "" || strings.Contains(tail, "/") {
		return ""
	}
	return tail
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
