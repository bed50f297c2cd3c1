package api

import (
	"time"

	"assetrip/internal/engine"
	"assetrip/internal/queue"
)

// TaskView is the wire representation of a task.
type TaskView struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	OriginalFilename string     `json:"original_filename"`
	FileSizeBytes    int64      `json:"file_size_bytes"`
	FileHash         string     `json:"file_hash,omitempty"`
	ExportPath       string     `json:"export_path,omitempty"`
	ExportSizeBytes  int64      `json:"export_size_bytes,omitempty"`
	ErrorCode        string     `json:"error_code,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	SubmittedBy      string     `json:"submitted_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// FromTask converts a stored task into its wire form.
func FromTask(task *queue.Task) TaskView {
	return TaskView{
		ID:               task.ID,
		Status:           string(task.Status),
		OriginalFilename: task.OriginalFilename,
		FileSizeBytes:    task.FileSizeBytes,
		FileHash:         task.FileHash,
		ExportPath:       task.ExportPath,
		ExportSizeBytes:  task.ExportSizeBytes,
		ErrorCode:        task.ErrorCode,
		ErrorMessage:     task.ErrorMessage,
		SubmittedBy:      task.SubmittedBy,
		CreatedAt:        task.CreatedAt,
		StartedAt:        task.StartedAt,
		CompletedAt:      task.CompletedAt,
	}
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskResponse wraps a single task lookup.
type TaskResponse struct {
	Task TaskView `json:"task"`
}

// TaskListResponse wraps a task listing with aggregate counts.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
	Stats StatsView  `json:"stats"`
}

// StatsView reports task counts per status.
type StatsView struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// FromStats converts store statistics into their wire form.
func FromStats(stats queue.Stats) StatsView {
	return StatsView{
		Total:      stats.Total,
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
	}
}

// EngineStatus reports the supervised engine's health.
type EngineStatus struct {
	Phase               string     `json:"phase"`
	PID                 int        `json:"pid,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RestartAttempts     int        `json:"restart_attempts"`
	Fatal               bool       `json:"fatal"`
	LastProbeAt         *time.Time `json:"last_probe_at,omitempty"`
}

// FromEngineSnapshot converts a supervisory snapshot into its wire form.
func FromEngineSnapshot(snap engine.Snapshot) EngineStatus {
	status := EngineStatus{
		Phase:               string(snap.Phase),
		PID:                 snap.PID,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		RestartAttempts:     snap.RestartAttempts,
		Fatal:               snap.Fatal,
	}
	if !snap.LastProbeAt.IsZero() {
		probedAt := snap.LastProbeAt
		status.LastProbeAt = &probedAt
	}
	return status
}

// DatabaseStatus reports task database diagnostics.
type DatabaseStatus struct {
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	Readable       bool   `json:"readable"`
	IntegrityCheck bool   `json:"integrity_check"`
	TotalTasks     int    `json:"total_tasks"`
	Error          string `json:"error,omitempty"`
}

// FromDatabaseHealth converts store diagnostics into their wire form.
func FromDatabaseHealth(health queue.DatabaseHealth) DatabaseStatus {
	return DatabaseStatus{
		Path:           health.DBPath,
		Exists:         health.DatabaseExists,
		Readable:       health.DatabaseReadable,
		IntegrityCheck: health.IntegrityCheck,
		TotalTasks:     health.TotalTasks,
		Error:          health.Error,
	}
}

// HealthResponse is the full daemon health report.
type HealthResponse struct {
	Status        string         `json:"status"`
	Engine        EngineStatus   `json:"engine"`
	QueueSize     int            `json:"queue_size"`
	CurrentTask   string         `json:"current_task,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Database      DatabaseStatus `json:"database"`
}

// DeleteResponse acknowledges task removal.
type DeleteResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// ErrorResponse carries a failure message to the client.
type ErrorResponse struct {
	Error string `json:"error"`
}
