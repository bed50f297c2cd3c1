package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Task represents one extraction job persisted in SQLite.
type Task struct {
	ID               string
	Status           Status
	OriginalFilename string
	SourcePath       string
	ExportPath       string
	FileSizeBytes    int64
	FileHash         string
	ExportSizeBytes  int64
	ErrorCode        string
	ErrorMessage     string
	SubmittedBy      string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether the task has reached a final state.
func (t Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// SetProcessing marks the task as picked up by the worker.
func (t *Task) SetProcessing(now time.Time) {
	t.Status = StatusProcessing
	started := now.UTC()
	t.StartedAt = &started
	t.ErrorCode = ""
	t.ErrorMessage = ""
}

// SetCompleted records a successful extraction.
func (t *Task) SetCompleted(now time.Time, exportPath string, exportSize int64) {
	t.Status = StatusCompleted
	completed := now.UTC()
	t.CompletedAt = &completed
	t.ExportPath = exportPath
	t.ExportSizeBytes = exportSize
	t.ErrorCode = ""
	t.ErrorMessage = ""
}

// SetFailed records a terminal failure with its classification code.
func (t *Task) SetFailed(now time.Time, code, message string) {
	t.Status = StatusFailed
	completed := now.UTC()
	t.CompletedAt = &completed
	t.ErrorCode = code
	t.ErrorMessage = message
}

// Stats is a count of tasks grouped by status.
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// CleanupEntry records one retention sweep removal.
type CleanupEntry struct {
	ID         int64
	TaskID     string
	UploadPath string
	ExportPath string
	Reason     string
	CleanedAt  time.Time
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}
