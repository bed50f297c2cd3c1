package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"assetrip/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "assetrip.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the task database.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// NewTaskParams carries the fields recorded when an upload is accepted. ID is
// optional; callers that must know the identifier before the row exists (the
// upload path is keyed by it) supply their own.
type NewTaskParams struct {
	ID               string
	OriginalFilename string
	SourcePath       string
	FileSizeBytes    int64
	FileHash         string
	SubmittedBy      string
}

// NewTask inserts a pending task for a freshly uploaded archive.
func (s *Store) NewTask(ctx context.Context, params NewTaskParams) (*Task, error) {
	if strings.TrimSpace(params.OriginalFilename) == "" {
		return nil, errors.New("original filename required")
	}
	if strings.TrimSpace(params.SourcePath) == "" {
		return nil, errors.New("source path required")
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, status, original_filename, source_path, file_size_bytes,
            file_hash, submitted_by, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		StatusPending,
		params.OriginalFilename,
		params.SourcePath,
		params.FileSizeBytes,
		nullableString(params.FileHash),
		nullableString(params.SubmittedBy),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier. Returns nil when no task matches.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindByHash returns the most recent task matching an upload hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Task, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE file_hash = ? ORDER BY created_at DESC LIMIT 1`,
		hash,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, original_filename = ?, source_path = ?, export_path = ?,
             file_size_bytes = ?, file_hash = ?, export_size_bytes = ?,
             error_code = ?, error_message = ?, submitted_by = ?,
             started_at = ?, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		task.Status,
		task.OriginalFilename,
		task.SourcePath,
		nullableString(task.ExportPath),
		task.FileSizeBytes,
		nullableString(task.FileHash),
		nullableInt64(task.ExportSizeBytes),
		nullableString(task.ErrorCode),
		nullableString(task.ErrorMessage),
		nullableString(task.SubmittedBy),
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// NextPending returns the oldest pending task, or nil when the queue is empty.
func (s *Store) NextPending(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusPending,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return task, nil
}

// ListInterrupted returns tasks still marked processing, which can only happen
// after an abrupt shutdown.
func (s *Store) ListInterrupted(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at`,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("list interrupted: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// FailInterrupted transitions every processing task to failed. It runs once at
// worker startup, before new work is admitted.
func (s *Store) FailInterrupted(ctx context.Context, code, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, error_code = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		code,
		message,
		now,
		now,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of tasks awaiting execution.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status = ?`, StatusPending)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// TasksCreatedBefore returns tasks older than the cutoff whose files have not
// been swept yet. Used by the retention cleanup job.
func (s *Store) TasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE created_at < ?
           AND id NOT IN (SELECT task_id FROM cleanup_log)
         ORDER BY created_at`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("tasks created before: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// RecordCleanup logs a retention sweep removal for a task.
func (s *Store) RecordCleanup(ctx context.Context, entry CleanupEntry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO cleanup_log (task_id, upload_path, export_path, reason, cleaned_at)
         VALUES (?, ?, ?, ?, ?)`,
		entry.TaskID,
		nullableString(entry.UploadPath),
		nullableString(entry.ExportPath),
		entry.Reason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record cleanup: %w", err)
	}
	return nil
}

// CleanupLog returns the recorded sweep entries, newest first.
func (s *Store) CleanupLog(ctx context.Context) ([]CleanupEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, upload_path, export_path, reason, cleaned_at
         FROM cleanup_log ORDER BY cleaned_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("cleanup log: %w", err)
	}
	defer rows.Close()

	var entries []CleanupEntry
	for rows.Next() {
		var (
			entry      CleanupEntry
			uploadPath sql.NullString
			exportPath sql.NullString
			cleanedRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.TaskID, &uploadPath, &exportPath, &entry.Reason, &cleanedRaw); err != nil {
			return nil, err
		}
		entry.UploadPath = uploadPath.String
		entry.ExportPath = exportPath.String
		if cleaned, err := parseTimeString(cleanedRaw); err == nil {
			entry.CleanedAt = cleaned
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the task database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("task database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat task database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("task database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("task database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tasks'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tasks")
		if err := row.Scan(&health.TotalTasks); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tasks: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

const taskColumns = "id, status, original_filename, source_path, export_path, file_size_bytes, file_hash, export_size_bytes, error_code, error_message, submitted_by, created_at, started_at, completed_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            string
		statusStr     string
		filename      string
		sourcePath    string
		exportPath    sql.NullString
		fileSize      sql.NullInt64
		fileHash      sql.NullString
		exportSize    sql.NullInt64
		errorCode     sql.NullString
		errorMessage  sql.NullString
		submittedBy   sql.NullString
		createdRaw    sql.NullString
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&filename,
		&sourcePath,
		&exportPath,
		&fileSize,
		&fileHash,
		&exportSize,
		&errorCode,
		&errorMessage,
		&submittedBy,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:               id,
		Status:           Status(statusStr),
		OriginalFilename: filename,
		SourcePath:       sourcePath,
		ExportPath:       exportPath.String,
		FileSizeBytes:    fileSize.Int64,
		FileHash:         fileHash.String,
		ExportSizeBytes:  exportSize.Int64,
		ErrorCode:        errorCode.String,
		ErrorMessage:     errorMessage.String,
		SubmittedBy:      submittedBy.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
