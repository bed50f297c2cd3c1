package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assetrip/internal/config"
)

// ErrExportEmpty indicates the engine reported success but produced no assets.
var ErrExportEmpty = errors.New("export directory contains no extracted assets")

// Manager resolves per-task file locations and performs the disk operations
// around uploads and exports. Every task owns one upload directory and one
// export directory, both keyed by task ID.
type Manager struct {
	uploadDir string
	exportDir string
}

// NewManager builds a Manager from the configured upload and export roots.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		uploadDir: cfg.Paths.UploadDir,
		exportDir: cfg.Paths.ExportDir,
	}
}

// TaskUploadDir returns the directory holding a task's uploaded archive.
func (m *Manager) TaskUploadDir(taskID string) string {
	return filepath.Join(m.uploadDir, taskID)
}

// TaskUploadPath returns the full path of a task's uploaded archive.
func (m *Manager) TaskUploadPath(taskID, filename string) string {
	return filepath.Join(m.uploadDir, taskID, SanitizeFilename(filename))
}

// TaskExportDir returns the directory the engine exports into for a task.
func (m *Manager) TaskExportDir(taskID string) string {
	return filepath.Join(m.exportDir, taskID)
}

// TaskAssetsDir returns the Assets subdirectory the engine writes extracted
// content into.
func (m *Manager) TaskAssetsDir(taskID string) string {
	return filepath.Join(m.exportDir, taskID, "Assets")
}

// EnsureTaskDirs creates the upload and export directories for a task.
func (m *Manager) EnsureTaskDirs(taskID string) error {
	for _, dir := range []string{m.TaskUploadDir(taskID), m.TaskExportDir(taskID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create task directory %q: %w", dir, err)
		}
	}
	return nil
}

// SaveUpload streams the reader to the destination path, hashing as it goes.
// Returns the byte count and hex SHA-256 of the stored file.
func (m *Manager) SaveUpload(reader io.Reader, destination string) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, "", fmt.Errorf("create upload directory: %w", err)
	}

	file, err := os.Create(destination)
	if err != nil {
		return 0, "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), reader)
	if err != nil {
		_ = os.Remove(destination)
		return 0, "", fmt.Errorf("write upload file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, "", fmt.Errorf("sync upload file: %w", err)
	}

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyExport confirms the engine produced extracted content for a task. The
// engine signals success over HTTP, so the presence of a populated Assets
// directory is the ground truth.
func (m *Manager) VerifyExport(taskID string) error {
	assetsDir := m.TaskAssetsDir(taskID)
	info, err := os.Stat(assetsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrExportEmpty
		}
		return fmt.Errorf("stat assets directory: %w", err)
	}
	if !info.IsDir() {
		return ErrExportEmpty
	}

	entries, err := os.ReadDir(assetsDir)
	if err != nil {
		return fmt.Errorf("read assets directory: %w", err)
	}
	if len(entries) == 0 {
		return ErrExportEmpty
	}
	return nil
}

// CleanupTask removes both the upload and export directories of a task.
func (m *Manager) CleanupTask(taskID string) error {
	var errs []error
	for _, dir := range []string{m.TaskUploadDir(taskID), m.TaskExportDir(taskID)} {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

// DirSize walks the directory tree and sums regular file sizes.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %q: %w", root, err)
	}
	return total, nil
}

// SanitizeFilename strips any path components from a client-supplied name so
// uploads cannot escape their task directory.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" || base == "" {
		return "upload"
	}
	return base
}
