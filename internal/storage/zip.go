package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteZip streams a zip archive of the source directory to the writer. Files
// are stored under arcname so the archive unpacks into a single folder.
func WriteZip(w io.Writer, sourceDir, arcname string) error {
	if _, err := os.Stat(sourceDir); err != nil {
		return fmt.Errorf("stat archive source: %w", err)
	}
	if arcname == "" {
		arcname = filepath.Base(sourceDir)
	}

	zw := zip.NewWriter(w)
	err := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{
			Name:   filepath.ToSlash(filepath.Join(arcname, rel)),
			Method: zip.Deflate,
		}
		if info, err := entry.Info(); err == nil {
			header.Modified = info.ModTime()
		}
		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("archive %q: %w", sourceDir, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
