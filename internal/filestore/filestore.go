// Package filestore manages the on-disk upload and export directories.
package filestore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidName is returned for names that are not a bare file name.
var ErrInvalidName = errors.New("invalid file name")

const exportPrefix = "export-barang-"

// maxExportAttempts bounds the millisecond bump on export name collisions.
const maxExportAttempts = 1000

// Store holds uploaded spreadsheets and generated exports. It is safe for
// concurrent use: every write goes to a uniquely named file.
type Store struct {
	uploadDir string
	exportDir string
}

// New creates both directories if needed.
func New(uploadDir, exportDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, exportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &Store{uploadDir: uploadDir, exportDir: exportDir}, nil
}

// SaveUpload copies r into the upload directory and returns the stored name.
// The name keeps the extension of originalName.
func (s *Store) SaveUpload(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	suffix, err := rand.Int(rand.Reader, big.NewInt(1e9))
	if err != nil {
		return "", fmt.Errorf("generate upload name: %w", err)
	}
	name := fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), suffix.Int64(), ext)

	f, err := os.OpenFile(filepath.Join(s.uploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}

// UploadExists reports whether a stored upload with name is present.
func (s *Store) UploadExists(name string) bool {
	path, err := s.UploadPath(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CreateExport creates a new export file named after now in epoch milliseconds.
// When the name is taken the millisecond is bumped until a free one is found.
func (s *Store) CreateExport(now time.Time) (*os.File, string, error) {
	millis := now.UnixMilli()
	for i := 0; i < maxExportAttempts; i++ {
		name := fmt.Sprintf("%s%d.xlsx", exportPrefix, millis+int64(i))
		f, err := os.OpenFile(filepath.Join(s.exportDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create export: %w", err)
		}
		return f, name, nil
	}
	return nil, "", fmt.Errorf("create export: no free name after %d attempts", maxExportAttempts)
}

// UploadPath returns the path of a stored upload.
func (s *Store) UploadPath(name string) (string, error) {
	return resolve(s.uploadDir, name)
}

// ExportPath returns the path of a generated export.
func (s *Store) ExportPath(name string) (string, error) {
	return resolve(s.exportDir, name)
}

// RemoveUpload deletes a stored upload. A missing file is not an error.
func (s *Store) RemoveUpload(name string) error {
	return remove(s.uploadDir, name)
}

// RemoveExport deletes a generated export. A missing file is not an error.
func (s *Store) RemoveExport(name string) error {
	return remove(s.exportDir, name)
}

func resolve(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name), nil
}

func remove(dir, name string) error {
	path, err := resolve(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
