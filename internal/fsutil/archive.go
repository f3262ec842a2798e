// Package fsutil keeps the original upload of every stored run so it can be
// downloaded or re-analysed later.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jaynair0405/sub-spm/internal/security"
)

// FileSystem is the subset of file operations the archive needs.
// OSFileSystem is used in production and MemoryFileSystem in tests.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
}

// OSFileSystem implements FileSystem with the os package.
type OSFileSystem struct{}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)         { return os.ReadFile(name) }
func (OSFileSystem) Remove(name string) error                     { return os.Remove(name) }

// WriteFile writes through a temporary file so readers never see a partial
// upload.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// MemoryFileSystem is an in-memory FileSystem for tests.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFileSystem returns an empty MemoryFileSystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: make(map[string][]byte)}
}

func (m *MemoryFileSystem) MkdirAll(string, os.FileMode) error { return nil }

func (m *MemoryFileSystem) WriteFile(name string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(name)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

// Len returns the number of stored files.
func (m *MemoryFileSystem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// ErrNotArchived is returned for a run whose upload was not kept.
var ErrNotArchived = errors.New("upload not archived")

// Archive stores uploads as <dir>/<run id>.csv.
type Archive struct {
	fs  FileSystem
	dir string
}

// NewArchive returns an archive rooted at dir.
func NewArchive(fsys FileSystem, dir string) *Archive {
	return &Archive{fs: fsys, dir: dir}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

func (a *Archive) path(runID string) (string, error) {
	p := filepath.Join(a.dir, runID+".csv")
	if err := security.WithinDir(p, a.dir); err != nil {
		return "", err
	}
	return p, nil
}

// Save stores data for runID, replacing any earlier copy.
func (a *Archive) Save(runID string, data []byte) error {
	p, err := a.path(runID)
	if err != nil {
		return err
	}
	if err := a.fs.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := a.fs.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to archive upload: %w", err)
	}
	return nil
}

// Load returns the stored upload of runID.
func (a *Archive) Load(runID string) ([]byte, error) {
	p, err := a.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := a.fs.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, runID)
	}
	return data, err
}

// Delete removes the upload of runID. A missing upload is not an error.
func (a *Archive) Delete(runID string) error {
	p, err := a.path(runID)
	if err != nil {
		return err
	}
	if err := a.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
