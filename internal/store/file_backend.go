package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileBackend keeps the snapshot in a single file replaced atomically on
// every save.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the snapshot file.
func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	// #nosec G304: path comes from configuration
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}

	return data, nil
}

// Save overwrites the snapshot file with data.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if err := renameio.WriteFile(b.path, data, 0o640); err != nil {
		return fmt.Errorf("replace %s: %w", b.path, err)
	}

	return nil
}

// HealthCheck verifies the snapshot directory is reachable.
func (b *FileBackend) HealthCheck(_ context.Context) error {
	dir := filepath.Dir(b.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	return nil
}
