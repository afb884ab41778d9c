package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each collection as DATA_DIR/<namespace>/<collection>.json
type FileStore struct {
	mu      sync.RWMutex
	dataDir string
}

// NewFileStore creates the data directory if needed
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	slog.Info("File store initialized", "data_dir", dataDir)
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) path(namespace, collection string) string {
	return filepath.Join(s.dataDir, namespace, collection+".json")
}

// Load reads a collection file
func (s *FileStore) Load(ctx context.Context, namespace, collection string) ([]byte, error) {
	if err := checkKey(namespace, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(namespace, collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", namespace, collection, err)
	}
	return data, nil
}

// Save writes a collection file through a temp file and rename
func (s *FileStore) Save(ctx context.Context, namespace, collection string, data []byte) error {
	if err := checkKey(namespace, collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(namespace, collection)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create namespace directory: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", namespace, collection, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", namespace, collection, err)
	}

	slog.Debug("Local collection saved", "namespace", namespace, "collection", collection, "bytes", len(data))
	return nil
}

// Delete removes a collection file; a missing file is not an error
func (s *FileStore) Delete(ctx context.Context, namespace, collection string) error {
	if err := checkKey(namespace, collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(namespace, collection))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, collection, err)
	}
	return nil
}

// Close is a no-op; every Save is already on disk
func (s *FileStore) Close() error {
	return nil
}
