package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	corestore "github.com/kilianp07/gridcourier/core/store"
)

// FileStore keeps one JSON document per key in a directory.
type FileStore struct {
	kvStore
}

type fileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{kvStore{&fileBackend{dir: dir}}}, nil
}

func (b *fileBackend) path(key string) string { return filepath.Join(b.dir, key+".json") }

func (b *fileBackend) get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, corestore.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}

// put replaces the file atomically through a temporary file.
func (b *fileBackend) put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	target := b.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (b *fileBackend) Close() error { return nil }
