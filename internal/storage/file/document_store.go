// Package file implements storage.DocumentStore as one JSON file per namespace.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"tonbuy-alerts/internal/storage"
)

// DocumentStore writes <dir>/<namespace>.json with write-to-temp-then-rename.
type DocumentStore struct {
	dir string
	mu  sync.Mutex
}

// Compile-time interface check.
var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates the directory if needed.
func NewDocumentStore(dir string) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &DocumentStore{dir: dir}, nil
}

func (s *DocumentStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// Load decodes the namespace file into dst.
func (s *DocumentStore) Load(_ context.Context, namespace string, dst any) error {
	if !storage.ValidNamespace(namespace) {
		return storage.ErrInvalidInput
	}

	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("read %s: %w", namespace, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", namespace, err)
	}
	return nil
}

// Save atomically replaces the namespace file. A crash leaves either the old
// or the new document, never a partial one.
func (s *DocumentStore) Save(_ context.Context, namespace string, doc any) error {
	if !storage.ValidNamespace(namespace) {
		return storage.ErrInvalidInput
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", namespace, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", namespace, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", namespace, err)
	}
	if err := os.Rename(tmpName, s.path(namespace)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", namespace, err)
	}
	return nil
}
