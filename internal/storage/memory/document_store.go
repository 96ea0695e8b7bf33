// Package memory provides in-memory implementations of the storage interfaces.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tonbuy-alerts/internal/storage"
)

// DocumentStore is an in-memory implementation of storage.DocumentStore.
// Documents are kept encoded so callers never share mutable state with the store.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte

	// FailSaves makes every Save fail; used to exercise persistence-failure paths.
	FailSaves bool
}

// Compile-time interface check.
var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string][]byte)}
}

// Load decodes the namespace document into dst.
func (s *DocumentStore) Load(_ context.Context, namespace string, dst any) error {
	s.mu.RLock()
	data, ok := s.docs[namespace]
	s.mu.RUnlock()

	if !ok {
		return storage.ErrNotFound
	}
	return json.Unmarshal(data, dst)
}

// Save replaces the namespace document.
func (s *DocumentStore) Save(_ context.Context, namespace string, doc any) error {
	if !storage.ValidNamespace(namespace) {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return fmt.Errorf("save %s: simulated failure", namespace)
	}
	s.docs[namespace] = data
	return nil
}

// SetFailSaves toggles simulated save failures.
func (s *DocumentStore) SetFailSaves(fail bool) {
	s.mu.Lock()
	s.FailSaves = fail
	s.mu.Unlock()
}
