package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tonbuy-alerts/internal/storage"
)

// DocumentStore is a PostgreSQL implementation of storage.DocumentStore.
// Each namespace is one row in the documents table; Save is a single upsert,
// so readers observe either the previous or the new document.
type DocumentStore struct {
	pool *Pool
}

// Compile-time interface check.
var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new PostgreSQL document store.
func NewDocumentStore(pool *Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Load decodes the namespace document into dst.
func (s *DocumentStore) Load(ctx context.Context, namespace string, dst any) error {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body
		FROM documents
		WHERE namespace = $1
	`, namespace).Scan(&body)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load %s: %w", namespace, err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", namespace, err)
	}
	return nil
}

// Save upserts the namespace document.
func (s *DocumentStore) Save(ctx context.Context, namespace string, doc any) error {
	if !storage.ValidNamespace(namespace) {
		return storage.ErrInvalidInput
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (namespace, body, revision, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (namespace) DO UPDATE
		SET body = EXCLUDED.body,
		    revision = documents.revision + 1,
		    updated_at = NOW()
	`, namespace, body)
	if err != nil {
		return fmt.Errorf("save %s: %w", namespace, err)
	}
	return nil
}
