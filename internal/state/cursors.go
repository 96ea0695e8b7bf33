// Package state holds the mutable service state: per-source cursors and the
// pair/watch registry. Both are kept in memory and persisted as whole documents
// through a storage.DocumentStore.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/storage"
)

// CursorNamespace is the document namespace holding the cursor map.
const CursorNamespace = "cursors"

// Cursors tracks the highest processed sequence per source target.
// Values never decrease.
type Cursors struct {
	store  storage.DocumentStore
	logger *zap.Logger

	flushMu sync.Mutex // held across snapshot and Save

	mu      sync.Mutex
	values  map[string]uint64
	version uint64 // bumped on every advance
	saved   uint64 // version of the last successful flush
}

// NewCursors creates an empty cursor map backed by store.
func NewCursors(store storage.DocumentStore, logger *zap.Logger) *Cursors {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cursors{
		store:  store,
		logger: logger.Named("cursors"),
		values: make(map[string]uint64),
	}
}

// Load replaces the in-memory map with the persisted one.
// A missing document leaves the map empty.
func (c *Cursors) Load(ctx context.Context) error {
	loaded := make(map[string]uint64)
	err := c.store.Load(ctx, CursorNamespace, &loaded)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cursors: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range loaded {
		if v > c.values[k] {
			c.values[k] = v
		}
	}
	return nil
}

// Get returns the cursor for key, or 0 when none has been recorded.
func (c *Cursors) Get(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

// Advance moves the cursor for key to v if v is greater than the current value.
// Returns true when the cursor moved.
func (c *Cursors) Advance(key string, v uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v <= c.values[key] {
		return false
	}
	c.values[key] = v
	c.version++
	return true
}

// Dirty reports whether advances are pending persistence.
func (c *Cursors) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version != c.saved
}

// Snapshot returns a copy of the cursor map.
func (c *Cursors) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Flush persists the cursor map if it changed since the last successful flush.
// On failure the map stays dirty and the next Flush retries.
func (c *Cursors) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.version == c.saved {
		c.mu.Unlock()
		return nil
	}
	version := c.version
	doc := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		doc[k] = v
	}
	c.mu.Unlock()

	if err := c.store.Save(ctx, CursorNamespace, doc); err != nil {
		observability.RecordPersistFailure(CursorNamespace)
		c.logger.Warn("cursor flush failed", zap.Error(err))
		return fmt.Errorf("save cursors: %w", err)
	}

	c.mu.Lock()
	if version > c.saved {
		c.saved = version
	}
	c.mu.Unlock()
	return nil
}
