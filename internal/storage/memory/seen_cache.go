package memory

import (
	"context"
	"sync"
	"time"

	"tonbuy-alerts/internal/storage"
)

// SeenCache is an in-memory TTL set of transaction identities.
// Expired entries are invisible to HasSeen and removed by Sweep.
type SeenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // key -> expiry
	nowFn   func() time.Time
}

// Compile-time interface check.
var _ storage.SeenCache = (*SeenCache)(nil)

// NewSeenCache creates a cache whose entries live for ttl.
func NewSeenCache(ttl time.Duration) *SeenCache {
	return &SeenCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		nowFn:   time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (c *SeenCache) WithClock(now func() time.Time) *SeenCache {
	c.nowFn = now
	return c
}

// HasSeen reports whether key was marked within the TTL.
func (c *SeenCache) HasSeen(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return c.nowFn().Before(exp), nil
}

// MarkSeen records key with a fresh TTL.
func (c *SeenCache) MarkSeen(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = c.nowFn().Add(c.ttl)
	return nil
}

// Sweep removes expired entries.
func (c *SeenCache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	for k, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, k)
		}
	}
	return len(c.entries), nil
}

// Len returns the number of stored entries, expired or not.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
