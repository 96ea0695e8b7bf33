// Package redis implements the shared seen cache on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tonbuy-alerts/internal/storage"
)

const keyPrefix = "tonbuy:seen:"

// SeenCache stores transaction identities as expiring Redis keys,
// so dedup survives restarts and is shared between replicas.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Compile-time interface check.
var _ storage.SeenCache = (*SeenCache)(nil)

// NewSeenCache connects to url (redis://...) and verifies the connection.
func NewSeenCache(ctx context.Context, url string, ttl time.Duration) (*SeenCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &SeenCache{client: client, ttl: ttl}, nil
}

// Close closes the client.
func (c *SeenCache) Close() error {
	return c.client.Close()
}

// HasSeen reports whether key exists.
func (c *SeenCache) HasSeen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkSeen sets key with the cache TTL. An existing key keeps its expiry.
func (c *SeenCache) MarkSeen(ctx context.Context, key string) error {
	if err := c.client.SetNX(ctx, keyPrefix+key, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Sweep is a no-op, Redis expires keys itself. It reports the database size.
func (c *SeenCache) Sweep(ctx context.Context) (int, error) {
	n, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis dbsize: %w", err)
	}
	return int(n), nil
}
