// Package pricecache keeps the TON/USD price refreshed in the background so
// alert rendering never waits on the price feed.
package pricecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the refresh period used when none is configured.
const DefaultInterval = 60 * time.Second

// Feed fetches the current TON price in USD.
type Feed interface {
	TONPrice(ctx context.Context) (float64, error)
}

// Options configures a Cache.
type Options struct {
	Feed     Feed
	Interval time.Duration
	// MaxAge is how long a value stays usable after its last successful
	// refresh. Zero keeps the last value forever.
	MaxAge time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Cache holds the last known TON price.
type Cache struct {
	feed     Feed
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	price     float64
	updatedAt time.Time
}

// New creates an empty cache.
func New(opts Options) *Cache {
	c := &Cache{
		feed:     opts.Feed,
		interval: opts.Interval,
		maxAge:   opts.MaxAge,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("price")
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Cached returns the last price without blocking on the feed.
func (c *Cache) Cached() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.price <= 0 {
		return 0, false
	}
	if c.maxAge > 0 && c.now().Sub(c.updatedAt) > c.maxAge {
		return 0, false
	}
	return c.price, true
}

// Set stores a price directly.
func (c *Cache) Set(price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.price = price
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Refresh fetches the price once. On failure the previous value is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	price, err := c.feed.TONPrice(ctx)
	if err != nil {
		return err
	}
	c.Set(price)
	return nil
}

// Run refreshes the price every interval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("price refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
