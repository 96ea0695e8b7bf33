package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
)

// DocumentStore is the durable key-value persistence capability.
// Each namespace holds one JSON document that is replaced as a whole.
type DocumentStore interface {
	// Load decodes the namespace document into dst. Returns ErrNotFound if never saved.
	Load(ctx context.Context, namespace string, dst any) error

	// Save replaces the namespace document atomically.
	Save(ctx context.Context, namespace string, doc any) error
}

// SeenCache is a time-bounded set of dispatched transaction identities.
type SeenCache interface {
	// HasSeen reports whether key was marked within the TTL window.
	HasSeen(ctx context.Context, key string) (bool, error)

	// MarkSeen records key with a fresh TTL.
	MarkSeen(ctx context.Context, key string) error

	// Sweep evicts expired entries and returns the number remaining.
	Sweep(ctx context.Context) (int, error)
}

// BuyStat aggregates dispatched buys for one token.
type BuyStat struct {
	TokenAddress string
	Symbol       string
	Buys         uint64
	UniqueBuyers uint64
	BaseVolume   decimal.Decimal
	LastBuyAt    time.Time
}

// BuyEventStore is an append-only log of dispatched buys.
type BuyEventStore interface {
	// Insert appends a dispatched buy.
	Insert(ctx context.Context, e *domain.BuyEvent) error

	// Summary aggregates buys detected at or after since, ordered by base volume DESC.
	Summary(ctx context.Context, since time.Time, limit int) ([]BuyStat, error)
}

// ValidNamespace reports whether ns is usable as a document key by every backend.
func ValidNamespace(ns string) bool {
	if ns == "" || len(ns) > 64 {
		return false
	}
	for _, r := range ns {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
