package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/storage"
)

// BuyEventStore is an in-memory implementation of storage.BuyEventStore.
type BuyEventStore struct {
	mu     sync.RWMutex
	events []domain.BuyEvent
}

// Compile-time interface check.
var _ storage.BuyEventStore = (*BuyEventStore)(nil)

// NewBuyEventStore creates an empty store.
func NewBuyEventStore() *BuyEventStore {
	return &BuyEventStore{}
}

// Insert appends a dispatched buy.
func (s *BuyEventStore) Insert(_ context.Context, e *domain.BuyEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

// Summary aggregates buys per token since the given time.
func (s *BuyEventStore) Summary(_ context.Context, since time.Time, limit int) ([]storage.BuyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]*storage.BuyStat)
	buyers := make(map[string]map[string]struct{})

	for i := range s.events {
		e := &s.events[i]
		if e.DetectedAt.Before(since) {
			continue
		}
		st, ok := stats[e.TokenAddress]
		if !ok {
			st = &storage.BuyStat{TokenAddress: e.TokenAddress, Symbol: e.Symbol, BaseVolume: decimal.Zero}
			stats[e.TokenAddress] = st
			buyers[e.TokenAddress] = make(map[string]struct{})
		}
		st.Buys++
		st.BaseVolume = st.BaseVolume.Add(e.BaseAmount)
		if e.DetectedAt.After(st.LastBuyAt) {
			st.LastBuyAt = e.DetectedAt
		}
		buyers[e.TokenAddress][e.Buyer] = struct{}{}
	}

	out := make([]storage.BuyStat, 0, len(stats))
	for addr, st := range stats {
		st.UniqueBuyers = uint64(len(buyers[addr]))
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].BaseVolume.Cmp(out[j].BaseVolume); c != 0 {
			return c > 0
		}
		return out[i].TokenAddress < out[j].TokenAddress
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every stored event in insertion order.
func (s *BuyEventStore) All() []domain.BuyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BuyEvent, len(s.events))
	copy(out, s.events)
	return out
}
