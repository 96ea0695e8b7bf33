// Package ranking computes trending ranks and the top-movers leaderboard from
// DexScreener data for the tracked pairs.
package ranking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/upstream"
)

// DefaultRankTTL is how long auto ranks are reused before a refresh.
const DefaultRankTTL = 30 * time.Second

// PairStats looks up DexScreener data for a pool.
type PairStats interface {
	Pair(ctx context.Context, pairID string) (*upstream.PairInfo, error)
}

// PairSource lists tracked pairs and operator rank overrides.
type PairSource interface {
	Pairs(dex domain.DexKind) []*domain.TrackedPair
	ForcedRanks() map[string]int
}

// RanksOptions configures Ranks.
type RanksOptions struct {
	Pairs  PairSource
	Stats  PairStats
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Ranks serves trending ranks by symbol. Forced ranks win over auto ranks,
// which are derived from summed 6h USD volume across a symbol's pairs.
type Ranks struct {
	pairs  PairSource
	stats  PairStats
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	auto      map[string]int
	refreshed time.Time
}

// NewRanks creates an empty rank table.
func NewRanks(opts RanksOptions) *Ranks {
	r := &Ranks{
		pairs:  opts.Pairs,
		stats:  opts.Stats,
		ttl:    opts.TTL,
		logger: opts.Logger,
		now:    opts.Now,
		auto:   map[string]int{},
	}
	if r.ttl <= 0 {
		r.ttl = DefaultRankTTL
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("ranks")
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Rank returns the rank of symbol, 0 when unranked. It never calls upstream.
func (r *Ranks) Rank(symbol string) int {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0
	}
	if r.pairs != nil {
		if rank, ok := r.pairs.ForcedRanks()[symbol]; ok && rank > 0 {
			return rank
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auto[symbol]
}

// Stale reports whether the auto ranks are older than the TTL.
func (r *Ranks) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshed.IsZero() || r.now().Sub(r.refreshed) >= r.ttl
}

// Refresh recomputes auto ranks from DexScreener volume. Pairs whose lookup
// fails are left out of this round.
func (r *Ranks) Refresh(ctx context.Context) error {
	infos := make(map[string]*upstream.PairInfo)
	for _, p := range r.pairs.Pairs("") {
		if p.Dex == domain.DexBlum {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := r.stats.Pair(ctx, p.ID)
		if err != nil {
			r.logger.Debug("pair stats failed", zap.String("pair", p.ID), zap.Error(err))
			continue
		}
		if info != nil {
			infos[p.ID] = info
		}
	}
	r.apply(r.pairs.Pairs(""), infos)
	return nil
}

// apply ranks symbols by summed 6h volume; rank 1 is the highest.
func (r *Ranks) apply(pairs []*domain.TrackedPair, infos map[string]*upstream.PairInfo) {
	volume := make(map[string]float64)
	for _, p := range pairs {
		info := infos[p.ID]
		sym := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if info == nil || sym == "" || info.VolumeH6USD <= 0 {
			continue
		}
		volume[sym] += info.VolumeH6USD
	}

	syms := make([]string, 0, len(volume))
	for s := range volume {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		if volume[syms[i]] != volume[syms[j]] {
			return volume[syms[i]] > volume[syms[j]]
		}
		return syms[i] < syms[j]
	})

	auto := make(map[string]int, len(syms))
	for i, s := range syms {
		auto[s] = i + 1
	}

	r.mu.Lock()
	r.auto = auto
	r.refreshed = r.now()
	r.mu.Unlock()
}

// Run refreshes auto ranks every TTL until ctx is done.
func (r *Ranks) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()
	for {
		if r.Stale() {
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("rank refresh failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
