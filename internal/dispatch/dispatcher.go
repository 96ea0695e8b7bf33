// Package dispatch publishes buy alerts. Alerts are posted immediately with
// cached data; market stats and holder counts are fetched afterwards by a
// detached task that edits the posted messages.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/storage"
	"tonbuy-alerts/internal/upstream"
)

// DefaultEnrichTimeout bounds the detached enrichment task.
const DefaultEnrichTimeout = 3 * time.Second

// MarketStats looks up market data for a pool or a token.
type MarketStats interface {
	Pair(ctx context.Context, pairID string) (*upstream.PairInfo, error)
	TokenStats(ctx context.Context, token string) (*upstream.PairInfo, error)
}

// HolderCounts looks up the holder count of a token.
type HolderCounts interface {
	HoldersCount(ctx context.Context, master string) (int, bool, error)
}

// RankSource returns the current trending rank of a symbol, 0 when unranked.
type RankSource interface {
	Rank(symbol string) int
}

// PriceSource exposes the cached TON/USD price.
type PriceSource interface {
	Cached() (float64, bool)
}

// Options configures a Dispatcher.
type Options struct {
	Sink          Sink
	Stats         MarketStats           // optional
	Holders       HolderCounts          // optional; nil disables holder counts
	Ranks         RankSource            // optional
	Prices        PriceSource           // optional
	Events        storage.BuyEventStore // optional
	Links         Links
	EnrichTimeout time.Duration
	Logger        *zap.Logger
}

// Dispatcher posts alerts and runs their enrichment.
type Dispatcher struct {
	sink          Sink
	stats         MarketStats
	holders       HolderCounts
	ranks         RankSource
	prices        PriceSource
	events        storage.BuyEventStore
	links         Links
	enrichTimeout time.Duration
	logger        *zap.Logger

	wg sync.WaitGroup
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	timeout := opts.EnrichTimeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:          opts.Sink,
		stats:         opts.Stats,
		holders:       opts.Holders,
		ranks:         opts.Ranks,
		prices:        opts.Prices,
		events:        opts.Events,
		links:         opts.Links,
		enrichTimeout: timeout,
		logger:        logger.Named("dispatch"),
	}
}

// Dispatch posts the alert for e and schedules its enrichment. It returns
// once the post completed; enrichment never delays the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, pair *domain.TrackedPair, e *domain.BuyEvent) error {
	alert := d.compose(pair, e)

	refs, err := d.sink.Post(ctx, alert)
	if err != nil {
		observability.RecordDispatchError("post")
		return err
	}

	if d.events != nil {
		if err := d.events.Insert(ctx, e); err != nil {
			d.logger.Warn("buy event log insert failed", zap.String("tx", e.TxIdentity()), zap.Error(err))
		}
	}

	if len(refs) > 0 && (d.stats != nil || d.holders != nil) {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.enrich(pair, alert, refs)
		}()
	}
	return nil
}

// Wait blocks until every running enrichment task finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify forwards an operator notification to the sink.
func (d *Dispatcher) Notify(ctx context.Context, text string) error {
	if err := d.sink.Notify(ctx, text); err != nil {
		observability.RecordDispatchError("notify")
		return err
	}
	return nil
}

func (d *Dispatcher) compose(pair *domain.TrackedPair, e *domain.BuyEvent) *Alert {
	a := &Alert{Event: *e, Links: d.links}
	if pair != nil {
		a.Telegram = pair.Telegram
	}
	if d.prices != nil {
		if price, ok := d.prices.Cached(); ok {
			a.TONUSD = price
		}
	}
	if d.ranks != nil {
		a.Rank = d.ranks.Rank(e.Symbol)
	}
	return a
}

// enrich fetches market stats (pool first, then the token's most liquid pool)
// and the optional holder count, then edits the posted messages. Failures are
// logged and dropped.
func (d *Dispatcher) enrich(pair *domain.TrackedPair, posted *Alert, refs []MessageRef) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordEnrichment("panic")
			d.logger.Error("enrichment panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.enrichTimeout)
	defer cancel()

	a := *posted
	changed := false

	if d.stats != nil && a.Event.Source != domain.SourceBlum {
		if pair != nil && pair.Dex != domain.DexBlum {
			if info, err := d.stats.Pair(ctx, a.Event.PairID); err == nil && info != nil {
				a.Stats = a.Stats.merge(statsOf(info))
			}
		}
		if !a.Stats.complete() && a.Event.TokenAddress != "" {
			if info, err := d.stats.TokenStats(ctx, a.Event.TokenAddress); err == nil && info != nil {
				a.Stats = a.Stats.merge(statsOf(info))
			}
		}
		changed = a.Stats != posted.Stats
	}

	if d.holders != nil && a.Event.TokenAddress != "" {
		n, ok, err := d.holders.HoldersCount(ctx, a.Event.TokenAddress)
		if err == nil && ok {
			a.Holders = &n
			changed = true
		}
	}

	if !changed {
		observability.RecordEnrichment("skipped")
		return
	}
	if err := d.sink.Update(ctx, refs, &a); err != nil {
		observability.RecordEnrichment("error")
		observability.RecordDispatchError("update")
		d.logger.Debug("alert edit failed", zap.String("tx", a.Event.TxIdentity()), zap.Error(err))
		return
	}
	observability.RecordEnrichment("success")
}

func statsOf(p *upstream.PairInfo) Stats {
	return Stats{
		MarketCapUSD: p.MarketCapUSD,
		LiquidityUSD: p.LiquidityUSD,
		PriceUSD:     p.PriceUSD,
	}
}
