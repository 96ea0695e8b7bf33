// Package poller runs the per-source polling loops: it fetches each target's
// recent records, turns them into buy events and hands qualifying events to
// the dispatcher in chain order.
package poller

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/holders"
	"tonbuy-alerts/internal/idhash"
	"tonbuy-alerts/internal/normalize"
	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage"
)

// Target is one unit of polling work.
type Target struct {
	Pair    *domain.TrackedPair // tracked pair, or a synthetic one for early-mode tokens
	WatchID string              // set for early-mode watch entries
}

// holderTarget maps the poll target to the buyer map it records into.
func (t Target) holderTarget() holders.Target {
	if t.WatchID != "" {
		return holders.Target{WatchID: t.WatchID}
	}
	return holders.Target{PairID: t.Pair.ID}
}

// Batch is one fetched window of records for a target.
type Batch struct {
	Records  []normalize.Record
	Decimals int    // token decimals; 0 means default
	Floor    uint64 // exclusive lower bound already enforced by the fetcher
	Tip      uint64 // sequence the cursor may advance to even without records
}

// Dispatcher publishes a qualifying buy.
type Dispatcher interface {
	Dispatch(ctx context.Context, pair *domain.TrackedPair, e *domain.BuyEvent) error
}

// PriceSource exposes the cached TON/USD price without blocking.
type PriceSource interface {
	Cached() (float64, bool)
}

// Result summarizes one processed batch.
type Result struct {
	Detected   int
	Duplicates int
	Filtered   int
	Dispatched int
	Cursor     uint64
	Primed     bool // cursor was empty and was set near the tip
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Cursors    *state.Cursors
	Registry   *state.Registry
	Seen       storage.SeenCache
	Holders    *holders.Tracker
	Dispatcher Dispatcher
	Prices     PriceSource
	MinBuyTON  float64
	MinBuyUSD  float64
	Strictness normalize.Strictness
	Logger     *zap.Logger
	Now        func() time.Time
}

// Pipeline turns fetched batches into dispatched buys and advances cursors.
type Pipeline struct {
	cursors    *state.Cursors
	registry   *state.Registry
	seen       storage.SeenCache
	holders    *holders.Tracker
	dispatcher Dispatcher
	prices     PriceSource
	minTON     decimal.Decimal
	minUSD     decimal.Decimal
	strictness normalize.Strictness
	logger     *zap.Logger
	now        func() time.Time
}

// NewPipeline creates a pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		cursors:    opts.Cursors,
		registry:   opts.Registry,
		seen:       opts.Seen,
		holders:    opts.Holders,
		dispatcher: opts.Dispatcher,
		prices:     opts.Prices,
		minTON:     decimal.NewFromFloat(opts.MinBuyTON),
		minUSD:     decimal.NewFromFloat(opts.MinBuyUSD),
		strictness: opts.Strictness,
		logger:     logger.Named("pipeline"),
		now:        now,
	}
}

type sequenced struct {
	seq uint64
	rec normalize.Record
}

// Process runs one target's batch: reorder ascending, drop records at or
// below the cursor, normalize, filter, dedup, classify, dispatch in order and
// finally advance the cursor to the batch maximum.
//
// An empty cursor is primed to the batch maximum without dispatching anything,
// so a restart with lost state never replays history.
func (p *Pipeline) Process(ctx context.Context, source domain.SourceKind, ex normalize.Extractor, t Target, b Batch) (Result, error) {
	key := domain.CursorKey(source, t.Pair.ID)
	cursor := p.cursors.Get(key)
	if b.Floor > cursor {
		cursor = b.Floor
	}

	ordered := make([]sequenced, 0, len(b.Records))
	maxSeq := b.Tip
	for _, rec := range b.Records {
		seq, ok := ex.Seq(rec)
		if !ok {
			continue
		}
		ordered = append(ordered, sequenced{seq: seq, rec: rec})
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	res := Result{Cursor: cursor}
	if cursor == 0 {
		if maxSeq > 0 && p.cursors.Advance(key, maxSeq) {
			observability.RecordCursorAdvance(string(source))
			res.Cursor = maxSeq
			res.Primed = true
			p.logger.Info("cursor primed near tip",
				zap.String("source", string(source)),
				zap.String("target", t.Pair.ID),
				zap.Uint64("cursor", maxSeq))
		}
		return res, nil
	}

	nctx := &normalize.Context{
		Pair:       t.Pair,
		Source:     source,
		Decimals:   b.Decimals,
		Strictness: p.strictness,
		Now:        p.now(),
	}

	for _, item := range ordered {
		if item.seq <= cursor {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, ev := range ex.Normalize(item.rec, nctx) {
			ev := ev
			p.handle(ctx, t, &ev, &res)
		}
	}

	if p.cursors.Advance(key, maxSeq) {
		observability.RecordCursorAdvance(string(source))
	}
	res.Cursor = p.cursors.Get(key)
	return res, nil
}

func (p *Pipeline) handle(ctx context.Context, t Target, ev *domain.BuyEvent, res *Result) {
	source := string(ev.Source)
	res.Detected++
	observability.RecordBuy(source, "detected")

	if reason := p.filter(ev); reason != "" {
		res.Filtered++
		observability.RecordFiltered(source, reason)
		return
	}

	key := idhash.SeenKeyFor(ev)
	seen, err := p.seen.HasSeen(ctx, key)
	if err != nil {
		p.logger.Warn("seen cache lookup failed", zap.Error(err))
	}
	if seen {
		res.Duplicates++
		observability.RecordBuy(source, "duplicate")
		return
	}
	if err := p.seen.MarkSeen(ctx, key); err != nil {
		p.logger.Warn("seen cache mark failed", zap.Error(err))
	}

	ev.Holder = p.holders.Classify(t.holderTarget(), ev.Buyer)

	if err := p.dispatcher.Dispatch(ctx, t.Pair, ev); err != nil {
		p.logger.Warn("dispatch failed",
			zap.String("pair", ev.PairID),
			zap.String("tx", ev.TxIdentity()),
			zap.Error(err))
		return
	}
	res.Dispatched++
	observability.RecordBuy(source, "dispatched")
}

// filter returns the reason an event falls below the minimum value, or "".
func (p *Pipeline) filter(ev *domain.BuyEvent) string {
	if p.minTON.IsPositive() && ev.BaseAmount.LessThan(p.minTON) {
		return "min_ton"
	}
	if p.minUSD.IsPositive() && p.prices != nil {
		if price, ok := p.prices.Cached(); ok && price > 0 {
			if ev.BaseAmount.Mul(decimal.NewFromFloat(price)).LessThan(p.minUSD) {
				return "min_usd"
			}
		}
	}
	return ""
}

// Flush persists cursors and registry changes made during a cycle.
func (p *Pipeline) Flush(ctx context.Context) error {
	var errs []error
	if err := p.cursors.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.registry != nil {
		if err := p.registry.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
