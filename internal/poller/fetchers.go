package poller

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/normalize"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/upstream"
)

// tipLag keeps the export window this many blocks behind the reported tip.
const tipLag = 2

// exportBacklogWindows bounds how many windows a pair whose fetch keeps
// failing may carry over before its backlog is dropped.
const exportBacklogWindows = 10

// ExportCursorKey is the global block cursor of the STON.fi export feed.
var ExportCursorKey = domain.CursorKey(domain.SourceStonExport, "global")

// PairSideResolver resolves which pool leg is TON.
type PairSideResolver interface {
	Pair(ctx context.Context, pairID string) (*upstream.PairInfo, error)
}

// StonExportFetcher reads one shared block range of the STON.fi export feed
// per cycle and hands every tracked STON.fi pair its slice of it.
type StonExportFetcher struct {
	api      *upstream.StonExport
	sides    PairSideResolver
	registry *state.Registry
	cursors  *state.Cursors
	maxRange uint64
	logger   *zap.Logger

	mu      sync.Mutex
	window  map[string][]normalize.Record
	floor   uint64
	tip     uint64
	backlog map[string]exportBacklog
}

// exportBacklog holds a pair's records from windows the global cursor already
// passed while the pair's fetch was failing.
type exportBacklog struct {
	floor   uint64
	records []normalize.Record
}

// NewStonExportFetcher creates the export fetcher. maxRange caps the blocks
// requested per cycle.
func NewStonExportFetcher(api *upstream.StonExport, sides PairSideResolver, registry *state.Registry, cursors *state.Cursors, maxRange uint64, logger *zap.Logger) *StonExportFetcher {
	if maxRange == 0 {
		maxRange = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StonExportFetcher{
		api:      api,
		sides:    sides,
		registry: registry,
		cursors:  cursors,
		maxRange: maxRange,
		logger:   logger.Named("ston-export"),
		backlog:  make(map[string]exportBacklog),
	}
}

func (f *StonExportFetcher) Source() domain.SourceKind      { return domain.SourceStonExport }
func (f *StonExportFetcher) Extractor() normalize.Extractor { return normalize.StonExport }

// Prepare loads the block range (cursor, min(tip-2, cursor+maxRange)].
// An empty global cursor is set to tip-2 and nothing is loaded.
func (f *StonExportFetcher) Prepare(ctx context.Context) error {
	f.mu.Lock()
	f.window, f.floor, f.tip = nil, 0, 0
	f.mu.Unlock()

	latest, err := f.api.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	if latest <= tipLag {
		return nil
	}
	target := latest - tipLag

	cursor := f.cursors.Get(ExportCursorKey)
	if cursor == 0 {
		f.cursors.Advance(ExportCursorKey, target)
		f.logger.Info("export cursor primed near tip", zap.Uint64("block", target))
		return nil
	}
	if target <= cursor {
		return nil
	}
	to := target
	if to-cursor > f.maxRange {
		to = cursor + f.maxRange
	}

	events, err := f.api.Events(ctx, cursor+1, to)
	if err != nil {
		return fmt.Errorf("events %d-%d: %w", cursor+1, to, err)
	}

	window := make(map[string][]normalize.Record)
	for _, ev := range events {
		if id := normalize.StonExportPairID(ev); id != "" {
			window[id] = append(window[id], ev)
		}
	}

	f.mu.Lock()
	f.window, f.floor, f.tip = window, cursor, to
	for id, b := range f.backlog {
		if to-b.floor > exportBacklogWindows*f.maxRange {
			delete(f.backlog, id)
			f.logger.Warn("dropping export backlog", zap.String("pair", id), zap.Uint64("from", b.floor))
		}
	}
	f.mu.Unlock()
	return nil
}

// Targets returns the tracked STON.fi pairs.
func (f *StonExportFetcher) Targets(_ context.Context) ([]Target, error) {
	return pairTargets(f.registry, domain.DexStonFi), nil
}

// Fetch returns the pair's events from the prepared window, preceded by any
// backlog from earlier windows in which the pair failed. The TON side of the
// pool is resolved and cached on first use. On failure the pair's records are
// kept as backlog for the next cycle.
func (f *StonExportFetcher) Fetch(ctx context.Context, t Target) (Batch, error) {
	id := t.Pair.ID
	f.mu.Lock()
	records, floor, tip := f.window[id], f.floor, f.tip
	if b, ok := f.backlog[id]; ok && tip > 0 {
		records = append(append([]normalize.Record(nil), b.records...), records...)
		floor = b.floor
	}
	f.mu.Unlock()

	if tip == 0 {
		return Batch{}, nil
	}
	if len(records) > 0 && !t.Pair.BaseSide.IsKnown() {
		side, err := f.resolveSide(ctx, id)
		if err != nil {
			f.mu.Lock()
			f.backlog[id] = exportBacklog{floor: floor, records: records}
			f.mu.Unlock()
			return Batch{}, err
		}
		t.Pair.BaseSide = side
	}

	f.mu.Lock()
	delete(f.backlog, id)
	f.mu.Unlock()
	return Batch{Records: records, Floor: floor, Tip: tip}, nil
}

func (f *StonExportFetcher) resolveSide(ctx context.Context, pairID string) (domain.BaseSide, error) {
	info, err := f.sides.Pair(ctx, pairID)
	if err != nil {
		return domain.BaseSideUnknown, fmt.Errorf("resolve base side: %w", err)
	}
	if info == nil || !info.TONSide().IsKnown() {
		return domain.BaseSideUnknown, fmt.Errorf("resolve base side of %s: no TON leg", pairID)
	}
	side := info.TONSide()
	if err := f.registry.SetBaseSide(pairID, side); err != nil {
		return domain.BaseSideUnknown, err
	}
	return side, nil
}

// Finish advances the global cursor past the processed window.
func (f *StonExportFetcher) Finish(_ context.Context) error {
	f.mu.Lock()
	tip := f.tip
	f.mu.Unlock()
	if tip > 0 {
		f.cursors.Advance(ExportCursorKey, tip)
	}
	return nil
}

// DecimalsSource looks up token decimals.
type DecimalsSource interface {
	Decimals(ctx context.Context, master string) int
}

// AccountTxSource lists recent account transactions.
type AccountTxSource interface {
	AccountTransactions(ctx context.Context, account string, limit int) ([]upstream.Record, error)
}

// StonPoolFetcher polls TonAPI transactions of each STON.fi pool.
type StonPoolFetcher struct {
	txs      AccountTxSource
	decimals DecimalsSource
	registry *state.Registry
	limit    int
}

// NewStonPoolFetcher creates the TonAPI pool fetcher.
func NewStonPoolFetcher(txs AccountTxSource, decimals DecimalsSource, registry *state.Registry, limit int) *StonPoolFetcher {
	if limit <= 0 {
		limit = 25
	}
	return &StonPoolFetcher{txs: txs, decimals: decimals, registry: registry, limit: limit}
}

func (f *StonPoolFetcher) Source() domain.SourceKind      { return domain.SourceStonPool }
func (f *StonPoolFetcher) Extractor() normalize.Extractor { return normalize.TonAPITx }

// Targets returns the tracked STON.fi pairs.
func (f *StonPoolFetcher) Targets(_ context.Context) ([]Target, error) {
	return pairTargets(f.registry, domain.DexStonFi), nil
}

// Fetch lists the pool's latest transactions.
func (f *StonPoolFetcher) Fetch(ctx context.Context, t Target) (Batch, error) {
	recs, err := f.txs.AccountTransactions(ctx, t.Pair.ID, f.limit)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Records: recs, Decimals: f.decimals.Decimals(ctx, t.Pair.TokenAddress)}, nil
}

// TradeSource lists recent pool trades.
type TradeSource interface {
	PoolTrades(ctx context.Context, pool string, limit int) ([]upstream.Record, error)
}

// DeDustFetcher polls the DeDust trades API of each DeDust pool.
type DeDustFetcher struct {
	trades   TradeSource
	decimals DecimalsSource
	registry *state.Registry
	limit    int
}

// NewDeDustFetcher creates the DeDust fetcher. decimals may be nil, in which
// case amounts are scaled with the default decimals.
func NewDeDustFetcher(trades TradeSource, decimals DecimalsSource, registry *state.Registry, limit int) *DeDustFetcher {
	if limit <= 0 {
		limit = 50
	}
	return &DeDustFetcher{trades: trades, decimals: decimals, registry: registry, limit: limit}
}

func (f *DeDustFetcher) Source() domain.SourceKind      { return domain.SourceDeDust }
func (f *DeDustFetcher) Extractor() normalize.Extractor { return normalize.DeDustTrade }

// Targets returns the tracked DeDust pairs.
func (f *DeDustFetcher) Targets(_ context.Context) ([]Target, error) {
	return pairTargets(f.registry, domain.DexDeDust), nil
}

// Fetch lists the pool's latest trades.
func (f *DeDustFetcher) Fetch(ctx context.Context, t Target) (Batch, error) {
	recs, err := f.trades.PoolTrades(ctx, t.Pair.ID, f.limit)
	if err != nil {
		return Batch{}, err
	}
	b := Batch{Records: recs}
	if f.decimals != nil {
		b.Decimals = f.decimals.Decimals(ctx, t.Pair.TokenAddress)
	}
	return b, nil
}

// BlumFetcher polls jetton master transactions of approved pre-listing tokens.
type BlumFetcher struct {
	txs      AccountTxSource
	decimals DecimalsSource
	registry *state.Registry
	limit    int
}

// NewBlumFetcher creates the early-mode fetcher.
func NewBlumFetcher(txs AccountTxSource, decimals DecimalsSource, registry *state.Registry, limit int) *BlumFetcher {
	if limit <= 0 {
		limit = 12
	}
	return &BlumFetcher{txs: txs, decimals: decimals, registry: registry, limit: limit}
}

func (f *BlumFetcher) Source() domain.SourceKind      { return domain.SourceBlum }
func (f *BlumFetcher) Extractor() normalize.Extractor { return normalize.BlumTx }

// Targets returns approved blum watch entries as synthetic pairs keyed by token.
func (f *BlumFetcher) Targets(_ context.Context) ([]Target, error) {
	watches := f.registry.EarlyWatches()
	out := make([]Target, 0, len(watches))
	for _, w := range watches {
		out = append(out, Target{
			Pair: &domain.TrackedPair{
				ID:           w.TokenAddress,
				Symbol:       w.Symbol,
				TokenAddress: w.TokenAddress,
				Dex:          domain.DexBlum,
				BaseSide:     domain.BaseSideUnknown,
				Telegram:     w.Telegram,
				CreatedAt:    w.CreatedAt,
			},
			WatchID: w.ID,
		})
	}
	return out, nil
}

// Fetch lists the jetton master's latest transactions.
func (f *BlumFetcher) Fetch(ctx context.Context, t Target) (Batch, error) {
	recs, err := f.txs.AccountTransactions(ctx, t.Pair.TokenAddress, f.limit)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Records: recs, Decimals: f.decimals.Decimals(ctx, t.Pair.TokenAddress)}, nil
}

func pairTargets(registry *state.Registry, dex domain.DexKind) []Target {
	pairs := registry.Pairs(dex)
	out := make([]Target, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Target{Pair: p})
	}
	return out
}
