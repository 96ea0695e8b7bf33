// Package activation promotes watch entries to tracked pairs once DexScreener
// lists a TON pool for their token.
package activation

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/upstream"
)

// DefaultInterval is the scan period.
const DefaultInterval = 45 * time.Second

// searchOrder is the order exchanges are tried in.
var searchOrder = []domain.DexKind{domain.DexStonFi, domain.DexDeDust}

// PairFinder discovers the best TON pool of a token on one exchange.
type PairFinder interface {
	FindPair(ctx context.Context, token string, dex domain.DexKind) (*upstream.PairInfo, error)
}

// WatchStore is the registry surface used by the activator.
type WatchStore interface {
	Watches() []*domain.WatchEntry
	Promote(watchID string, p *domain.TrackedPair) (*domain.TrackedPair, error)
	Flush(ctx context.Context) error
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Options configures an Activator.
type Options struct {
	Store    WatchStore
	Finder   PairFinder
	Notifier Notifier // optional
	Interval time.Duration
	Logger   *zap.Logger
}

// Activator scans watch entries and promotes the listed ones.
type Activator struct {
	store    WatchStore
	finder   PairFinder
	notifier Notifier
	interval time.Duration
	logger   *zap.Logger
}

// New creates an activator.
func New(opts Options) *Activator {
	a := &Activator{
		store:    opts.Store,
		finder:   opts.Finder,
		notifier: opts.Notifier,
		interval: opts.Interval,
		logger:   opts.Logger,
	}
	if a.interval <= 0 {
		a.interval = DefaultInterval
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.Named("activation")
	return a
}

// Scan checks every watch entry with a token address once and returns the
// pairs it promoted. Lookup failures leave the entry for the next scan.
func (a *Activator) Scan(ctx context.Context) ([]*domain.TrackedPair, error) {
	var promoted []*domain.TrackedPair
	for _, w := range a.store.Watches() {
		if w.TokenAddress == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return promoted, err
		}

		info := a.discover(ctx, w)
		if info == nil {
			continue
		}

		pair, err := a.store.Promote(w.ID, pairFor(w, info))
		if err != nil {
			a.logger.Warn("promote failed", zap.String("watch", w.ID), zap.Error(err))
			continue
		}
		observability.RecordActivation()
		promoted = append(promoted, pair)
		a.logger.Info("watch entry activated",
			zap.String("watch", w.ID),
			zap.String("symbol", pair.Symbol),
			zap.String("pair", pair.ID),
			zap.String("dex", pair.Dex.String()),
		)
		a.notify(ctx, pair)
	}

	if len(promoted) > 0 {
		if err := a.store.Flush(ctx); err != nil {
			return promoted, fmt.Errorf("flush registry: %w", err)
		}
	}
	return promoted, nil
}

func (a *Activator) discover(ctx context.Context, w *domain.WatchEntry) *upstream.PairInfo {
	for _, dex := range searchOrder {
		info, err := a.finder.FindPair(ctx, w.TokenAddress, dex)
		if err != nil {
			a.logger.Debug("pair discovery failed",
				zap.String("token", w.TokenAddress), zap.String("dex", dex.String()), zap.Error(err))
			continue
		}
		if info != nil && info.PairAddress != "" {
			return info
		}
	}
	return nil
}

func pairFor(w *domain.WatchEntry, info *upstream.PairInfo) *domain.TrackedPair {
	symbol := strings.ToUpper(strings.TrimSpace(w.Symbol))
	if symbol == "" || symbol == "?" {
		if info.TONSide() == domain.BaseSide0 {
			symbol = info.QuoteSymbol
		} else {
			symbol = info.BaseSymbol
		}
	}
	telegram := w.Telegram
	if telegram == "" {
		telegram = info.Telegram
	}
	return &domain.TrackedPair{
		ID:           info.PairAddress,
		Symbol:       symbol,
		TokenAddress: w.TokenAddress,
		Dex:          domain.ParseDexKind(info.DexID),
		BaseSide:     info.TONSide(),
		Label:        domain.DexLabel(info.DexID),
		Telegram:     telegram,
	}
}

func (a *Activator) notify(ctx context.Context, p *domain.TrackedPair) {
	if a.notifier == nil {
		return
	}
	text := fmt.Sprintf("✅ <b>%s</b> is live on %s\nPair: <code>%s</code>\nAlerts enabled.",
		html.EscapeString(p.Symbol), html.EscapeString(p.DisplayLabel()), html.EscapeString(p.ID))
	if err := a.notifier.Notify(ctx, text); err != nil {
		a.logger.Warn("activation notice failed", zap.String("pair", p.ID), zap.Error(err))
	}
}

// Run scans every interval until ctx is done.
func (a *Activator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		if _, err := a.Scan(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("activation scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
