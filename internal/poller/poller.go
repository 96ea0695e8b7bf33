package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/normalize"
	"tonbuy-alerts/internal/observability"
)

// Fetcher supplies the targets of one source and fetches their batches.
type Fetcher interface {
	Source() domain.SourceKind
	Extractor() normalize.Extractor
	Targets(ctx context.Context) ([]Target, error)
	Fetch(ctx context.Context, t Target) (Batch, error)
}

// CyclePreparer is implemented by fetchers that load a shared window once
// per cycle before targets are fetched.
type CyclePreparer interface {
	Prepare(ctx context.Context) error
}

// CycleFinisher is implemented by fetchers that commit shared state after
// every target of a cycle was processed.
type CycleFinisher interface {
	Finish(ctx context.Context) error
}

// Options configures a Poller.
type Options struct {
	Fetcher     Fetcher
	Pipeline    *Pipeline
	Interval    time.Duration
	Concurrency int
	Logger      *zap.Logger
}

// Poller runs one source's poll loop with a bounded per-target fan-out.
type Poller struct {
	fetcher     Fetcher
	pipeline    *Pipeline
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	wake        chan struct{}
}

// New creates a poller.
func New(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:     opts.Fetcher,
		pipeline:    opts.Pipeline,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.Named("poller").With(zap.String("source", string(opts.Fetcher.Source()))),
		wake:        make(chan struct{}, 1),
	}
}

// Source returns the polled source kind.
func (p *Poller) Source() domain.SourceKind {
	return p.fetcher.Source()
}

// Wake requests an immediate cycle. It never blocks; wakes coalesce.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Cycle failures are logged and retried on
// the next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		zap.Duration("interval", p.interval),
		zap.Int("concurrency", p.concurrency))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return nil
		case <-timer.C:
		case <-p.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := p.Cycle(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll cycle failed", zap.Error(err))
		}
		timer.Reset(p.interval)
	}
}

// Cycle runs one pass over every target. Per-target failures and panics are
// isolated; the returned error covers only the shared steps.
func (p *Poller) Cycle(ctx context.Context) (err error) {
	start := time.Now()
	source := string(p.fetcher.Source())
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordPollCycle(source, status, time.Since(start).Seconds(), time.Now().Unix())
	}()

	if prep, ok := p.fetcher.(CyclePreparer); ok {
		if err := prep.Prepare(ctx); err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}

	targets, err := p.fetcher.Targets(ctx)
	if err != nil {
		return fmt.Errorf("targets: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			p.runTarget(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if fin, ok := p.fetcher.(CycleFinisher); ok {
		if err := fin.Finish(ctx); err != nil {
			errs = append(errs, fmt.Errorf("finish: %w", err))
		}
	}
	if err := p.pipeline.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	return errors.Join(errs...)
}

func (p *Poller) runTarget(ctx context.Context, t Target) {
	source := string(p.fetcher.Source())
	defer func() {
		if r := recover(); r != nil {
			observability.RecordTargetFailure(source)
			p.logger.Error("target panicked",
				zap.String("target", t.Pair.ID),
				zap.Any("panic", r))
		}
	}()

	batch, err := p.fetcher.Fetch(ctx, t)
	if err != nil {
		if ctx.Err() == nil {
			observability.RecordTargetFailure(source)
			p.logger.Debug("fetch failed", zap.String("target", t.Pair.ID), zap.Error(err))
		}
		return
	}
	observability.RecordFetched(source, len(batch.Records))

	res, err := p.pipeline.Process(ctx, p.fetcher.Source(), p.fetcher.Extractor(), t, batch)
	if err != nil {
		if ctx.Err() == nil {
			observability.RecordTargetFailure(source)
			p.logger.Warn("process failed", zap.String("target", t.Pair.ID), zap.Error(err))
		}
		return
	}
	if res.Dispatched > 0 {
		p.logger.Debug("buys dispatched",
			zap.String("target", t.Pair.ID),
			zap.Int("dispatched", res.Dispatched),
			zap.Int("duplicates", res.Duplicates),
			zap.Uint64("cursor", res.Cursor))
	}
}
