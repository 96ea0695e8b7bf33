// Package main runs the buy alert service: the source pollers, the dispatch
// sink, background refresh loops and the operator HTTP interface, all under
// one supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/activation"
	"tonbuy-alerts/internal/admin"
	"tonbuy-alerts/internal/config"
	"tonbuy-alerts/internal/dispatch"
	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/holders"
	"tonbuy-alerts/internal/logging"
	"tonbuy-alerts/internal/normalize"
	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/poller"
	"tonbuy-alerts/internal/pricecache"
	"tonbuy-alerts/internal/ranking"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage"
	chstore "tonbuy-alerts/internal/storage/clickhouse"
	"tonbuy-alerts/internal/storage/file"
	"tonbuy-alerts/internal/storage/memory"
	"tonbuy-alerts/internal/storage/migrations"
	pgstore "tonbuy-alerts/internal/storage/postgres"
	redisstore "tonbuy-alerts/internal/storage/redis"
	"tonbuy-alerts/internal/upstream"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// stores holds the selected persistence backends.
type stores struct {
	documents storage.DocumentStore
	seen      storage.SeenCache
	events    storage.BuyEventStore
}

// createStores picks PostgreSQL, Redis and ClickHouse when configured and
// falls back to the file and memory backends otherwise.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	s := &stores{}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.ApplyPostgres(ctx, pool); err != nil {
			return nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		s.documents = pgstore.NewDocumentStore(pool)
		logger.Info("state backend: postgres")
	} else {
		docs, err := file.NewDocumentStore(cfg.DataDir)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open data dir: %w", err)
		}
		s.documents = docs
		logger.Info("state backend: files", zap.String("dir", cfg.DataDir))
	}

	if cfg.RedisURL != "" {
		seen, err := redisstore.NewSeenCache(ctx, cfg.RedisURL, cfg.SeenTTL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { _ = seen.Close() })
		s.seen = seen
	} else {
		s.seen = memory.NewSeenCache(cfg.SeenTTL)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.OpenClickhouse(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		s.events = chstore.NewBuyEventStore(conn)
	} else {
		s.events = memory.NewBuyEventStore()
	}
	return s, cleanup, nil
}

// upstreams holds the adapters over every external API.
type upstreams struct {
	export      *upstream.StonExport
	tonapi      *upstream.TonAPI
	dedust      *upstream.DeDust
	dexscreener *upstream.DexScreener
	price       *upstream.PriceFeed
}

func newUpstreams(cfg *config.Config, logger *zap.Logger) *upstreams {
	opts := []upstream.ClientOption{
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithRateLimit(cfg.UpstreamRPS),
		upstream.WithHeader("User-Agent", "tonbuy-alerts/1.0"),
		upstream.WithLogger(logger),
	}
	return &upstreams{
		export:      upstream.NewStonExport(upstream.NewClient("ston-export", cfg.StonExportBase, opts...)),
		tonapi:      upstream.NewTonAPI(upstream.NewClient("tonapi", cfg.TonAPIBase, opts...), cfg.TonAPIKey),
		dedust:      upstream.NewDeDust(upstream.NewClient("dedust", cfg.DeDustBase, opts...)),
		dexscreener: upstream.NewDexScreener(upstream.NewClient("dexscreener", cfg.DexScreenerBase, opts...)),
		price:       upstream.NewPriceFeed(upstream.NewClient("coingecko", cfg.PriceURL, opts...)),
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, cleanup, err := createStores(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	registry := state.NewRegistry(st.documents, logger)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	cursors := state.NewCursors(st.documents, logger)
	if err := cursors.Load(ctx); err != nil {
		return fmt.Errorf("load cursors: %w", err)
	}

	up := newUpstreams(cfg, logger)

	sink, err := dispatch.NewTelegram(cfg.BotToken, dispatch.TelegramOptions{
		MasterChat:   cfg.MasterChat,
		GroupMirrors: cfg.GroupMirrors,
		AdminChat:    cfg.AdminChat,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	prices := pricecache.New(pricecache.Options{
		Feed:     up.price,
		Interval: cfg.PriceInterval,
		MaxAge:   10 * cfg.PriceInterval,
		Logger:   logger,
	})
	ranks := ranking.NewRanks(ranking.RanksOptions{
		Pairs:  registry,
		Stats:  up.dexscreener,
		TTL:    cfg.RankTTL,
		Logger: logger,
	})
	leaderboard := ranking.NewLeaderboard(ranking.LeaderboardOptions{
		Store:           registry,
		Stats:           up.dexscreener,
		Socials:         up.dexscreener,
		Publisher:       sink,
		Ranks:           ranks,
		MinLiquidityUSD: cfg.LeaderboardMinLiquidityUSD,
		MinMarketCapUSD: cfg.LeaderboardMinMarketCapUSD,
		TopN:            cfg.LeaderboardTopN,
		Handle:          channelHandle(cfg.MasterChat),
		Interval:        cfg.LeaderboardInterval,
		Logger:          logger,
	})

	var holderCounts dispatch.HolderCounts
	if cfg.HoldersEnabled {
		holderCounts = up.tonapi
	}
	dispatcher := dispatch.New(dispatch.Options{
		Sink:          sink,
		Stats:         up.dexscreener,
		Holders:       holderCounts,
		Ranks:         ranks,
		Prices:        prices,
		Events:        st.events,
		Links:         dispatch.Links{Trending: cfg.TrendingURL, Listing: cfg.ListingURL},
		EnrichTimeout: cfg.EnrichTimeout,
		Logger:        logger,
	})
	defer dispatcher.Wait()

	strictness, err := normalize.ParseStrictness(cfg.Strictness)
	if err != nil {
		return err
	}
	pipeline := poller.NewPipeline(poller.PipelineOptions{
		Cursors:    cursors,
		Registry:   registry,
		Seen:       st.seen,
		Holders:    holders.NewTracker(registry, logger),
		Dispatcher: dispatcher,
		Prices:     prices,
		MinBuyTON:  cfg.MinBuyTON,
		MinBuyUSD:  cfg.MinBuyUSD,
		Strictness: strictness,
		Logger:     logger,
	})

	var stonPoller *poller.Poller
	if cfg.UsePoolPoller() {
		stonPoller = poller.New(poller.Options{
			Fetcher:     poller.NewStonPoolFetcher(up.tonapi, up.tonapi, registry, cfg.StonPoolLimit),
			Pipeline:    pipeline,
			Interval:    cfg.StonPoolInterval,
			Concurrency: cfg.StonConcurrency,
			Logger:      logger,
		})
	} else {
		stonPoller = poller.New(poller.Options{
			Fetcher:     poller.NewStonExportFetcher(up.export, up.dexscreener, registry, cursors, cfg.StonExportMaxRange, logger),
			Pipeline:    pipeline,
			Interval:    cfg.StonExportInterval,
			Concurrency: cfg.StonConcurrency,
			Logger:      logger,
		})
	}
	var dedustDecimals poller.DecimalsSource
	if up.tonapi.HasKey() {
		dedustDecimals = up.tonapi
	}
	dedustPoller := poller.New(poller.Options{
		Fetcher:     poller.NewDeDustFetcher(up.dedust, dedustDecimals, registry, cfg.DeDustLimit),
		Pipeline:    pipeline,
		Interval:    cfg.DeDustInterval,
		Concurrency: cfg.DeDustConcurrency,
		Logger:      logger,
	})
	blumPoller := poller.New(poller.Options{
		Fetcher:     poller.NewBlumFetcher(up.tonapi, up.tonapi, registry, cfg.BlumLimit),
		Pipeline:    pipeline,
		Interval:    cfg.BlumInterval,
		Concurrency: cfg.BlumConcurrency,
		Logger:      logger,
	})

	activator := activation.New(activation.Options{
		Store:    registry,
		Finder:   up.dexscreener,
		Notifier: dispatcher,
		Interval: cfg.ActivationInterval,
		Logger:   logger,
	})

	adminServer := admin.New(admin.Options{
		Registry:    registry,
		Events:      st.events,
		Leaderboard: leaderboard,
		Prices:      prices,
		OnPairsChanged: func() {
			stonPoller.Wake()
			dedustPoller.Wake()
			blumPoller.Wake()
		},
		Token:  cfg.AdminToken,
		Addr:   cfg.HTTPAddr,
		Logger: logger,
	})

	services := []poller.Service{
		{Name: string(stonPoller.Source()), Run: stonPoller.Run},
		{Name: string(dedustPoller.Source()), Run: dedustPoller.Run},
		{Name: string(blumPoller.Source()), Run: blumPoller.Run},
		{Name: "price", Run: prices.Run},
		{Name: "ranks", Run: ranks.Run},
		{Name: "leaderboard", Run: leaderboard.Run},
		{Name: "activation", Run: activator.Run},
		{Name: "seen-sweep", Run: sweepLoop(st, cfg.SeenSweepInterval, logger)},
	}
	if cfg.StreamEnabled && cfg.UsePoolPoller() {
		stream, err := upstream.NewStream(cfg.TonAPIStreamURL, cfg.TonAPIKey, nil, logger)
		if err != nil {
			return err
		}
		services = append(services, poller.Service{
			Name: "stream",
			Run: func(ctx context.Context) error {
				err := stream.Run(ctx,
					func() []string { return pairIDs(registry, domain.DexStonFi) },
					func(upstream.TxNotification) { stonPoller.Wake() },
				)
				if ctx.Err() != nil {
					return nil
				}
				return err
			},
		})
	}

	httpErr := make(chan error, 1)
	go func() { httpErr <- adminServer.Run(ctx) }()

	logger.Info("service starting",
		zap.Int("services", len(services)),
		zap.Bool("pool_poller", cfg.UsePoolPoller()),
		zap.String("http_addr", cfg.HTTPAddr),
	)
	supervisor := poller.NewSupervisor(services, poller.SupervisorOptions{
		Backoff:    cfg.RestartBackoff,
		MaxBackoff: cfg.MaxRestartBackoff,
		Logger:     logger,
	})
	runErr := supervisor.Run(ctx)

	if err := <-httpErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("admin server stopped", zap.Error(err))
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if err := pipeline.Flush(flushCtx); err != nil {
		logger.Warn("final state flush failed", zap.Error(err))
	}
	return runErr
}

// sweepLoop evicts expired seen-cache entries and reports the cache size.
func sweepLoop(st *stores, interval time.Duration, logger *zap.Logger) func(context.Context) error {
	if interval <= 0 {
		interval = time.Minute
	}
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			n, err := st.seen.Sweep(ctx)
			if err != nil {
				logger.Warn("seen cache sweep failed", zap.Error(err))
				continue
			}
			observability.UpdateSeenCacheSize(n)
		}
	}
}

// channelHandle returns chat when it is a public @username.
func channelHandle(chat string) string {
	if strings.HasPrefix(chat, "@") {
		return chat
	}
	return ""
}

func pairIDs(registry *state.Registry, dex domain.DexKind) []string {
	pairs := registry.Pairs(dex)
	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.ID)
	}
	return ids
}
