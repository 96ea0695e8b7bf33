// Package main fetches the recent activity of one pool (or pre-listing token)
// and prints the buys the normalizer extracts from it. Nothing is dispatched
// and no state is written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/logging"
	"tonbuy-alerts/internal/normalize"
	"tonbuy-alerts/internal/upstream"
)

func main() {
	source := flag.String("source", "dedust", "Source: ston-export, ston-pool, dedust or blum")
	pool := flag.String("pool", "", "Pool address (token address for blum)")
	token := flag.String("token", "", "Jetton master address of the tracked token")
	symbol := flag.String("symbol", "TOKEN", "Token symbol")
	side := flag.Int("base-side", -1, "TON leg of a STON.fi pool (0 or 1); -1 resolves it via DexScreener")
	limit := flag.Int("limit", 25, "Records to fetch")
	blocks := flag.Uint64("blocks", 50, "Export blocks to scan back from the tip")
	strict := flag.String("strictness", "strict", "strict or lenient")
	tonapiKey := flag.String("tonapi-key", os.Getenv("TONAPI_KEY"), "TonAPI key")
	logLevel := flag.String("log-level", "warn", "Log level")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	logger, err := logging.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *pool == "" && *source != string(domain.SourceBlum) {
		fmt.Fprintln(os.Stderr, "--pool is required")
		os.Exit(2)
	}
	if *source == string(domain.SourceBlum) && *pool == "" {
		*pool = *token
	}
	strictness, err := normalize.ParseStrictness(*strict)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	p := probe{
		pair: &domain.TrackedPair{
			ID:           *pool,
			Symbol:       strings.ToUpper(*symbol),
			TokenAddress: *token,
			Dex:          dexFor(domain.SourceKind(*source)),
		},
		source:     domain.SourceKind(*source),
		strictness: strictness,
		limit:      *limit,
		blocks:     *blocks,
		tonapiKey:  *tonapiKey,
		logger:     logger,
	}
	switch *side {
	case 0:
		p.pair.BaseSide = domain.BaseSide0
	case 1:
		p.pair.BaseSide = domain.BaseSide1
	}

	events, fetched, err := p.run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	report(events, fetched)
}

func dexFor(s domain.SourceKind) domain.DexKind {
	switch s {
	case domain.SourceDeDust:
		return domain.DexDeDust
	case domain.SourceBlum:
		return domain.DexBlum
	}
	return domain.DexStonFi
}

type probe struct {
	pair       *domain.TrackedPair
	source     domain.SourceKind
	strictness normalize.Strictness
	limit      int
	blocks     uint64
	tonapiKey  string
	logger     *zap.Logger
}

func (p *probe) client(name, base string) *upstream.Client {
	return upstream.NewClient(name, base, upstream.WithLogger(p.logger), upstream.WithMaxRetries(1))
}

func (p *probe) run(ctx context.Context) ([]domain.BuyEvent, int, error) {
	tonapi := upstream.NewTonAPI(p.client("tonapi", "https://tonapi.io"), p.tonapiKey)
	dex := upstream.NewDexScreener(p.client("dexscreener", "https://api.dexscreener.com"))

	var (
		records   []normalize.Record
		extractor normalize.Extractor
		decimals  int
		err       error
	)
	switch p.source {
	case domain.SourceStonExport:
		extractor = normalize.StonExport
		records, err = p.exportRecords(ctx, dex)
	case domain.SourceStonPool:
		extractor = normalize.TonAPITx
		records, err = tonapi.AccountTransactions(ctx, p.pair.ID, p.limit)
	case domain.SourceDeDust:
		extractor = normalize.DeDustTrade
		records, err = upstream.NewDeDust(p.client("dedust", "https://api.dedust.io")).PoolTrades(ctx, p.pair.ID, p.limit)
	case domain.SourceBlum:
		extractor = normalize.BlumTx
		records, err = tonapi.AccountTransactions(ctx, p.pair.TokenAddress, p.limit)
	default:
		return nil, 0, fmt.Errorf("unknown source %q", p.source)
	}
	if err != nil {
		return nil, 0, err
	}
	if p.pair.TokenAddress != "" && p.source != domain.SourceStonExport {
		decimals = tonapi.Decimals(ctx, p.pair.TokenAddress)
	}

	nctx := &normalize.Context{
		Pair:       p.pair,
		Source:     p.source,
		Decimals:   decimals,
		Strictness: p.strictness,
		Now:        time.Now(),
	}
	var events []domain.BuyEvent
	for _, rec := range records {
		events = append(events, extractor.Normalize(rec, nctx)...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, len(records), nil
}

func (p *probe) exportRecords(ctx context.Context, dex *upstream.DexScreener) ([]normalize.Record, error) {
	if !p.pair.BaseSide.IsKnown() {
		info, err := dex.Pair(ctx, p.pair.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve base side: %w", err)
		}
		if info == nil || !info.TONSide().IsKnown() {
			return nil, fmt.Errorf("pair %s has no TON leg on DexScreener", p.pair.ID)
		}
		p.pair.BaseSide = info.TONSide()
	}

	api := upstream.NewStonExport(p.client("ston-export", "https://api.ston.fi/export/dexscreener/v1"))
	tip, err := api.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(1)
	if tip > p.blocks {
		from = tip - p.blocks + 1
	}
	all, err := api.Events(ctx, from, tip)
	if err != nil {
		return nil, err
	}
	var out []normalize.Record
	for _, rec := range all {
		if normalize.SameAddress(normalize.StonExportPairID(rec), p.pair.ID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func report(events []domain.BuyEvent, fetched int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tLEG\tTON\tTOKEN\tBUYER\tTX")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Leg, e.BaseAmount.StringFixed(4), e.TokenAmount.StringFixed(4), e.Buyer, normalize.TxURL(e.TxHash, ""))
	}
	_ = w.Flush()
	fmt.Printf("\n%d records fetched, %d buys\n", fetched, len(events))
}
