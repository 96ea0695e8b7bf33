package ranking

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/upstream"
)

const (
	// DefaultLeaderboardInterval is the publish period.
	DefaultLeaderboardInterval = 60 * time.Second
	// DefaultTopN is the leaderboard length.
	DefaultTopN = 10

	separatorAfter = 3
	separator      = "------------------------------"
)

var rankIcons = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

// ErrNoLeaderboardMessage is returned by Update before a leaderboard message exists.
var ErrNoLeaderboardMessage = errors.New("no leaderboard message configured")

// Publisher edits or posts the leaderboard message.
type Publisher interface {
	Publish(ctx context.Context, chatID int64, msgID int, text string) (int64, int, error)
}

// BoardStore is the registry surface used by the leaderboard.
type BoardStore interface {
	PairSource
	SetPairTelegram(id, link string) error
	LeaderboardMessage() (string, int)
	SetLeaderboardMessage(chat string, msgID int)
	Flush(ctx context.Context) error
}

// TelegramLookup finds a token's community link.
type TelegramLookup interface {
	TelegramURL(ctx context.Context, token string) (string, error)
}

// Entry is one leaderboard row.
type Entry struct {
	PairID       string
	Symbol       string
	TokenAddress string
	Change       float64 // percent
	LiquidityUSD *float64
	MarketCapUSD *float64
	Telegram     string
}

// LeaderboardOptions configures a Leaderboard.
type LeaderboardOptions struct {
	Store           BoardStore
	Stats           PairStats
	Socials         TelegramLookup // optional
	Publisher       Publisher
	Ranks           *Ranks // optional; refreshed from the same pair data
	MinLiquidityUSD float64
	MinMarketCapUSD float64
	TopN            int
	Handle          string // channel handle shown under the title
	Interval        time.Duration
	Logger          *zap.Logger
}

// Leaderboard publishes the top movers among tracked pairs.
type Leaderboard struct {
	store     BoardStore
	stats     PairStats
	socials   TelegramLookup
	publisher Publisher
	ranks     *Ranks
	minLiq    float64
	minMC     float64
	topN      int
	handle    string
	interval  time.Duration
	logger    *zap.Logger
}

// NewLeaderboard creates a leaderboard publisher.
func NewLeaderboard(opts LeaderboardOptions) *Leaderboard {
	l := &Leaderboard{
		store:     opts.Store,
		stats:     opts.Stats,
		socials:   opts.Socials,
		publisher: opts.Publisher,
		ranks:     opts.Ranks,
		minLiq:    opts.MinLiquidityUSD,
		minMC:     opts.MinMarketCapUSD,
		topN:      opts.TopN,
		handle:    opts.Handle,
		interval:  opts.Interval,
		logger:    opts.Logger,
	}
	if l.topN <= 0 || l.topN > len(rankIcons) {
		l.topN = DefaultTopN
	}
	if l.interval <= 0 {
		l.interval = DefaultLeaderboardInterval
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("leaderboard")
	return l
}

// Collect gathers the ranked entries for the current tracked pairs.
func (l *Leaderboard) Collect(ctx context.Context) ([]Entry, error) {
	pairs := l.store.Pairs("")
	infos := make(map[string]*upstream.PairInfo, len(pairs))
	var items []Entry

	for _, p := range pairs {
		if p.Dex == domain.DexBlum {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tg := l.ensureTelegram(ctx, p)

		info, err := l.stats.Pair(ctx, p.ID)
		if err != nil {
			l.logger.Debug("pair stats failed", zap.String("pair", p.ID), zap.Error(err))
			continue
		}
		if info == nil {
			continue
		}
		infos[p.ID] = info

		ch, ok := info.PriceChange["h6"]
		if !ok {
			ch, ok = info.PriceChange["h1"]
		}
		if !ok {
			continue
		}
		if info.LiquidityUSD != nil && *info.LiquidityUSD < l.minLiq {
			continue
		}
		if info.MarketCapUSD != nil && *info.MarketCapUSD < l.minMC {
			continue
		}
		items = append(items, Entry{
			PairID:       p.ID,
			Symbol:       strings.ToUpper(strings.TrimSpace(p.Symbol)),
			TokenAddress: p.TokenAddress,
			Change:       ch,
			LiquidityUSD: info.LiquidityUSD,
			MarketCapUSD: info.MarketCapUSD,
			Telegram:     tg,
		})
	}

	if l.ranks != nil {
		l.ranks.apply(pairs, infos)
	}
	return Top(items, l.topN), nil
}

// ensureTelegram fills a missing community link from DexScreener socials.
func (l *Leaderboard) ensureTelegram(ctx context.Context, p *domain.TrackedPair) string {
	if p.Telegram != "" || p.TokenAddress == "" || l.socials == nil {
		return p.Telegram
	}
	link, err := l.socials.TelegramURL(ctx, p.TokenAddress)
	if err != nil || link == "" {
		return ""
	}
	if err := l.store.SetPairTelegram(p.ID, link); err != nil {
		l.logger.Debug("store telegram link failed", zap.String("pair", p.ID), zap.Error(err))
	}
	return link
}

// Top dedups entries by token, keeping the most liquid pair, and returns the
// n largest absolute movers.
func Top(items []Entry, n int) []Entry {
	best := make(map[string]Entry)
	var keys []string
	for _, it := range items {
		key := it.TokenAddress
		if key == "" {
			key = "pair:" + it.PairID
		}
		cur, ok := best[key]
		if !ok {
			keys = append(keys, key)
			best[key] = it
			continue
		}
		if preferred(it, cur) {
			best[key] = it
		}
	}

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Change) > math.Abs(out[j].Change)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// preferred orders duplicates by liquidity, then market cap, then move size.
func preferred(a, b Entry) bool {
	if la, lb := val(a.LiquidityUSD), val(b.LiquidityUSD); la != lb {
		return la > lb
	}
	if ma, mb := val(a.MarketCapUSD), val(b.MarketCapUSD); ma != mb {
		return ma > mb
	}
	return math.Abs(a.Change) > math.Abs(b.Change)
}

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Render formats the leaderboard message.
func (l *Leaderboard) Render(entries []Entry) string {
	var b strings.Builder
	b.WriteString("TON TRENDING\n")
	if l.handle != "" {
		b.WriteString("🟢 " + html.EscapeString(l.handle) + "\n")
	}
	b.WriteString("\n")

	if len(entries) == 0 {
		b.WriteString("(No data yet)")
		return b.String()
	}
	for i, e := range entries {
		fmt.Fprintf(&b, "%s - %s | %s\n", rankIcons[i], symbolLink(e.Symbol, e.Telegram), pct(e.Change))
		if i == separatorAfter-1 {
			b.WriteString(separator + "\n")
		}
	}
	return b.String()
}

func symbolLink(sym, tg string) string {
	s := "$" + html.EscapeString(sym)
	if strings.HasPrefix(tg, "http") {
		return fmt.Sprintf("<a href='%s'>%s</a>", html.EscapeString(tg), s)
	}
	return s
}

func pct(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.0f%%", v)
	}
	return fmt.Sprintf("%.0f%%", v)
}

// Update re-renders the stored leaderboard message.
func (l *Leaderboard) Update(ctx context.Context) error {
	chat, msgID := l.store.LeaderboardMessage()
	if msgID == 0 {
		return ErrNoLeaderboardMessage
	}
	chatID, _ := strconv.ParseInt(chat, 10, 64)
	return l.publish(ctx, chatID, msgID)
}

// Create posts a new leaderboard message and stores its reference.
func (l *Leaderboard) Create(ctx context.Context) (string, int, error) {
	if err := l.publish(ctx, 0, 0); err != nil {
		return "", 0, err
	}
	chat, id := l.store.LeaderboardMessage()
	return chat, id, nil
}

func (l *Leaderboard) publish(ctx context.Context, chatID int64, msgID int) error {
	entries, err := l.Collect(ctx)
	if err != nil {
		return err
	}
	newChat, newID, err := l.publisher.Publish(ctx, chatID, msgID, l.Render(entries))
	if err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	if newChat != chatID || newID != msgID {
		l.store.SetLeaderboardMessage(strconv.FormatInt(newChat, 10), newID)
	}
	return l.store.Flush(ctx)
}

// Run updates the leaderboard every interval until ctx is done. Rounds before
// a leaderboard message is configured are skipped.
func (l *Leaderboard) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		err := l.Update(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNoLeaderboardMessage), ctx.Err() != nil:
		default:
			l.logger.Warn("leaderboard update failed", zap.Error(err))
		}
	}
}
