// Package config assembles the service configuration from .env, environment
// variables and command-line flags (flags win, env supplies the defaults).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Strictness values for multi-hop swap attribution.
const (
	StrictnessStrict  = "strict"
	StrictnessLenient = "lenient"
)

// Config holds all externally supplied settings.
type Config struct {
	// Telegram
	BotToken     string
	MasterChat   string
	GroupMirrors []string
	AdminChat    string
	TrendingURL  string
	ListingURL   string

	// Upstreams
	TonAPIBase      string
	TonAPIKey       string
	TonAPIStreamURL string
	StreamEnabled   bool
	StonExportBase  string
	DeDustBase      string
	DexScreenerBase string
	PriceURL        string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64

	// Poll intervals
	StonExportInterval  time.Duration
	StonPoolInterval    time.Duration
	DeDustInterval      time.Duration
	BlumInterval        time.Duration
	ActivationInterval  time.Duration
	LeaderboardInterval time.Duration
	PriceInterval       time.Duration
	RankTTL             time.Duration

	// Fan-out limits
	StonConcurrency   int
	DeDustConcurrency int
	BlumConcurrency   int

	// Fetch window sizes
	StonPoolLimit      int
	DeDustLimit        int
	BlumLimit          int
	StonExportMaxRange uint64

	// Dedup
	SeenTTL           time.Duration
	SeenSweepInterval time.Duration

	// Filters
	MinBuyTON  float64
	MinBuyUSD  float64
	Strictness string

	// Enrichment
	EnrichTimeout  time.Duration
	HoldersEnabled bool

	// Leaderboard
	LeaderboardMinLiquidityUSD float64
	LeaderboardMinMarketCapUSD float64
	LeaderboardTopN            int

	// Storage
	DataDir       string
	PostgresDSN   string
	ClickhouseDSN string
	RedisURL      string

	// Service
	HTTPAddr          string
	AdminToken        string
	LogLevel          string
	LogFormat         string
	RestartBackoff    time.Duration
	MaxRestartBackoff time.Duration
}

// Load reads .env (if present), then parses args with env-backed defaults.
func Load(args []string) (*Config, error) {
	// Missing .env is fine; existing env vars are never overridden.
	_ = godotenv.Load()

	cfg := &Config{}
	fs := flag.NewFlagSet("tonbuy-alerts", flag.ContinueOnError)

	fs.StringVar(&cfg.BotToken, "bot-token", envString("BOT_TOKEN", ""), "Telegram bot token")
	fs.StringVar(&cfg.MasterChat, "master-chat", envString("MASTER_CHAT", ""), "Alert channel (@username or numeric id)")
	mirrors := fs.String("group-mirrors", envString("GROUP_MIRRORS", ""), "Comma-separated chat ids mirroring every alert")
	fs.StringVar(&cfg.AdminChat, "admin-chat", envString("ADMIN_CHAT", ""), "Operator notification chat")
	fs.StringVar(&cfg.TrendingURL, "trending-url", envString("TRENDING_URL", ""), "Trending channel link shown in alerts")
	fs.StringVar(&cfg.ListingURL, "listing-url", envString("LISTING_URL", ""), "Listing link shown in alerts")

	fs.StringVar(&cfg.TonAPIBase, "tonapi-base", envString("TONAPI_BASE", "https://tonapi.io"), "TonAPI base URL")
	fs.StringVar(&cfg.TonAPIKey, "tonapi-key", envString("TONAPI_KEY", ""), "TonAPI key; enables the pool poller")
	fs.StringVar(&cfg.TonAPIStreamURL, "tonapi-stream-url", envString("TONAPI_STREAM_URL", "wss://tonapi.io/v2/websocket"), "TonAPI websocket endpoint")
	fs.BoolVar(&cfg.StreamEnabled, "stream", envBool("TONAPI_STREAM", false), "Wake the pool poller from TonAPI streaming notifications")
	fs.StringVar(&cfg.StonExportBase, "ston-export-base", envString("STON_EXPORT_BASE", "https://api.ston.fi/export/dexscreener/v1"), "STON.fi export feed base URL")
	fs.StringVar(&cfg.DeDustBase, "dedust-base", envString("DEDUST_API_BASE", "https://api.dedust.io"), "DeDust API base URL")
	fs.StringVar(&cfg.DexScreenerBase, "dexscreener-base", envString("DEXSCREENER_BASE", "https://api.dexscreener.com"), "DexScreener API base URL")
	fs.StringVar(&cfg.PriceURL, "price-url", envString("TON_PRICE_API", "https://api.coingecko.com/api/v3/simple/price?ids=the-open-network&vs_currencies=usd"), "TON/USD price endpoint")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", envDuration("UPSTREAM_TIMEOUT", 10*time.Second), "Per-call upstream timeout")
	fs.Float64Var(&cfg.UpstreamRPS, "upstream-rps", envFloat("UPSTREAM_RPS", 10), "Per-upstream request rate limit")

	fs.DurationVar(&cfg.StonExportInterval, "ston-export-interval", envDuration("STON_POLL_INTERVAL", 2*time.Second), "STON export poll interval")
	fs.DurationVar(&cfg.StonPoolInterval, "ston-pool-interval", envDuration("STON_POOL_INTERVAL", 2*time.Second), "STON pool poll interval")
	fs.DurationVar(&cfg.DeDustInterval, "dedust-interval", envDuration("DEDUST_POLL_INTERVAL", 3*time.Second), "DeDust poll interval")
	fs.DurationVar(&cfg.BlumInterval, "blum-interval", envDuration("BLUM_POLL_INTERVAL", 14*time.Second), "Blum early-mode poll interval")
	fs.DurationVar(&cfg.ActivationInterval, "activation-interval", envDuration("ACTIVATION_INTERVAL", 45*time.Second), "Watch activation scan interval")
	fs.DurationVar(&cfg.LeaderboardInterval, "leaderboard-interval", envDuration("LB_UPDATE_INTERVAL", 60*time.Second), "Leaderboard refresh interval")
	fs.DurationVar(&cfg.PriceInterval, "price-interval", envDuration("TON_PRICE_INTERVAL", 60*time.Second), "TON price refresh interval")
	fs.DurationVar(&cfg.RankTTL, "rank-ttl", envDuration("AUTO_RANK_INTERVAL", 30*time.Second), "Auto rank cache TTL")

	fs.IntVar(&cfg.StonConcurrency, "ston-concurrency", envInt("STON_CONCURRENCY", 16), "Concurrent STON pool fetches")
	fs.IntVar(&cfg.DeDustConcurrency, "dedust-concurrency", envInt("DEDUST_CONCURRENCY", 16), "Concurrent DeDust pool fetches")
	fs.IntVar(&cfg.BlumConcurrency, "blum-concurrency", envInt("BLUM_CONCURRENCY", 4), "Concurrent Blum token fetches")

	fs.IntVar(&cfg.StonPoolLimit, "ston-pool-limit", envInt("STON_POOL_LIMIT", 25), "Transactions fetched per STON pool")
	fs.IntVar(&cfg.DeDustLimit, "dedust-limit", envInt("DEDUST_POLL_LIMIT", 50), "Trades fetched per DeDust pool")
	fs.IntVar(&cfg.BlumLimit, "blum-limit", envInt("BLUM_POLL_LIMIT", 12), "Transactions fetched per Blum token")
	maxRange := fs.Int("ston-export-max-range", envInt("STON_EXPORT_MAX_RANGE", 50), "Max blocks per STON export request")

	fs.DurationVar(&cfg.SeenTTL, "seen-ttl", envDuration("SEEN_TTL", time.Hour), "Seen-transaction cache TTL")
	fs.DurationVar(&cfg.SeenSweepInterval, "seen-sweep-interval", envDuration("SEEN_SWEEP_INTERVAL", time.Minute), "Seen cache sweep interval")

	fs.Float64Var(&cfg.MinBuyTON, "min-buy-ton", envFloat("MIN_BUY_TON", 0), "Minimum TON spent to alert")
	fs.Float64Var(&cfg.MinBuyUSD, "min-buy-usd", envFloat("MIN_USD_BUY", 0), "Minimum USD value to alert (needs a cached TON price)")
	fs.StringVar(&cfg.Strictness, "strictness", envString("STRICTNESS", StrictnessStrict), "Multi-hop swap attribution: strict or lenient")

	fs.DurationVar(&cfg.EnrichTimeout, "enrich-timeout", envDuration("FAST_STATS_TIMEOUT", 3*time.Second), "Timeout of the post-dispatch enrichment task")
	fs.BoolVar(&cfg.HoldersEnabled, "holders", envBool("FAST_HOLDERS_ENABLED", false), "Fetch holders count during enrichment")

	fs.Float64Var(&cfg.LeaderboardMinLiquidityUSD, "lb-min-liq", envFloat("LB_MIN_LIQ_USD", 0), "Leaderboard minimum liquidity")
	fs.Float64Var(&cfg.LeaderboardMinMarketCapUSD, "lb-min-mc", envFloat("LB_MIN_MC_USD", 0), "Leaderboard minimum market cap")
	fs.IntVar(&cfg.LeaderboardTopN, "lb-top", envInt("LB_TOP_N", 10), "Leaderboard size")

	fs.StringVar(&cfg.DataDir, "data-dir", envString("DATA_DIR", "data"), "Directory for file-backed state")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", envString("POSTGRES_DSN", ""), "PostgreSQL DSN; replaces file-backed state")
	fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", envString("CLICKHOUSE_DSN", ""), "ClickHouse DSN for the buy event log")
	fs.StringVar(&cfg.RedisURL, "redis-url", envString("REDIS_URL", ""), "Redis URL for the shared seen cache")

	fs.StringVar(&cfg.HTTPAddr, "http-addr", envString("HTTP_ADDR", ":8080"), "Admin/health/metrics HTTP address")
	fs.StringVar(&cfg.AdminToken, "admin-token", envString("ADMIN_TOKEN", ""), "Bearer token required by the admin API")
	fs.StringVar(&cfg.LogLevel, "log-level", envString("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", envString("LOG_FORMAT", "json"), "Log format: json or console")
	fs.DurationVar(&cfg.RestartBackoff, "restart-backoff", envDuration("RESTART_BACKOFF", 5*time.Second), "Initial supervisor restart delay")
	fs.DurationVar(&cfg.MaxRestartBackoff, "max-restart-backoff", envDuration("MAX_RESTART_BACKOFF", time.Minute), "Maximum supervisor restart delay")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.GroupMirrors = splitList(*mirrors)
	if *maxRange > 0 {
		cfg.StonExportMaxRange = uint64(*maxRange)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	positive := map[string]time.Duration{
		"ston-export-interval": c.StonExportInterval,
		"ston-pool-interval":   c.StonPoolInterval,
		"dedust-interval":      c.DeDustInterval,
		"blum-interval":        c.BlumInterval,
		"activation-interval":  c.ActivationInterval,
		"seen-ttl":             c.SeenTTL,
		"upstream-timeout":     c.UpstreamTimeout,
		"enrich-timeout":       c.EnrichTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.StonConcurrency < 1 || c.DeDustConcurrency < 1 || c.BlumConcurrency < 1 {
		errs = append(errs, errors.New("concurrency limits must be at least 1"))
	}
	if c.MinBuyTON < 0 || c.MinBuyUSD < 0 {
		errs = append(errs, errors.New("minimum buy thresholds must not be negative"))
	}
	if c.Strictness != StrictnessStrict && c.Strictness != StrictnessLenient {
		errs = append(errs, fmt.Errorf("strictness must be %q or %q", StrictnessStrict, StrictnessLenient))
	}
	if c.StonExportMaxRange == 0 {
		errs = append(errs, errors.New("ston-export-max-range must be positive"))
	}

	return errors.Join(errs...)
}

// UsePoolPoller reports whether STON.fi pairs are polled through TonAPI
// pool transactions instead of the export feed.
func (c *Config) UsePoolPoller() bool {
	return c.TonAPIKey != ""
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("2s") or bare seconds ("2").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
