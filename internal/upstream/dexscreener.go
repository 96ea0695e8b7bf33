package upstream

import (
	"context"
	"net/url"
	"strings"

	"tonbuy-alerts/internal/domain"
)

// PairInfo is the market snapshot of one DexScreener pair.
// Optional metrics are nil when DexScreener does not report them.
type PairInfo struct {
	ChainID      string
	DexID        string
	PairAddress  string
	BaseSymbol   string
	QuoteSymbol  string
	BaseAddress  string
	QuoteAddress string
	LiquidityUSD *float64
	MarketCapUSD *float64 // marketCap, else fdv
	PriceUSD     *float64
	VolumeH6USD  float64
	VolumeH24USD float64
	PriceChange  map[string]float64 // "h1", "h6", ...
	Telegram     string
}

// TONSide returns which side of the pair is TON.
func (p *PairInfo) TONSide() domain.BaseSide {
	switch {
	case p.BaseSymbol == "TON":
		return domain.BaseSide0
	case p.QuoteSymbol == "TON":
		return domain.BaseSide1
	}
	return domain.BaseSideUnknown
}

// DexScreener reads pair and token market data.
type DexScreener struct {
	c *Client
}

// NewDexScreener creates the adapter over a client rooted at https://api.dexscreener.com.
func NewDexScreener(c *Client) *DexScreener {
	return &DexScreener{c: c}
}

// Pair returns the first pair reported for the TON pair id, or nil if unknown.
func (d *DexScreener) Pair(ctx context.Context, pairID string) (*PairInfo, error) {
	v, err := d.c.GetJSON(ctx, "/latest/dex/pairs/ton/"+url.PathEscape(pairID), nil, nil)
	if err != nil {
		return nil, err
	}
	recs := records(v, "pairs")
	if len(recs) == 0 {
		return nil, nil
	}
	return parsePair(recs[0]), nil
}

// TokenPairs returns every TON-chain pair trading token.
func (d *DexScreener) TokenPairs(ctx context.Context, token string) ([]PairInfo, error) {
	v, err := d.c.GetJSON(ctx, "/latest/dex/tokens/"+url.PathEscape(token), nil, nil)
	if err != nil {
		return nil, err
	}
	var out []PairInfo
	for _, rec := range records(v, "pairs") {
		p := parsePair(rec)
		if strings.EqualFold(p.ChainID, "ton") {
			out = append(out, *p)
		}
	}
	return out, nil
}

// TokenStats returns the most liquid TON pair of token, or nil.
func (d *DexScreener) TokenStats(ctx context.Context, token string) (*PairInfo, error) {
	pairs, err := d.TokenPairs(ctx, token)
	if err != nil {
		return nil, err
	}
	var (
		best    *PairInfo
		bestLiq float64
	)
	for i := range pairs {
		if l := pairs[i].LiquidityUSD; l != nil && *l > bestLiq {
			bestLiq = *l
			best = &pairs[i]
		}
	}
	return best, nil
}

// FindPair picks the best TON pool of token on dex, scored by
// liquidity*1e6 + 24h volume. It returns nil when none exists.
func (d *DexScreener) FindPair(ctx context.Context, token string, dex domain.DexKind) (*PairInfo, error) {
	pairs, err := d.TokenPairs(ctx, token)
	if err != nil {
		return nil, err
	}
	return BestPair(pairs, dex), nil
}

// BestPair applies the FindPair selection to an already fetched list.
func BestPair(pairs []PairInfo, dex domain.DexKind) *PairInfo {
	var (
		best      *PairInfo
		bestScore = -1.0
	)
	for i := range pairs {
		p := &pairs[i]
		if domain.ParseDexKind(p.DexID) != dex || p.PairAddress == "" {
			continue
		}
		if p.TONSide() == domain.BaseSideUnknown {
			continue
		}
		var liq float64
		if p.LiquidityUSD != nil {
			liq = *p.LiquidityUSD
		}
		if score := liq*1_000_000 + p.VolumeH24USD; score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

// TelegramURL returns the first telegram social link listed for token.
func (d *DexScreener) TelegramURL(ctx context.Context, token string) (string, error) {
	pairs, err := d.TokenPairs(ctx, token)
	if err != nil {
		return "", err
	}
	for _, p := range pairs {
		if p.Telegram != "" {
			return p.Telegram, nil
		}
	}
	return "", nil
}

func parsePair(rec Record) *PairInfo {
	p := &PairInfo{
		ChainID:      str(rec["chainId"]),
		DexID:        str(rec["dexId"]),
		BaseSymbol:   strings.ToUpper(str(field(rec, "baseToken", "symbol"))),
		QuoteSymbol:  strings.ToUpper(str(field(rec, "quoteToken", "symbol"))),
		BaseAddress:  str(field(rec, "baseToken", "address")),
		QuoteAddress: str(field(rec, "quoteToken", "address")),
		PriceChange:  make(map[string]float64),
	}

	for _, k := range []string{"pairAddress", "pairId", "pair"} {
		if s := str(rec[k]); s != "" {
			p.PairAddress = s
			break
		}
	}
	if p.PairAddress == "" {
		if u := str(rec["url"]); strings.Contains(u, "/ton/") {
			id := u[strings.LastIndex(u, "/ton/")+len("/ton/"):]
			if i := strings.IndexByte(id, '?'); i >= 0 {
				id = id[:i]
			}
			p.PairAddress = strings.TrimSpace(id)
		}
	}

	if l := optNum(field(rec, "liquidity", "usd")); l != nil && *l > 0 {
		p.LiquidityUSD = l
	}
	if mc := optNum(rec["marketCap"]); mc != nil && *mc > 0 {
		p.MarketCapUSD = mc
	} else if fdv := optNum(rec["fdv"]); fdv != nil && *fdv > 0 {
		p.MarketCapUSD = fdv
	}
	if pr := optNum(rec["priceUsd"]); pr != nil && *pr > 0 {
		p.PriceUSD = pr
	}

	// volume.h6 is either a number or {"usd": n}
	p.VolumeH6USD = num(field(rec, "volume", "h6"))
	if p.VolumeH6USD == 0 {
		p.VolumeH6USD = num(field(rec, "volume", "h6", "usd"))
	}
	p.VolumeH24USD = num(field(rec, "volume", "h24"))

	if pc, ok := rec["priceChange"].(map[string]any); ok {
		for k, v := range pc {
			if f := optNum(v); f != nil {
				p.PriceChange[k] = *f
			}
		}
	}

	if socials, ok := field(rec, "info", "socials").([]any); ok {
		for _, s := range socials {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			link := str(sm["url"])
			if strings.EqualFold(str(sm["type"]), "telegram") && strings.HasPrefix(link, "http") {
				p.Telegram = link
				break
			}
		}
	}
	return p
}
