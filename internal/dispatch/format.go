package dispatch

import (
	"fmt"
	"html"
	"math"
	"strings"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/normalize"
)

const (
	strengthMax     = 28
	strengthPerLine = 14
	strengthIcon    = "🟢"
	noValue         = "—"
)

// Stats is the market data shown in an alert. Nil fields are unknown.
type Stats struct {
	MarketCapUSD *float64
	LiquidityUSD *float64
	PriceUSD     *float64
}

func (s Stats) complete() bool {
	return s.MarketCapUSD != nil && s.LiquidityUSD != nil && s.PriceUSD != nil
}

// merge fills unknown fields of s from o.
func (s Stats) merge(o Stats) Stats {
	if s.MarketCapUSD == nil {
		s.MarketCapUSD = o.MarketCapUSD
	}
	if s.LiquidityUSD == nil {
		s.LiquidityUSD = o.LiquidityUSD
	}
	if s.PriceUSD == nil {
		s.PriceUSD = o.PriceUSD
	}
	return s
}

// Links are the static URLs rendered into every alert.
type Links struct {
	Trending string
	Listing  string
}

// Alert is everything needed to render one buy notification.
type Alert struct {
	Event    domain.BuyEvent
	Telegram string  // community link wrapped around the title
	TONUSD   float64 // 0 when no price is cached
	Stats    Stats
	Holders  *int
	Rank     int // 0 when unranked
	Links    Links
}

// Badge returns the size emoji for a TON amount.
func Badge(ton float64) string {
	switch {
	case ton >= 50:
		return "🐳"
	case ton >= 10:
		return "🐟"
	case ton >= 2:
		return "🦐"
	case ton > 0:
		return "🌱"
	}
	return "✨"
}

// StrengthCount maps a TON amount to 1..28 strength icons.
func StrengthCount(ton float64) int {
	if ton < 0 || math.IsNaN(ton) {
		ton = 0
	}
	n := int(math.Floor(ton/2)) + 1
	if n > strengthMax {
		return strengthMax
	}
	if n < 1 {
		return 1
	}
	return n
}

// StrengthBar renders the strength icons on at most two lines.
func StrengthBar(ton float64) string {
	n := StrengthCount(ton)
	first := min(n, strengthPerLine)
	bar := strings.Repeat(strengthIcon, first) + "\n"
	if n > strengthPerLine {
		bar += strings.Repeat(strengthIcon, n-strengthPerLine) + "\n"
	}
	return bar
}

// MoneyFmt formats a USD value with B/M/K suffixes.
func MoneyFmt(v *float64) string {
	if v == nil {
		return noValue
	}
	x := *v
	switch {
	case x >= 1e9:
		return fmt.Sprintf("$%.2fB", x/1e9)
	case x >= 1e6:
		return fmt.Sprintf("$%.2fM", x/1e6)
	case x >= 1e3:
		return fmt.Sprintf("$%.2fK", x/1e3)
	}
	return "$" + groupThousands(fmt.Sprintf("%.0f", x))
}

// ShortAddr abbreviates an address to its first and last four characters.
func ShortAddr(a string) string {
	if a == "" {
		return "Unknown"
	}
	if len(a) <= 11 {
		return a
	}
	return a[:4] + "…" + a[len(a)-4:]
}

// ChartURL links the token chart, falling back to the pool page.
func ChartURL(token, pairID string) string {
	if token != "" {
		return "https://www.geckoterminal.com/ton/tokens/" + token
	}
	return PoolsURL(pairID)
}

// PoolsURL links the DexScreener pool page.
func PoolsURL(pairID string) string {
	return "https://dexscreener.com/ton/" + pairID
}

func (a *Alert) usdValue() float64 {
	ton := a.Event.BaseAmount.InexactFloat64()
	if a.TONUSD <= 0 || ton <= 0 {
		return 0
	}
	return ton * a.TONUSD
}

// ChannelText renders the full alert posted to the master channel.
func (a *Alert) ChannelText() string {
	e := &a.Event
	ton := e.BaseAmount.InexactFloat64()
	sym := html.EscapeString(e.Symbol)

	title := fmt.Sprintf("%s %s Buy!", Badge(ton), sym)
	if e.Label != "" {
		title += " — " + html.EscapeString(e.Label)
	}
	if a.Telegram != "" {
		title = fmt.Sprintf("<a href='%s'><b>%s</b></a>", html.EscapeString(a.Telegram), title)
	} else {
		title = "<b>" + title + "</b>"
	}

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(StrengthBar(ton) + "\n")

	if ton > 0 {
		fmt.Fprintf(&b, "🔁 <b>%.2f TON</b>", ton)
		if usd := a.usdValue(); usd > 0 {
			fmt.Fprintf(&b, " ($%s)", groupThousands(fmt.Sprintf("%.2f", usd)))
		}
		b.WriteString("\n")
	}
	if e.TokenAmount.IsPositive() {
		fmt.Fprintf(&b, "🔁 <b>%s %s</b>\n", groupThousands(e.TokenAmount.StringFixed(6)), sym)
	}

	buyerURL := ""
	if e.Buyer != "" {
		buyerURL = "https://tonviewer.com/" + e.Buyer
	}
	fmt.Fprintf(&b, "👤 <a href='%s'>%s</a> | 🔗 <a href='%s'>Txn</a>\n",
		buyerURL, html.EscapeString(ShortAddr(e.Buyer)), normalize.TxURL(e.TxHash, ""))
	fmt.Fprintf(&b, "⬆️ Position: <b>%s</b>\n", e.Holder.String())
	if a.Holders != nil {
		fmt.Fprintf(&b, "👥 Holders <b>%d</b>\n", *a.Holders)
	}

	chart := ChartURL(e.TokenAddress, e.PairID)
	if e.Source != domain.SourceBlum {
		fmt.Fprintf(&b, "💸 Market Cap <b>%s</b>\n", MoneyFmt(a.Stats.MarketCapUSD))
		fmt.Fprintf(&b, "🌊 Liquidity <b>%s</b>\n\n", MoneyFmt(a.Stats.LiquidityUSD))
		fmt.Fprintf(&b, "📌 <a href='%s'>Ton Listing</a>\n", a.Links.Listing)
		fmt.Fprintf(&b, "📊 <a href='%s'>Chart</a> | 🔥 <a href='%s'>Trending</a> | 🆕 <a href='%s'>Pools</a>",
			chart, a.Links.Trending, PoolsURL(e.PairID))
	} else {
		fmt.Fprintf(&b, "\n📌 <a href='%s'>Ton Listing</a>\n", a.Links.Listing)
		fmt.Fprintf(&b, "📊 <a href='%s'>Chart</a> | 🔥 <a href='%s'>Trending</a>", chart, a.Links.Trending)
	}

	if a.Rank > 0 {
		fmt.Fprintf(&b, "\n\n🟢 <b>#%d</b> On <a href='%s'>Trending</a>", a.Rank, a.Links.Trending)
	}
	return b.String()
}

// GroupText renders the compact alert posted to group mirrors.
func (a *Alert) GroupText() string {
	e := &a.Event
	sym := html.EscapeString(e.Symbol)
	label := e.Label
	if label == "" {
		label = "DEX"
	}
	pos := "Old!"
	if e.Holder == domain.NewHolder {
		pos = "New!"
	}
	usd := "$0"
	if v := a.usdValue(); v > 0 {
		usd = "$" + groupThousands(fmt.Sprintf("%.2f", v))
	}
	price := noValue
	if p := a.Stats.PriceUSD; p != nil && *p > 0 {
		price = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", *p), "0"), ".")
	}
	mc := noValue
	if m := a.Stats.MarketCapUSD; m != nil && *m > 0 {
		mc = groupThousands(fmt.Sprintf("%.0f", *m))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚀 %s TOKEN Buy! — %s\n✅ LISTED!\n\n", sym, html.EscapeString(label))
	b.WriteString(strings.Repeat("💡", 10) + "\n\n")
	fmt.Fprintf(&b, "💰 %.2f TON (%s)\n", e.BaseAmount.InexactFloat64(), usd)
	fmt.Fprintf(&b, "📦 %s %s\n", groupThousands(e.TokenAmount.StringFixed(2)), sym)
	fmt.Fprintf(&b, "👤 %s | %s\n", html.EscapeString(ShortAddr(e.Buyer)), pos)
	fmt.Fprintf(&b, "💵 Price: $%s\n", price)
	fmt.Fprintf(&b, "🏦 MarketCap: $%s\n\n", mc)
	fmt.Fprintf(&b, "❤️ <a href='%s'>TonListing</a> | 📊 <a href='%s'>Chart</a>", a.Links.Listing, ChartURL(e.TokenAddress, e.PairID))
	return b.String()
}

// groupThousands inserts commas into the integer part of a formatted number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}
