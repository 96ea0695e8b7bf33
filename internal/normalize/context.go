package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
)

// Strictness controls attribution of swaps spanning several actions.
type Strictness int

const (
	// Strict emits only actions that are a buy on their own.
	Strict Strictness = iota
	// Lenient additionally emits one buy for a multi-hop chain whose first
	// hop spends TON and whose last hop yields the tracked token.
	Lenient
)

// ParseStrictness maps "strict" / "lenient" to a Strictness.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	}
	return Strict, fmt.Errorf("unknown strictness %q", s)
}

// Context carries what a normalizer needs to know about the target.
type Context struct {
	Pair       *domain.TrackedPair
	Source     domain.SourceKind
	Decimals   int // token decimals
	Strictness Strictness
	Now        time.Time
}

// Extractor normalizes the records of one upstream source.
type Extractor interface {
	// Seq returns the record's sequence number (lt or block) for cursor gating.
	Seq(rec Record) (uint64, bool)
	// Normalize returns the qualifying buys in rec, or nil.
	Normalize(rec Record, nctx *Context) []domain.BuyEvent
}

func (c *Context) decimals() int {
	if c.Decimals <= 0 {
		return TONDecimals
	}
	return c.Decimals
}

// event builds a BuyEvent for the context target. It returns false when the
// amounts violate the positivity invariant.
func (c *Context) event(buyer, hash string, seq uint64, leg int, base, token decimal.Decimal) (domain.BuyEvent, bool) {
	e := domain.BuyEvent{
		PairID:       c.Pair.ID,
		Symbol:       c.Pair.Symbol,
		TokenAddress: c.Pair.TokenAddress,
		Buyer:        buyer,
		TxHash:       hash,
		Seq:          seq,
		Leg:          leg,
		BaseAmount:   base,
		TokenAmount:  token,
		Source:       c.Source,
		Label:        c.Pair.DisplayLabel(),
		DetectedAt:   c.Now,
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = time.Now()
	}
	return e, e.Validate() == nil
}

// tokenMatches reports whether an optional destination token identity
// belongs to the tracked token. An absent identity matches.
func (c *Context) tokenMatches(master string) bool {
	if master == "" || c.Pair.TokenAddress == "" {
		return true
	}
	return SameAddress(master, c.Pair.TokenAddress)
}
