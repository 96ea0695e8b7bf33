package domain

import "time"

// BaseSide is the pool leg holding the base currency (TON). The zero value
// is unknown so pairs registered without a side get it resolved later.
type BaseSide int

const (
	BaseSideUnknown BaseSide = iota
	BaseSide0                // asset0 / token0 is TON
	BaseSide1                // asset1 / token1 is TON
)

// IsKnown reports whether the side has been resolved.
func (s BaseSide) IsKnown() bool {
	return s == BaseSide0 || s == BaseSide1
}

// TrackedPair represents a pool being monitored for buys.
type TrackedPair struct {
	ID           string         `json:"id"`            // pool address, unique across the registry
	Symbol       string         `json:"symbol"`        // upper-case token symbol
	TokenAddress string         `json:"token_address"` // jetton master address
	Dex          DexKind        `json:"dex"`
	BaseSide     BaseSide       `json:"base_side"`
	Label        string         `json:"label,omitempty"`
	Telegram     string         `json:"telegram,omitempty"`
	Buyers       map[string]int `json:"buyers,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Clone returns a deep copy safe to hand out of the registry.
func (p *TrackedPair) Clone() *TrackedPair {
	if p == nil {
		return nil
	}
	c := *p
	if p.Buyers != nil {
		c.Buyers = make(map[string]int, len(p.Buyers))
		for k, v := range p.Buyers {
			c.Buyers[k] = v
		}
	}
	return &c
}

// DisplayLabel returns the alert source label, falling back to the dex default.
func (p *TrackedPair) DisplayLabel() string {
	if p.Label != "" {
		return p.Label
	}
	switch p.Dex {
	case DexDeDust:
		return "DeDust"
	case DexStonFi:
		return "STON.fi"
	case DexBlum:
		return "Blum"
	}
	return "DEX"
}
