package upstream

import (
	"context"
	"errors"
)

// PriceFeed reads the TON/USD price from a CoinGecko simple-price URL.
type PriceFeed struct {
	c *Client
}

// NewPriceFeed creates the adapter over a client whose base is the full price URL.
func NewPriceFeed(c *Client) *PriceFeed {
	return &PriceFeed{c: c}
}

// TONPrice returns the current TON price in USD.
func (p *PriceFeed) TONPrice(ctx context.Context) (float64, error) {
	v, err := p.c.GetJSON(ctx, "", nil, nil)
	if err != nil {
		return 0, err
	}
	obj, _ := v.(map[string]any)
	price := num(field(obj, "the-open-network", "usd"))
	if price <= 0 {
		return 0, errors.New("price response missing the-open-network.usd")
	}
	return price, nil
}
