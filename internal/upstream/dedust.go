package upstream

import (
	"context"
	"net/url"
	"strconv"
)

// DeDust reads pool trade history from the public DeDust API.
type DeDust struct {
	c *Client
}

// NewDeDust creates the adapter.
func NewDeDust(c *Client) *DeDust {
	return &DeDust{c: c}
}

// PoolTrades returns up to limit recent trades of pool, newest first.
func (d *DeDust) PoolTrades(ctx context.Context, pool string, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	v, err := d.c.GetJSON(ctx, "/v2/pools/"+url.PathEscape(pool)+"/trades", q, nil)
	if err != nil {
		return nil, err
	}
	return records(v, "trades", "items", "data"), nil
}
