package upstream

import (
	"context"
	"errors"
	"net/url"
	"strconv"
)

// StonExport reads the STON.fi DexScreener-format export feed.
type StonExport struct {
	c *Client
}

// NewStonExport creates the adapter over a client rooted at the feed base
// (https://api.ston.fi/export/dexscreener/v1).
func NewStonExport(c *Client) *StonExport {
	return &StonExport{c: c}
}

// LatestBlock returns the newest indexed block number.
func (s *StonExport) LatestBlock(ctx context.Context) (uint64, error) {
	v, err := s.c.GetJSON(ctx, "/latest-block", nil, nil)
	if err != nil {
		return 0, err
	}
	obj, _ := v.(map[string]any)
	n, ok := uintOf(field(obj, "block", "blockNumber"))
	if !ok {
		return 0, errors.New("latest-block: missing block.blockNumber")
	}
	return n, nil
}

// Events returns the events of blocks [from, to].
func (s *StonExport) Events(ctx context.Context, from, to uint64) ([]Record, error) {
	q := url.Values{}
	q.Set("fromBlock", strconv.FormatUint(from, 10))
	q.Set("toBlock", strconv.FormatUint(to, 10))

	v, err := s.c.GetJSON(ctx, "/events", q, nil)
	if err != nil {
		return nil, err
	}
	return records(v, "events"), nil
}
