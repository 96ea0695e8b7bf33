package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// DefaultDecimals is assumed for jettons whose metadata cannot be read.
const DefaultDecimals = 9

// JettonInfo is the subset of TonAPI jetton metadata the service reads.
type JettonInfo struct {
	Decimals     int
	HoldersCount int
	HasHolders   bool
}

// TonAPI reads account transactions and jetton metadata from TonAPI v2.
type TonAPI struct {
	c   *Client
	key string

	mu       sync.RWMutex
	decimals map[string]int
}

// NewTonAPI creates the adapter. An empty key sends unauthenticated requests.
func NewTonAPI(c *Client, key string) *TonAPI {
	return &TonAPI{c: c, key: key, decimals: make(map[string]int)}
}

// HasKey reports whether an API key is configured.
func (t *TonAPI) HasKey() bool {
	return t.key != ""
}

// get sends a Bearer token and falls back to X-API-Key once on 401.
func (t *TonAPI) get(ctx context.Context, path string, q url.Values) (any, error) {
	if t.key == "" {
		return t.c.GetJSON(ctx, path, q, nil)
	}
	v, err := t.c.GetJSON(ctx, path, q, http.Header{"Authorization": []string{"Bearer " + t.key}})
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		return t.c.GetJSON(ctx, path, q, http.Header{"X-API-Key": []string{t.key}})
	}
	return v, err
}

// AccountTransactions returns up to limit recent transactions, newest first.
func (t *TonAPI) AccountTransactions(ctx context.Context, account string, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	v, err := t.get(ctx, "/v2/blockchain/accounts/"+url.PathEscape(account)+"/transactions", q)
	if err != nil {
		return nil, err
	}
	return records(v, "transactions"), nil
}

// Jetton fetches metadata of a jetton master.
func (t *TonAPI) Jetton(ctx context.Context, master string) (JettonInfo, error) {
	info := JettonInfo{Decimals: DefaultDecimals}
	v, err := t.get(ctx, "/v2/jettons/"+url.PathEscape(master), nil)
	if err != nil {
		return info, err
	}
	obj, _ := v.(map[string]any)

	if d, ok := uintOf(field(obj, "metadata", "decimals")); ok && d <= 30 {
		info.Decimals = int(d)
	}
	for _, path := range [][]string{{"holders_count"}, {"holdersCount"}, {"stats", "holders_count"}, {"stats", "holdersCount"}} {
		if n, ok := uintOf(field(obj, path...)); ok {
			info.HoldersCount = int(n)
			info.HasHolders = true
			break
		}
	}
	return info, nil
}

// Decimals returns the cached decimal count of master, looking it up once.
// Lookup failures yield DefaultDecimals and are retried on the next call.
func (t *TonAPI) Decimals(ctx context.Context, master string) int {
	if master == "" {
		return DefaultDecimals
	}
	t.mu.RLock()
	d, ok := t.decimals[master]
	t.mu.RUnlock()
	if ok {
		return d
	}

	info, err := t.Jetton(ctx, master)
	if err != nil {
		return DefaultDecimals
	}
	t.mu.Lock()
	t.decimals[master] = info.Decimals
	t.mu.Unlock()
	return info.Decimals
}

// HoldersCount returns the holder count when TonAPI reports one.
func (t *TonAPI) HoldersCount(ctx context.Context, master string) (int, bool, error) {
	info, err := t.Jetton(ctx, master)
	if err != nil {
		return 0, false, err
	}
	return info.HoldersCount, info.HasHolders, nil
}
