package activation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage/memory"
	"tonbuy-alerts/internal/upstream"
)

type fakeFinder struct {
	pools map[string]map[domain.DexKind]*upstream.PairInfo
	fail  map[string]bool
	calls []domain.DexKind
}

func (f *fakeFinder) FindPair(_ context.Context, token string, dex domain.DexKind) (*upstream.PairInfo, error) {
	f.calls = append(f.calls, dex)
	if f.fail[token] {
		return nil, errors.New("dexscreener unavailable")
	}
	return f.pools[token][dex], nil
}

type recordingNotifier struct{ texts []string }

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func TestActivator_PromotesListedToken(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	reg := state.NewRegistry(store, nil)

	listed, err := reg.AddWatch(&domain.WatchEntry{Source: domain.WatchMemepad, Symbol: "frog", TokenAddress: "EQfrog"})
	require.NoError(t, err)
	_, err = reg.RecordWatchBuyer(listed.ID, "EQearly")
	require.NoError(t, err)
	slugOnly, err := reg.AddWatch(&domain.WatchEntry{Source: domain.WatchBlum, Symbol: "cat", Slug: "cat-coin"})
	require.NoError(t, err)

	finder := &fakeFinder{pools: map[string]map[domain.DexKind]*upstream.PairInfo{
		"EQfrog": {domain.DexDeDust: {
			DexID:       "dedust",
			PairAddress: "EQfrogpool",
			BaseSymbol:  "FROG",
			QuoteSymbol: "TON",
			Telegram:    "https://t.me/frog",
		}},
	}}
	notifier := &recordingNotifier{}
	a := New(Options{Store: reg, Finder: finder, Notifier: notifier})

	promoted, err := a.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, []domain.DexKind{domain.DexStonFi, domain.DexDeDust}, finder.calls)

	p, ok := reg.Pair("EQfrogpool")
	require.True(t, ok)
	assert.Equal(t, "FROG", p.Symbol)
	assert.Equal(t, "EQfrog", p.TokenAddress)
	assert.Equal(t, domain.DexDeDust, p.Dex)
	assert.Equal(t, domain.BaseSide1, p.BaseSide)
	assert.Equal(t, "DeDust", p.Label)
	assert.Equal(t, "https://t.me/frog", p.Telegram)
	assert.Equal(t, 1, p.Buyers["EQearly"])

	_, ok = reg.Watch(listed.ID)
	assert.False(t, ok)
	_, ok = reg.Watch(slugOnly.ID)
	assert.True(t, ok, "entries without a token address stay")

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "FROG")
	assert.False(t, reg.Dirty(), "registry flushed after promotion")

	var pairs map[string]*domain.TrackedPair
	require.NoError(t, store.Load(ctx, state.PairsNamespace, &pairs))
	assert.Contains(t, pairs, "EQfrogpool")
}

func TestActivator_UnlistedAndFailingStay(t *testing.T) {
	reg := state.NewRegistry(memory.NewDocumentStore(), nil)
	pending, err := reg.AddWatch(&domain.WatchEntry{Symbol: "AAA", TokenAddress: "EQpending"})
	require.NoError(t, err)
	broken, err := reg.AddWatch(&domain.WatchEntry{Symbol: "BBB", TokenAddress: "EQbroken"})
	require.NoError(t, err)

	finder := &fakeFinder{fail: map[string]bool{"EQbroken": true}}
	a := New(Options{Store: reg, Finder: finder})

	promoted, err := a.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, promoted)

	_, ok := reg.Watch(pending.ID)
	assert.True(t, ok)
	_, ok = reg.Watch(broken.ID)
	assert.True(t, ok)
}
