package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseDexKind(t *testing.T) {
	cases := map[string]DexKind{
		"stonfi":    DexStonFi,
		"ston_fi":   DexStonFi,
		"stonfi_v2": DexStonFi,
		"DeDust":    DexDeDust,
		"blum":      DexBlum,
		"raydium":   DexUnknown,
		"":          DexUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseDexKind(in), in)
	}
}

func TestDexLabel(t *testing.T) {
	assert.Equal(t, "Stonfi v2", DexLabel("stonfi_v2"))
	assert.Equal(t, "STON.fi", DexLabel("stonfi"))
	assert.Equal(t, "DeDust", DexLabel("dedust"))
	assert.Equal(t, "DEX", DexLabel("megaton"))
}

func TestBaseSide_ZeroValueIsUnknown(t *testing.T) {
	var p TrackedPair
	assert.Equal(t, BaseSideUnknown, p.BaseSide)
	assert.False(t, p.BaseSide.IsKnown())
	assert.True(t, BaseSide0.IsKnown())
	assert.True(t, BaseSide1.IsKnown())
}

func TestTrackedPair_CloneIsDeep(t *testing.T) {
	p := &TrackedPair{ID: "EQpool", Buyers: map[string]int{"a": 1}}
	c := p.Clone()
	c.Buyers["a"] = 5
	assert.Equal(t, 1, p.Buyers["a"])
	assert.Equal(t, "DEX", p.DisplayLabel())

	p.Label = "Stonfi v2"
	assert.Equal(t, "Stonfi v2", p.DisplayLabel())
}

func TestWatchEntry(t *testing.T) {
	w := &WatchEntry{Source: WatchBlum}
	assert.ErrorIs(t, w.Validate(), ErrWatchIdentity)

	w.Slug = "frog"
	assert.NoError(t, w.Validate())
	assert.False(t, w.EarlyTrackable())

	w.TokenAddress = "EQfrog"
	w.ApprovedEarly = true
	assert.True(t, w.EarlyTrackable())
}

func TestBuyEvent_Validate(t *testing.T) {
	e := BuyEvent{BaseAmount: decimal.NewFromInt(1), TokenAmount: decimal.NewFromInt(10), Seq: 5}
	assert.NoError(t, e.Validate())
	assert.Equal(t, "5", e.TxIdentity())

	e.TokenAmount = decimal.Zero
	assert.ErrorIs(t, e.Validate(), ErrNonPositiveAmount)

	e.TokenAmount = decimal.NewFromInt(10)
	e.Seq = 0
	assert.ErrorIs(t, e.Validate(), ErrMissingTxIdentity)

	assert.Equal(t, "New Holder!", NewHolder.String())
	assert.Equal(t, "Existing Holder", ExistingHolder.String())
}
