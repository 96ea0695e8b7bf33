package holders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage/memory"
)

func newRegistry(t *testing.T) *state.Registry {
	t.Helper()
	r := state.NewRegistry(memory.NewDocumentStore(), nil)
	require.NoError(t, r.AddPair(&domain.TrackedPair{ID: "EQpool", TokenAddress: "EQtoken"}))
	return r
}

func TestClassify_FirstThenRepeat(t *testing.T) {
	r := newRegistry(t)
	tr := NewTracker(r, nil)
	target := Target{PairID: "EQpool"}

	assert.Equal(t, domain.NewHolder, tr.Classify(target, "EQalice"))
	assert.Equal(t, domain.ExistingHolder, tr.Classify(target, "EQalice"))
	assert.Equal(t, domain.NewHolder, tr.Classify(target, "EQbob"))

	p, _ := r.Pair("EQpool")
	assert.Equal(t, 2, p.Buyers["EQalice"])
	assert.Equal(t, 1, p.Buyers["EQbob"])
}

func TestClassify_EmptyBuyerHasNoSideEffect(t *testing.T) {
	r := newRegistry(t)
	tr := NewTracker(r, nil)

	assert.Equal(t, domain.ExistingHolder, tr.Classify(Target{PairID: "EQpool"}, ""))
	p, _ := r.Pair("EQpool")
	assert.Empty(t, p.Buyers)
}

func TestClassify_WatchTarget(t *testing.T) {
	r := newRegistry(t)
	w, err := r.AddWatch(&domain.WatchEntry{Source: domain.WatchBlum, TokenAddress: "EQfrog"})
	require.NoError(t, err)
	tr := NewTracker(r, nil)

	assert.Equal(t, domain.NewHolder, tr.Classify(Target{WatchID: w.ID}, "EQalice"))
	assert.Equal(t, domain.ExistingHolder, tr.Classify(Target{WatchID: w.ID}, "EQalice"))
}

func TestClassify_UnknownTargetIsExisting(t *testing.T) {
	tr := NewTracker(newRegistry(t), nil)
	assert.Equal(t, domain.ExistingHolder, tr.Classify(Target{PairID: "EQmissing"}, "EQalice"))
	assert.Equal(t, domain.ExistingHolder, tr.Classify(Target{}, "EQalice"))
}
