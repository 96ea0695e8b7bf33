package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFeed struct {
	prices []float64
	errs   []error
	calls  int
}

func (f *scriptedFeed) TONPrice(context.Context) (float64, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	if i < len(f.prices) {
		return f.prices[i], nil
	}
	return 0, errors.New("exhausted")
}

func TestCache_EmptyUntilRefreshed(t *testing.T) {
	c := New(Options{Feed: &scriptedFeed{prices: []float64{5.5}}})
	_, ok := c.Cached()
	assert.False(t, ok)

	require.NoError(t, c.Refresh(context.Background()))
	price, ok := c.Cached()
	assert.True(t, ok)
	assert.Equal(t, 5.5, price)
}

func TestCache_FailureKeepsPreviousValue(t *testing.T) {
	feed := &scriptedFeed{prices: []float64{5.5, 0}, errs: []error{nil, errors.New("rate limited")}}
	c := New(Options{Feed: feed})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Error(t, c.Refresh(context.Background()))

	price, ok := c.Cached()
	assert.True(t, ok)
	assert.Equal(t, 5.5, price)
}

func TestCache_MaxAge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Options{MaxAge: time.Minute, Now: func() time.Time { return now }})
	c.Set(6)

	_, ok := c.Cached()
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Cached()
	assert.False(t, ok)
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	c := New(Options{Feed: &scriptedFeed{prices: []float64{7}}, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := c.Cached()
		return ok
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
