package memory

import (
	"context"
	"errors"
	"testing"

	"tonbuy-alerts/internal/storage"
)

func TestDocumentStore_RoundTrip(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	var got map[string]uint64
	if err := store.Load(ctx, "cursors", &got); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	src := map[string]uint64{"ston-pool:EQ1": 100}
	if err := store.Save(ctx, "cursors", src); err != nil {
		t.Fatalf("Save: %v", err)
	}
	src["ston-pool:EQ1"] = 999 // caller mutation must not leak into the store

	if err := store.Load(ctx, "cursors", &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["ston-pool:EQ1"] != 100 {
		t.Errorf("expected 100, got %d", got["ston-pool:EQ1"])
	}
}

func TestDocumentStore_FailSaves(t *testing.T) {
	store := NewDocumentStore()
	store.SetFailSaves(true)

	if err := store.Save(context.Background(), "registry", struct{}{}); err == nil {
		t.Fatal("expected simulated failure")
	}
}
