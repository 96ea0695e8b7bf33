package memory

import (
	"context"
	"testing"
	"time"
)

func TestSeenCache_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewSeenCache(time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	seen, err := cache.HasSeen(ctx, "k1")
	if err != nil {
		t.Fatalf("HasSeen: %v", err)
	}
	if seen {
		t.Fatal("expected unseen key")
	}

	if err := cache.MarkSeen(ctx, "k1"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if seen, _ := cache.HasSeen(ctx, "k1"); !seen {
		t.Fatal("expected key seen within TTL")
	}

	now = now.Add(2 * time.Minute)
	if seen, _ := cache.HasSeen(ctx, "k1"); seen {
		t.Fatal("expected key expired after TTL")
	}
}

func TestSeenCache_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewSeenCache(10 * time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = cache.MarkSeen(ctx, "old")
	now = now.Add(6 * time.Minute)
	_ = cache.MarkSeen(ctx, "new")
	now = now.Add(5 * time.Minute)

	remaining, err := cache.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected 1 remaining entry, got %d", remaining)
	}
	if cache.Len() != 1 {
		t.Errorf("expected Len 1, got %d", cache.Len())
	}
	if seen, _ := cache.HasSeen(ctx, "new"); !seen {
		t.Error("fresh entry must survive sweep")
	}
}
