package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
)

func TestBuyEventStore_Summary(t *testing.T) {
	store := NewBuyEventStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	events := []domain.BuyEvent{
		{TokenAddress: "EQA", Symbol: "AAA", Buyer: "u1", TxHash: "t1", BaseAmount: decimal.NewFromInt(5), TokenAmount: decimal.NewFromInt(1), DetectedAt: base},
		{TokenAddress: "EQA", Symbol: "AAA", Buyer: "u1", TxHash: "t2", BaseAmount: decimal.NewFromInt(7), TokenAmount: decimal.NewFromInt(1), DetectedAt: base.Add(time.Minute)},
		{TokenAddress: "EQA", Symbol: "AAA", Buyer: "u2", TxHash: "t3", BaseAmount: decimal.NewFromInt(1), TokenAmount: decimal.NewFromInt(1), DetectedAt: base.Add(2 * time.Minute)},
		{TokenAddress: "EQB", Symbol: "BBB", Buyer: "u3", TxHash: "t4", BaseAmount: decimal.NewFromInt(20), TokenAmount: decimal.NewFromInt(1), DetectedAt: base.Add(3 * time.Minute)},
		{TokenAddress: "EQC", Symbol: "CCC", Buyer: "u4", TxHash: "t5", BaseAmount: decimal.NewFromInt(99), TokenAmount: decimal.NewFromInt(1), DetectedAt: base.Add(-time.Hour)},
	}
	for i := range events {
		if err := store.Insert(ctx, &events[i]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	stats, err := store.Summary(ctx, base, 10)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(stats))
	}

	if stats[0].TokenAddress != "EQB" {
		t.Errorf("expected EQB first by volume, got %s", stats[0].TokenAddress)
	}
	a := stats[1]
	if a.Buys != 3 || a.UniqueBuyers != 2 {
		t.Errorf("unexpected EQA counts: buys=%d buyers=%d", a.Buys, a.UniqueBuyers)
	}
	if !a.BaseVolume.Equal(decimal.NewFromInt(13)) {
		t.Errorf("expected EQA volume 13, got %s", a.BaseVolume)
	}

	limited, _ := store.Summary(ctx, base, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestBuyEventStore_InsertNil(t *testing.T) {
	if err := NewBuyEventStore().Insert(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}
