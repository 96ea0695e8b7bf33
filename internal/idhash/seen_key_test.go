package idhash

import (
	"testing"

	"tonbuy-alerts/internal/domain"
)

func TestSeenKey(t *testing.T) {
	tests := []struct {
		name   string
		source domain.SourceKind
		pool   string
		tx     string
		leg    int
	}{
		{name: "ston pool", source: domain.SourceStonPool, pool: "EQPool1", tx: "abc123", leg: 0},
		{name: "dedust second leg", source: domain.SourceDeDust, pool: "EQPool2", tx: "def456", leg: 1},
		{name: "blum by lt", source: domain.SourceBlum, pool: "EQToken", tx: "47000000000001", leg: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SeenKey(tt.source, tt.pool, tt.tx, tt.leg)

			if len(got) != 64 {
				t.Errorf("SeenKey() length = %d, want 64", len(got))
			}

			again := SeenKey(tt.source, tt.pool, tt.tx, tt.leg)
			if got != again {
				t.Errorf("SeenKey() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestSeenKey_DistinctInputs(t *testing.T) {
	base := SeenKey(domain.SourceStonPool, "EQPool", "hash", 0)

	variants := []string{
		SeenKey(domain.SourceDeDust, "EQPool", "hash", 0),
		SeenKey(domain.SourceStonPool, "EQOther", "hash", 0),
		SeenKey(domain.SourceStonPool, "EQPool", "hash2", 0),
		SeenKey(domain.SourceStonPool, "EQPool", "hash", 1),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key", i)
		}
	}
}

func TestSeenKeyFor_FallsBackToSeq(t *testing.T) {
	e := &domain.BuyEvent{Source: domain.SourceBlum, PairID: "EQToken", Seq: 42}

	if got, want := SeenKeyFor(e), SeenKey(domain.SourceBlum, "EQToken", "42", 0); got != want {
		t.Errorf("SeenKeyFor() = %s, want %s", got, want)
	}
}
