package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"tonbuy-alerts/internal/domain"
)

// SeenKey computes the dedup identity of a buy using SHA256.
// Formula: SHA256(source|pool|tx_identity|leg)
// Returns hex-encoded hash (64 characters).
func SeenKey(source domain.SourceKind, pool, txIdentity string, leg int) string {
	data := fmt.Sprintf("%s|%s|%s|%d", string(source), pool, txIdentity, leg)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SeenKeyFor computes the dedup identity of a normalized buy event.
func SeenKeyFor(e *domain.BuyEvent) string {
	return SeenKey(e.Source, e.PairID, e.TxIdentity(), e.Leg)
}
