package domain

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// HolderStatus classifies a buyer relative to the tracked token.
type HolderStatus string

const (
	NewHolder      HolderStatus = "NEW_HOLDER"
	ExistingHolder HolderStatus = "EXISTING_HOLDER"
)

// String returns the alert text for the status.
func (h HolderStatus) String() string {
	if h == NewHolder {
		return "New Holder!"
	}
	return "Existing Holder"
}

// BuyEvent errors.
var (
	ErrNonPositiveAmount = errors.New("buy amounts must be positive")
	ErrMissingTxIdentity = errors.New("buy requires a transaction identity")
)

// BuyEvent is a normalized, qualified purchase of a tracked token.
type BuyEvent struct {
	PairID       string // pool address, or token address for pre-listing sources
	Symbol       string
	TokenAddress string
	Buyer        string
	TxHash       string
	Seq          uint64 // lt or block number; 0 when the source has none
	Leg          int    // index of the qualifying swap within the transaction
	BaseAmount   decimal.Decimal
	TokenAmount  decimal.Decimal
	Source       SourceKind
	Label        string
	Holder       HolderStatus
	DetectedAt   time.Time
}

// Validate checks BuyEvent invariants.
func (e *BuyEvent) Validate() error {
	if !e.BaseAmount.IsPositive() || !e.TokenAmount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if e.TxHash == "" && e.Seq == 0 {
		return ErrMissingTxIdentity
	}
	return nil
}

// TxIdentity returns the hash, or the sequence number when no hash is known.
func (e *BuyEvent) TxIdentity() string {
	if e.TxHash != "" {
		return e.TxHash
	}
	return strconv.FormatUint(e.Seq, 10)
}
