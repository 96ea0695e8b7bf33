// Package holders classifies buyers as new or existing holders of a token.
package holders

import (
	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
)

// Target identifies whose buyer map a buy is recorded against.
type Target struct {
	PairID  string // set for tracked pairs
	WatchID string // set for early-mode watch entries
}

// BuyerRecorder persists buyer counts. Implemented by state.Registry.
type BuyerRecorder interface {
	RecordPairBuyer(pairID, buyer string) (bool, error)
	RecordWatchBuyer(watchID, buyer string) (bool, error)
}

// Tracker records buyers and classifies them. Buyer maps only grow.
type Tracker struct {
	recorder BuyerRecorder
	logger   *zap.Logger
}

// NewTracker creates a tracker recording through recorder.
func NewTracker(recorder BuyerRecorder, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{recorder: recorder, logger: logger.Named("holders")}
}

// Classify records buyer against target and returns NewHolder on the buyer's
// first recorded buy. An empty buyer is an existing holder and is not recorded.
// Recording failures degrade to ExistingHolder.
func (t *Tracker) Classify(target Target, buyer string) domain.HolderStatus {
	if buyer == "" {
		return domain.ExistingHolder
	}

	var (
		first bool
		err   error
	)
	switch {
	case target.PairID != "":
		first, err = t.recorder.RecordPairBuyer(target.PairID, buyer)
	case target.WatchID != "":
		first, err = t.recorder.RecordWatchBuyer(target.WatchID, buyer)
	default:
		return domain.ExistingHolder
	}
	if err != nil {
		t.logger.Warn("record buyer failed",
			zap.String("pair", target.PairID),
			zap.String("watch", target.WatchID),
			zap.Error(err))
		return domain.ExistingHolder
	}
	if first {
		return domain.NewHolder
	}
	return domain.ExistingHolder
}
