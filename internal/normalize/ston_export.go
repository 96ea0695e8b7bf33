package normalize

import (
	"strings"

	"tonbuy-alerts/internal/domain"
)

// STON export event fields. Amounts in this feed are already human scale.
var (
	stonEventType  = Field{P("eventType"), P("event_type")}
	stonPairID     = Field{P("pairId"), P("pair_id")}
	stonTxnID      = Field{P("txnId"), P("txn_id"), P("txHash")}
	stonMaker      = Field{P("maker"), P("sender")}
	stonBlock      = Field{P("block", "blockNumber"), P("blockNumber"), P("block_number")}
	stonEventIndex = Field{P("eventIndex"), P("event_index")}
	stonAmount0In  = Field{P("amount0In"), P("amount0_in")}
	stonAmount0Out = Field{P("amount0Out"), P("amount0_out")}
	stonAmount1In  = Field{P("amount1In"), P("amount1_in")}
	stonAmount1Out = Field{P("amount1Out"), P("amount1_out")}
)

type stonExport struct{}

// StonExport normalizes STON.fi export feed events.
var StonExport Extractor = stonExport{}

// StonExportPairID returns the pool an export event belongs to.
func StonExportPairID(rec Record) string {
	return stonPairID.String(rec)
}

func (stonExport) Seq(rec Record) (uint64, bool) {
	return stonBlock.Uint(rec)
}

func (stonExport) Normalize(rec Record, nctx *Context) []domain.BuyEvent {
	if !strings.EqualFold(stonEventType.String(rec), "swap") {
		return nil
	}
	if stonPairID.String(rec) != nctx.Pair.ID {
		return nil
	}
	tx := stonTxnID.String(rec)
	if tx == "" {
		return nil
	}

	a0in, _ := stonAmount0In.Amount(rec)
	a0out, _ := stonAmount0Out.Amount(rec)
	a1in, _ := stonAmount1In.Amount(rec)
	a1out, _ := stonAmount1Out.Amount(rec)

	var baseIn, tokenOut Amount
	switch nctx.Pair.BaseSide {
	case domain.BaseSide0:
		baseIn, tokenOut = a0in, a1out
	case domain.BaseSide1:
		baseIn, tokenOut = a1in, a0out
	default:
		// Direction cannot be told without the TON side.
		return nil
	}

	block, _ := stonBlock.Uint(rec)
	leg, _ := stonEventIndex.Uint(rec)
	ev, ok := nctx.event(stonMaker.String(rec), tx, block, int(leg), baseIn.Value, tokenOut.Value)
	if !ok {
		return nil
	}
	return []domain.BuyEvent{ev}
}
