package normalize

import (
	"strings"

	"tonbuy-alerts/internal/domain"
)

// TonAPI transaction and swap-action fields. Flat names come from the
// transaction action list; the JettonSwap paths from the event action shape.
var (
	txHash = Field{P("hash"), P("id"), P("transaction_id", "hash")}
	txLt   = Field{P("lt"), P("transaction_id", "lt")}

	actionType = Field{P("type"), P("action"), P("name")}
	actionDex  = Field{P("dex", "name"), P("dex", "title"), P("dex", "id"), P("dex"), P("JettonSwap", "dex")}
	swapBuyer  = Field{
		P("user"), P("sender"), P("initiator"), P("from"), P("account"),
		P("JettonSwap", "user_wallet"),
	}
	swapTonIn = Field{
		P("ton_in"), P("tonIn"), P("in_ton"), P("inTon"), P("amount_ton_in"),
		P("JettonSwap", "ton_in"),
	}
	swapJettonOut = Field{
		P("jetton_out"), P("jettonOut"), P("out_jetton"), P("outJetton"), P("amount_jetton_out"),
		P("JettonSwap", "amount_out"),
	}
	swapOutMaster = Field{
		P("jetton_master"), P("jettonMaster"), P("jetton"), P("out"),
		P("JettonSwap", "jetton_master_out"),
	}
	swapOutAsset = Field{P("assetOut"), P("asset_out"), P("outAsset"), P("out_asset")}
)

type tonapiTx struct{}

// TonAPITx normalizes TonAPI pool transactions of STON.fi and DeDust pools.
var TonAPITx Extractor = tonapiTx{}

func (tonapiTx) Seq(rec Record) (uint64, bool) {
	return txLt.Uint(rec)
}

// swapLeg is one swap action reduced to what buy detection reads.
type swapLeg struct {
	index    int
	buyer    string
	tonIn    Amount
	tokenOut Amount
	master   string
}

func (tonapiTx) Normalize(rec Record, nctx *Context) []domain.BuyEvent {
	hash := txHash.String(rec)
	lt, _ := txLt.Uint(rec)
	if hash == "" && lt == 0 {
		return nil
	}

	actions, _ := rec["actions"].([]any)
	var legs []swapLeg
	for i, raw := range actions {
		a, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		at := strings.ToLower(actionType.String(a))
		if !strings.Contains(at, "swap") && !strings.Contains(at, "dex") {
			continue
		}
		if dex := actionDex.String(a); dex != "" && domain.ParseDexKind(dex) != nctx.Pair.Dex {
			continue
		}

		leg := swapLeg{index: i, buyer: swapBuyer.String(a)}
		leg.tonIn, _ = swapTonIn.Amount(a)
		leg.tokenOut, _ = swapJettonOut.Amount(a)
		leg.master = swapOutMaster.String(a)
		if leg.master == "" {
			leg.master = assetMaster(swapOutAsset.Object(a))
		}
		legs = append(legs, leg)
	}

	var out []domain.BuyEvent
	for _, leg := range legs {
		if !nctx.tokenMatches(leg.master) || leg.buyer == "" {
			continue
		}
		ev, ok := nctx.event(leg.buyer, hash, lt, leg.index,
			Scale(leg.tonIn, TONDecimals), Scale(leg.tokenOut, nctx.decimals()))
		if ok {
			out = append(out, ev)
		}
	}

	if len(out) == 0 && nctx.Strictness == Lenient {
		if ev, ok := multiHop(legs, hash, lt, nctx); ok {
			out = append(out, ev)
		}
	}
	return out
}

// multiHop attributes a TON -> X -> token route spread over several actions.
func multiHop(legs []swapLeg, hash string, lt uint64, nctx *Context) (domain.BuyEvent, bool) {
	if len(legs) < 2 {
		return domain.BuyEvent{}, false
	}
	first, last := legs[0], legs[len(legs)-1]
	if !first.tonIn.Value.IsPositive() || !last.tokenOut.Value.IsPositive() {
		return domain.BuyEvent{}, false
	}
	if last.master == "" || !nctx.tokenMatches(last.master) {
		return domain.BuyEvent{}, false
	}
	buyer := first.buyer
	if buyer == "" {
		buyer = last.buyer
	}
	if buyer == "" {
		return domain.BuyEvent{}, false
	}
	return nctx.event(buyer, hash, lt, last.index,
		Scale(first.tonIn, TONDecimals), Scale(last.tokenOut, nctx.decimals()))
}
