package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
)

// Jetton master transaction fields for pre-listing (Blum) tokens.
var (
	jettonRecipient = Field{
		P("recipient"), P("receiver"), P("to"), P("destination"),
		P("JettonMint", "recipient"), P("JettonTransfer", "recipient"),
	}
	jettonAmount = Field{
		P("amount"), P("jetton_amount"), P("jettonAmount"), P("value"),
		P("JettonMint", "amount"), P("JettonTransfer", "amount"),
	}
	tonSender = Field{P("sender"), P("from"), P("source"), P("TonTransfer", "sender")}
	tonAmount = Field{P("amount"), P("value"), P("ton_amount"), P("tonAmount"), P("TonTransfer", "amount")}
)

// Action types, compared after lowercasing and dropping '_' and '-'.
var (
	jettonReceiptTypes = map[string]bool{"jettonmint": true, "jettontransfer": true, "mint": true}
	tonTransferTypes   = map[string]bool{"tontransfer": true, "transfer": true, "ton": true}

	actionTypeCleaner = strings.NewReplacer("_", "", "-", "")
)

func blumActionType(a Record) string {
	return actionTypeCleaner.Replace(strings.ToLower(actionType.String(a)))
}

type blumTx struct{}

// BlumTx normalizes jetton master transactions of tokens still on the
// launchpad: every jetton mint or transfer recipient that also sent TON in
// the same transaction is a buyer.
var BlumTx Extractor = blumTx{}

func (blumTx) Seq(rec Record) (uint64, bool) {
	return txLt.Uint(rec)
}

func (blumTx) Normalize(rec Record, nctx *Context) []domain.BuyEvent {
	hash := txHash.String(rec)
	lt, _ := txLt.Uint(rec)
	if hash == "" && lt == 0 {
		return nil
	}
	actions, _ := rec["actions"].([]any)

	type receipt struct {
		index     int
		recipient string
		amount    decimal.Decimal
	}
	var received []receipt
	spent := make(map[string]decimal.Decimal)

	for i, raw := range actions {
		a, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		at := blumActionType(a)

		switch {
		case jettonReceiptTypes[at]:
			to := jettonRecipient.String(a)
			amt, ok := jettonAmount.Amount(a)
			if to == "" || !ok {
				continue
			}
			if v := Scale(amt, nctx.decimals()); v.IsPositive() {
				received = append(received, receipt{index: i, recipient: to, amount: v})
			}
		case tonTransferTypes[at]:
			from := tonSender.String(a)
			amt, ok := tonAmount.Amount(a)
			if from == "" || !ok {
				continue
			}
			if v := Scale(amt, TONDecimals); v.IsPositive() {
				spent[from] = spent[from].Add(v)
			}
		}
	}

	var out []domain.BuyEvent
	for _, r := range received {
		ev, ok := nctx.event(r.recipient, hash, lt, r.index, spent[r.recipient], r.amount)
		if ok {
			out = append(out, ev)
		}
	}
	return out
}
