package normalize

import (
	"strings"

	"tonbuy-alerts/internal/domain"
)

// DeDust trade fields.
var (
	tradeAssetIn   = Field{P("assetIn"), P("asset_in"), P("inAsset"), P("in_asset")}
	tradeAssetOut  = Field{P("assetOut"), P("asset_out"), P("outAsset"), P("out_asset")}
	tradeAmountIn  = Field{P("amountIn"), P("amount_in"), P("inAmount"), P("in_amount")}
	tradeAmountOut = Field{P("amountOut"), P("amount_out"), P("outAmount"), P("out_amount")}
	tradeBuyer     = Field{P("sender"), P("trader"), P("buyer"), P("from")}
	tradeSeq       = Field{
		P("lt"), P("tx_lt"), P("transaction", "lt"),
		P("id"), P("trade_id"), P("tradeId"), P("event_id"), P("eventId"), P("seqno"),
	}
	tradeHash = Field{
		P("transaction", "hash"), P("transaction", "tx_hash"), P("transaction", "txHash"), P("transaction", "transactionHash"),
		P("tx_hash"), P("txHash"), P("hash"), P("transactionHash"), P("txHashHex"), P("tx_hash_hex"), P("txhash"), P("txHash64"),
	}

	assetKind   = Field{P("type"), P("kind")}
	assetNative = Field{P("is_native"), P("isNative")}
	assetSymbol = Field{P("symbol"), P("ticker"), P("meta", "symbol"), P("meta", "ticker")}
	assetAddr   = Field{
		P("address"), P("master"), P("master_address"), P("jetton_master"), P("jettonMaster"),
		P("jetton", "address"), P("jetton", "master"), P("token", "address"), P("token", "master"),
		P("contract", "address"), P("meta", "address"),
	}
)

var nativeKinds = map[string]bool{"native": true, "ton": true, "native_ton": true, "native-ton": true}

// isTONAsset tries, in order: a type/kind tag, a native flag, the symbol.
func isTONAsset(asset Record) bool {
	if asset == nil {
		return false
	}
	if nativeKinds[strings.ToLower(assetKind.String(asset))] {
		return true
	}
	if v, ok := assetNative.Lookup(asset); ok && truthy(v) {
		return true
	}
	return strings.EqualFold(assetSymbol.String(asset), "TON")
}

func assetMaster(asset Record) string {
	if asset == nil {
		return ""
	}
	return assetAddr.String(asset)
}

type dedustTrade struct{}

// DeDustTrade normalizes trades from the DeDust trades API.
var DeDustTrade Extractor = dedustTrade{}

// Records without a numeric lt or id have no cursor position and are dropped.
func (dedustTrade) Seq(rec Record) (uint64, bool) {
	return tradeSeq.Uint(rec)
}

func (d dedustTrade) Normalize(rec Record, nctx *Context) []domain.BuyEvent {
	seq, ok := d.Seq(rec)
	if !ok {
		return nil
	}

	in := tradeAssetIn.Object(rec)
	outAsset := tradeAssetOut.Object(rec)
	if !isTONAsset(in) || isTONAsset(outAsset) {
		return nil
	}
	if !nctx.tokenMatches(assetMaster(outAsset)) {
		return nil
	}

	amtIn, _ := tradeAmountIn.Amount(rec)
	amtOut, _ := tradeAmountOut.Amount(rec)
	ev, ok := nctx.event(tradeBuyer.String(rec), tradeHash.String(rec), seq, 0,
		Scale(amtIn, TONDecimals), Scale(amtOut, nctx.decimals()))
	if !ok {
		return nil
	}
	return []domain.BuyEvent{ev}
}
