package normalize

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/domain"
)

const tokenAddr = "EQtoken"

func decodeRecord(t *testing.T, s string) Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var rec Record
	require.NoError(t, dec.Decode(&rec))
	return rec
}

func testContext(dex domain.DexKind, side domain.BaseSide, source domain.SourceKind) *Context {
	return &Context{
		Pair: &domain.TrackedPair{
			ID:           "EQpool",
			Symbol:       "ABC",
			TokenAddress: tokenAddr,
			Dex:          dex,
			BaseSide:     side,
		},
		Source:   source,
		Decimals: 9,
		Now:      time.Unix(1700000000, 0),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScale(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		decimals int
		want     string
	}{
		{"raw minor units", json.Number("5000000000"), 9, "5"},
		{"human with fraction", json.Number("5.0"), 9, "5"},
		{"small integer stays human", json.Number("500"), 9, "500"},
		{"string minor units", "2500000000", 9, "2.5"},
		{"six decimals", json.Number("1500000"), 6, "1.5"},
		{"float fraction", 0.25, 9, "0.25"},
		{"exponent is human", json.Number("5e3"), 9, "5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := parseAmount(tt.raw)
			require.True(t, ok)
			got := Scale(a, tt.decimals)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}

	// Scaling a human value never happens twice.
	a, _ := parseAmount(json.Number("5.0"))
	assert.True(t, Scale(Amount{Value: Scale(a, 9)}, 9).Equal(dec("5")))
}

func TestField_FirstMatchWins(t *testing.T) {
	rec := decodeRecord(t, `{"b":"second","nested":{"a":"first"},"c":{"address":"EQobj"}}`)

	assert.Equal(t, "first", Field{P("nested", "a"), P("b")}.String(rec))
	assert.Equal(t, "second", Field{P("missing"), P("b")}.String(rec))
	assert.Equal(t, "EQobj", Field{P("c")}.String(rec))
	assert.Equal(t, "", Field{P("nested", "a", "deeper")}.String(rec))
}

func TestStonExport(t *testing.T) {
	buy := `{"eventType":"swap","pairId":"EQpool","txnId":"tx1","maker":"EQbuyer",
		"block":{"blockNumber":101},"eventIndex":2,
		"amount0In":"1.5","amount1Out":"3000"}`
	sell := `{"eventType":"swap","pairId":"EQpool","txnId":"tx2","maker":"EQseller",
		"block":{"blockNumber":102},"amount1In":"3000","amount0Out":"1.4"}`

	nctx := testContext(domain.DexStonFi, domain.BaseSide0, domain.SourceStonExport)

	evs := StonExport.Normalize(decodeRecord(t, buy), nctx)
	require.Len(t, evs, 1)
	e := evs[0]
	assert.Equal(t, "EQbuyer", e.Buyer)
	assert.Equal(t, "tx1", e.TxHash)
	assert.Equal(t, uint64(101), e.Seq)
	assert.Equal(t, 2, e.Leg)
	assert.True(t, e.BaseAmount.Equal(dec("1.5")))
	assert.True(t, e.TokenAmount.Equal(dec("3000")), "export amounts are never scaled")
	assert.Equal(t, domain.SourceStonExport, e.Source)

	seq, ok := StonExport.Seq(decodeRecord(t, buy))
	assert.True(t, ok)
	assert.Equal(t, uint64(101), seq)

	assert.Nil(t, StonExport.Normalize(decodeRecord(t, sell), nctx), "sell is never a buy")

	// TON on side 1 flips the legs: the same event is now a sell.
	flipped := testContext(domain.DexStonFi, domain.BaseSide1, domain.SourceStonExport)
	assert.Nil(t, StonExport.Normalize(decodeRecord(t, buy), flipped))
	require.Len(t, StonExport.Normalize(decodeRecord(t, sell), flipped), 1)

	unknown := testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonExport)
	assert.Nil(t, StonExport.Normalize(decodeRecord(t, buy), unknown), "unknown base side is rejected")

	other := decodeRecord(t, strings.Replace(buy, "EQpool", "EQother", 1))
	assert.Nil(t, StonExport.Normalize(other, nctx))

	join := decodeRecord(t, strings.Replace(buy, `"swap"`, `"join"`, 1))
	assert.Nil(t, StonExport.Normalize(join, nctx))
}

func TestTonAPITx_Strict(t *testing.T) {
	tx := `{"hash":"h1","lt":"48000000000005","actions":[
		{"type":"SmartContractExec"},
		{"type":"JettonSwap","dex":{"name":"stonfi"},"user":{"address":"EQbuyer"},
		 "ton_in":"2000000000","jetton_out":"150000000000","jetton_master":"EQtoken"},
		{"type":"JettonSwap","dex":{"name":"stonfi"},"user":"EQbuyer2",
		 "ton_in":"1000000000","jetton_out":"70000000000","jetton_master":"EQelse"},
		{"type":"JettonSwap","dex":{"name":"dedust"},"user":"EQbuyer3",
		 "ton_in":"1000000000","jetton_out":"70000000000"},
		{"type":"dex_swap","sender":"EQbuyer4","tonIn":"0.5","jettonOut":"25.5"}
	]}`
	nctx := testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonPool)

	evs := TonAPITx.Normalize(decodeRecord(t, tx), nctx)
	require.Len(t, evs, 2)

	assert.Equal(t, "EQbuyer", evs[0].Buyer)
	assert.Equal(t, 1, evs[0].Leg)
	assert.Equal(t, uint64(48000000000005), evs[0].Seq)
	assert.True(t, evs[0].BaseAmount.Equal(dec("2")))
	assert.True(t, evs[0].TokenAmount.Equal(dec("150")))

	assert.Equal(t, "EQbuyer4", evs[1].Buyer)
	assert.Equal(t, 4, evs[1].Leg)
	assert.True(t, evs[1].BaseAmount.Equal(dec("0.5")))
	assert.True(t, evs[1].TokenAmount.Equal(dec("25.5")))
}

func TestTonAPITx_NestedSwapShape(t *testing.T) {
	tx := `{"transaction_id":{"hash":"h9","lt":"77"},"actions":[
		{"type":"JettonSwap","JettonSwap":{"dex":"stonfi","ton_in":3000000000,"amount_out":"9000000000",
		 "user_wallet":{"address":"EQnested"},"jetton_master_out":{"address":"EQtoken"}}}
	]}`
	evs := TonAPITx.Normalize(decodeRecord(t, tx), testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonPool))
	require.Len(t, evs, 1)
	assert.Equal(t, "h9", evs[0].TxHash)
	assert.Equal(t, uint64(77), evs[0].Seq)
	assert.Equal(t, "EQnested", evs[0].Buyer)
	assert.True(t, evs[0].BaseAmount.Equal(dec("3")))
	assert.True(t, evs[0].TokenAmount.Equal(dec("9")))
}

func TestTonAPITx_NullCases(t *testing.T) {
	nctx := testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonPool)
	cases := map[string]string{
		"sell":             `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","user":"EQu","ton_out":"1000000000","jetton_in":"5"}]}`,
		"zero ton":         `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","user":"EQu","ton_in":"0","jetton_out":"5"}]}`,
		"token mismatch":   `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","user":"EQu","ton_in":"1","jetton_out":"5","jetton_master":"EQnot"}]}`,
		"not a swap":       `{"hash":"h","lt":1,"actions":[{"type":"TonTransfer","user":"EQu","ton_in":"1","jetton_out":"5"}]}`,
		"no actions":       `{"hash":"h","lt":1}`,
		"no identity":      `{"actions":[{"type":"JettonSwap","user":"EQu","ton_in":"1","jetton_out":"5"}]}`,
		"no buyer":         `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","ton_in":"1","jetton_out":"5"}]}`,
		"other dex":        `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","dex":"dedust","user":"EQu","ton_in":"1","jetton_out":"5"}]}`,
		"malformed amount": `{"hash":"h","lt":1,"actions":[{"type":"JettonSwap","user":"EQu","ton_in":"abc","jetton_out":"5"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, TonAPITx.Normalize(decodeRecord(t, raw), nctx))
		})
	}
}

func TestTonAPITx_MultiHop(t *testing.T) {
	tx := `{"hash":"hop","lt":"9","actions":[
		{"type":"JettonSwap","user":"EQbuyer","ton_in":"4000000000","jetton_out":"10000000","jetton_master":"EQusdt"},
		{"type":"JettonSwap","user":"EQbuyer","jetton_in":"10000000","jetton_out":"800000000000","jetton_master":"EQtoken"}
	]}`
	rec := decodeRecord(t, tx)

	strict := testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonPool)
	assert.Nil(t, TonAPITx.Normalize(rec, strict))

	lenient := testContext(domain.DexStonFi, domain.BaseSideUnknown, domain.SourceStonPool)
	lenient.Strictness = Lenient
	evs := TonAPITx.Normalize(rec, lenient)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].Leg)
	assert.True(t, evs[0].BaseAmount.Equal(dec("4")))
	assert.True(t, evs[0].TokenAmount.Equal(dec("800")))
}

func TestDeDustTrade(t *testing.T) {
	nctx := testContext(domain.DexDeDust, domain.BaseSideUnknown, domain.SourceDeDust)

	tests := []struct {
		name  string
		raw   string
		wantN int
	}{
		{"native type", `{"lt":"10","sender":"EQb","assetIn":{"type":"native"},"assetOut":{"type":"jetton","address":"EQtoken"},"amountIn":"1000000000","amountOut":"5000000000"}`, 1},
		{"native flag", `{"id":11,"trader":"EQb","asset_in":{"isNative":true},"asset_out":{"jetton":{"address":"EQtoken"}},"amount_in":"1.5","amount_out":"5"}`, 1},
		{"symbol match", `{"lt":"12","buyer":"EQb","inAsset":{"meta":{"symbol":"ton"}},"outAsset":{"symbol":"ABC"},"inAmount":"2","outAmount":"7"}`, 1},
		{"sell", `{"lt":"13","sender":"EQb","assetIn":{"type":"jetton","address":"EQtoken"},"assetOut":{"type":"native"},"amountIn":"5","amountOut":"1"}`, 0},
		{"other token", `{"lt":"14","sender":"EQb","assetIn":{"type":"native"},"assetOut":{"address":"EQother"},"amountIn":"1","amountOut":"5"}`, 0},
		{"no sequence", `{"sender":"EQb","assetIn":{"type":"native"},"assetOut":{"address":"EQtoken"},"amountIn":"1","amountOut":"5"}`, 0},
		{"zero out", `{"lt":"15","sender":"EQb","assetIn":{"type":"native"},"assetOut":{"address":"EQtoken"},"amountIn":"1","amountOut":"0"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := DeDustTrade.Normalize(decodeRecord(t, tt.raw), nctx)
			assert.Len(t, evs, tt.wantN)
		})
	}

	evs := DeDustTrade.Normalize(decodeRecord(t, tests[0].raw), nctx)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].BaseAmount.Equal(dec("1")))
	assert.True(t, evs[0].TokenAmount.Equal(dec("5")))
	assert.Equal(t, uint64(10), evs[0].Seq)
}

func TestBlumTx(t *testing.T) {
	tx := `{"hash":"bh","lt":"500","actions":[
		{"type":"TonTransfer","TonTransfer":{"sender":{"address":"EQbuyer"},"amount":2000000000}},
		{"type":"TonTransfer","sender":"EQbuyer","amount":"0.5"},
		{"type":"JettonMint","JettonMint":{"recipient":{"address":"EQbuyer"},"amount":"1000000000000"}},
		{"type":"JettonTransfer","recipient":"EQfree","amount":"5000000000"}
	]}`
	nctx := testContext(domain.DexBlum, domain.BaseSideUnknown, domain.SourceBlum)

	evs := BlumTx.Normalize(decodeRecord(t, tx), nctx)
	require.Len(t, evs, 1, "recipient without TON spent is not a buy")
	assert.Equal(t, "EQbuyer", evs[0].Buyer)
	assert.Equal(t, 2, evs[0].Leg)
	assert.True(t, evs[0].BaseAmount.Equal(dec("2.5")))
	assert.True(t, evs[0].TokenAmount.Equal(dec("1000")))
	assert.Equal(t, uint64(500), evs[0].Seq)
}

func TestBlumTx_OtherJettonActionsAreNotTONSpent(t *testing.T) {
	tx := `{"hash":"bh2","lt":"600","actions":[
		{"type":"JettonBurn","sender":"EQbuyer","amount":"7000000000"},
		{"type":"JettonSwap","sender":"EQbuyer","amount":"9000000000"},
		{"type":"ton_transfer","sender":"EQbuyer","amount":1000000000},
		{"type":"jetton_mint","recipient":"EQbuyer","amount":"2000000000000"}
	]}`
	nctx := testContext(domain.DexBlum, domain.BaseSideUnknown, domain.SourceBlum)

	evs := BlumTx.Normalize(decodeRecord(t, tx), nctx)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].BaseAmount.Equal(dec("1")), "got %s", evs[0].BaseAmount)
	assert.True(t, evs[0].TokenAmount.Equal(dec("2000")))
	assert.Equal(t, 3, evs[0].Leg)
}

func TestTxHashHex(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	hexForm := "00070e151c232a31383f464d545b626970777e858c939aa1a8afb6bdc4cbd2d9"

	assert.Equal(t, hexForm, TxHashHex(hexForm))
	assert.Equal(t, hexForm, TxHashHex("0x"+strings.ToUpper(hexForm)))
	assert.Equal(t, hexForm, TxHashHex(base64.StdEncoding.EncodeToString(raw)))
	assert.Equal(t, hexForm, TxHashHex(base64.RawURLEncoding.EncodeToString(raw)))
	assert.Equal(t, "", TxHashHex("nothex"))
	assert.Equal(t, "", TxHashHex(""))

	assert.Equal(t, "https://tonviewer.com/transaction/"+hexForm, TxURL(hexForm, ""))
	assert.Equal(t, "https://fallback", TxURL("bad", "https://fallback"))
}

func TestSameAddress(t *testing.T) {
	hash := make([]byte, 32)
	hash[0], hash[31] = 0xab, 0x01
	b := append([]byte{0x11, 0x00}, hash...)
	b = append(b, 0x00, 0x00)
	friendly := base64.URLEncoding.EncodeToString(b)
	raw := "0:ab000000000000000000000000000000000000000000000000000000000000" + "01"

	got, ok := RawAddress(friendly)
	require.True(t, ok)
	assert.Equal(t, raw, got)
	assert.True(t, SameAddress(friendly, raw[:2]+strings.ToUpper(raw[2:])))
	assert.False(t, SameAddress(friendly, "EQother"))
	assert.True(t, SameAddress("EQsame", "EQsame"))
}

func TestParseStrictness(t *testing.T) {
	s, err := ParseStrictness("Lenient")
	require.NoError(t, err)
	assert.Equal(t, Lenient, s)

	s, err = ParseStrictness("")
	require.NoError(t, err)
	assert.Equal(t, Strict, s)

	_, err = ParseStrictness("maybe")
	assert.Error(t, err)
}
