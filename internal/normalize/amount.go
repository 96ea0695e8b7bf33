package normalize

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// TONDecimals is the decimal count of the native coin.
const TONDecimals = 9

// humanHeadroom is how many orders of magnitude below one whole minor-unit
// token an integral value may be while still counting as human scale.
const humanHeadroom = 3

// Amount is a parsed numeric value. Integral is true when the upstream text
// carried no fraction or exponent, i.e. it may be a raw minor-unit count.
type Amount struct {
	Value    decimal.Decimal
	Integral bool
}

func parseAmount(v any) (Amount, bool) {
	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	case float64:
		d := decimal.NewFromFloat(t)
		return Amount{Value: d, Integral: d.Equal(d.Truncate(0))}, true
	case int:
		return Amount{Value: decimal.NewFromInt(int64(t)), Integral: true}, true
	case int64:
		return Amount{Value: decimal.NewFromInt(t), Integral: true}, true
	default:
		return Amount{}, false
	}
	if text == "" {
		return Amount{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return Amount{}, false
	}
	return Amount{Value: d, Integral: !strings.ContainsAny(text, ".eE")}, true
}

// Scale converts a raw amount to human units. Only integral values larger
// than 10^(decimals-3) are treated as minor units and shifted by decimals;
// fractional values are already human scale and are never shifted twice.
func Scale(a Amount, decimals int) decimal.Decimal {
	if !a.Integral || decimals <= 0 {
		return a.Value
	}
	threshold := decimal.New(1, int32(decimals-humanHeadroom))
	if a.Value.Abs().GreaterThan(threshold) {
		return a.Value.Shift(int32(-decimals))
	}
	return a.Value
}
