package currency

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Format renders amount in the given ISO 4217 currency, rounded half away
// from zero to the currency's minor unit. Unknown codes fall back to a plain
// two decimal number followed by the code.
func Format(amount float64, code string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "–"
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	cur := money.GetCurrency(code)
	if cur == nil {
		d := decimal.NewFromFloat(amount).Round(2)
		if code == "" {
			return d.StringFixed(2)
		}
		return d.StringFixed(2) + " " + code
	}

	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// Percent renders a share in [0, 1] as a percentage with one decimal.
func Percent(share float64) string {
	if math.IsNaN(share) || math.IsInf(share, 0) {
		return "–"
	}
	return decimal.NewFromFloat(share).Shift(2).Round(1).StringFixed(1) + "%"
}
