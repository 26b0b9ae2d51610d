package compute

import (
	"github.com/shopspring/decimal"
)

// Side names which breast reads warmer on average.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// WarmerSide returns SideRight when the right average is strictly greater,
// otherwise SideLeft.
func WarmerSide(m Metrics) Side {
	if m.AvgRight > m.AvgLeft {
		return SideRight
	}
	return SideLeft
}

// FormatTemp renders a temperature with one decimal, e.g. "36.6".
func FormatTemp(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

// FormatAsymmetry renders an asymmetry with two decimals, e.g. "0.45".
func FormatAsymmetry(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// SignedAsymmetry renders the asymmetry as "+x.xx" when the right side is
// warmer and "-x.xx" otherwise.
func SignedAsymmetry(m Metrics) string {
	sign := "-"
	if WarmerSide(m) == SideRight {
		sign = "+"
	}
	return sign + FormatAsymmetry(m.Asymmetry)
}
