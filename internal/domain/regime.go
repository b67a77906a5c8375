package domain

// Regime is the classified volatility/trend condition of a market.
type Regime string

const (
	RegimeTrend   Regime = "trend"
	RegimeRange   Regime = "range"
	RegimeHighVol Regime = "high_vol"
	RegimeLowVol  Regime = "low_vol"
	RegimeNormal  Regime = "normal"
)

var regimes = []Regime{RegimeTrend, RegimeRange, RegimeHighVol, RegimeLowVol, RegimeNormal}

// Regimes returns all regimes in a fixed order, used for one-hot features.
func Regimes() []Regime {
	out := make([]Regime, len(regimes))
	copy(out, regimes)
	return out
}

// ParseRegime reports whether s names a known regime.
func ParseRegime(s string) (Regime, bool) {
	for _, r := range regimes {
		if string(r) == s {
			return r, true
		}
	}
	return RegimeNormal, false
}

func (r Regime) String() string {
	return string(r)
}
