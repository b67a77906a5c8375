// Package regime classifies the market condition from volatility and trend strength.
package regime

import (
	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Execution modes stamped on the final decision.
const (
	ExecScaler = "scaler"
	ExecStrict = "strict"
)

// Detector is the rule-based regime detector.
type Detector struct {
	atrThreshold float64
	adxThreshold float64
}

// NewDetector reads the ATR and ADX thresholds from the global section.
func NewDetector(cfg config.Config) *Detector {
	return &Detector{atrThreshold: cfg.Global.ATRThreshold, adxThreshold: cfg.Global.ADXThreshold}
}

// Detect never fails: NaN inputs fall through every comparison and end up as normal.
func (d *Detector) Detect(atr, adx float64) domain.Regime {
	if atr == 0 && adx == 0 {
		return domain.RegimeNormal
	}

	switch {
	case atr >= d.atrThreshold && adx >= d.adxThreshold:
		return domain.RegimeTrend
	case atr < d.atrThreshold && adx < d.adxThreshold:
		return domain.RegimeRange
	case atr >= d.atrThreshold && adx < d.adxThreshold:
		return domain.RegimeHighVol
	case atr < d.atrThreshold && adx >= d.adxThreshold:
		return domain.RegimeLowVol
	default:
		return domain.RegimeNormal
	}
}

// SelectMode picks scaler when both ATR and ADX clear the symbol thresholds.
// A zero ATR falls back to the symbol's last known ATR.
func SelectMode(sym config.SymbolConfig, atr, adx float64) string {
	if atr == 0 {
		atr = domain.Or(sym.LastATR, 0)
	}
	if atr >= sym.ATRThreshold && adx >= sym.ADXThreshold {
		return ExecScaler
	}
	return ExecStrict
}
