package domain

// IndicatorSnapshot holds precomputed indicator values for one timeframe.
// A nil field means the feed did not provide the value.
type IndicatorSnapshot struct {
	EMAFast         *float64 `json:"ema_fast,omitempty"`
	EMASlow         *float64 `json:"ema_slow,omitempty"`
	EMASlope        *float64 `json:"ema_slope,omitempty"`
	RSI             *float64 `json:"rsi,omitempty"`
	MACDMain        *float64 `json:"macd_main,omitempty"`
	MACDSignal      *float64 `json:"macd_signal,omitempty"`
	MACDHist        *float64 `json:"macd_hist,omitempty"`
	ATR             *float64 `json:"atr,omitempty"`
	ATRMA           *float64 `json:"atr_ma,omitempty"`
	StochK          *float64 `json:"stoch_k,omitempty"`
	StochD          *float64 `json:"stoch_d,omitempty"`
	VWAP            *float64 `json:"vwap,omitempty"`
	ADX             *float64 `json:"adx,omitempty"`
	BBMid           *float64 `json:"bb_mid,omitempty"`
	BBUpper         *float64 `json:"bb_upper,omitempty"`
	BBLower         *float64 `json:"bb_lower,omitempty"`
	BBWidth         *float64 `json:"bb_width,omitempty"`
	BOSVal          *float64 `json:"bos_val,omitempty"`
	TrendScore      *float64 `json:"trend_score,omitempty"`
	VolumeImbalance *float64 `json:"volume_imbalance,omitempty"`
	BOS             string   `json:"bos,omitempty"`
	BOSLabel        string   `json:"bos_label,omitempty"`
}

// Or dereferences p, returning def when the value is absent.
func Or(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// F returns a pointer to v. Handy for building snapshots in code.
func F(v float64) *float64 {
	return &v
}

// IsEmpty reports whether no numeric or structural field is set.
func (s IndicatorSnapshot) IsEmpty() bool {
	for _, p := range s.fields() {
		if p != nil {
			return false
		}
	}
	return s.BOS == "" && s.BOSLabel == ""
}

func (s IndicatorSnapshot) fields() []*float64 {
	return []*float64{
		s.EMAFast, s.EMASlow, s.EMASlope, s.RSI, s.MACDMain, s.MACDSignal, s.MACDHist,
		s.ATR, s.ATRMA, s.StochK, s.StochD, s.VWAP, s.ADX, s.BBMid, s.BBUpper, s.BBLower,
		s.BBWidth, s.BOSVal, s.TrendScore, s.VolumeImbalance,
	}
}
