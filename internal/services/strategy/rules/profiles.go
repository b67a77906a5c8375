package rules

import (
	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Strategy names as used by the integrator weights.
const (
	NameScalp = "scalp"
	NameDay   = "day"
	NameSwing = "swing"
)

// Scalp reads M5 and confirms with stochastic and VWAP.
func Scalp() Profile {
	return Profile{
		Name:           NameScalp,
		Timeframes:     []string{domain.TimeframeM5},
		RSIBull:        55,
		RSIBear:        45,
		BaseConfidence: 0.6,
		Bonus:          0.1,
		Confirmations: []Confirmation{
			stochastic("stoch_confirm_buy", "stoch_confirm_sell"),
			vwap("below_vwap_buy", "above_vwap_sell"),
		},
	}
}

// Day reads H1 and confirms with EMA trend, MACD, stochastic and VWAP.
func Day() Profile {
	return Profile{
		Name:           NameDay,
		Timeframes:     []string{domain.TimeframeH1},
		RSIBull:        60,
		RSIBear:        40,
		BaseConfidence: 0.5,
		Bonus:          0.1,
		Confirmations: []Confirmation{
			emaTrend,
			macd,
			stochastic("stoch_buy", "stoch_sell"),
			vwap("below_vwap", "above_vwap"),
		},
	}
}

// Swing reads H4, falling back to D1, and confirms with MACD, structure breaks and band breakouts.
func Swing() Profile {
	return Profile{
		Name:           NameSwing,
		Timeframes:     []string{domain.TimeframeH4, domain.TimeframeD1},
		RSIBull:        65,
		RSIBear:        35,
		BaseConfidence: 0.4,
		Bonus:          0.15,
		Confirmations:  []Confirmation{macd, breakOfStructure, bandBreakout},
	}
}

// NewScalp, NewDay and NewSwing build the evaluators used by the engine.
func NewScalp(cfg config.Config) *Evaluator { return New(Scalp(), cfg) }
func NewDay(cfg config.Config) *Evaluator   { return New(Day(), cfg) }
func NewSwing(cfg config.Config) *Evaluator { return New(Swing(), cfg) }

func emaTrend(dir domain.Decision, ind domain.IndicatorSnapshot, _ domain.MarketEntry) (string, bool) {
	if ind.EMAFast == nil || ind.EMASlow == nil {
		return "", false
	}
	fast, slow := *ind.EMAFast, *ind.EMASlow
	switch {
	case dir == domain.DecisionBuy && fast > slow:
		return "ema_uptrend", true
	case dir == domain.DecisionSell && fast < slow:
		return "ema_downtrend", true
	}
	return "", false
}

func macd(dir domain.Decision, ind domain.IndicatorSnapshot, _ domain.MarketEntry) (string, bool) {
	if ind.MACDHist == nil {
		return "", false
	}
	hist := *ind.MACDHist
	switch {
	case dir == domain.DecisionBuy && hist > 0:
		return "macd_bull", true
	case dir == domain.DecisionSell && hist < 0:
		return "macd_bear", true
	}
	return "", false
}

func stochastic(buyTag, sellTag string) Confirmation {
	return func(dir domain.Decision, ind domain.IndicatorSnapshot, _ domain.MarketEntry) (string, bool) {
		if ind.StochK == nil || ind.StochD == nil {
			return "", false
		}
		k, d := *ind.StochK, *ind.StochD
		switch {
		case dir == domain.DecisionBuy && k < 20 && k > d:
			return buyTag, true
		case dir == domain.DecisionSell && k > 80 && k < d:
			return sellTag, true
		}
		return "", false
	}
}

func vwap(buyTag, sellTag string) Confirmation {
	return func(dir domain.Decision, ind domain.IndicatorSnapshot, e domain.MarketEntry) (string, bool) {
		if ind.VWAP == nil {
			return "", false
		}
		switch {
		case dir == domain.DecisionBuy && e.Bid < *ind.VWAP:
			return buyTag, true
		case dir == domain.DecisionSell && e.Bid > *ind.VWAP:
			return sellTag, true
		}
		return "", false
	}
}

func breakOfStructure(dir domain.Decision, ind domain.IndicatorSnapshot, _ domain.MarketEntry) (string, bool) {
	if ind.BOS == "" || !dir.IsDirectional() {
		return "", false
	}
	return "bos_confirm", true
}

func bandBreakout(dir domain.Decision, ind domain.IndicatorSnapshot, e domain.MarketEntry) (string, bool) {
	switch {
	case dir == domain.DecisionBuy && ind.BBUpper != nil && e.Bid > *ind.BBUpper:
		return "bb_breakout_up", true
	case dir == domain.DecisionSell && ind.BBLower != nil && e.Bid < *ind.BBLower:
		return "bb_breakout_down", true
	}
	return "", false
}
