// Package rules implements the scalp, day and swing rule strategies.
// All three share one evaluator and differ only by Profile.
package rules

import (
	"math"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	reasonNoIndicators  = "no_indicators"
	reasonLowVolatility = "low_volatility"
	reasonWeakTrend     = "weak_trend"
	reasonFlatZone      = "flat_zone"
	reasonRSIBull       = "rsi_bull"
	reasonRSIBear       = "rsi_bear"
)

// Confirmation checks one secondary signal for the chosen direction and returns its tag.
type Confirmation func(dir domain.Decision, ind domain.IndicatorSnapshot, e domain.MarketEntry) (string, bool)

// Profile parameterizes a rule strategy.
type Profile struct {
	Name           string
	Timeframes     []string
	RSIBull        float64
	RSIBear        float64
	BaseConfidence float64
	Bonus          float64
	Confirmations  []Confirmation
}

// Evaluator runs a Profile against a market entry.
type Evaluator struct {
	profile Profile
	cfg     config.Config
}

// New creates an evaluator for profile using symbol thresholds from cfg.
func New(profile Profile, cfg config.Config) *Evaluator {
	return &Evaluator{profile: profile, cfg: cfg}
}

// Name returns the strategy name.
func (e *Evaluator) Name() string {
	return e.profile.Name
}

// Evaluate returns the strategy vote for entry. It has no side effects.
func (e *Evaluator) Evaluate(entry domain.MarketEntry) domain.StrategyVote {
	ind, ok := e.indicators(entry)
	if !ok {
		return domain.HoldVote(reasonNoIndicators)
	}

	sym := e.cfg.Symbol(entry.Symbol)

	atr := ind.ATR
	if atr == nil || math.IsNaN(*atr) || *atr < sym.Indicators.ATR.MinThreshold {
		return domain.HoldVote(reasonLowVolatility)
	}
	adx := ind.ADX
	if adx == nil || math.IsNaN(*adx) || *adx < sym.Indicators.ADX.MinThreshold {
		return domain.HoldVote(reasonWeakTrend)
	}

	bull, bear := e.profile.RSIBull, e.profile.RSIBear
	if sym.Indicators.RSI.Bull != nil {
		bull = *sym.Indicators.RSI.Bull
	}
	if sym.Indicators.RSI.Bear != nil {
		bear = *sym.Indicators.RSI.Bear
	}

	rsi := domain.Or(ind.RSI, 50)
	var (
		dir     domain.Decision
		reasons []string
	)
	switch {
	case rsi >= bull:
		dir = domain.DecisionBuy
		reasons = append(reasons, reasonRSIBull)
	case rsi <= bear:
		dir = domain.DecisionSell
		reasons = append(reasons, reasonRSIBear)
	default:
		return domain.HoldVote(reasonFlatZone)
	}

	for _, confirm := range e.profile.Confirmations {
		if tag, ok := confirm(dir, ind, entry); ok {
			reasons = append(reasons, tag)
		}
	}

	// the RSI tag counts as a check as well
	conf := math.Min(1.0, e.profile.BaseConfidence+e.profile.Bonus*float64(len(reasons)))

	return domain.StrategyVote{Decision: dir, Confidence: conf, Reasons: reasons}
}

func (e *Evaluator) indicators(entry domain.MarketEntry) (domain.IndicatorSnapshot, bool) {
	for _, tf := range e.profile.Timeframes {
		if s, ok := entry.Timeframe(tf); ok {
			return s, true
		}
	}
	return domain.IndicatorSnapshot{}, false
}
