// Package lotsizer turns account balance and risk settings into an order size.
package lotsizer

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	lotPlaces       = 2
	riskDivisor     = 100000
	reversalDecay   = 0.2
	minDecayFactor  = 0.3
	highVolFloorMul = 0.5
)

var regimeFactors = map[domain.Regime]float64{
	domain.RegimeHighVol: 0.7,
	domain.RegimeLowVol:  1.3,
	domain.RegimeTrend:   1.1,
}

// Input describes the order to size.
type Input struct {
	Symbol         string
	Balance        float64
	Regime         domain.Regime
	GlobalReversal bool
	// OpenCount is the number of open positions of Symbol.
	OpenCount int
}

// Sizer is the adaptive lot sizer.
type Sizer struct {
	cfg config.Config
	l   *zap.Logger
}

// New creates a sizer.
func New(cfg config.Config, l *zap.Logger) *Sizer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sizer{cfg: cfg, l: l}
}

// Compute returns the lot for in, or 0 if it cannot be computed.
func (s *Sizer) Compute(in Input) float64 {
	lot, err := s.compute(in)
	if err != nil {
		s.l.Error("lot sizing failed", zap.String("symbol", in.Symbol), zap.Error(err))
		return 0
	}
	return lot
}

func (s *Sizer) compute(in Input) (float64, error) {
	rc := s.cfg.Symbol(in.Symbol).Risk
	for name, v := range map[string]float64{
		"balance": in.Balance, "risk_percent": rc.RiskPercent, "min_lot": rc.MinLot, "max_lot": rc.MaxLot,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.Errorf("invalid %s %v", name, v)
		}
	}
	if rc.MinLot <= 0 || rc.MaxLot < rc.MinLot {
		return 0, errors.Errorf("invalid lot bounds %v..%v", rc.MinLot, rc.MaxLot)
	}

	minLot := decimal.NewFromFloat(rc.MinLot)
	maxLot := decimal.NewFromFloat(rc.MaxLot)

	raw := decimal.NewFromFloat(in.Balance).
		Mul(decimal.NewFromFloat(rc.RiskPercent)).
		Div(decimal.NewFromInt(riskDivisor))
	base := decimal.Min(maxLot, decimal.Max(minLot, raw))

	if in.GlobalReversal {
		decay := math.Max(minDecayFactor, 1.0-float64(in.OpenCount)*reversalDecay)
		scaled := base.Mul(decimal.NewFromFloat(decay))
		s.l.Warn("global reversal scaling",
			zap.String("symbol", in.Symbol),
			zap.Int("open", in.OpenCount),
			zap.String("base", base.StringFixed(lotPlaces)),
			zap.String("scaled", scaled.StringFixed(lotPlaces)))
		base = scaled
	}
	base = base.Round(lotPlaces)

	factor, ok := regimeFactors[in.Regime]
	if !ok {
		factor = 1.0
	}
	lot := base.Mul(decimal.NewFromFloat(factor))

	floor := minLot
	if in.Regime == domain.RegimeHighVol {
		floor = minLot.Mul(decimal.NewFromFloat(highVolFloorMul))
	}
	lot = decimal.Min(maxLot, decimal.Max(floor, lot)).Round(lotPlaces)
	if lot.LessThan(floor) {
		// the floor itself is finer than a lot step
		lot = floor
	}

	s.l.Debug("lot computed",
		zap.String("symbol", in.Symbol),
		zap.String("regime", string(in.Regime)),
		zap.String("base", base.String()),
		zap.String("lot", lot.String()))

	return lot.InexactFloat64(), nil
}
