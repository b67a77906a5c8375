// Package exit computes stop-loss and take-profit levels for new and open positions.
package exit

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	fallbackATR      = 1.0
	defaultDigits    = 5
	minLegFactor     = 0.3
	legFactorStep    = 0.33
	legStopWidening  = 0.5
	defaultSevereLvl = -0.15
)

// Close reasons reported by EmergencyCloseCheck.
const (
	ReasonSevere  = "SEVERE"
	ReasonRetrace = "RETRACE"
)

// Request describes the entry to compute exits for.
type Request struct {
	Symbol     string
	Decision   domain.Decision
	Entry      float64
	ATR        float64
	Lot        float64
	NumEntries int
	Regime     domain.Regime
}

// Recalculated holds refreshed exits for an open position.
type Recalculated struct {
	EntryIndex int
	SL         float64
	TP         []float64
	TPPerc     []float64
	Trailing   config.TrailingConfig
}

// Calculator is the hybrid ATR-based exit calculator.
type Calculator struct {
	cfg config.Config
	l   *zap.Logger
}

// New creates a calculator.
func New(cfg config.Config, l *zap.Logger) *Calculator {
	if l == nil {
		l = zap.NewNop()
	}
	return &Calculator{cfg: cfg, l: l}
}

// Calc returns the multi-leg exit plan. Non-directional decisions get no stop and no targets.
func (c *Calculator) Calc(req Request) domain.ExitLevels {
	if !req.Decision.IsDirectional() {
		return domain.ExitLevels{TP: []domain.TakeProfit{}}
	}

	sym := c.cfg.Symbol(req.Symbol)
	atr := c.atr(req.Symbol, req.ATR)
	steps, perc := targets(sym.Exit)
	digits := digitsOf(sym)

	legs := req.NumEntries
	if legs < 1 {
		legs = 1
	}
	scaling := sym.Portfolio.SeriesMode == config.SeriesScaling && legs > 1

	levels := domain.ExitLevels{}
	for i := 1; i <= legs; i++ {
		factor, slMult := 1.0, stopMultiplier(sym.Exit, 1)
		if scaling {
			factor = math.Max(minLegFactor, 1.0-float64(i-1)*legFactorStep)
			slMult = stopMultiplier(sym.Exit, i)
		}

		sl, tps := levelsFor(req.Decision, req.Entry, atr, slMult, steps, digits)
		leg := domain.LegExit{
			EntryIndex: i,
			Lot:        roundTo(req.Lot*factor, 2),
			SL:         sl,
			TP:         tps,
			TPPerc:     perc,
		}
		levels.Legs = append(levels.Legs, leg)

		c.l.Debug("exit leg",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Decision)),
			zap.Int("entry", i),
			zap.Float64("lot", leg.Lot),
			zap.Float64("sl", leg.SL),
			zap.Float64s("tp", leg.TP),
			zap.String("regime", string(req.Regime)))
	}

	first := levels.Legs[0]
	sl := first.SL
	levels.SL = &sl
	levels.TP = make([]domain.TakeProfit, 0, len(first.TP))
	for j, p := range first.TP {
		levels.TP = append(levels.TP, domain.TakeProfit{Price: p, Perc: perc[j]})
	}
	return levels
}

// Recalc re-derives exits for open positions of symbol. The stop is kept at least
// stopsLevel pips away from the current price (entry price when price is 0).
func (c *Calculator) Recalc(symbol string, positions []domain.Position, atr float64, quote domain.Quote) map[int64]Recalculated {
	sym := c.cfg.Symbol(symbol)
	atr = c.atr(symbol, atr)
	steps, perc := targets(sym.Exit)
	digits := digitsOf(sym)
	minDist := quote.StopsLevel * sym.PipSize

	out := make(map[int64]Recalculated, len(positions))
	for _, pos := range positions {
		if pos.Symbol != symbol || !pos.Side.IsDirectional() {
			continue
		}
		idx := pos.EntryIndex()
		slMult := stopMultiplier(sym.Exit, 1)
		if sym.Portfolio.SeriesMode == config.SeriesScaling {
			slMult = stopMultiplier(sym.Exit, idx)
		}

		sl, tps := levelsFor(pos.Side, pos.EntryPrice, atr, slMult, steps, -1)

		if minDist > 0 {
			price := quote.ExitPrice(pos.Side)
			if price <= 0 {
				price = pos.EntryPrice
			}
			switch pos.Side {
			case domain.DecisionBuy:
				sl = math.Min(sl, price-minDist)
			case domain.DecisionSell:
				sl = math.Max(sl, price+minDist)
			}
		}

		for i := range tps {
			tps[i] = roundTo(tps[i], digits)
		}
		out[pos.Ticket] = Recalculated{
			EntryIndex: idx,
			SL:         roundTo(sl, digits),
			TP:         tps,
			TPPerc:     perc,
			Trailing:   sym.Exit.Trailing,
		}
	}
	return out
}

// AdjustTrailing moves the stop towards price once the position is past the breakeven
// offset. It never loosens the stop. Distances are in pips.
func AdjustTrailing(price float64, side domain.Decision, entry float64, sl *float64,
	cfg config.TrailingConfig, pipSize float64, digits int) *float64 {
	if !cfg.Enabled || price <= 0 {
		return sl
	}

	be := cfg.Breakeven * pipSize
	trail := cfg.ATRMult * pipSize

	var next float64
	switch side {
	case domain.DecisionBuy:
		if price-entry <= be {
			return sl
		}
		next = math.Max(math.Max(deref(sl, entry), entry+be), price-trail)
	case domain.DecisionSell:
		if entry-price <= be {
			return sl
		}
		next = math.Min(math.Min(deref(sl, entry), entry-be), price+trail)
	default:
		return sl
	}

	next = roundTo(next, digits)
	return &next
}

// EmergencyCloseCheck reports whether an unprotected position must be closed.
// Positions with a broker-side stop are never force-closed.
func EmergencyCloseCheck(pos domain.Position, severeLossPct float64) (string, bool) {
	if pos.SL != nil {
		return "", false
	}
	if severeLossPct == 0 {
		severeLossPct = defaultSevereLvl
	}
	if notional := pos.Volume * pos.EntryPrice; notional > 0 && pos.Profit/notional < severeLossPct {
		return ReasonSevere, true
	}
	if pos.Profit < 0 {
		return ReasonRetrace, true
	}
	return "", false
}

func (c *Calculator) atr(symbol string, atr float64) float64 {
	if atr > 0 && !math.IsNaN(atr) && !math.IsInf(atr, 0) {
		return atr
	}
	if last := domain.Or(c.cfg.Symbol(symbol).LastATR, 0); last > 0 {
		return last
	}
	c.l.Warn("invalid ATR, using fallback", zap.String("symbol", symbol), zap.Float64("fallback", fallbackATR))
	return fallbackATR
}

func levelsFor(side domain.Decision, entry, atr, slMult float64, steps []float64, digits int) (float64, []float64) {
	dir := float64(side.Sign())
	sl := entry - dir*atr*slMult
	tps := make([]float64, len(steps))
	for i, s := range steps {
		tps[i] = entry + dir*atr*s
	}
	if digits < 0 {
		return sl, tps
	}
	for i := range tps {
		tps[i] = roundTo(tps[i], digits)
	}
	return roundTo(sl, digits), tps
}

func stopMultiplier(cfg config.ExitConfig, leg int) float64 {
	base := cfg.SLATR
	if base <= 0 {
		base = 1.5
	}
	return base * (1.0 + legStopWidening*float64(leg-1))
}

func targets(cfg config.ExitConfig) ([]float64, []float64) {
	steps := cfg.TPSteps
	if len(steps) == 0 {
		steps = []float64{1, 2, 3}
	}
	perc := cfg.TPPerc
	if perc == nil {
		perc = []float64{40, 30, 30}
	}
	if len(perc) > len(steps) {
		perc = perc[:len(steps)]
	}
	for len(perc) < len(steps) {
		perc = append(perc, 0)
	}
	return append([]float64(nil), steps...), append([]float64(nil), perc...)
}

func digitsOf(sym config.SymbolConfig) int {
	if sym.Digits <= 0 {
		return defaultDigits
	}
	return sym.Digits
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
