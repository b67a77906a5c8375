// Package integrator merges the scalp, day and swing votes into one rule decision.
package integrator

import (
	"math"

	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	strategyScalp = "scalp"
	strategyDay   = "day"
	strategySwing = "swing"

	defaultThreshold  = 0.05
	defaultMaxEntries = 3
)

var strategies = []string{strategyScalp, strategyDay, strategySwing}

// regimeMultipliers scale the strategy weights per regime.
var regimeMultipliers = map[domain.Regime]map[string]float64{
	domain.RegimeTrend:   {strategyScalp: 0.8, strategyDay: 1.0, strategySwing: 1.2},
	domain.RegimeRange:   {strategyScalp: 1.2, strategyDay: 0.8, strategySwing: 0.5},
	domain.RegimeHighVol: {strategyScalp: 1.5, strategyDay: 1.0, strategySwing: 0.7},
	domain.RegimeLowVol:  {strategyScalp: 0.5, strategyDay: 1.0, strategySwing: 1.0},
	domain.RegimeNormal:  {strategyScalp: 1.0, strategyDay: 1.0, strategySwing: 1.0},
}

type options struct {
	weights map[string]float64
	mode    string
	atr     *float64
	atrMA   *float64
}

// Option tunes a single Integrate call.
type Option func(*options)

// WithWeights overrides strategy weights for this call. They win over config weights.
func WithWeights(w map[string]float64) Option {
	return func(o *options) { o.weights = w }
}

// WithMode forces the aggregation mode instead of the symbol's integration_mode.
func WithMode(mode string) Option {
	return func(o *options) { o.mode = mode }
}

// WithVolatility provides the current ATR and its moving average for the dynamic threshold.
func WithVolatility(atr, atrMA float64) Option {
	return func(o *options) {
		o.atr = &atr
		o.atrMA = &atrMA
	}
}

// Integrator is stateless apart from its logger.
type Integrator struct {
	l *zap.Logger
}

// New creates an integrator.
func New(l *zap.Logger) *Integrator {
	if l == nil {
		l = zap.NewNop()
	}
	return &Integrator{l: l}
}

// Integrate scores the three votes and decides direction, confidence and the number of entry legs.
// Unknown vote decisions and unknown modes produce a zero-confidence HOLD.
func (i *Integrator) Integrate(votes domain.Votes, sym config.SymbolConfig, global config.GlobalConfig,
	regime domain.Regime, opts ...Option) domain.IntegratedDecision {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	weights := layerWeights(global.Weights, sym.Weights, o.weights)
	mult, ok := regimeMultipliers[regime]
	if !ok {
		mult = regimeMultipliers[domain.RegimeNormal]
	}
	for _, s := range strategies {
		weights[s] *= mult[s]
	}

	mode := o.mode
	if mode == "" {
		mode = sym.IntegrationMode
	}
	if mode == "" {
		mode = config.ModeHybrid
	}

	base := global.DecisionThreshold
	if base <= 0 {
		base = defaultThreshold
	}
	atr := domain.Or(sym.LastATR, 1.0)
	if o.atr != nil {
		atr = *o.atr
	}
	atrMA := domain.Or(sym.ATRMA, atr)
	if o.atrMA != nil {
		atrMA = *o.atrMA
	}
	threshold := DynamicThreshold(base, atr, atrMA)

	fallback := domain.IntegratedDecision{
		Decision:  domain.DecisionHold,
		Threshold: threshold,
		Regime:    regime,
		Mode:      mode,
		Weights:   weights,
	}

	all := votes.All()
	var total float64
	for idx, v := range all {
		if !v.Decision.IsVote() {
			i.l.Warn("unknown vote decision, holding",
				zap.String("strategy", strategies[idx]),
				zap.String("decision", string(v.Decision)))
			return fallback
		}
		total += float64(v.Decision.Sign())
	}

	decision := domain.DecisionHold
	switch {
	case total > threshold:
		decision = domain.DecisionBuy
	case total < -threshold:
		decision = domain.DecisionSell
	}

	var weighted, sum float64
	for idx, v := range all {
		w := weights[strategies[idx]]
		weighted += v.Confidence * w
		sum += w
	}
	conf := 0.0
	if sum > 0 {
		conf = weighted / sum
	}

	var entries int
	switch mode {
	case config.ModeStrict:
		entries = 1
	case config.ModeMajority:
		entries = 2
		if conf >= 1.0 && unanimous(all) {
			entries = 3
		}
	case config.ModePriority:
		entries = defaultMaxEntries
		if sym.MaxNumEntries != nil {
			entries = *sym.MaxNumEntries
		}
		if d, ok := priorityMatch(votes, sym); ok {
			decision = d
		} else if sym.PriorityFallback {
			i.l.Warn("priority mode found no matching vote, holding")
			return fallback
		}
	case config.ModeHybrid:
		switch {
		case conf > 0.7:
			entries = 3
		case conf > 0.5:
			entries = 2
		default:
			entries = 1
		}
	default:
		i.l.Warn("unknown integration mode, holding", zap.String("mode", mode))
		return fallback
	}

	if sym.MaxNumEntries != nil && entries > *sym.MaxNumEntries {
		entries = *sym.MaxNumEntries
	}

	i.l.Debug("votes integrated",
		zap.String("regime", string(regime)),
		zap.String("mode", mode),
		zap.Float64("score", total),
		zap.Float64("threshold", threshold),
		zap.Float64("confidence", conf),
		zap.String("decision", string(decision)),
		zap.Int("num_entries", entries))

	return domain.IntegratedDecision{
		Decision:   decision,
		Confidence: conf,
		Score:      total,
		NumEntries: entries,
		Threshold:  threshold,
		Regime:     regime,
		Mode:       mode,
		Weights:    weights,
	}
}

// DynamicThreshold lowers the bar when ATR runs above its average and raises it when below,
// within a factor of 0.8..1.2.
func DynamicThreshold(base, atr, atrMA float64) float64 {
	if atrMA <= 0 || atr <= 0 || math.IsNaN(atr) || math.IsNaN(atrMA) {
		return base
	}
	ratio := atr / atrMA
	adj := math.Min(math.Max(1/ratio, 0.8), 1.2)
	return base * adj
}

func layerWeights(layers ...map[string]float64) map[string]float64 {
	w := map[string]float64{strategyScalp: 0.33, strategyDay: 0.33, strategySwing: 0.34}
	for _, layer := range layers {
		for _, s := range strategies {
			if v, ok := layer[s]; ok {
				w[s] = v
			}
		}
	}
	return w
}

func unanimous(votes []domain.StrategyVote) bool {
	first := normalize(votes[0].Decision)
	for _, v := range votes[1:] {
		if normalize(v.Decision) != first {
			return false
		}
	}
	return true
}

func normalize(d domain.Decision) domain.Decision {
	if d == "" {
		return domain.DecisionHold
	}
	return d
}

// priorityMatch reports the configured priority decision if the priority strategy
// (or any strategy when none is set) voted for it.
func priorityMatch(votes domain.Votes, sym config.SymbolConfig) (domain.Decision, bool) {
	want, ok := domain.ParseDecision(sym.PriorityDecision)
	if !ok || sym.PriorityDecision == "" {
		return "", false
	}
	if sym.PriorityStrategy != "" {
		v, found := votes.ByStrategy(sym.PriorityStrategy)
		return want, found && normalize(v.Decision) == want
	}
	for _, v := range votes.All() {
		if normalize(v.Decision) == want {
			return want, true
		}
	}
	return "", false
}
