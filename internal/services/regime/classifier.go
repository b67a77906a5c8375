package regime

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Feature vector layout used by regime classifiers.
const (
	FeatEMASlope = iota
	FeatRSI
	FeatATR
	FeatATRMA
	FeatADX
	FeatBBWidth
	FeatVolumeImbalance
	FeatureCount
)

// Classification is a classifier verdict with its class distribution.
type Classification struct {
	Label       string
	Probability float64
	Raw         map[string]float64
}

// Classifier maps a feature vector to a label.
type Classifier interface {
	Classify(ctx context.Context, features []float64) (Classification, error)
}

// Source yields the regime for a market entry.
type Source interface {
	Regime(ctx context.Context, entry domain.MarketEntry) domain.Regime
}

// Features builds the regime feature vector from a snapshot, filling neutral defaults.
func Features(s domain.IndicatorSnapshot) []float64 {
	f := make([]float64, FeatureCount)
	f[FeatEMASlope] = domain.Or(s.EMASlope, 0)
	f[FeatRSI] = domain.Or(s.RSI, 50)
	f[FeatATR] = domain.Or(s.ATR, 1)
	f[FeatATRMA] = domain.Or(s.ATRMA, 1)
	f[FeatADX] = domain.Or(s.ADX, 20)
	f[FeatBBWidth] = domain.Or(s.BBWidth, 0)
	f[FeatVolumeImbalance] = domain.Or(s.VolumeImbalance, 0)
	return f
}

// RuleClassifier compares ATR with its moving average and ADX with fixed levels.
// It is the default used when no model is loaded.
type RuleClassifier struct{}

const ruleProbability = 0.6

func (RuleClassifier) Classify(_ context.Context, f []float64) (Classification, error) {
	if len(f) < FeatureCount {
		return Classification{}, errors.Errorf("rule classifier needs %d features, got %d", FeatureCount, len(f))
	}
	atr, atrMA, adx := f[FeatATR], f[FeatATRMA], f[FeatADX]

	var r domain.Regime
	switch {
	case adx > 25 && atr > atrMA:
		r = domain.RegimeTrend
	case adx < 20 && atr < atrMA:
		r = domain.RegimeRange
	case atr > 1.5*atrMA:
		r = domain.RegimeHighVol
	default:
		r = domain.RegimeLowVol
	}
	return Classification{Label: string(r), Probability: ruleProbability, Raw: map[string]float64{}}, nil
}

// Fallback tries Primary and answers with Default whenever it is missing or fails.
type Fallback struct {
	Primary Classifier
	Default Classifier
	l       *zap.Logger
}

// NewFallback wraps primary with the rule classifier.
func NewFallback(primary Classifier, l *zap.Logger) *Fallback {
	if l == nil {
		l = zap.NewNop()
	}
	return &Fallback{Primary: primary, Default: RuleClassifier{}, l: l}
}

func (f *Fallback) Classify(ctx context.Context, features []float64) (Classification, error) {
	if f.Primary != nil {
		c, err := f.Primary.Classify(ctx, features)
		if err == nil {
			return c, nil
		}
		f.l.Warn("classifier failed, using default", zap.Error(err))
	}
	return f.Default.Classify(ctx, features)
}

// Regime makes Detector a Source using the primary timeframe of the entry.
func (d *Detector) Regime(_ context.Context, entry domain.MarketEntry) domain.Regime {
	return d.Detect(entry.ATR(), entry.ADX())
}

// ModelDetector asks a classifier first and falls back to the rule detector
// on error or when the label is not a known regime.
type ModelDetector struct {
	classifier Classifier
	rules      *Detector
	l          *zap.Logger
}

// NewModelDetector creates a model-backed regime source.
func NewModelDetector(classifier Classifier, rules *Detector, l *zap.Logger) *ModelDetector {
	if l == nil {
		l = zap.NewNop()
	}
	return &ModelDetector{classifier: classifier, rules: rules, l: l}
}

func (m *ModelDetector) Regime(ctx context.Context, entry domain.MarketEntry) domain.Regime {
	c, err := m.Classify(ctx, entry)
	if err != nil {
		m.l.Warn("regime model unavailable, using rules",
			zap.String("symbol", entry.Symbol),
			zap.Error(err))
		return m.rules.Detect(entry.ATR(), entry.ADX())
	}
	return domain.Regime(c.Label)
}

// Classify runs the classifier on the entry's primary snapshot and validates the label.
func (m *ModelDetector) Classify(ctx context.Context, entry domain.MarketEntry) (Classification, error) {
	if m.classifier == nil {
		return Classification{}, errors.New("no regime classifier configured")
	}
	c, err := m.classifier.Classify(ctx, Features(entry.Primary()))
	if err != nil {
		return Classification{}, errors.Wrap(err, "classify regime")
	}
	if _, ok := domain.ParseRegime(c.Label); !ok {
		return Classification{}, errors.Errorf("unknown regime label %q", c.Label)
	}
	return c, nil
}
