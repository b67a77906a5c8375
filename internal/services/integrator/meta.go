package integrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/services/regime"
)

// MetaFeatureCount is the length of the meta feature vector:
// three (direction, confidence) pairs, ATR, ADX and a one-hot regime.
const MetaFeatureCount = 13

const noModelConfidence = 0.33

// DecisionLabels is the output order of meta models.
var DecisionLabels = []string{"BUY", "SELL", "HOLD"}

// MetaIntegrator asks a trained classifier for a direction given the three votes.
// It produces the AI side of fusion.
type MetaIntegrator struct {
	classifier regime.Classifier
	l          *zap.Logger
}

// NewMeta creates a meta integrator. A nil classifier makes it answer HOLD.
func NewMeta(classifier regime.Classifier, l *zap.Logger) *MetaIntegrator {
	if l == nil {
		l = zap.NewNop()
	}
	return &MetaIntegrator{classifier: classifier, l: l}
}

// MetaFeatures encodes votes, volatility and regime into the model input.
func MetaFeatures(votes domain.Votes, entry domain.MarketEntry, r domain.Regime) []float64 {
	f := make([]float64, 0, MetaFeatureCount)
	for _, v := range votes.All() {
		f = append(f, float64(v.Decision.Sign()), v.Confidence)
	}
	f = append(f, entry.ATR(), entry.ADX())
	for _, known := range domain.Regimes() {
		if known == r {
			f = append(f, 1)
		} else {
			f = append(f, 0)
		}
	}
	return f
}

// Vote returns the model opinion. Model errors and unknown labels give a zero-confidence HOLD.
func (m *MetaIntegrator) Vote(ctx context.Context, entry domain.MarketEntry, votes domain.Votes, r domain.Regime) domain.AIVote {
	if m.classifier == nil {
		return domain.AIVote{Decision: domain.DecisionHold, Confidence: noModelConfidence}
	}

	c, err := m.classifier.Classify(ctx, MetaFeatures(votes, entry, r))
	if err != nil {
		m.l.Error("meta integrator inference failed", zap.String("symbol", entry.Symbol), zap.Error(err))
		return domain.AIVote{Decision: domain.DecisionHold}
	}
	d, ok := domain.ParseDecision(c.Label)
	if !ok || d == domain.DecisionCloseAll {
		m.l.Warn("meta integrator returned unknown label", zap.String("label", c.Label))
		return domain.AIVote{Decision: domain.DecisionHold}
	}
	return domain.AIVote{Decision: d, Confidence: c.Probability}
}
