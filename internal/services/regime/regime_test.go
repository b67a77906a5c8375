package regime

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestDetect(t *testing.T) {
	d := NewDetector(config.Default())
	nan := math.NaN()

	tests := []struct {
		name     string
		atr, adx float64
		want     domain.Regime
	}{
		{"zero inputs", 0, 0, domain.RegimeNormal},
		{"trend", 40, 30, domain.RegimeTrend},
		{"range", 0.5, 10, domain.RegimeRange},
		{"high vol", 5, 10, domain.RegimeHighVol},
		{"low vol", 0.5, 25, domain.RegimeLowVol},
		{"nan atr", nan, 25, domain.RegimeNormal},
		{"nan adx", 5, nan, domain.RegimeNormal},
		{"both nan", nan, nan, domain.RegimeNormal},
		{"thresholds are inclusive", 1, 20, domain.RegimeTrend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.atr, tt.adx))
		})
	}
}

func TestSelectMode(t *testing.T) {
	sym := config.Default().Symbol(config.SymbolBTC)
	assert.Equal(t, ExecScaler, SelectMode(sym, 40, 30))
	assert.Equal(t, ExecStrict, SelectMode(sym, 40, 10))

	sym.LastATR = domain.F(2)
	assert.Equal(t, ExecScaler, SelectMode(sym, 0, 25), "zero atr uses last known atr")
}

func TestRuleClassifier(t *testing.T) {
	tests := []struct {
		name string
		snap domain.IndicatorSnapshot
		want domain.Regime
	}{
		{"trend", domain.IndicatorSnapshot{ATR: domain.F(2), ATRMA: domain.F(1), ADX: domain.F(30)}, domain.RegimeTrend},
		{"range", domain.IndicatorSnapshot{ATR: domain.F(0.5), ATRMA: domain.F(1), ADX: domain.F(15)}, domain.RegimeRange},
		{"high vol", domain.IndicatorSnapshot{ATR: domain.F(2), ATRMA: domain.F(1), ADX: domain.F(22)}, domain.RegimeHighVol},
		{"defaults", domain.IndicatorSnapshot{}, domain.RegimeLowVol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := RuleClassifier{}.Classify(context.Background(), Features(tt.snap))
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), c.Label)
			assert.Equal(t, 0.6, c.Probability)
		})
	}

	_, err := RuleClassifier{}.Classify(context.Background(), []float64{1})
	require.Error(t, err)
}

type stubClassifier struct {
	c   Classification
	err error
}

func (s stubClassifier) Classify(context.Context, []float64) (Classification, error) {
	return s.c, s.err
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	features := Features(domain.IndicatorSnapshot{ATR: domain.F(2), ATRMA: domain.F(1), ADX: domain.F(30)})

	f := NewFallback(stubClassifier{c: Classification{Label: "range", Probability: 0.9}}, zap.NewNop())
	c, err := f.Classify(ctx, features)
	require.NoError(t, err)
	assert.Equal(t, "range", c.Label)

	f = NewFallback(stubClassifier{err: errors.New("boom")}, zap.NewNop())
	c, err = f.Classify(ctx, features)
	require.NoError(t, err)
	assert.Equal(t, "trend", c.Label)

	f = NewFallback(nil, nil)
	c, err = f.Classify(ctx, features)
	require.NoError(t, err)
	assert.Equal(t, "trend", c.Label)
}

func TestModelDetector(t *testing.T) {
	ctx := context.Background()
	rules := NewDetector(config.Default())
	entry := domain.MarketEntry{
		Symbol:     config.SymbolBTC,
		Timeframes: map[string]domain.IndicatorSnapshot{domain.TimeframeH1: {ATR: domain.F(40), ADX: domain.F(10)}},
	}

	m := NewModelDetector(stubClassifier{c: Classification{Label: "low_vol", Probability: 0.8}}, rules, zap.NewNop())
	assert.Equal(t, domain.RegimeLowVol, m.Regime(ctx, entry))

	m = NewModelDetector(stubClassifier{err: errors.New("inference failed")}, rules, zap.NewNop())
	assert.Equal(t, domain.RegimeHighVol, m.Regime(ctx, entry), "errors fall back to the rule detector")

	m = NewModelDetector(stubClassifier{c: Classification{Label: "sideways"}}, rules, zap.NewNop())
	assert.Equal(t, domain.RegimeHighVol, m.Regime(ctx, entry), "unknown labels fall back to the rule detector")

	m = NewModelDetector(nil, rules, nil)
	assert.Equal(t, domain.RegimeHighVol, m.Regime(ctx, entry))
}

func TestNewOnnxClassifier_MissingModel(t *testing.T) {
	_, err := NewOnnxClassifier(t.TempDir()+"/missing.onnx", FeatureCount, RegimeLabels)
	require.Error(t, err)
}
