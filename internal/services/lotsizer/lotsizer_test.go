package lotsizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestCompute(t *testing.T) {
	s := New(config.Default(), zap.NewNop())

	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"base", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeNormal}, 0.1},
		{"clamped to max", Input{Symbol: config.SymbolBTC, Balance: 1e7, Regime: domain.RegimeNormal}, 0.5},
		{"clamped to min", Input{Symbol: config.SymbolBTC, Balance: 100, Regime: domain.RegimeRange}, 0.01},
		{"trend boost", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeTrend}, 0.11},
		{"low vol boost", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeLowVol}, 0.13},
		{"high vol cut", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeHighVol}, 0.07},
		{"boost capped", Input{Symbol: config.SymbolBTC, Balance: 45000, Regime: domain.RegimeLowVol}, 0.5},
		{"reversal decay", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeNormal, GlobalReversal: true, OpenCount: 2}, 0.06},
		{"reversal decay floor", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: domain.RegimeNormal, GlobalReversal: true, OpenCount: 9}, 0.03},
		{"unknown regime", Input{Symbol: config.SymbolBTC, Balance: 10000, Regime: "event"}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Compute(tt.in), 1e-9)
		})
	}
}

func TestCompute_HighVolSubMinimum(t *testing.T) {
	cfg, err := config.Parse([]byte("symbols:\n  XAUUSDc:\n    risk:\n      min_lot: 0.1\n      max_lot: 1\n"))
	require.NoError(t, err)
	s := New(cfg, nil)

	lot := s.Compute(Input{Symbol: config.SymbolXAU, Balance: 1000, Regime: domain.RegimeHighVol})
	assert.InDelta(t, 0.07, lot, 1e-9, "high volatility may go under min_lot")

	lot = s.Compute(Input{Symbol: config.SymbolXAU, Balance: 1000, Regime: domain.RegimeHighVol, GlobalReversal: true, OpenCount: 5})
	assert.InDelta(t, 0.05, lot, 1e-9, "but never under half of it")

	lot = s.Compute(Input{Symbol: config.SymbolXAU, Balance: 1000, Regime: domain.RegimeNormal, GlobalReversal: true, OpenCount: 5})
	assert.InDelta(t, 0.1, lot, 1e-9)
}

func TestCompute_Bounds(t *testing.T) {
	s := New(config.Default(), zap.NewNop())
	for _, balance := range []float64{0, 1, 500, 5000, 12345.67, 99999, 1e9} {
		for _, r := range domain.Regimes() {
			for _, open := range []int{0, 1, 3, 10} {
				lot := s.Compute(Input{Symbol: config.SymbolBTC, Balance: balance, Regime: r, GlobalReversal: open%2 == 1, OpenCount: open})
				floor := 0.01
				if r == domain.RegimeHighVol {
					floor = 0.005
				}
				assert.GreaterOrEqual(t, lot, floor)
				assert.LessOrEqual(t, lot, 0.5)
			}
		}
	}
}

func TestCompute_ErrorReturnsZero(t *testing.T) {
	s := New(config.Default(), zap.NewNop())
	assert.Equal(t, 0.0, s.Compute(Input{Symbol: config.SymbolBTC, Balance: math.NaN()}))
	assert.Equal(t, 0.0, s.Compute(Input{Symbol: config.SymbolBTC, Balance: math.Inf(1)}))
}
