package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func entryWith(tf string, bid float64, ind domain.IndicatorSnapshot) domain.MarketEntry {
	return domain.MarketEntry{
		Symbol:     config.SymbolBTC,
		Bid:        bid,
		Ask:        bid + 1,
		Timeframes: map[string]domain.IndicatorSnapshot{tf: ind},
	}
}

func TestEvaluate_Guards(t *testing.T) {
	cfg, err := config.Parse([]byte(`
symbols:
  BTCUSDc:
    indicators:
      atr: {min_threshold: 5}
      adx: {min_threshold: 20}
`))
	require.NoError(t, err)
	day := NewDay(cfg)

	tests := []struct {
		name   string
		entry  domain.MarketEntry
		reason string
	}{
		{"missing timeframe", entryWith(domain.TimeframeM5, 100, domain.IndicatorSnapshot{RSI: domain.F(80)}), "no_indicators"},
		{"empty snapshot", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{}), "no_indicators"},
		{"missing atr", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{ADX: domain.F(30), RSI: domain.F(80)}), "low_volatility"},
		{"low atr", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{ATR: domain.F(2), ADX: domain.F(30)}), "low_volatility"},
		{"weak adx", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{ATR: domain.F(10), ADX: domain.F(10)}), "weak_trend"},
		{"flat rsi", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{ATR: domain.F(10), ADX: domain.F(30), RSI: domain.F(50)}), "flat_zone"},
		{"missing rsi", entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{ATR: domain.F(10), ADX: domain.F(30)}), "flat_zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vote := day.Evaluate(tt.entry)
			assert.Equal(t, domain.DecisionHold, vote.Decision)
			assert.Equal(t, 0.0, vote.Confidence)
			assert.Equal(t, []string{tt.reason}, vote.Reasons)
		})
	}
}

func TestDay_Confirmations(t *testing.T) {
	day := NewDay(config.Default())

	buy := day.Evaluate(entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{
		ATR: domain.F(10), ADX: domain.F(30), RSI: domain.F(70),
		EMAFast: domain.F(105), EMASlow: domain.F(100),
		MACDHist: domain.F(0.4),
		StochK:   domain.F(15), StochD: domain.F(10),
		VWAP: domain.F(101),
	}))
	assert.Equal(t, domain.DecisionBuy, buy.Decision)
	assert.Equal(t, []string{"rsi_bull", "ema_uptrend", "macd_bull", "stoch_buy", "below_vwap"}, buy.Reasons)
	assert.InDelta(t, 1.0, buy.Confidence, 1e-9)

	sell := day.Evaluate(entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{
		ATR: domain.F(10), ADX: domain.F(30), RSI: domain.F(30),
		EMAFast: domain.F(105), EMASlow: domain.F(100),
		MACDHist: domain.F(-0.4),
	}))
	assert.Equal(t, domain.DecisionSell, sell.Decision)
	assert.Equal(t, []string{"rsi_bear", "macd_bear"}, sell.Reasons, "confirmations against the direction are ignored")
	assert.InDelta(t, 0.7, sell.Confidence, 1e-9)
}

func TestScalp_Confirmations(t *testing.T) {
	scalp := NewScalp(config.Default())

	vote := scalp.Evaluate(entryWith(domain.TimeframeM5, 100, domain.IndicatorSnapshot{
		ATR: domain.F(1), ADX: domain.F(25), RSI: domain.F(40),
		StochK: domain.F(90), StochD: domain.F(95),
		VWAP: domain.F(99),
	}))
	assert.Equal(t, domain.DecisionSell, vote.Decision)
	assert.Equal(t, []string{"rsi_bear", "stoch_confirm_sell", "above_vwap_sell"}, vote.Reasons)
	assert.InDelta(t, 0.9, vote.Confidence, 1e-9)
}

func TestSwing_FallsBackToDaily(t *testing.T) {
	swing := NewSwing(config.Default())

	vote := swing.Evaluate(entryWith(domain.TimeframeD1, 2000, domain.IndicatorSnapshot{
		ATR: domain.F(12), ADX: domain.F(40), RSI: domain.F(66),
		MACDHist: domain.F(1),
		BOS:      "up",
		BBUpper:  domain.F(1990),
	}))
	assert.Equal(t, domain.DecisionBuy, vote.Decision)
	assert.Equal(t, []string{"rsi_bull", "macd_bull", "bos_confirm", "bb_breakout_up"}, vote.Reasons)
	assert.InDelta(t, 1.0, vote.Confidence, 1e-9, "confidence is capped")
	assert.Equal(t, NameSwing, swing.Name())
}

func TestEvaluate_SymbolRSIOverride(t *testing.T) {
	cfg, err := config.Parse([]byte(`
symbols:
  BTCUSDc:
    indicators:
      rsi: {bull_level: 80, bear_level: 20}
`))
	require.NoError(t, err)

	vote := NewDay(cfg).Evaluate(entryWith(domain.TimeframeH1, 100, domain.IndicatorSnapshot{
		ATR: domain.F(10), ADX: domain.F(30), RSI: domain.F(70),
	}))
	assert.Equal(t, domain.DecisionHold, vote.Decision)
	assert.Equal(t, []string{"flat_zone"}, vote.Reasons)
}
