package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestDecisionRows(t *testing.T) {
	sl := 49940.0
	rows := decisionRows([]domain.FinalDecision{
		{Symbol: "BTCUSDc", Decision: domain.DecisionBuy, Confidence: 0.8126, Entry: 50000.5, Lot: 0.11, SL: &sl, TP: []float64{50060, 50120}, Mode: "day", Regime: domain.RegimeTrend, Reason: "hybrid_pass"},
		domain.NewTerminalDecision("XAUUSDc", domain.DecisionHold, "no_signal"),
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"BTCUSDc", "BUY", "0.813", "50000.5", "0.11", "49940", "50060 / 50120", "day", string(domain.RegimeTrend), "hybrid_pass"}, rows[0])
	assert.Equal(t, []string{"XAUUSDc", "HOLD", "0.000", "-", "-", "-", "-", "", "", "no_signal"}, rows[1])

	assert.Contains(t, renderDecisions(nil), "0 decision(s)")
}

func TestJournalRows(t *testing.T) {
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	rows := journalRows([]domain.DecisionEventRecord{
		{Index: 1, Type: domain.EventTypeDecision, Event: domain.FinalDecision{Symbol: "BTCUSDc", Decision: domain.DecisionSell, Reason: "ok", Timestamp: ts}},
		{Index: 2, Type: domain.EventTypeOverride, Event: domain.OverrideEvent{ID: "x", Timestamp: ts, Patch: map[string]any{"symbols": 1, "global": 2}}},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2026-01-05 10:00:00", "decision", "BTCUSDc", "SELL", "ok"}, rows[0])
	assert.Equal(t, "patch global,symbols", rows[1][5])
}
