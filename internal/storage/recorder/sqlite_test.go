package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestSQLiteRecorder(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	defer r.Close()

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	sl := 49940.5
	buy := domain.FinalDecision{
		ID: "a", Symbol: "BTCUSDc", Decision: domain.DecisionBuy, Lot: 0.11, SL: &sl,
		TP: []float64{50040.5, 50080.5}, Regime: domain.RegimeTrend, Mode: "scaler", NumEntries: 1,
		Reason: "allowed", Timestamp: base,
	}
	hold := domain.NewTerminalDecision("XAUUSDc", domain.DecisionHold, "corr_blocked(BTCUSDc<->XAUUSDc)")
	hold.ID = "b"
	hold.Timestamp = base.Add(time.Minute)

	require.NoError(t, r.RecordDecision(buy))
	require.NoError(t, r.RecordDecision(hold))
	require.Error(t, r.RecordDecision(domain.FinalDecision{Symbol: "BTCUSDc"}))

	rows, err := r.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID, "newest first")
	assert.Nil(t, rows[0].SL)
	assert.Empty(t, rows[0].TP)

	got := rows[1]
	assert.Equal(t, domain.DecisionBuy, got.Decision)
	require.NotNil(t, got.SL)
	assert.Equal(t, sl, *got.SL)
	assert.Equal(t, []float64{50040.5, 50080.5}, got.TP)
	assert.Equal(t, domain.RegimeTrend, got.Regime)
	assert.Equal(t, base, got.Timestamp)

	btc, err := r.Recent("BTCUSDc", 0)
	require.NoError(t, err)
	require.Len(t, btc, 1)

	counts, err := r.Counts(base)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Decision]int{domain.DecisionBuy: 1, domain.DecisionHold: 1}, counts)

	counts, err = r.Counts(base.Add(30 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[domain.Decision]int{domain.DecisionHold: 1}, counts)
}
