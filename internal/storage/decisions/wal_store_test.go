package decisions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestWALStore_RoundTrip(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	sl := 49940.5
	buy := domain.FinalDecision{
		ID:       "d-1",
		Symbol:   "BTCUSDc",
		Decision: domain.DecisionBuy,
		Lot:      0.11,
		SL:       &sl,
		TP:       []float64{50040.5},
		Reason:   "risk_ok|allowed",
	}
	require.NoError(t, store.Save(buy))
	require.NoError(t, store.SaveOverride(domain.OverrideEvent{
		ID:        "o-1",
		Timestamp: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Patch:     map[string]any{"global": map[string]any{"min_equity_pct": 40.0}},
	}))
	require.NoError(t, store.Save(domain.NewTerminalDecision("XAUUSDc", domain.DecisionHold, "corr_blocked(BTCUSDc<->XAUUSDc)")))

	assert.Equal(t, uint64(3), store.CurrentIndex())

	records, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.EventTypeDecision, records[0].Type)
	got, ok := records[0].Event.(domain.FinalDecision)
	require.True(t, ok)
	assert.Equal(t, buy.ID, got.ID)
	require.NotNil(t, got.SL)
	assert.Equal(t, sl, *got.SL)

	assert.Equal(t, domain.EventTypeOverride, records[1].Type)
	ov, ok := records[1].Event.(domain.OverrideEvent)
	require.True(t, ok)
	assert.Equal(t, "o-1", ov.ID)

	tail, err := store.EventsAfter(2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Index)

	none, err := store.EventsAfter(3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWALStore_Validation(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.Save(domain.FinalDecision{}))
	require.Error(t, store.SaveOverride(domain.OverrideEvent{}))

	var nilStore *WALStore
	require.Error(t, nilStore.Save(domain.FinalDecision{Symbol: "BTCUSDc"}))
	assert.Zero(t, nilStore.CurrentIndex())
}
