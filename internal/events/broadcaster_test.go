package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(2)
	a := b.Subscribe()
	c := b.Subscribe()
	require.Equal(t, 2, b.Subscribers())

	b.Publish(DecisionEvent(domain.FinalDecision{Symbol: "BTCUSDc", Decision: domain.DecisionHold}))

	for _, ch := range []chan Event{a, c} {
		e := <-ch
		assert.Equal(t, KindDecision, e.Kind)
		assert.Equal(t, "BTCUSDc", e.Symbol)
		require.NotNil(t, e.Decision)
		assert.False(t, e.Timestamp.IsZero())
	}

	b.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
	b.Unsubscribe(a)
}

func TestBroadcaster_DropsForSlowReaders(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()

	b.Publish(Event{Kind: KindExit, Message: "first"})
	b.Publish(Event{Kind: KindExit, Message: "second"})

	e := <-ch
	assert.Equal(t, "first", e.Message)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}
