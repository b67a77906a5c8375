// Package events fans out decision and execution events to in-process subscribers.
package events

import (
	"sync"
	"time"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Kind names the event payload.
type Kind string

const (
	KindDecision Kind = "decision"
	KindFill     Kind = "fill"
	KindOverride Kind = "override"
	KindExit     Kind = "exit"
)

// Event is what subscribers receive. Exactly one payload field is set for a given kind.
type Event struct {
	Kind      Kind                  `json:"kind"`
	Timestamp time.Time             `json:"ts"`
	Symbol    string                `json:"symbol,omitempty"`
	Decision  *domain.FinalDecision `json:"decision,omitempty"`
	Fill      any                   `json:"fill,omitempty"`
	Override  *domain.OverrideEvent `json:"override,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// DecisionEvent wraps a final decision.
func DecisionEvent(d domain.FinalDecision) Event {
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Event{Kind: KindDecision, Timestamp: ts, Symbol: d.Symbol, Decision: &d}
}

// Broadcaster fans out events to all subscribers via buffered channels.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Publish sends e to all subscribers, dropping it for readers that fell behind.
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
