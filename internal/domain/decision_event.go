package domain

import "time"

// EventType tags journal records.
type EventType string

const (
	EventTypeDecision EventType = "decision"
	EventTypeOverride EventType = "override"
)

// OverrideEvent records a runtime configuration patch.
type OverrideEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Patch     map[string]any `json:"patch"`
}

// DecisionEventRecord bundles a journal event with its WAL index.
type DecisionEventRecord struct {
	Index uint64
	Type  EventType
	// Event is either FinalDecision or OverrideEvent.
	Event any
}
