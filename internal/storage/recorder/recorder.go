// Package recorder keeps a queryable history of final decisions.
package recorder

import (
	"time"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Row is one recorded decision.
type Row struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"ts"`
	Symbol     string          `json:"symbol"`
	Decision   domain.Decision `json:"decision"`
	Confidence float64         `json:"confidence"`
	Score      float64         `json:"score"`
	Entry      float64         `json:"entry"`
	Lot        float64         `json:"lot"`
	SL         *float64        `json:"sl"`
	TP         []float64       `json:"tp"`
	Regime     domain.Regime   `json:"regime"`
	Mode       string          `json:"mode"`
	NumEntries int             `json:"num_entries"`
	Reason     string          `json:"reason"`
}

// Recorder persists decisions for analysis.
type Recorder interface {
	RecordDecision(d domain.FinalDecision) error
	// Recent returns up to limit rows, newest first. An empty symbol means every symbol.
	Recent(symbol string, limit int) ([]Row, error)
	// Counts groups decisions recorded since the given time by verdict.
	Counts(since time.Time) (map[domain.Decision]int, error)
	Close() error
}

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordDecision(domain.FinalDecision) error { return nil }
func (n *NoopRecorder) Recent(string, int) ([]Row, error)        { return nil, nil }
func (n *NoopRecorder) Counts(time.Time) (map[domain.Decision]int, error) {
	return map[domain.Decision]int{}, nil
}
func (n *NoopRecorder) Close() error { return nil }
