package domain

import (
	"strings"
	"time"
)

// Timeframe labels used by the strategies.
const (
	TimeframeM1  = "M1"
	TimeframeM5  = "M5"
	TimeframeM30 = "M30"
	TimeframeH1  = "H1"
	TimeframeH4  = "H4"
	TimeframeD1  = "D1"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// MarketEntry is one symbol's market snapshot for a decision cycle.
type MarketEntry struct {
	Symbol     string                       `json:"symbol"`
	Bid        float64                      `json:"bid"`
	Ask        float64                      `json:"ask"`
	Spread     float64                      `json:"spread"`
	Timeframes map[string]IndicatorSnapshot `json:"timeframes,omitempty"`
	Timestamp  string                       `json:"timestamp,omitempty"`
	// Account is optional account health delivered together with the quote.
	Account *Account `json:"account,omitempty"`
	// ExternalLots counts lots opened outside this process.
	ExternalLots   float64 `json:"positions_feed,omitempty"`
	GlobalReversal bool    `json:"global_reversal,omitempty"`
}

// Mid returns the mid price between bid and ask.
func (e MarketEntry) Mid() float64 {
	return (e.Bid + e.Ask) / 2
}

// Timeframe returns the snapshot for tf and whether it carries any value.
func (e MarketEntry) Timeframe(tf string) (IndicatorSnapshot, bool) {
	s, ok := e.Timeframes[tf]
	if !ok || s.IsEmpty() {
		return IndicatorSnapshot{}, false
	}
	return s, true
}

// Primary is the snapshot used for regime and sizing: H1, then M5, then empty.
func (e MarketEntry) Primary() IndicatorSnapshot {
	if s, ok := e.Timeframe(TimeframeH1); ok {
		return s
	}
	if s, ok := e.Timeframe(TimeframeM5); ok {
		return s
	}
	return IndicatorSnapshot{}
}

// ATR of the primary timeframe, 0 when absent.
func (e MarketEntry) ATR() float64 {
	return Or(e.Primary().ATR, 0)
}

// ADX of the primary timeframe, 0 when absent.
func (e MarketEntry) ADX() float64 {
	return Or(e.Primary().ADX, 0)
}

// Time parses the entry timestamp. Unparsable values yield the zero time.
func (e MarketEntry) Time() time.Time {
	raw := strings.TrimSpace(e.Timestamp)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
