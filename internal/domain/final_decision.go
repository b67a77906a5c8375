package domain

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// TakeProfit is one take-profit level with the share of volume it closes.
type TakeProfit struct {
	Price float64 `json:"price"`
	Perc  float64 `json:"perc"`
}

// LegExit holds stop and targets for one entry leg.
type LegExit struct {
	EntryIndex int       `json:"entry_index"`
	Lot        float64   `json:"lot"`
	SL         float64   `json:"sl"`
	TP         []float64 `json:"tp"`
	TPPerc     []float64 `json:"tp_perc"`
}

// ExitLevels is the multi-leg exit plan. SL and TP mirror leg 1.
type ExitLevels struct {
	SL   *float64     `json:"sl"`
	TP   []TakeProfit `json:"tp"`
	Legs []LegExit    `json:"legs,omitempty"`
}

// Signal summarizes conviction for the execution layer.
type Signal struct {
	Conf    float64 `json:"conf"`
	WinProb float64 `json:"winprob"`
}

// VoteSet keeps every intermediate opinion for auditing.
type VoteSet struct {
	Votes  Votes         `json:"votes"`
	Fusion FusedDecision `json:"fusion"`
}

// FinalDecision is the engine output for one market entry.
type FinalDecision struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Decision   Decision    `json:"decision"`
	Confidence float64     `json:"confidence"`
	Score      float64     `json:"score"`
	Entry      float64     `json:"entry"`
	Lot        float64     `json:"lot"`
	SL         *float64    `json:"sl"`
	TP         []float64   `json:"tp"`
	Mode       string      `json:"mode,omitempty"`
	Regime     Regime      `json:"regime,omitempty"`
	NumEntries int         `json:"num_entries"`
	Reason     string      `json:"reason"`
	ExitLevels *ExitLevels `json:"exit_levels,omitempty"`
	Votes      *VoteSet    `json:"votes,omitempty"`
	Signal     Signal      `json:"signal"`
	Timestamp  time.Time   `json:"ts"`
	// CloseTickets lists positions the risk guard evicted to make room for this entry.
	CloseTickets []int64 `json:"close_tickets,omitempty"`
}

// NewTerminalDecision builds a HOLD or CLOSE_ALL decision with no exposure.
func NewTerminalDecision(symbol string, decision Decision, reason string) FinalDecision {
	return FinalDecision{
		Symbol:   symbol,
		Decision: decision,
		Reason:   reason,
		TP:       []float64{},
	}
}

// Terminate turns d into a terminal decision, dropping size and exits.
func (d FinalDecision) Terminate(decision Decision, reason string) FinalDecision {
	d.Decision = decision
	d.Reason = reason
	d.Lot = 0
	d.SL = nil
	d.TP = []float64{}
	d.ExitLevels = nil
	d.CloseTickets = nil
	return d
}

// WinProb converts a fused score into a win probability in [0,1].
func WinProb(score float64) float64 {
	s := math.Max(-1, math.Min(1, score))
	return math.Round(math.Abs(s)*1000) / 1000
}

// Validate checks the exposure invariants of a final decision.
func (d FinalDecision) Validate() error {
	switch d.Decision {
	case DecisionHold, DecisionCloseAll:
		if d.Lot != 0 {
			return errors.Errorf("%s decision must have zero lot, got %v", d.Decision, d.Lot)
		}
		if d.SL != nil {
			return errors.Errorf("%s decision must not carry a stop loss", d.Decision)
		}
		if len(d.TP) != 0 {
			return errors.Errorf("%s decision must not carry take profits", d.Decision)
		}
	case DecisionBuy, DecisionSell:
		if d.Lot <= 0 {
			return errors.Errorf("%s decision must have positive lot, got %v", d.Decision, d.Lot)
		}
		if d.SL == nil {
			return errors.Errorf("%s decision must carry a stop loss", d.Decision)
		}
	default:
		return errors.Errorf("unknown decision %q", d.Decision)
	}
	return nil
}
