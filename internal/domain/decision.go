package domain

import "strings"

// Decision is a trading verdict produced by strategies, fusion or the risk gates.
// Votes may carry arbitrary strings; only the four constants below are valid.
type Decision string

const (
	DecisionBuy      Decision = "BUY"
	DecisionSell     Decision = "SELL"
	DecisionHold     Decision = "HOLD"
	DecisionCloseAll Decision = "CLOSE_ALL"
)

// ParseDecision normalizes s and reports whether it names a known decision.
func ParseDecision(s string) (Decision, bool) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	if d.Valid() {
		return d, true
	}
	return DecisionHold, false
}

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionBuy, DecisionSell, DecisionHold, DecisionCloseAll:
		return true
	}
	return false
}

// IsVote reports whether d may appear in a strategy vote. Empty counts as HOLD.
func (d Decision) IsVote() bool {
	switch d {
	case DecisionBuy, DecisionSell, DecisionHold, "":
		return true
	}
	return false
}

// IsDirectional reports whether d opens exposure.
func (d Decision) IsDirectional() bool {
	return d == DecisionBuy || d == DecisionSell
}

// Sign maps BUY to +1, SELL to -1 and everything else to 0.
func (d Decision) Sign() int {
	switch d {
	case DecisionBuy:
		return 1
	case DecisionSell:
		return -1
	default:
		return 0
	}
}

// FromSign is the inverse of Sign for scores.
func FromSign(score float64) Decision {
	switch {
	case score > 0:
		return DecisionBuy
	case score < 0:
		return DecisionSell
	default:
		return DecisionHold
	}
}

func (d Decision) String() string {
	return string(d)
}
