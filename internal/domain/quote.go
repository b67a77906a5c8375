package domain

import "time"

// Quote is the live top of book for a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
	// StopsLevel is the broker minimum stop distance in pips.
	StopsLevel float64 `json:"stops_level,omitempty"`
}

// ExitPrice is the price a position of side would close at.
func (q Quote) ExitPrice(side Decision) float64 {
	if side == DecisionSell {
		return q.Ask
	}
	return q.Bid
}
