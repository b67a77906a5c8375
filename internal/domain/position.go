package domain

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const seriesCommentPrefix = "series-"

// Position is an open broker position as reported by the position query layer.
type Position struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       Decision  `json:"side"`
	Volume     float64   `json:"volume"`
	EntryPrice float64   `json:"entry_price"`
	Profit     float64   `json:"profit"`
	SL         *float64  `json:"sl,omitempty"`
	TP         []float64 `json:"tp,omitempty"`
	Comment    string    `json:"comment,omitempty"`
}

// NewPosition validates and builds a position.
func NewPosition(ticket int64, symbol string, side Decision, volume, entryPrice float64) (Position, error) {
	if symbol == "" {
		return Position{}, errors.New("position symbol is required")
	}
	if !side.IsDirectional() {
		return Position{}, errors.Errorf("position side must be BUY or SELL, got %q", side)
	}
	if volume <= 0 {
		return Position{}, errors.Errorf("position volume must be positive, got %v", volume)
	}
	if entryPrice <= 0 {
		return Position{}, errors.Errorf("position entry price must be positive, got %v", entryPrice)
	}
	return Position{Ticket: ticket, Symbol: symbol, Side: side, Volume: volume, EntryPrice: entryPrice}, nil
}

// EntryIndex returns the leg index encoded as "series-<n>|..." in the comment, 1 otherwise.
func (p Position) EntryIndex() int {
	return ParseEntryIndex(p.Comment)
}

// ParseEntryIndex extracts the leg index from an order comment.
func ParseEntryIndex(comment string) int {
	i := strings.Index(comment, seriesCommentPrefix)
	if i < 0 {
		return 1
	}
	rest := comment[i+len(seriesCommentPrefix):]
	if j := strings.Index(rest, "|"); j >= 0 {
		rest = rest[:j]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// SeriesComment encodes a leg index with confidence and win probability.
func SeriesComment(entryIndex int, conf, winProb float64) string {
	return seriesCommentPrefix + strconv.Itoa(entryIndex) + "|" +
		strconv.FormatFloat(conf, 'f', 2, 64) + "|" + strconv.FormatFloat(winProb, 'f', 2, 64)
}

// ExposureSummary maps a symbol to the lots of its open positions.
type ExposureSummary map[string][]float64

// NewExposureSummary groups positions by symbol.
func NewExposureSummary(positions []Position) ExposureSummary {
	out := make(ExposureSummary)
	for _, p := range positions {
		out[p.Symbol] = append(out[p.Symbol], p.Volume)
	}
	return out
}

// TotalLots sums lots across every symbol.
func (s ExposureSummary) TotalLots() float64 {
	var total float64
	for _, lots := range s {
		for _, l := range lots {
			total += l
		}
	}
	return total
}

// TotalOrders counts open positions across every symbol.
func (s ExposureSummary) TotalOrders() int {
	var n int
	for _, lots := range s {
		n += len(lots)
	}
	return n
}

// Orders counts open positions for symbol.
func (s ExposureSummary) Orders(symbol string) int {
	return len(s[symbol])
}
