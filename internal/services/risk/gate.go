// Package risk holds the safety gates a candidate trade must pass and the
// process-wide state they share across decision cycles.
package risk

import (
	"strings"
	"time"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Result is what a gate returns: a pass with tags, or a veto carrying the
// terminal decision to force. Close lists positions the gate wants closed.
type Result struct {
	Vetoed   bool
	Decision domain.Decision
	Tags     []string
	Close    []int64
}

// Pass lets the trade through.
func Pass(tags ...string) Result {
	return Result{Tags: tags}
}

// Veto stops the chain and forces decision (HOLD or CLOSE_ALL).
func Veto(decision domain.Decision, tags ...string) Result {
	return Result{Vetoed: true, Decision: decision, Tags: tags}
}

// WithClose attaches eviction requests to r.
func (r Result) WithClose(tickets ...int64) Result {
	r.Close = append(r.Close, tickets...)
	return r
}

// Reason joins the tags with "|".
func (r Result) Reason() string {
	return strings.Join(r.Tags, "|")
}

// Input is the candidate trade as seen by the gates.
type Input struct {
	Entry          domain.MarketEntry
	Decision       domain.Decision
	Price          float64
	Account        domain.Account
	Positions      []domain.Position
	Exposure       domain.ExposureSummary
	Lot            float64
	GlobalReversal bool
	Now            time.Time
}

// Symbol is a shortcut for the entry symbol.
func (in *Input) Symbol() string {
	return in.Entry.Symbol
}

// SymbolPositions returns the open positions of the entry symbol.
func (in *Input) SymbolPositions() []domain.Position {
	var out []domain.Position
	for _, p := range in.Positions {
		if p.Symbol == in.Entry.Symbol {
			out = append(out, p)
		}
	}
	return out
}

// Gate is one check in the chain.
type Gate interface {
	Name() string
	Check(in *Input) Result
}

// Outcome is the result of running a chain.
type Outcome struct {
	Result
	// Gate names the gate that vetoed, or the last gate that ran.
	Gate string
	// Trail holds the tags of every gate that ran, in order.
	Trail []string
}

// Run evaluates gates in order and stops at the first veto.
// Eviction requests accumulate across the gates that ran.
func Run(in *Input, gates ...Gate) Outcome {
	var out Outcome
	var closes []int64
	for _, g := range gates {
		r := g.Check(in)
		out.Trail = append(out.Trail, r.Tags...)
		closes = append(closes, r.Close...)
		out.Result = r
		out.Gate = g.Name()
		if r.Vetoed {
			break
		}
	}
	out.Close = closes
	return out
}
