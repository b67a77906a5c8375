package risk

import (
	"fmt"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// Correlation blocks a new entry while the correlated partner has an active one.
// On pass it records the symbol's entry price in the book.
type Correlation struct {
	cfg  config.CorrelationConfig
	book *CorrelationBook
}

// NewCorrelation creates the gate over a shared book.
func NewCorrelation(cfg config.Config, book *CorrelationBook) *Correlation {
	return &Correlation{cfg: cfg.Global.CorrelationRisk, book: book}
}

func (c *Correlation) Name() string { return "correlation" }

func (c *Correlation) Check(in *Input) Result {
	if !c.cfg.Enabled {
		return Pass("corr_disabled")
	}
	if tag, blocked := correlationTag(c.book, c.cfg.Pairs, in.Symbol()); blocked {
		return Veto(domain.DecisionHold, tag)
	}
	c.book.Record(in.Symbol(), in.Price)
	return Pass("corr_ok")
}

func correlationTag(book *CorrelationBook, pairs [][]string, symbol string) (string, bool) {
	pair, blocked := book.Conflict(symbol, pairs)
	if !blocked {
		return "corr_ok", false
	}
	return fmt.Sprintf("corr_blocked(%s<->%s)", pair[0], pair[1]), true
}
