package risk

import (
	"fmt"
	"math"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	fallbackBalance     = 1e6
	defaultMaxRiskPct   = 0.3
	defaultSymbolOrders = 1
)

// Portfolio runs the last checks on the sized order. Every limit except
// correlation can be overridden by global reversal.
type Portfolio struct {
	cfg       config.Config
	cooldowns *Cooldowns
	book      *CorrelationBook
}

// NewPortfolio creates the gate over shared cooldowns and correlation book.
func NewPortfolio(cfg config.Config, cooldowns *Cooldowns, book *CorrelationBook) *Portfolio {
	return &Portfolio{cfg: cfg, cooldowns: cooldowns, book: book}
}

func (p *Portfolio) Name() string { return "portfolio" }

func (p *Portfolio) Check(in *Input) Result {
	if in.Lot <= 0 {
		return Veto(domain.DecisionHold, "lot_invalid")
	}

	pm := p.cfg.Symbol(in.Symbol()).Portfolio
	global := p.cfg.Global
	var tags []string

	// overridable adds the override tag under global reversal, otherwise it vetoes
	overridable := func(override, blocked string) (Result, bool) {
		if in.GlobalReversal {
			tags = append(tags, override)
			return Result{}, false
		}
		return Veto(domain.DecisionHold, append(tags, blocked)...), true
	}

	balance := in.Account.Balance
	if balance <= 0 {
		balance = fallbackBalance
	}
	maxRisk := pm.MaxRiskPct
	if maxRisk <= 0 {
		maxRisk = defaultMaxRiskPct
	}
	if maxRisk <= 1 {
		maxRisk = math.Round(maxRisk*100*1e6) / 1e6
	}
	riskPct := in.Lot / balance * 100
	if riskPct > maxRisk {
		detail := fmt.Sprintf("(%.4f%%/%v%%)", riskPct, maxRisk)
		if r, stop := overridable("risk_override"+detail, "risk_blocked"+detail); stop {
			return r
		}
	} else {
		tags = append(tags, "risk_ok")
	}

	maxOrders := pm.MaxOrders
	if maxOrders <= 0 {
		maxOrders = defaultSymbolOrders
	}
	if open := in.Exposure.Orders(in.Symbol()); open >= maxOrders {
		detail := fmt.Sprintf("(%d/%d)", open, maxOrders)
		if r, stop := overridable("orders_override"+detail, "orders_blocked"+detail); stop {
			return r
		}
	} else {
		tags = append(tags, "orders_ok")
	}

	if global.MaxOrdersTotal > 0 {
		total := in.Exposure.TotalOrders()
		detail := fmt.Sprintf("(%d/%d)", total, global.MaxOrdersTotal)
		if total >= global.MaxOrdersTotal {
			if r, stop := overridable("global_orders_override"+detail, "global_orders_blocked"+detail); stop {
				return r
			}
		} else {
			tags = append(tags, "global_orders_ok"+detail)
		}
	}

	if pm.MaxSymbols > 0 && in.Exposure.Orders(in.Symbol()) == 0 {
		active := 0
		for _, lots := range in.Exposure {
			if len(lots) > 0 {
				active++
			}
		}
		if active >= pm.MaxSymbols {
			detail := fmt.Sprintf("(%d/%d)", active, pm.MaxSymbols)
			if r, stop := overridable("symbols_override"+detail, "symbols_blocked"+detail); stop {
				return r
			}
		}
	}

	if global.CooldownSeconds > 0 {
		last, ok := p.cooldowns.LastGlobal()
		elapsed := in.Now.Sub(last).Seconds()
		if ok && elapsed < global.CooldownSeconds {
			detail := fmt.Sprintf("(%.1fs/%vs)", elapsed, global.CooldownSeconds)
			if r, stop := overridable("cooldown_override"+detail, "cooldown_blocked"+detail); stop {
				return r
			}
		} else {
			tags = append(tags, "cooldown_ok")
		}
	}

	if global.CorrelationRisk.Enabled {
		tag, blocked := correlationTag(p.book, global.CorrelationRisk.Pairs, in.Symbol())
		tags = append(tags, tag)
		if blocked {
			return Veto(domain.DecisionHold, tags...)
		}
	}

	return Pass(append(tags, "allowed")...)
}
