package risk

import (
	"fmt"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// GlobalEntry checks account-wide preconditions for opening anything new.
type GlobalEntry struct {
	global  config.GlobalConfig
	allowed map[string]struct{}
}

// NewGlobalEntry creates the gate. An empty allowed list admits every symbol.
func NewGlobalEntry(cfg config.Config) *GlobalEntry {
	allowed := make(map[string]struct{}, len(cfg.Global.AllowedSymbols))
	for _, s := range cfg.Global.AllowedSymbols {
		allowed[s] = struct{}{}
	}
	return &GlobalEntry{global: cfg.Global, allowed: allowed}
}

func (g *GlobalEntry) Name() string { return "global_entry" }

func (g *GlobalEntry) Check(in *Input) Result {
	balance, equity := in.Account.Balance, in.Account.Equity
	if balance <= 0 {
		return Veto(domain.DecisionHold, "balance_invalid")
	}

	if len(g.allowed) > 0 {
		if _, ok := g.allowed[in.Symbol()]; !ok {
			return Veto(domain.DecisionHold, fmt.Sprintf("symbol_blocked(%s)", in.Symbol()))
		}
	}

	eqPct := equity / balance * 100
	if eqPct < g.global.MinEquityPct {
		return Veto(domain.DecisionHold, fmt.Sprintf("entry_blocked_equity_low(%.1f%%<%v%%)", eqPct, g.global.MinEquityPct))
	}
	tags := []string{"equity_ok"}

	lots := in.Exposure.TotalLots() + in.Entry.ExternalLots
	if lots/balance*100 > g.global.MaxLotsPct {
		return Veto(domain.DecisionHold, fmt.Sprintf("entry_blocked_lots_exceed(%.2f/%v%%)", lots, g.global.MaxLotsPct))
	}
	return Pass(append(tags, "lots_ok")...)
}
