package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	defaultMaxOrders       = 5
	defaultMaxDailyLossPct = 5.0
)

// RiskGuard applies per-symbol order, balance, daily loss and stop-loss cooldown limits.
// Under global reversal a full book evicts its worst position instead of blocking.
type RiskGuard struct {
	cfg    config.Config
	losses *LossLedger
}

// NewRiskGuard creates the gate over the shared loss ledger.
func NewRiskGuard(cfg config.Config, losses *LossLedger) *RiskGuard {
	return &RiskGuard{cfg: cfg, losses: losses}
}

func (g *RiskGuard) Name() string { return "risk_guard" }

func (g *RiskGuard) Check(in *Input) Result {
	rc := g.cfg.Symbol(in.Symbol()).Risk

	maxOrders := rc.MaxOrders
	if maxOrders <= 0 {
		maxOrders = defaultMaxOrders
	}
	positions := in.SymbolPositions()
	if len(positions) >= maxOrders {
		if !in.GlobalReversal {
			return Veto(domain.DecisionHold, fmt.Sprintf("orders_blocked(%d/%d)", len(positions), maxOrders))
		}
		if worst, ok := WorstPosition(positions); ok {
			return Pass(fmt.Sprintf("override_replace(ticket=%d)", worst.Ticket)).WithClose(worst.Ticket)
		}
		return Pass("override_allowed(no_replace)")
	}
	tags := []string{"orders_ok"}

	balance := in.Account.Balance
	if balance <= 0 {
		return Veto(domain.DecisionHold, append(tags, "balance_blocked")...)
	}
	tags = append(tags, "balance_ok")

	maxLoss := rc.MaxDailyLossPct
	if maxLoss <= 0 {
		maxLoss = defaultMaxDailyLossPct
	}
	lossPct := math.Abs(g.losses.DailyLoss()) / balance * 100
	if lossPct >= maxLoss {
		return Veto(domain.DecisionHold, append(tags, fmt.Sprintf("loss_blocked(%.2f%%/%v%%)", lossPct, maxLoss))...)
	}
	tags = append(tags, "loss_ok")

	cooldown := time.Duration(rc.CooldownMinutes * float64(time.Minute))
	if last, ok := g.losses.LastSLHit(in.Symbol()); ok && in.Now.Sub(last) < cooldown {
		if in.GlobalReversal {
			return Pass(append(tags, "cooldown_override")...)
		}
		return Veto(domain.DecisionHold, append(tags, "cooldown_blocked")...)
	}
	return Pass(append(tags, "cooldown_ok")...)
}

// WorstPosition returns the position with the lowest profit. Ties go to the lowest ticket.
func WorstPosition(positions []domain.Position) (domain.Position, bool) {
	if len(positions) == 0 {
		return domain.Position{}, false
	}
	sorted := append([]domain.Position(nil), positions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Profit != sorted[j].Profit {
			return sorted[i].Profit < sorted[j].Profit
		}
		return sorted[i].Ticket < sorted[j].Ticket
	})
	return sorted[0], true
}
