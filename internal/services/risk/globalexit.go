package risk

import (
	"fmt"
	"math"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// GlobalExit closes everything when account health degrades or the daily target is hit.
type GlobalExit struct {
	global config.GlobalConfig
	losses *LossLedger
}

// NewGlobalExit creates the gate. losses may be nil when no daily loss is tracked.
func NewGlobalExit(cfg config.Config, losses *LossLedger) *GlobalExit {
	return &GlobalExit{global: cfg.Global, losses: losses}
}

func (g *GlobalExit) Name() string { return "global_exit" }

func (g *GlobalExit) Check(in *Input) Result {
	balance, equity := in.Account.Balance, in.Account.Equity
	if balance <= 0 {
		return Pass("balance_invalid")
	}

	eqPct := equity / balance * 100
	if eqPct < g.global.MinEquityPct {
		return Veto(domain.DecisionCloseAll, fmt.Sprintf("equity_low(%.1f%%<%v%%)", eqPct, g.global.MinEquityPct))
	}
	tags := []string{"equity_ok"}

	dd := 100 - eqPct
	if dd >= g.global.MaxDrawdownPct {
		return Veto(domain.DecisionCloseAll, fmt.Sprintf("drawdown_exceed(%.1f%%/%v%%)", dd, g.global.MaxDrawdownPct))
	}
	tags = append(tags, "dd_ok")

	gain := (equity - balance) / balance * 100
	if gain >= g.global.DailyTargetPct {
		return Veto(domain.DecisionCloseAll, fmt.Sprintf("daily_target_hit(%.1f%%/%v%%)", gain, g.global.DailyTargetPct))
	}
	tags = append(tags, "daily_target_ok")

	var dailyLoss float64
	if g.losses != nil {
		dailyLoss = g.losses.DailyLoss()
	}
	blocked, tag := PnLGuard(g.global, balance, dailyLoss)
	if blocked {
		return Veto(domain.DecisionCloseAll, "pnl_guard_blocked", tag)
	}
	tags = append(tags, tag)

	return Pass(append(tags, "equity_normal")...)
}

// PnLGuard reports whether the daily loss breaches the percent or absolute cap.
func PnLGuard(global config.GlobalConfig, balance, dailyLoss float64) (bool, string) {
	if balance <= 0 {
		return true, "balance_invalid"
	}
	loss := math.Abs(dailyLoss)
	if global.MaxDailyLossPct != nil && *global.MaxDailyLossPct > 0 {
		pct := loss / balance * 100
		if pct >= *global.MaxDailyLossPct {
			return true, fmt.Sprintf("daily_loss_pct_exceed(%.2f%%/%v%%)", pct, *global.MaxDailyLossPct)
		}
	}
	if global.MaxDailyLossAbs != nil && *global.MaxDailyLossAbs > 0 && loss >= *global.MaxDailyLossAbs {
		return true, fmt.Sprintf("daily_loss_abs_exceed(%.2f/%v)", dailyLoss, *global.MaxDailyLossAbs)
	}
	return false, "pnl_guard_ok"
}
