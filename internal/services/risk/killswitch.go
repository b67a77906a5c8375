package risk

import (
	"fmt"
	"time"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// KillSwitch halts new entries once equity falls too far from its rolling peak.
// After tripping it keeps holding until the state is reset.
type KillSwitch struct {
	global config.GlobalConfig
	state  *KillSwitchState
}

// NewKillSwitch creates the gate over shared state.
func NewKillSwitch(cfg config.Config, state *KillSwitchState) *KillSwitch {
	return &KillSwitch{global: cfg.Global, state: state}
}

func (k *KillSwitch) Name() string { return "killswitch" }

func (k *KillSwitch) Check(in *Input) Result {
	if !k.global.KillswitchEnabled {
		return Pass("killswitch_disabled")
	}

	window := time.Duration(k.global.KillswitchWindowHours * float64(time.Hour))
	dd := k.state.Observe(in.Now, in.Account.Equity, window)

	if k.state.Triggered() {
		return Veto(domain.DecisionHold, "killswitch_triggered(sticky)")
	}
	if dd >= k.global.KillswitchDDLimitPct {
		k.state.Trip()
		return Veto(domain.DecisionHold, fmt.Sprintf("killswitch_triggered(dd=%.1f%%/%v%%)", dd, k.global.KillswitchDDLimitPct))
	}
	return Pass(fmt.Sprintf("killswitch_ok(dd=%.1f%%/%v%%)", dd, k.global.KillswitchDDLimitPct))
}
