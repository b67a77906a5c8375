package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func input(symbol string, acc domain.Account, positions ...domain.Position) *Input {
	return &Input{
		Entry:     domain.MarketEntry{Symbol: symbol, Bid: 100, Ask: 101},
		Decision:  domain.DecisionBuy,
		Price:     100.5,
		Account:   acc,
		Positions: positions,
		Exposure:  domain.NewExposureSummary(positions),
		Lot:       0.1,
		Now:       now,
	}
}

func account(balance, equity float64) domain.Account {
	return domain.Account{Balance: balance, Equity: equity}
}

func position(ticket int64, symbol string, profit float64) domain.Position {
	return domain.Position{Ticket: ticket, Symbol: symbol, Side: domain.DecisionBuy, Volume: 0.1, EntryPrice: 100, Profit: profit}
}

func mustParse(t *testing.T, raw string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

type fixedGate struct {
	name  string
	res   Result
	calls *int
}

func (g fixedGate) Name() string { return g.name }

func (g fixedGate) Check(*Input) Result {
	*g.calls++
	return g.res
}

func TestRun_ShortCircuits(t *testing.T) {
	var a, b, c int
	out := Run(input(config.SymbolBTC, account(100, 100)),
		fixedGate{"a", Pass("a_ok").WithClose(7), &a},
		fixedGate{"b", Veto(domain.DecisionHold, "b_blocked"), &b},
		fixedGate{"c", Pass("c_ok"), &c},
	)

	assert.True(t, out.Vetoed)
	assert.Equal(t, "b", out.Gate)
	assert.Equal(t, domain.DecisionHold, out.Decision)
	assert.Equal(t, "b_blocked", out.Reason())
	assert.Equal(t, []string{"a_ok", "b_blocked"}, out.Trail)
	assert.Equal(t, []int64{7}, out.Close)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 0, c)

	out = Run(input(config.SymbolBTC, account(100, 100)), fixedGate{"c", Pass("c_ok"), &c})
	assert.False(t, out.Vetoed)
	assert.Equal(t, "c_ok", out.Reason())
}

func TestGlobalExit(t *testing.T) {
	cfg := mustParse(t, `
global:
  min_equity_pct: 50
  max_drawdown_pct: 30
  daily_target_pct: 10
  max_daily_loss_abs: 200
`)
	losses := NewLossLedger()
	gate := NewGlobalExit(cfg, losses)

	tests := []struct {
		name   string
		acc    domain.Account
		vetoed bool
		tag    string
	}{
		{"invalid balance keeps trading", account(0, 100), false, "balance_invalid"},
		{"equity low", account(10000, 4000), true, "equity_low(40.0%<50%)"},
		{"drawdown", account(10000, 6500), true, "drawdown_exceed(35.0%/30%)"},
		{"daily target", account(10000, 11500), true, "daily_target_hit(15.0%/10%)"},
		{"normal", account(10000, 10000), false, "equity_normal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gate.Check(input(config.SymbolBTC, tt.acc))
			assert.Equal(t, tt.vetoed, r.Vetoed)
			assert.Contains(t, r.Tags, tt.tag)
			if r.Vetoed {
				assert.Equal(t, domain.DecisionCloseAll, r.Decision)
			}
		})
	}

	losses.RegisterLoss(config.SymbolBTC, -250, now)
	r := gate.Check(input(config.SymbolBTC, account(10000, 10000)))
	require.True(t, r.Vetoed)
	assert.Equal(t, "pnl_guard_blocked", r.Tags[0])
	assert.Contains(t, r.Reason(), "daily_loss_abs_exceed")
}

func TestPnLGuard(t *testing.T) {
	pct := 2.0
	g := config.GlobalConfig{MaxDailyLossPct: &pct}

	blocked, tag := PnLGuard(g, 10000, -150)
	assert.False(t, blocked)
	assert.Equal(t, "pnl_guard_ok", tag)

	blocked, tag = PnLGuard(g, 10000, -200)
	assert.True(t, blocked)
	assert.Equal(t, "daily_loss_pct_exceed(2.00%/2%)", tag)

	blocked, _ = PnLGuard(g, 0, 0)
	assert.True(t, blocked)
}

func TestKillSwitch(t *testing.T) {
	cfg := config.Default()
	state := &KillSwitchState{}
	gate := NewKillSwitch(cfg, state)

	in := input(config.SymbolBTC, account(10000, 10000))
	assert.False(t, gate.Check(in).Vetoed)

	in.Now = now.Add(time.Hour)
	in.Account.Equity = 9500
	assert.False(t, gate.Check(in).Vetoed)

	in.Now = now.Add(2 * time.Hour)
	in.Account.Equity = 8900
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, domain.DecisionHold, r.Decision)
	assert.Equal(t, "killswitch_triggered(dd=11.0%/10%)", r.Reason())

	in.Now = now.Add(3 * time.Hour)
	in.Account.Equity = 10000
	r = gate.Check(in)
	require.True(t, r.Vetoed, "the switch is sticky")
	assert.Equal(t, "killswitch_triggered(sticky)", r.Reason())

	state.Reset()
	assert.False(t, gate.Check(in).Vetoed)
}

func TestKillSwitch_WindowDropsOldPeaks(t *testing.T) {
	state := &KillSwitchState{}
	gate := NewKillSwitch(config.Default(), state)

	in := input(config.SymbolBTC, account(10000, 10000))
	gate.Check(in)

	in.Now = now.Add(7 * time.Hour)
	in.Account.Equity = 8500
	r := gate.Check(in)
	assert.False(t, r.Vetoed, "the old peak left the 6h window")
	assert.Equal(t, 1, state.Samples())
}

func TestKillSwitch_Disabled(t *testing.T) {
	cfg := mustParse(t, "global:\n  killswitch_enabled: false\n")
	r := NewKillSwitch(cfg, &KillSwitchState{}).Check(input(config.SymbolBTC, account(10000, 1)))
	assert.False(t, r.Vetoed)
	assert.Equal(t, "killswitch_disabled", r.Reason())
}

func TestGlobalEntry(t *testing.T) {
	gate := NewGlobalEntry(config.Default())

	tests := []struct {
		name   string
		in     *Input
		vetoed bool
		reason string
	}{
		{"invalid balance", input(config.SymbolBTC, account(0, 0)), true, "balance_invalid"},
		{"unknown symbol", input("EURUSD", account(10000, 10000)), true, "symbol_blocked(EURUSD)"},
		{"equity low", input(config.SymbolXAU, account(10000, 4000)), true, "entry_blocked_equity_low(40.0%<50%)"},
		{"ok", input(config.SymbolXAU, account(10000, 10000), position(1, config.SymbolBTC, 0)), false, "equity_ok|lots_ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gate.Check(tt.in)
			assert.Equal(t, tt.vetoed, r.Vetoed)
			assert.Equal(t, tt.reason, r.Reason())
		})
	}

	in := input(config.SymbolXAU, account(10, 10), position(1, config.SymbolBTC, 0))
	in.Entry.ExternalLots = 0.5
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "entry_blocked_lots_exceed(0.60/5%)", r.Reason())
}

func TestCorrelation(t *testing.T) {
	book := NewCorrelationBook()
	gate := NewCorrelation(config.Default(), book)

	btc := input(config.SymbolBTC, account(10000, 10000))
	r := gate.Check(btc)
	assert.False(t, r.Vetoed)
	assert.Equal(t, map[string]float64{config.SymbolBTC: 100.5}, book.Active())

	assert.False(t, gate.Check(btc).Vetoed, "the same symbol does not conflict with itself")

	r = gate.Check(input(config.SymbolXAU, account(10000, 10000)))
	require.True(t, r.Vetoed)
	assert.Equal(t, "corr_blocked(BTCUSDc<->XAUUSDc)", r.Reason())
	_, recorded := book.Active()[config.SymbolXAU]
	assert.False(t, recorded, "blocked entries are not recorded")

	book.Release(config.SymbolBTC)
	assert.False(t, gate.Check(input(config.SymbolXAU, account(10000, 10000))).Vetoed)

	disabled := NewCorrelation(mustParse(t, "global:\n  correlation_risk:\n    enabled: false\n"), book)
	assert.Equal(t, "corr_disabled", disabled.Check(input(config.SymbolBTC, account(1, 1))).Reason())
}

func TestRiskGuard_Orders(t *testing.T) {
	cfg := mustParse(t, "symbols:\n  BTCUSDc:\n    risk:\n      max_orders: 1\n")
	gate := NewRiskGuard(cfg, NewLossLedger())

	in := input(config.SymbolBTC, account(10000, 10000), position(11, config.SymbolBTC, -5))
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "orders_blocked(1/1)", r.Reason())

	in = input(config.SymbolBTC, account(10000, 10000),
		position(12, config.SymbolBTC, -3),
		position(11, config.SymbolBTC, -3),
		position(20, config.SymbolXAU, -50))
	in.GlobalReversal = true
	r = gate.Check(in)
	assert.False(t, r.Vetoed)
	assert.Equal(t, "override_replace(ticket=11)", r.Reason(), "ties evict the lowest ticket")
	assert.Equal(t, []int64{11}, r.Close)

	in = input(config.SymbolXAU, account(10000, 10000))
	assert.Equal(t, "orders_ok|balance_ok|loss_ok|cooldown_ok", gate.Check(in).Reason())
}

func TestRiskGuard_LossAndCooldown(t *testing.T) {
	losses := NewLossLedger()
	gate := NewRiskGuard(config.Default(), losses)

	losses.RecordTrade(config.SymbolBTC, -100, now.Add(-5*time.Minute))
	assert.Equal(t, 1, losses.Orders(config.SymbolBTC))

	in := input(config.SymbolBTC, account(10000, 10000))
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "orders_ok|balance_ok|loss_ok|cooldown_blocked", r.Reason())

	in.GlobalReversal = true
	r = gate.Check(in)
	assert.False(t, r.Vetoed)
	assert.Equal(t, "orders_ok|balance_ok|loss_ok|cooldown_override", r.Reason())

	in.GlobalReversal = false
	in.Now = now.Add(20 * time.Minute)
	assert.False(t, gate.Check(in).Vetoed, "cooldown expired")

	losses.RegisterLoss(config.SymbolXAU, -450, now.Add(-time.Hour))
	r = gate.Check(input(config.SymbolXAU, account(10000, 10000)))
	require.True(t, r.Vetoed)
	assert.Equal(t, "orders_ok|balance_ok|loss_blocked(5.50%/5%)", r.Reason())

	losses.ResetDay()
	assert.Equal(t, 0.0, losses.DailyLoss())
	_, ok := losses.LastSLHit(config.SymbolXAU)
	assert.True(t, ok, "cooldowns survive the daily reset")

	r = gate.Check(input(config.SymbolXAU, account(0, 0)))
	assert.Equal(t, "orders_ok|balance_blocked", r.Reason())
}

func TestPortfolio(t *testing.T) {
	cfg := mustParse(t, `
global:
  max_orders_total: 2
  cooldown_seconds: 60
symbols:
  BTCUSDc:
    portfolio:
      max_orders: 2
      max_risk_pct: 0.3
`)
	cooldowns := NewCooldowns()
	book := NewCorrelationBook()
	gate := NewPortfolio(cfg, cooldowns, book)

	in := input(config.SymbolBTC, account(10000, 10000))
	assert.Equal(t, "risk_ok|orders_ok|global_orders_ok(0/2)|cooldown_ok|corr_ok|allowed", gate.Check(in).Reason())

	in.Lot = 0
	assert.Equal(t, "lot_invalid", gate.Check(in).Reason())

	in = input(config.SymbolBTC, account(100, 100))
	in.Lot = 50
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "risk_blocked(50.0000%/30%)", r.Reason())

	in.GlobalReversal = true
	r = gate.Check(in)
	assert.False(t, r.Vetoed)
	assert.True(t, strings.HasPrefix(r.Reason(), "risk_override(50.0000%/30%)|orders_ok"))

	in = input(config.SymbolBTC, account(10000, 10000), position(1, config.SymbolBTC, 0), position(2, config.SymbolXAU, 0))
	r = gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "risk_ok|orders_ok|global_orders_blocked(2/2)", r.Reason())

	cooldowns.RegisterEntry(config.SymbolXAU, now.Add(-10*time.Second))
	in = input(config.SymbolBTC, account(10000, 10000))
	r = gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "risk_ok|orders_ok|global_orders_ok(0/2)|cooldown_blocked(10.0s/60s)", r.Reason())
	in.GlobalReversal = true
	assert.False(t, gate.Check(in).Vetoed)

	cooldowns.Reset()
	book.Record(config.SymbolXAU, 2000)
	in.GlobalReversal = true
	r = gate.Check(in)
	require.True(t, r.Vetoed, "correlation cannot be overridden")
	assert.Contains(t, r.Reason(), "corr_blocked(BTCUSDc<->XAUUSDc)")
}

func TestPortfolio_SymbolOrders(t *testing.T) {
	gate := NewPortfolio(config.Default(), NewCooldowns(), NewCorrelationBook())

	in := input(config.SymbolXAU, account(10000, 10000), position(3, config.SymbolXAU, 0))
	r := gate.Check(in)
	require.True(t, r.Vetoed)
	assert.Equal(t, "risk_ok|orders_blocked(1/1)", r.Reason())

	in.GlobalReversal = true
	assert.Equal(t, "risk_ok|orders_override(1/1)|corr_ok|allowed", gate.Check(in).Reason())
}

func TestState_Reset(t *testing.T) {
	s := NewState()
	s.KillSwitch.Trip()
	s.Correlation.Record(config.SymbolBTC, 1)
	s.Cooldowns.RegisterEntry(config.SymbolBTC, now)
	s.Losses.RegisterLoss(config.SymbolBTC, -1, now)
	s.Account.Store(account(1, 1))

	s.Reset()

	assert.False(t, s.KillSwitch.Triggered())
	assert.Empty(t, s.Correlation.Active())
	_, ok := s.Cooldowns.LastGlobal()
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.Losses.DailyLoss())
	_, ok = s.Account.Load()
	assert.False(t, ok)
}
