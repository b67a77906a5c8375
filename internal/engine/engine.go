// Package engine runs market entries through strategies, fusion, risk gates, sizing and exits.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/services/exit"
	"github.com/vadiminshakov/fusiontrader/internal/services/fusion"
	"github.com/vadiminshakov/fusiontrader/internal/services/integrator"
	"github.com/vadiminshakov/fusiontrader/internal/services/lotsizer"
	"github.com/vadiminshakov/fusiontrader/internal/services/regime"
	"github.com/vadiminshakov/fusiontrader/internal/services/risk"
	"github.com/vadiminshakov/fusiontrader/internal/services/strategy/rules"
	"github.com/vadiminshakov/fusiontrader/pkg/retrier"
)

const (
	reasonOK        = "OK"
	reasonNoSignal  = "no_signal"
	errorEvalPrefix = "error_eval: "
)

// Engine is the decision pipeline. Process calls are serialized.
type Engine struct {
	mu    sync.Mutex
	cfg   config.Config
	deps  Deps
	state *risk.State
	l     *zap.Logger

	scalp, day, swing *rules.Evaluator
	detector          *regime.Detector
	integrator        *integrator.Integrator
	sizer             *lotsizer.Sizer
	exits             *exit.Calculator

	globalExit  risk.Gate
	killSwitch  risk.Gate
	globalEntry risk.Gate
	correlation risk.Gate
	riskGuard   risk.Gate
	portfolio   risk.Gate
}

// New creates an engine. Missing collaborators get neutral defaults.
func New(cfg config.Config, deps Deps, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	if deps.State == nil {
		deps.State = risk.NewState()
	}
	if deps.AI == nil {
		deps.AI = fusion.StubAI{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Retrier == nil {
		deps.Retrier = retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(200*time.Millisecond))
	}

	e := &Engine{deps: deps, state: deps.State, l: l, integrator: integrator.New(l)}
	e.configure(cfg)
	return e
}

// configure rebuilds every config-bound component over the same shared state.
func (e *Engine) configure(cfg config.Config) {
	e.cfg = cfg
	e.scalp = rules.NewScalp(cfg)
	e.day = rules.NewDay(cfg)
	e.swing = rules.NewSwing(cfg)
	e.detector = regime.NewDetector(cfg)
	e.sizer = lotsizer.New(cfg, e.l)
	e.exits = exit.New(cfg, e.l)

	e.globalExit = risk.NewGlobalExit(cfg, e.state.Losses)
	e.killSwitch = risk.NewKillSwitch(cfg, e.state.KillSwitch)
	e.globalEntry = risk.NewGlobalEntry(cfg)
	e.correlation = risk.NewCorrelation(cfg, e.state.Correlation)
	e.riskGuard = risk.NewRiskGuard(cfg, e.state.Losses)
	e.portfolio = risk.NewPortfolio(cfg, e.state.Cooldowns, e.state.Correlation)
}

// ApplyOverride deep-merges patch into the live config. Risk state survives the swap.
func (e *Engine) ApplyOverride(patch config.Patch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.cfg.Apply(patch)
	if err != nil {
		return errors.Wrap(err, "apply override")
	}
	e.configure(next)
	e.l.Info("override applied", zap.Any("patch", map[string]any(patch)))
	return nil
}

// Config returns the live configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// State exposes the shared risk state.
func (e *Engine) State() *risk.State {
	return e.state
}

// LastATR returns the most recent ATR seen for symbol, falling back to the configured last_atr.
func (e *Engine) LastATR(symbol string) float64 {
	if e.deps.ATR != nil {
		if v := e.deps.ATR.Last(symbol); v > 0 {
			return v
		}
	}
	return domain.Or(e.Config().Symbol(symbol).LastATR, 0)
}

// Run processes entries in order. A failing entry becomes a HOLD and never stops the batch.
func (e *Engine) Run(ctx context.Context, entries []domain.MarketEntry) []domain.FinalDecision {
	out := make([]domain.FinalDecision, 0, len(entries))
	for _, entry := range entries {
		out = append(out, e.safeProcess(ctx, entry))
	}
	return out
}

func (e *Engine) safeProcess(ctx context.Context, entry domain.MarketEntry) (final domain.FinalDecision) {
	defer func() {
		if r := recover(); r != nil {
			e.l.Error("panic while evaluating entry", zap.String("symbol", entry.Symbol), zap.Any("panic", r))
			final = e.errorDecision(entry, fmt.Sprint(r))
		}
	}()

	final, err := e.Process(ctx, entry)
	if err != nil {
		e.l.Error("failed to evaluate entry", zap.String("symbol", entry.Symbol), zap.Error(err))
		return e.errorDecision(entry, err.Error())
	}
	return final
}

func (e *Engine) errorDecision(entry domain.MarketEntry, msg string) domain.FinalDecision {
	d := domain.NewTerminalDecision(entry.Symbol, domain.DecisionHold, errorEvalPrefix+msg)
	d.ID = uuid.NewString()
	d.Entry = entry.Mid()
	d.Timestamp = e.deps.Clock()
	return d
}

// Process evaluates one market entry.
func (e *Engine) Process(ctx context.Context, entry domain.MarketEntry) (domain.FinalDecision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(ctx, entry)
}

func (e *Engine) process(ctx context.Context, entry domain.MarketEntry) (domain.FinalDecision, error) {
	if strings.TrimSpace(entry.Symbol) == "" {
		return domain.FinalDecision{}, errors.New("market entry has no symbol")
	}

	sym := e.cfg.Symbol(entry.Symbol)
	now := e.deps.Clock()
	price := entry.Mid()
	l := e.l.With(zap.String("symbol", entry.Symbol))

	positions, err := e.openPositions(ctx)
	if err != nil {
		return domain.FinalDecision{}, err
	}

	in := &risk.Input{
		Entry:          entry,
		Price:          price,
		Account:        e.account(ctx, entry),
		Positions:      positions,
		Exposure:       domain.NewExposureSummary(positions),
		GlobalReversal: entry.GlobalReversal || sym.GlobalReversal,
		Now:            now,
	}

	final := domain.FinalDecision{
		ID:        uuid.NewString(),
		Symbol:    entry.Symbol,
		Entry:     price,
		TP:        []float64{},
		Timestamp: now,
	}

	if out := risk.Run(in, e.globalExit); out.Vetoed {
		l.Warn("global exit triggered", zap.Strings("tags", out.Tags))
		return final.Terminate(out.Decision, out.Reason()), nil
	}

	atr, adx := entry.ATR(), entry.ADX()
	atrMA := e.observeATR(entry, atr)

	votes := domain.Votes{
		Scalp: e.scalp.Evaluate(entry),
		Day:   e.day.Evaluate(entry),
		Swing: e.swing.Evaluate(entry),
	}
	r := e.regime(ctx, entry)

	var opts []integrator.Option
	if atr > 0 {
		opts = append(opts, integrator.WithVolatility(atr, atrMA))
	}
	rule := e.integrator.Integrate(votes, sym, e.cfg.Global, r, opts...)
	ai := e.deps.AI.Vote(ctx, entry, votes, r)
	fused := fusion.Fuse(ai, rule, r)

	final.Decision = fused.Decision
	final.Confidence = ai.Confidence*fused.Weights.AI + rule.Confidence*fused.Weights.Rule
	final.Score = fused.Score
	final.Mode = regime.SelectMode(sym, atr, adx)
	final.Regime = r
	final.NumEntries = rule.NumEntries
	final.Reason = reasonOK
	final.Votes = &domain.VoteSet{Votes: votes, Fusion: fused}
	final.Signal = domain.Signal{Conf: final.Confidence, WinProb: domain.WinProb(fused.Score)}
	in.Decision = final.Decision

	l.Debug("candidate decision",
		zap.String("decision", string(final.Decision)),
		zap.String("mode", final.Mode),
		zap.String("regime", string(r)),
		zap.Float64("score", final.Score),
		zap.Float64("confidence", final.Confidence),
		zap.Int("num_entries", final.NumEntries))

	// the kill-switch samples equity every cycle, including HOLD ones
	if out := risk.Run(in, e.killSwitch); out.Vetoed {
		l.Warn("kill-switch holding", zap.Strings("tags", out.Tags))
		return final.Terminate(domain.DecisionHold, out.Reason()), nil
	}
	if !final.Decision.IsDirectional() {
		return final.Terminate(domain.DecisionHold, holdReason(votes)), nil
	}

	entryGates := risk.Run(in, e.globalEntry, e.correlation, e.riskGuard)
	if entryGates.Vetoed {
		l.Info("entry blocked", zap.String("gate", entryGates.Gate), zap.Strings("tags", entryGates.Tags))
		return final.Terminate(domain.DecisionHold, entryGates.Reason()), nil
	}

	in.Lot = e.sizer.Compute(lotsizer.Input{
		Symbol:         entry.Symbol,
		Balance:        in.Account.Balance,
		Regime:         r,
		GlobalReversal: in.GlobalReversal,
		OpenCount:      len(in.SymbolPositions()),
	})
	final.Lot = in.Lot

	pf := risk.Run(in, e.portfolio)
	if pf.Vetoed {
		l.Info("portfolio blocked", zap.Strings("tags", pf.Tags))
		return final.Terminate(domain.DecisionHold, pf.Reason()), nil
	}
	final.Reason = pf.Reason()

	exitATR := atr
	if exitATR <= 0 && e.deps.ATR != nil {
		exitATR = e.deps.ATR.Last(entry.Symbol)
	}
	levels := e.exits.Calc(exit.Request{
		Symbol:     entry.Symbol,
		Decision:   final.Decision,
		Entry:      price,
		ATR:        exitATR,
		Lot:        final.Lot,
		NumEntries: final.NumEntries,
		Regime:     r,
	})
	final.ExitLevels = &levels
	final.SL = levels.SL
	for _, tp := range levels.TP {
		final.TP = append(final.TP, tp.Price)
	}

	if err := final.Validate(); err != nil {
		return domain.FinalDecision{}, errors.Wrap(err, "invalid final decision")
	}

	e.state.Cooldowns.RegisterEntry(entry.Symbol, now)
	e.state.Losses.RegisterOrder(entry.Symbol)
	final.CloseTickets = entryGates.Close
	e.evict(ctx, entry.Symbol, in.SymbolPositions(), final.CloseTickets)

	l.Info("decision",
		zap.String("decision", string(final.Decision)),
		zap.Float64("lot", final.Lot),
		zap.Float64("entry", price),
		zap.Float64("sl", *final.SL),
		zap.Float64s("tp", final.TP),
		zap.String("reason", final.Reason))

	return final, nil
}

// account resolves account health: the entry, then the provider, then the last known value.
func (e *Engine) account(ctx context.Context, entry domain.MarketEntry) domain.Account {
	if entry.Account != nil {
		e.state.Account.Store(*entry.Account)
		return *entry.Account
	}
	if e.deps.Accounts != nil {
		acc, err := retrier.DoWithData(e.deps.Retrier, ctx, e.deps.Accounts.Account)
		if err == nil {
			e.state.Account.Store(acc)
			return acc
		}
		e.l.Warn("account query failed, using cached account", zap.Error(err))
	}
	if acc, ok := e.state.Account.Load(); ok {
		return acc
	}
	return domain.DefaultAccount()
}

func (e *Engine) openPositions(ctx context.Context) ([]domain.Position, error) {
	if e.deps.Positions == nil {
		return nil, nil
	}
	positions, err := e.deps.Positions.OpenPositions(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "query open positions")
	}
	return positions, nil
}

func (e *Engine) observeATR(entry domain.MarketEntry, atr float64) float64 {
	var ma float64
	if e.deps.ATR != nil {
		ma = e.deps.ATR.Observe(entry.Symbol, atr)
	}
	if v := domain.Or(entry.Primary().ATRMA, 0); v > 0 {
		return v
	}
	if ma > 0 {
		return ma
	}
	return atr
}

func (e *Engine) regime(ctx context.Context, entry domain.MarketEntry) domain.Regime {
	if e.deps.Regime != nil {
		return e.deps.Regime.Regime(ctx, entry)
	}
	return e.detector.Regime(ctx, entry)
}

func (e *Engine) evict(ctx context.Context, symbol string, positions []domain.Position, tickets []int64) {
	if len(tickets) == 0 || e.deps.Executor == nil {
		return
	}
	lots := make(map[int64]float64, len(positions))
	for _, p := range positions {
		lots[p.Ticket] = p.Volume
	}
	for _, t := range tickets {
		if err := e.deps.Executor.ClosePosition(ctx, t, symbol, lots[t]); err != nil {
			e.l.Error("failed to close evicted position", zap.Int64("ticket", t), zap.Error(err))
			continue
		}
		e.l.Info("evicted position closed", zap.String("symbol", symbol), zap.Int64("ticket", t))
	}
}

func holdReason(votes domain.Votes) string {
	parts := []string{reasonNoSignal}
	for _, name := range []string{rules.NameScalp, rules.NameDay, rules.NameSwing} {
		v, _ := votes.ByStrategy(name)
		if len(v.Reasons) == 0 {
			continue
		}
		parts = append(parts, name+":"+strings.Join(v.Reasons, ","))
	}
	return strings.Join(parts, "|")
}
