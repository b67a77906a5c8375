package exit

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const slEpsilon = 1e-9

// Broker is the position query and execution capability the trailing manager drives.
type Broker interface {
	OpenPositions(ctx context.Context, symbol string) ([]domain.Position, error)
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	ModifyPosition(ctx context.Context, ticket int64, sl *float64, tp []float64) error
	ClosePosition(ctx context.Context, ticket int64, symbol string, lot float64) error
}

// ATRFunc returns the last known ATR for a symbol, 0 when unknown.
type ATRFunc func(symbol string) float64

// CloseHook is notified after a forced close.
type CloseHook func(pos domain.Position, reason string)

// Closed is a position the manager force-closed.
type Closed struct {
	Ticket int64   `json:"ticket"`
	Symbol string  `json:"symbol"`
	Reason string  `json:"reason"`
	Profit float64 `json:"profit"`
}

// Report summarizes one trailing cycle.
type Report struct {
	Symbol   string   `json:"symbol"`
	Adjusted []int64  `json:"adjusted"`
	Closed   []Closed `json:"closed"`
}

// TrailingManager maintains stops of open positions.
type TrailingManager struct {
	mu      sync.RWMutex
	calc    *Calculator
	broker  Broker
	atr     ATRFunc
	onClose CloseHook
	l       *zap.Logger
}

// TrailingOption configures a TrailingManager.
type TrailingOption func(*TrailingManager)

// WithCloseHook registers a callback for forced closes.
func WithCloseHook(h CloseHook) TrailingOption {
	return func(m *TrailingManager) { m.onClose = h }
}

// WithATR sets the ATR source. Without it the symbol's last_atr is used.
func WithATR(f ATRFunc) TrailingOption {
	return func(m *TrailingManager) { m.atr = f }
}

// NewTrailingManager creates a trailing manager.
func NewTrailingManager(calc *Calculator, broker Broker, l *zap.Logger, opts ...TrailingOption) *TrailingManager {
	if l == nil {
		l = zap.NewNop()
	}
	m := &TrailingManager{calc: calc, broker: broker, l: l}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetConfig swaps the calculator configuration.
func (m *TrailingManager) SetConfig(cfg config.Config) {
	calc := New(cfg, m.l)
	m.mu.Lock()
	m.calc = calc
	m.mu.Unlock()
}

func (m *TrailingManager) calculator() *Calculator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calc
}

// Cycle refreshes exits, moves trailing stops and force-closes unprotected losers for symbol.
func (m *TrailingManager) Cycle(ctx context.Context, symbol string) (Report, error) {
	report := Report{Symbol: symbol}

	positions, err := m.broker.OpenPositions(ctx, symbol)
	if err != nil {
		return report, errors.Wrapf(err, "list positions for %s", symbol)
	}
	if len(positions) == 0 {
		return report, nil
	}

	quote, err := m.broker.Quote(ctx, symbol)
	if err != nil {
		return report, errors.Wrapf(err, "quote %s", symbol)
	}

	var atr float64
	if m.atr != nil {
		atr = m.atr(symbol)
	}
	calc := m.calculator()
	exits := calc.Recalc(symbol, positions, atr, quote)

	sym := calc.cfg.Symbol(symbol)
	severe := calc.cfg.Global.Exit.SevereLossPct

	for _, pos := range positions {
		e, ok := exits[pos.Ticket]
		if !ok {
			continue
		}

		if e.Trailing.Enabled {
			price := quote.ExitPrice(pos.Side)
			next := AdjustTrailing(price, pos.Side, pos.EntryPrice, pos.SL, e.Trailing, sym.PipSize, digitsOf(sym))
			if moved(pos.SL, next) {
				if err := m.broker.ModifyPosition(ctx, pos.Ticket, next, e.TP); err != nil {
					m.l.Error("failed to move trailing stop", zap.Int64("ticket", pos.Ticket), zap.Error(err))
				} else {
					pos.SL = next
					report.Adjusted = append(report.Adjusted, pos.Ticket)
					m.l.Info("trailing stop moved",
						zap.String("symbol", symbol),
						zap.Int64("ticket", pos.Ticket),
						zap.Float64("sl", *next))
				}
			}
		}

		reason, closeIt := EmergencyCloseCheck(pos, severe)
		if !closeIt {
			continue
		}
		if err := m.broker.ClosePosition(ctx, pos.Ticket, symbol, pos.Volume); err != nil {
			m.l.Error("emergency close failed", zap.Int64("ticket", pos.Ticket), zap.String("reason", reason), zap.Error(err))
			continue
		}
		m.l.Warn("position force-closed",
			zap.String("symbol", symbol),
			zap.Int64("ticket", pos.Ticket),
			zap.String("reason", reason),
			zap.Float64("profit", pos.Profit))
		report.Closed = append(report.Closed, Closed{Ticket: pos.Ticket, Symbol: symbol, Reason: reason, Profit: pos.Profit})
		if m.onClose != nil {
			m.onClose(pos, reason)
		}
	}

	return report, nil
}

// CycleAll runs Cycle for every symbol. A failing symbol does not stop the others.
func (m *TrailingManager) CycleAll(ctx context.Context, symbols []string) []Report {
	reports := make([]Report, 0, len(symbols))
	for _, s := range symbols {
		if ctx.Err() != nil {
			break
		}
		r, err := m.Cycle(ctx, s)
		if err != nil {
			m.l.Error("trailing cycle failed", zap.String("symbol", s), zap.Error(err))
			continue
		}
		reports = append(reports, r)
	}
	return reports
}

func moved(prev, next *float64) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return math.Abs(*next-*prev) > slEpsilon
}
