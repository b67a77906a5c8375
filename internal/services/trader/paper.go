// Package trader provides the paper broker used for execution, positions and account health.
package trader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/storage/paperstate"
)

const (
	defaultBalance  = 10000
	defaultLeverage = 100
	noMarginLevel   = 9999
)

// Fill is the result of one executed order.
type Fill struct {
	OrderID string          `json:"order_id"`
	Ticket  int64           `json:"ticket"`
	Symbol  string          `json:"symbol"`
	Side    domain.Decision `json:"side"`
	Volume  float64         `json:"volume"`
	Price   float64         `json:"price"`
	PnL     float64         `json:"pnl,omitempty"`
	Closing bool            `json:"closing,omitempty"`
}

// CloseHook is notified with the realized P&L of every closed position.
type CloseHook func(symbol string, pnl float64, at time.Time)

type paperPosition struct {
	domain.Position
	openedAt time.Time
}

// PaperTrader simulates a CFD broker account in memory, optionally persisted.
type PaperTrader struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	balance   decimal.Decimal
	positions map[int64]*paperPosition
	quotes    map[string]domain.Quote
	contracts map[string]decimal.Decimal
	leverage  decimal.Decimal
	next      int64
	store     *paperstate.Store
	onClose   CloseHook
	now       func() time.Time
}

// Option configures a PaperTrader.
type Option func(*PaperTrader)

// WithBalance sets the starting balance. Restored state wins over it.
func WithBalance(b float64) Option {
	return func(t *PaperTrader) {
		if b > 0 {
			t.balance = decimal.NewFromFloat(b)
		}
	}
}

// WithContractSize sets units per lot for symbol. The default is 1.
func WithContractSize(symbol string, size float64) Option {
	return func(t *PaperTrader) { t.contracts[symbol] = decimal.NewFromFloat(size) }
}

// WithStore persists state after each mutation and restores it on creation.
func WithStore(s *paperstate.Store) Option {
	return func(t *PaperTrader) { t.store = s }
}

// WithCloseHook registers a realized P&L callback.
func WithCloseHook(h CloseHook) Option {
	return func(t *PaperTrader) { t.onClose = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *PaperTrader) { t.now = now }
}

// NewPaperTrader creates a paper broker.
func NewPaperTrader(logger *zap.Logger, opts ...Option) (*PaperTrader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &PaperTrader{
		logger:    logger,
		balance:   decimal.NewFromInt(defaultBalance),
		positions: make(map[int64]*paperPosition),
		quotes:    make(map[string]domain.Quote),
		contracts: make(map[string]decimal.Decimal),
		leverage:  decimal.NewFromInt(defaultLeverage),
		next:      1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.restoreState(); err != nil {
		return nil, errors.Wrap(err, "restore paper state")
	}
	logger.Info("paper broker init",
		zap.String("balance", t.balance.String()),
		zap.Int("positions", len(t.positions)))
	return t, nil
}

// SetOnClose replaces the close hook.
func (t *PaperTrader) SetOnClose(h CloseHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = h
}

// UpdateQuote feeds a market entry into the broker, marking positions to market and
// closing the ones whose stop or first target was hit.
func (t *PaperTrader) UpdateQuote(entry domain.MarketEntry) []Fill {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := domain.Quote{Symbol: entry.Symbol, Bid: entry.Bid, Ask: entry.Ask, Time: t.now()}
	if prev, ok := t.quotes[entry.Symbol]; ok {
		q.StopsLevel = prev.StopsLevel
	}
	t.quotes[entry.Symbol] = q

	var fills []Fill
	for _, ticket := range t.sortedTickets() {
		p := t.positions[ticket]
		if p.Symbol != entry.Symbol {
			continue
		}
		price := q.ExitPrice(p.Side)
		if hit(p.Position, price) {
			f := t.close(p, p.Volume, price)
			fills = append(fills, f)
			continue
		}
		p.Profit = t.pnl(p.Position, p.Volume, price).InexactFloat64()
	}
	if len(fills) > 0 {
		t.persist()
	}
	return fills
}

// SetStopsLevel sets the minimum stop distance in pips reported with quotes of symbol.
func (t *PaperTrader) SetStopsLevel(symbol string, pips float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.quotes[symbol]
	q.Symbol = symbol
	q.StopsLevel = pips
	t.quotes[symbol] = q
}

// Execute opens one position per exit leg for BUY/SELL and closes everything for CLOSE_ALL.
func (t *PaperTrader) Execute(ctx context.Context, d domain.FinalDecision) ([]Fill, error) {
	switch d.Decision {
	case domain.DecisionCloseAll:
		return t.CloseAll(ctx)
	case domain.DecisionBuy, domain.DecisionSell:
	default:
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	price := d.Entry
	if q, ok := t.quotes[d.Symbol]; ok && q.Bid > 0 && q.Ask > 0 {
		price = q.Ask
		if d.Decision == domain.DecisionSell {
			price = q.Bid
		}
	}
	if price <= 0 {
		return nil, errors.Errorf("no price to execute %s %s", d.Decision, d.Symbol)
	}

	type leg struct {
		idx int
		lot float64
		sl  *float64
		tp  []float64
	}
	var legs []leg
	if d.ExitLevels != nil && len(d.ExitLevels.Legs) > 0 {
		for _, l := range d.ExitLevels.Legs {
			sl := l.SL
			legs = append(legs, leg{idx: l.EntryIndex, lot: l.Lot, sl: &sl, tp: l.TP})
		}
	} else {
		legs = append(legs, leg{idx: 1, lot: d.Lot, sl: d.SL, tp: d.TP})
	}

	fills := make([]Fill, 0, len(legs))
	for _, l := range legs {
		if l.lot <= 0 {
			continue
		}
		p := &paperPosition{
			Position: domain.Position{
				Ticket:     t.next,
				Symbol:     d.Symbol,
				Side:       d.Decision,
				Volume:     l.lot,
				EntryPrice: price,
				SL:         l.sl,
				TP:         append([]float64(nil), l.tp...),
				Comment:    domain.SeriesComment(l.idx, d.Signal.Conf, d.Signal.WinProb),
			},
			openedAt: t.now(),
		}
		t.positions[p.Ticket] = p
		t.next++

		f := Fill{OrderID: uuid.NewString(), Ticket: p.Ticket, Symbol: d.Symbol, Side: d.Decision, Volume: l.lot, Price: price}
		fills = append(fills, f)
		t.logger.Info("paper order filled",
			zap.String("id", f.OrderID),
			zap.Int64("ticket", f.Ticket),
			zap.String("symbol", f.Symbol),
			zap.String("side", string(f.Side)),
			zap.Float64("volume", f.Volume),
			zap.Float64("price", f.Price))
	}
	if len(fills) == 0 {
		return nil, errors.Errorf("decision %s for %s carries no volume", d.ID, d.Symbol)
	}
	t.persist()
	return fills, nil
}

// ClosePosition closes lot of ticket at the current quote. A zero lot closes everything.
func (t *PaperTrader) ClosePosition(_ context.Context, ticket int64, symbol string, lot float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[ticket]
	if !ok {
		return errors.Errorf("position %d not found", ticket)
	}
	if symbol != "" && p.Symbol != symbol {
		return errors.Errorf("position %d belongs to %s, not %s", ticket, p.Symbol, symbol)
	}
	price, err := t.exitPrice(p.Position)
	if err != nil {
		return err
	}
	if lot <= 0 || lot > p.Volume {
		lot = p.Volume
	}
	t.close(p, lot, price)
	t.persist()
	return nil
}

// CloseAll closes every open position.
func (t *PaperTrader) CloseAll(_ context.Context) ([]Fill, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fills []Fill
	for _, ticket := range t.sortedTickets() {
		p := t.positions[ticket]
		price, err := t.exitPrice(p.Position)
		if err != nil {
			return fills, err
		}
		fills = append(fills, t.close(p, p.Volume, price))
	}
	t.persist()
	return fills, nil
}

// ModifyPosition replaces stop and targets of ticket.
func (t *PaperTrader) ModifyPosition(_ context.Context, ticket int64, sl *float64, tp []float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[ticket]
	if !ok {
		return errors.Errorf("position %d not found", ticket)
	}
	if sl != nil {
		v := *sl
		p.SL = &v
	}
	if tp != nil {
		p.TP = append([]float64(nil), tp...)
	}
	t.persist()
	return nil
}

// OpenPositions lists open positions ordered by ticket. An empty symbol lists all.
func (t *PaperTrader) OpenPositions(_ context.Context, symbol string) ([]domain.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Position, 0, len(t.positions))
	for _, ticket := range t.sortedTickets() {
		p := t.positions[ticket]
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		c := p.Position
		c.TP = append([]float64(nil), p.TP...)
		if p.SL != nil {
			v := *p.SL
			c.SL = &v
		}
		out = append(out, c)
	}
	return out, nil
}

// Quote returns the last quote of symbol.
func (t *PaperTrader) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q, ok := t.quotes[symbol]
	if !ok || (q.Bid <= 0 && q.Ask <= 0) {
		return domain.Quote{}, errors.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

// Account reports balance, floating equity and margin usage.
func (t *PaperTrader) Account(_ context.Context) (domain.Account, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	equity := t.balance
	margin := decimal.Zero
	for _, p := range t.positions {
		equity = equity.Add(decimal.NewFromFloat(p.Profit))
		notional := decimal.NewFromFloat(p.Volume).Mul(decimal.NewFromFloat(p.EntryPrice)).Mul(t.contract(p.Symbol))
		margin = margin.Add(notional.Div(t.leverage))
	}

	level := decimal.NewFromInt(noMarginLevel)
	if margin.IsPositive() {
		level = equity.Div(margin).Mul(decimal.NewFromInt(100))
	}

	return domain.Account{
		Balance:     t.balance.InexactFloat64(),
		Equity:      equity.InexactFloat64(),
		Margin:      margin.Round(2).InexactFloat64(),
		MarginLevel: level.Round(2).InexactFloat64(),
		Timestamp:   t.now(),
	}, nil
}

// close must be called with t.mu held.
func (t *PaperTrader) close(p *paperPosition, lot, price float64) Fill {
	pnl := t.pnl(p.Position, lot, price)
	t.balance = t.balance.Add(pnl)

	remaining := decimal.NewFromFloat(p.Volume).Sub(decimal.NewFromFloat(lot))
	if remaining.IsPositive() {
		p.Volume = remaining.InexactFloat64()
		p.Profit = t.pnl(p.Position, p.Volume, price).InexactFloat64()
	} else {
		delete(t.positions, p.Ticket)
	}

	f := Fill{
		OrderID: uuid.NewString(),
		Ticket:  p.Ticket,
		Symbol:  p.Symbol,
		Side:    p.Side,
		Volume:  lot,
		Price:   price,
		PnL:     pnl.InexactFloat64(),
		Closing: true,
	}
	t.logger.Info("paper position closed",
		zap.String("id", f.OrderID),
		zap.Int64("ticket", f.Ticket),
		zap.String("symbol", f.Symbol),
		zap.Float64("volume", lot),
		zap.Float64("price", price),
		zap.String("pnl", pnl.String()))

	if t.onClose != nil {
		t.onClose(p.Symbol, f.PnL, t.now())
	}
	return f
}

func (t *PaperTrader) pnl(p domain.Position, lot, price float64) decimal.Decimal {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice))
	if p.Side == domain.DecisionSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(lot)).Mul(t.contract(p.Symbol))
}

func (t *PaperTrader) contract(symbol string) decimal.Decimal {
	if c, ok := t.contracts[symbol]; ok && c.IsPositive() {
		return c
	}
	return decimal.NewFromInt(1)
}

func (t *PaperTrader) exitPrice(p domain.Position) (float64, error) {
	q, ok := t.quotes[p.Symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s to close position %d", p.Symbol, p.Ticket)
	}
	price := q.ExitPrice(p.Side)
	if price <= 0 {
		return 0, fmt.Errorf("invalid %s price for %s", p.Side, p.Symbol)
	}
	return price, nil
}

func (t *PaperTrader) sortedTickets() []int64 {
	tickets := make([]int64, 0, len(t.positions))
	for k := range t.positions {
		tickets = append(tickets, k)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	return tickets
}

// hit reports whether price crossed the stop or the first target.
func hit(p domain.Position, price float64) bool {
	switch p.Side {
	case domain.DecisionBuy:
		return (p.SL != nil && price <= *p.SL) || (len(p.TP) > 0 && price >= p.TP[0])
	case domain.DecisionSell:
		return (p.SL != nil && price >= *p.SL) || (len(p.TP) > 0 && price <= p.TP[0])
	}
	return false
}

func (t *PaperTrader) persist() {
	if t.store == nil {
		return
	}
	state := paperstate.State{
		Balance:    t.balance.String(),
		NextTicket: t.next,
		UpdatedAt:  t.now(),
	}
	for _, ticket := range t.sortedTickets() {
		p := t.positions[ticket]
		state.Positions = append(state.Positions, paperstate.NewStoredPosition(p.Position, p.openedAt))
	}
	if err := t.store.Save(state); err != nil {
		t.logger.Error("failed to persist paper state", zap.Error(err))
	}
}

func (t *PaperTrader) restoreState() error {
	if t.store == nil {
		return nil
	}
	state, err := t.store.Load()
	if err != nil || state == nil {
		return err
	}

	balance, err := decimal.NewFromString(state.Balance)
	if err != nil {
		return errors.Wrap(err, "decode balance")
	}
	t.balance = balance
	if state.NextTicket > t.next {
		t.next = state.NextTicket
	}
	for _, sp := range state.Positions {
		pos, err := sp.ToPosition()
		if err != nil {
			return errors.Wrapf(err, "decode position %d", sp.Ticket)
		}
		t.positions[pos.Ticket] = &paperPosition{Position: pos, openedAt: sp.OpenedAt}
		if pos.Ticket >= t.next {
			t.next = pos.Ticket + 1
		}
	}
	return nil
}
