package risk

import (
	"sync"
	"time"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// State bundles the mutable objects shared by the gates. It outlives config overrides.
type State struct {
	KillSwitch  *KillSwitchState
	Correlation *CorrelationBook
	Cooldowns   *Cooldowns
	Losses      *LossLedger
	Account     *AccountCache
}

// NewState creates empty state.
func NewState() *State {
	return &State{
		KillSwitch:  &KillSwitchState{},
		Correlation: NewCorrelationBook(),
		Cooldowns:   NewCooldowns(),
		Losses:      NewLossLedger(),
		Account:     &AccountCache{},
	}
}

// Reset clears everything, including the sticky kill-switch.
func (s *State) Reset() {
	s.KillSwitch.Reset()
	s.Correlation.Reset()
	s.Cooldowns.Reset()
	s.Losses.Reset()
	s.Account.Reset()
}

type equitySample struct {
	at     time.Time
	equity float64
}

// KillSwitchState keeps a rolling equity history and the sticky trip flag.
type KillSwitchState struct {
	mu        sync.Mutex
	history   []equitySample
	triggered bool
}

// Observe records equity at now, drops samples older than window and
// returns the drawdown from the window peak in percent.
func (k *KillSwitchState) Observe(now time.Time, equity float64, window time.Duration) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.history = append(k.history, equitySample{at: now, equity: equity})
	cutoff := now.Add(-window)
	kept := k.history[:0]
	for _, s := range k.history {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	k.history = kept

	peak := 0.0
	for _, s := range k.history {
		if s.equity > peak {
			peak = s.equity
		}
	}
	if peak <= 0 {
		return 0
	}
	return (peak - equity) / peak * 100
}

// Trip sets the sticky flag.
func (k *KillSwitchState) Trip() {
	k.mu.Lock()
	k.triggered = true
	k.mu.Unlock()
}

// Triggered reports whether the switch tripped since the last Reset.
func (k *KillSwitchState) Triggered() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.triggered
}

// Samples returns the number of equity samples in the window.
func (k *KillSwitchState) Samples() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.history)
}

// Reset clears history and the trip flag.
func (k *KillSwitchState) Reset() {
	k.mu.Lock()
	k.history = nil
	k.triggered = false
	k.mu.Unlock()
}

// CorrelationBook remembers the last entry price per symbol for this session.
type CorrelationBook struct {
	mu      sync.Mutex
	entries map[string]float64
}

// NewCorrelationBook creates an empty book.
func NewCorrelationBook() *CorrelationBook {
	return &CorrelationBook{entries: map[string]float64{}}
}

// Record stores price as the active entry of symbol.
func (b *CorrelationBook) Record(symbol string, price float64) {
	b.mu.Lock()
	b.entries[symbol] = price
	b.mu.Unlock()
}

// Release forgets symbol, e.g. after its positions were closed.
func (b *CorrelationBook) Release(symbol string) {
	b.mu.Lock()
	delete(b.entries, symbol)
	b.mu.Unlock()
}

// Active returns a copy of the recorded entries.
func (b *CorrelationBook) Active() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

// Conflict returns the first configured pair that contains symbol and whose
// other member already has an active entry.
func (b *CorrelationBook) Conflict(symbol string, pairs [][]string) ([]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		var partner string
		switch symbol {
		case pair[0]:
			partner = pair[1]
		case pair[1]:
			partner = pair[0]
		default:
			continue
		}
		if partner == symbol {
			continue
		}
		if _, ok := b.entries[partner]; ok {
			return pair, true
		}
	}
	return nil, false
}

// Reset empties the book.
func (b *CorrelationBook) Reset() {
	b.mu.Lock()
	b.entries = map[string]float64{}
	b.mu.Unlock()
}

// Cooldowns tracks the last registered entry per symbol and globally.
type Cooldowns struct {
	mu     sync.Mutex
	bySym  map[string]time.Time
	global time.Time
}

// NewCooldowns creates empty cooldowns.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{bySym: map[string]time.Time{}}
}

// RegisterEntry marks a new order for symbol at now.
func (c *Cooldowns) RegisterEntry(symbol string, now time.Time) {
	c.mu.Lock()
	c.bySym[symbol] = now
	c.global = now
	c.mu.Unlock()
}

// LastEntry returns the last entry time of symbol.
func (c *Cooldowns) LastEntry(symbol string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.bySym[symbol]
	return t, ok
}

// LastGlobal returns the last entry time across all symbols.
func (c *Cooldowns) LastGlobal() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global, !c.global.IsZero()
}

// Reset forgets all entries.
func (c *Cooldowns) Reset() {
	c.mu.Lock()
	c.bySym = map[string]time.Time{}
	c.global = time.Time{}
	c.mu.Unlock()
}

// LossLedger accumulates realized losses for the day and stop-loss hits per symbol.
type LossLedger struct {
	mu        sync.Mutex
	dailyLoss float64
	lastSLHit map[string]time.Time
	orders    map[string]int
}

// NewLossLedger creates an empty ledger.
func NewLossLedger() *LossLedger {
	return &LossLedger{lastSLHit: map[string]time.Time{}, orders: map[string]int{}}
}

// RegisterOrder counts an order for symbol.
func (l *LossLedger) RegisterOrder(symbol string) {
	l.mu.Lock()
	l.orders[symbol]++
	l.mu.Unlock()
}

// RegisterLoss adds loss (a negative amount) and starts the stop-loss cooldown of symbol.
func (l *LossLedger) RegisterLoss(symbol string, loss float64, now time.Time) {
	l.mu.Lock()
	l.dailyLoss += loss
	l.lastSLHit[symbol] = now
	l.mu.Unlock()
}

// RecordTrade counts a closed trade; losing trades are registered as losses.
func (l *LossLedger) RecordTrade(symbol string, pnl float64, now time.Time) {
	l.RegisterOrder(symbol)
	if pnl < 0 {
		l.RegisterLoss(symbol, pnl, now)
	}
}

// DailyLoss returns the accumulated loss of the day.
func (l *LossLedger) DailyLoss() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLoss
}

// LastSLHit returns when symbol last hit a stop loss.
func (l *LossLedger) LastSLHit(symbol string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastSLHit[symbol]
	return t, ok
}

// Orders returns the registered order count of symbol.
func (l *LossLedger) Orders(symbol string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orders[symbol]
}

// ResetDay zeroes the daily loss and order counters. Stop-loss cooldowns survive.
func (l *LossLedger) ResetDay() {
	l.mu.Lock()
	l.dailyLoss = 0
	l.orders = map[string]int{}
	l.mu.Unlock()
}

// Reset clears the whole ledger.
func (l *LossLedger) Reset() {
	l.mu.Lock()
	l.dailyLoss = 0
	l.lastSLHit = map[string]time.Time{}
	l.orders = map[string]int{}
	l.mu.Unlock()
}

// AccountCache keeps the last known good account snapshot.
type AccountCache struct {
	mu  sync.Mutex
	acc *domain.Account
}

// Store replaces the cached snapshot. Last writer wins.
func (c *AccountCache) Store(a domain.Account) {
	c.mu.Lock()
	c.acc = &a
	c.mu.Unlock()
}

// Load returns the cached snapshot.
func (c *AccountCache) Load() (domain.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acc == nil {
		return domain.Account{}, false
	}
	return *c.acc, true
}

// Reset drops the cached snapshot.
func (c *AccountCache) Reset() {
	c.mu.Lock()
	c.acc = nil
	c.mu.Unlock()
}
