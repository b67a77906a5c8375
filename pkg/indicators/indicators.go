// Package indicators tracks per-symbol ATR history and its moving average.
package indicators

import (
	"fmt"
	"math"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

const defaultPeriod = 14

// SMA returns the simple moving average of the last period values.
// With fewer values than period the average covers all of them.
func SMA(values []float64, period int) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("not enough data points: need at least 1, got 0")
	}
	if period <= 0 {
		return 0, fmt.Errorf("invalid SMA period %d", period)
	}
	if len(values) < period {
		period = len(values)
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(out) == 0 {
		return 0, fmt.Errorf("SMA(%d) produced no output for %d values", period, len(values))
	}
	return out[len(out)-1], nil
}

// ATRTracker keeps the recent ATR readings of every symbol.
type ATRTracker struct {
	mu      sync.RWMutex
	period  int
	history map[string][]float64
}

// NewATRTracker creates a tracker averaging over period readings.
func NewATRTracker(period int) *ATRTracker {
	if period <= 0 {
		period = defaultPeriod
	}
	return &ATRTracker{period: period, history: make(map[string][]float64)}
}

// Observe records atr for symbol and returns the updated moving average.
// Non-positive or non-finite readings are ignored.
func (t *ATRTracker) Observe(symbol string, atr float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if atr > 0 && !math.IsNaN(atr) && !math.IsInf(atr, 0) {
		h := append(t.history[symbol], atr)
		if len(h) > t.period {
			h = h[len(h)-t.period:]
		}
		t.history[symbol] = h
	}
	return t.ma(symbol)
}

// Last returns the latest ATR for symbol, 0 when none was observed.
func (t *ATRTracker) Last(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h := t.history[symbol]
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1]
}

// MA returns the moving average for symbol, 0 when none was observed.
func (t *ATRTracker) MA(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ma(symbol)
}

// Reset drops all history.
func (t *ATRTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = make(map[string][]float64)
}

func (t *ATRTracker) ma(symbol string) float64 {
	avg, err := SMA(t.history[symbol], t.period)
	if err != nil {
		return 0
	}
	return avg
}
