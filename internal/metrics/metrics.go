// Package metrics exposes Prometheus collectors for the decision pipeline.
//
//   - fusion_decisions_total{symbol,decision}  final decisions per verdict
//   - fusion_hold_reasons_total{tag}           reason tags of HOLD and CLOSE_ALL verdicts
//   - fusion_orders_total{symbol,side}         paper orders filled
//   - fusion_exits_total{reason}               trailing and emergency exits
//   - fusion_equity                            last observed account equity
//   - fusion_killswitch_tripped                1 once the kill-switch tripped
//   - fusion_cycle_seconds                     decision cycle duration
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_decisions_total",
			Help: "Final decisions produced",
		},
		[]string{"symbol", "decision"},
	)

	holdReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_hold_reasons_total",
			Help: "Reason tags of non-entry decisions",
		},
		[]string{"tag"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_orders_total",
			Help: "Paper orders filled",
		},
		[]string{"symbol", "side"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_exits_total",
			Help: "Positions closed by the exit manager",
		},
		[]string{"reason"},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_equity",
			Help: "Last observed account equity",
		},
	)

	killSwitch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_killswitch_tripped",
			Help: "1 when the kill-switch is tripped",
		},
	)

	cycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusion_cycle_seconds",
			Help:    "Duration of one decision cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(decisions, holdReasons, orders, exits)
	prometheus.MustRegister(equity, killSwitch, cycleSeconds)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts d and, for HOLD and CLOSE_ALL, each tag of its reason.
// Tags are cut at "(" or ":" so values stay out of label cardinality.
func ObserveDecision(d domain.FinalDecision) {
	decisions.WithLabelValues(d.Symbol, string(d.Decision)).Inc()
	if d.Decision.IsDirectional() || d.Reason == "" {
		return
	}
	for _, tag := range strings.Split(d.Reason, "|") {
		if i := strings.IndexAny(tag, "(:"); i >= 0 {
			tag = tag[:i]
		}
		if tag = strings.TrimSpace(tag); tag != "" {
			holdReasons.WithLabelValues(tag).Inc()
		}
	}
}

// ObserveOrder counts a filled paper order.
func ObserveOrder(symbol string, side domain.Decision) {
	orders.WithLabelValues(symbol, string(side)).Inc()
}

// ObserveExit counts a position closed for reason.
func ObserveExit(reason string) {
	exits.WithLabelValues(reason).Inc()
}

// SetEquity records the latest equity.
func SetEquity(v float64) {
	equity.Set(v)
}

// SetKillSwitch mirrors the sticky kill-switch flag.
func SetKillSwitch(tripped bool) {
	if tripped {
		killSwitch.Set(1)
		return
	}
	killSwitch.Set(0)
}

// ObserveCycle records how long a decision cycle took.
func ObserveCycle(d time.Duration) {
	cycleSeconds.Observe(d.Seconds())
}
