// Package metrics exposes Prometheus collectors for pool operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "openamm"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	ordersPlaced  *prometheus.CounterVec
	levelsSkipped *prometheus.CounterVec
	filledBase    *prometheus.CounterVec
	filledQuote   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
	reserves      *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "operations_total",
			Help:      "Pool operations by kind and outcome.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of pool operations including venue and ledger calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ladder",
			Name:      "orders_placed_total",
			Help:      "Ladder orders submitted to the venue.",
		}, []string{"curve", "side"}),
		levelsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ladder",
			Name:      "levels_skipped_total",
			Help:      "Ladder levels that produced no order.",
		}, []string{"curve", "reason"}),
		filledBase: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "filled_base_total",
			Help:      "Native base units moved by reconciled fills.",
		}, []string{"pool"}),
		filledQuote: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "filled_quote_total",
			Help:      "Native quote units moved by reconciled fills.",
		}, []string{"pool"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "deactivations_total",
			Help:      "Times a pool stopped market making after losing its outermost order.",
		}, []string{"pool"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve",
			Help:      "Pool reserves in native units after the last committed operation.",
		}, []string{"pool", "asset"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.opDuration,
			m.ordersPlaced,
			m.levelsSkipped,
			m.filledBase,
			m.filledQuote,
			m.deactivations,
			m.reserves,
		)
	}
	return m
}

func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) OrderPlaced(curve, side string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(curve, side).Inc()
}

func (m *Metrics) LevelSkipped(curve, reason string) {
	if m == nil {
		return
	}
	m.levelsSkipped.WithLabelValues(curve, reason).Inc()
}

func (m *Metrics) Filled(pool string, base, quote uint64) {
	if m == nil {
		return
	}
	m.filledBase.WithLabelValues(pool).Add(float64(base))
	m.filledQuote.WithLabelValues(pool).Add(float64(quote))
}

func (m *Metrics) Deactivated(pool string) {
	if m == nil {
		return
	}
	m.deactivations.WithLabelValues(pool).Inc()
}

func (m *Metrics) SetReserves(pool string, base, quote uint64) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(pool, "base").Set(float64(base))
	m.reserves.WithLabelValues(pool, "quote").Set(float64(quote))
}
