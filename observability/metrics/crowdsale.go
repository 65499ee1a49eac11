package metrics

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CrowdsaleMetrics tracks calls hosted by the node together with the running
// sale totals and the downstream effect pipeline.
type CrowdsaleMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	totals        *prometheus.GaugeVec
	effects       *prometheus.CounterVec
	backlog       prometheus.Gauge
	ratePublishes *prometheus.CounterVec
	roundingDust  *prometheus.GaugeVec
}

var (
	crowdsaleOnce     sync.Once
	crowdsaleRegistry *CrowdsaleMetrics
)

// Crowdsale returns the lazily registered crowdsale metrics.
func Crowdsale() *CrowdsaleMetrics {
	crowdsaleOnce.Do(func() {
		crowdsaleRegistry = &CrowdsaleMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdsale",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency of engine calls including the state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "crowdsale",
				Subsystem: "sale",
				Name:      "total",
				Help:      "Live sale totals in minor units by kind (base, usd, secondary_usd).",
			}, []string{"kind"}),
			effects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "dispatch",
				Name:      "effects_total",
				Help:      "Effects delivered to the asset services by kind and outcome.",
			}, []string{"kind", "outcome"}),
			backlog: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "crowdsale",
				Subsystem: "dispatch",
				Name:      "backlog",
				Help:      "Effects awaiting delivery in the outbox.",
			}),
			ratePublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "ratefeed",
				Name:      "publishes_total",
				Help:      "Daily rate publications by outcome.",
			}, []string{"outcome"}),
			roundingDust: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "crowdsale",
				Subsystem: "settlement",
				Name:      "rounding_dust",
				Help:      "Base units retained by truncation in the last settlement by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			crowdsaleRegistry.operations,
			crowdsaleRegistry.latency,
			crowdsaleRegistry.totals,
			crowdsaleRegistry.effects,
			crowdsaleRegistry.backlog,
			crowdsaleRegistry.ratePublishes,
			crowdsaleRegistry.roundingDust,
		)
	})
	return crowdsaleRegistry
}

// ObserveOperation records the outcome of one hosted call.
func (m *CrowdsaleMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTotals publishes the live sale totals.
func (m *CrowdsaleMetrics) SetTotals(base, usd, secondaryUSD *big.Int) {
	if m == nil {
		return
	}
	m.totals.WithLabelValues("base").Set(bigToFloat(base))
	m.totals.WithLabelValues("usd").Set(bigToFloat(usd))
	m.totals.WithLabelValues("secondary_usd").Set(bigToFloat(secondaryUSD))
}

// ObserveEffect counts one effect delivery attempt.
func (m *CrowdsaleMetrics) ObserveEffect(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.effects.WithLabelValues(kind, outcome).Inc()
}

// SetBacklog records the number of undelivered effects.
func (m *CrowdsaleMetrics) SetBacklog(pending int) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(pending))
}

// ObserveRatePublish counts a rate feed publication attempt.
func (m *CrowdsaleMetrics) ObserveRatePublish(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.ratePublishes.WithLabelValues(outcome).Inc()
}

// ObserveRoundingDust records the truncation remainder of a settlement.
func (m *CrowdsaleMetrics) ObserveRoundingDust(operation string, dust *big.Int) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.roundingDust.WithLabelValues(operation).Set(bigToFloat(dust))
}

// OperationsVec exposes the operation counter for assertions.
func (m *CrowdsaleMetrics) OperationsVec() *prometheus.CounterVec { return m.operations }

// EffectsVec exposes the effect delivery counter for assertions.
func (m *CrowdsaleMetrics) EffectsVec() *prometheus.CounterVec { return m.effects }

// TotalsGauge exposes the totals gauge for assertions.
func (m *CrowdsaleMetrics) TotalsGauge() *prometheus.GaugeVec { return m.totals }

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
