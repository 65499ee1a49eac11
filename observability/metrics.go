package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type routeMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	routeMetricsOnce sync.Once
	routeRegistry    *routeMetrics
)

// Gateway returns the lazily-initialised metrics registry used to record
// gateway route activity.
func Gateway() *routeMetrics {
	routeMetricsOnce.Do(func() {
		routeRegistry = &routeMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdsale",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdsale",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			routeRegistry.requests,
			routeRegistry.errors,
			routeRegistry.latency,
			routeRegistry.throttles,
		)
	})
	return routeRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *routeMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *routeMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// RequestsVec exposes the request counter for tests.
func (m *routeMetrics) RequestsVec() *prometheus.CounterVec { return m.requests }

// ThrottlesVec exposes the throttle counter for tests.
func (m *routeMetrics) ThrottlesVec() *prometheus.CounterVec { return m.throttles }
