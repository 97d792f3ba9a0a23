// Package telemetry holds the prometheus metrics and OpenTelemetry tracing
// used around tool dispatch.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records dispatch outcomes. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	cacheHitsTotal     *prometheus.CounterVec
	registeredTools    prometheus.Gauge
}

// NewMetrics creates the dispatch metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total tool invocations by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_invocation_duration_seconds",
				Help:    "Tool invocation duration in seconds by tool.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_cache_hits_total",
				Help: "Results of pure tools served from cache.",
			},
			[]string{"tool"},
		),
		registeredTools: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tools_registered",
				Help: "Number of tools in the registry.",
			},
		),
	}

	m.registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.cacheHitsTotal,
		m.registeredTools,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveInvocation records one dispatch. Unknown tool names are folded
// into a single label value to keep cardinality bounded.
func (m *Metrics) ObserveInvocation(tool, outcome string, known bool, d time.Duration) {
	if m == nil {
		return
	}
	if !known {
		tool = "_unknown"
	}
	m.invocationsTotal.WithLabelValues(tool, outcome).Inc()
	m.invocationDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// CacheHit records a cached result.
func (m *Metrics) CacheHit(tool string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(tool).Inc()
}

// SetRegisteredTools publishes the registry size.
func (m *Metrics) SetRegisteredTools(n int) {
	if m == nil {
		return
	}
	m.registeredTools.Set(float64(n))
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
