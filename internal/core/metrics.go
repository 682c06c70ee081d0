package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records API and engine telemetry via prometheus. It implements
// both the server's MetricsCollector and the scheduler's TickMetrics
// contracts.
type Metrics struct {
	registry *prometheus.Registry

	requestCount   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	tickDuration prometheus.Histogram
	tickEvals    prometheus.Counter
	rulesFired   prometheus.Counter
	triggerErrs  prometheus.Counter
}

// NewMetrics creates and registers the satwallet metric set on a private
// registry, keeping the default registry free of collector collisions in
// tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "satwallet_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "satwallet_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "satwallet_autopay_tick_duration_seconds",
			Help:    "Duration of one scheduler evaluation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		tickEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satwallet_autopay_evaluations_total",
			Help: "Rule evaluations performed across all ticks.",
		}),
		rulesFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satwallet_autopay_triggers_total",
			Help: "Trigger callbacks invoked on rising edges.",
		}),
		triggerErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satwallet_autopay_trigger_errors_total",
			Help: "Trigger callback failures.",
		}),
	}

	reg.MustRegister(
		m.requestCount,
		m.requestLatency,
		m.tickDuration,
		m.tickEvals,
		m.rulesFired,
		m.triggerErrs,
	)
	return m
}

// RecordRequest implements MetricsCollector.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveTick implements the scheduler's TickMetrics contract.
func (m *Metrics) ObserveTick(duration time.Duration, evaluated int, fired int) {
	m.tickDuration.Observe(duration.Seconds())
	m.tickEvals.Add(float64(evaluated))
	m.rulesFired.Add(float64(fired))
}

// IncTriggerError implements the scheduler's TickMetrics contract.
func (m *Metrics) IncTriggerError() {
	m.triggerErrs.Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
