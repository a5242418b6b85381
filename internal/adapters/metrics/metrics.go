// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fellowship"

// Metrics groups every collector the service updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	dbQueries        *prometheus.CounterVec
	dbDuration       *prometheus.HistogramVec
	notifications    *prometheus.CounterVec
	notifyDropped    prometheus.Counter
	rateLimited      *prometheus.CounterVec
	healthDegraded   prometheus.Gauge
	auditStreamFails prometheus.Counter
}

// New registers the service collectors, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		dbQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "database statements by table, operation and outcome",
		}, []string{"table", "operation", "outcome"}),
		dbDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "database statement latency by operation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"operation"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "notification deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
		notifyDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_dropped_total",
			Help:      "notification jobs dropped because the queue was full",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "requests rejected by a rate limiter",
		}, []string{"limiter"}),
		healthDegraded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_degraded",
			Help:      "1 when the last health report was degraded",
		}),
		auditStreamFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_stream_publish_failures_total",
			Help:      "audit entries that could not be mirrored to the stream",
		}),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveQuery records one database statement. It satisfies
// storage.QueryObserver.
func (m *Metrics) ObserveQuery(table, operation string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.dbQueries.WithLabelValues(table, operation, outcome).Inc()
	m.dbDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// NotificationSent records a delivery attempt on channel (push or email).
func (m *Metrics) NotificationSent(channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

// NotificationDropped records a job rejected by a full queue.
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// HealthReported records the outcome of the latest health report.
func (m *Metrics) HealthReported(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.healthDegraded.Set(1)
		return
	}
	m.healthDegraded.Set(0)
}

// AuditStreamFailed records an entry that could not be mirrored.
func (m *Metrics) AuditStreamFailed() {
	if m == nil {
		return
	}
	m.auditStreamFails.Inc()
}
