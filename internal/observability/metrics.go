package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the prometheus instruments exposed on /metrics.
type Metrics struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	Admissions    *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	SweepRuns     *prometheus.CounterVec
	SweepEntries  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumina_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumina_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Admissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumina_admissions_total",
			Help: "Admission decisions by operation class and outcome.",
		}, []string{"operation_class", "outcome"}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumina_webhook_events_total",
			Help: "Payment webhook events by type and result.",
		}, []string{"event", "result"}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumina_reconcile_sweeps_total",
			Help: "Reconciliation sweep runs by result.",
		}, []string{"result"}),
		SweepEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumina_reconciled_entries_total",
			Help: "Ledger entries touched by the reconciliation sweep.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAdmission(operationClass, outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(operationClass, outcome).Inc()
}

func (m *Metrics) IncWebhookEvent(event, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, result).Inc()
}

func (m *Metrics) IncSweep(result string) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) IncSweepEntry(result string) {
	if m == nil {
		return
	}
	m.SweepEntries.WithLabelValues(result).Inc()
}
