// Package metrics registers the Prometheus instruments the service exposes
// on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsAppended       *prometheus.CounterVec
	AppendConflictRetry  prometheus.Counter
	IntegrityChecks      *prometheus.CounterVec
	CertificatesBuilt    prometheus.Counter
	CertificatesVerified *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedrecord_events_appended_total",
			Help: "Audit events appended to the ledger, by event kind",
		}, []string{"kind"}),
		AppendConflictRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sealedrecord_append_conflict_retries_total",
			Help: "Ledger appends that lost a race on the chain tail and were retried",
		}),
		IntegrityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedrecord_integrity_checks_total",
			Help: "Ledger integrity verifications, by outcome",
		}, []string{"outcome"}),
		CertificatesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sealedrecord_certificates_built_total",
			Help: "Certificates of completion built",
		}),
		CertificatesVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sealedrecord_certificates_verified_total",
			Help: "Certificate verifications, by outcome",
		}, []string{"outcome"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sealedrecord_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// IncEventAppended counts one appended event.
func (m *Metrics) IncEventAppended(kind string) {
	m.EventsAppended.WithLabelValues(kind).Inc()
}

// IncAppendConflictRetried counts one internal conflict retry.
func (m *Metrics) IncAppendConflictRetried() {
	m.AppendConflictRetry.Inc()
}

// IncIntegrityCheck counts one verification run.
func (m *Metrics) IncIntegrityCheck(valid bool) {
	m.IntegrityChecks.WithLabelValues(outcome(valid)).Inc()
}

// IncCertificateBuilt counts one certificate build.
func (m *Metrics) IncCertificateBuilt() {
	m.CertificatesBuilt.Inc()
}

// IncCertificateVerified counts one certificate verification.
func (m *Metrics) IncCertificateVerified(valid bool) {
	m.CertificatesVerified.WithLabelValues(outcome(valid)).Inc()
}

// ObserveHTTPDuration records one request's latency.
func (m *Metrics) ObserveHTTPDuration(route, status string, d time.Duration) {
	m.HTTPDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

func outcome(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
