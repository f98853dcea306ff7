package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for retailos
type Metrics struct {
	// Seed counters
	SeedDocumentsExported *prometheus.CounterVec
	SeedDocumentsImported *prometheus.CounterVec
	SeedItemFailures      *prometheus.CounterVec
	SeedRunsTotal         *prometheus.CounterVec

	// Mail counters
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// Newsletter
	SubscriptionsTotal *prometheus.CounterVec

	// Frontend cache invalidation
	RevalidationsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SeedDocumentsExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_seed_documents_exported_total",
				Help: "Total number of documents written to seed files",
			},
			[]string{"collection"},
		),
		SeedDocumentsImported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_seed_documents_imported_total",
				Help: "Total number of documents created from seed files",
			},
			[]string{"collection"},
		),
		SeedItemFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_seed_item_failures_total",
				Help: "Total number of collections, globals or documents skipped after an error",
			},
			[]string{"operation", "kind"},
		),
		SeedRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_seed_runs_total",
				Help: "Total number of seed export and import runs",
			},
			[]string{"operation", "result"},
		),

		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_emails_sent_total",
				Help: "Total number of emails handed to the mailer",
			},
			[]string{"mode"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_emails_failed_total",
				Help: "Total number of emails the mailer rejected",
			},
			[]string{"mode"},
		),

		SubscriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_newsletter_subscriptions_total",
				Help: "Total number of newsletter subscription attempts",
			},
			[]string{"result"},
		),

		RevalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_revalidations_total",
				Help: "Total number of frontend revalidation calls",
			},
			[]string{"result"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retailos_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retailos_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retailos_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retailos_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SeedDocumentsExported,
		m.SeedDocumentsImported,
		m.SeedItemFailures,
		m.SeedRunsTotal,
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.SubscriptionsTotal,
		m.RevalidationsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// AddSeedExported adds n exported documents for a collection
func AddSeedExported(collection string, n int) {
	m := Global()
	if m != nil {
		m.SeedDocumentsExported.WithLabelValues(collection).Add(float64(n))
	}
}

// IncSeedImported increments the imported document counter
func IncSeedImported(collection string) {
	m := Global()
	if m != nil {
		m.SeedDocumentsImported.WithLabelValues(collection).Inc()
	}
}

// IncSeedItemFailure increments the skipped item counter.
// operation is export or import, kind is collection, global or document.
func IncSeedItemFailure(operation, kind string) {
	m := Global()
	if m != nil {
		m.SeedItemFailures.WithLabelValues(operation, kind).Inc()
	}
}

// IncSeedRun records a finished export or import run
func IncSeedRun(operation, result string) {
	m := Global()
	if m != nil {
		m.SeedRunsTotal.WithLabelValues(operation, result).Inc()
	}
}

// IncEmailsSent increments the sent email counter
func IncEmailsSent(mode string) {
	m := Global()
	if m != nil {
		m.EmailsSentTotal.WithLabelValues(mode).Inc()
	}
}

// IncEmailsFailed increments the failed email counter
func IncEmailsFailed(mode string) {
	m := Global()
	if m != nil {
		m.EmailsFailedTotal.WithLabelValues(mode).Inc()
	}
}

// IncSubscriptions increments the subscription counter
func IncSubscriptions(result string) {
	m := Global()
	if m != nil {
		m.SubscriptionsTotal.WithLabelValues(result).Inc()
	}
}

// IncRevalidations increments the revalidation counter
func IncRevalidations(result string) {
	m := Global()
	if m != nil {
		m.RevalidationsTotal.WithLabelValues(result).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// SetStorageUsed records the size of the database file
func SetStorageUsed(bytes int64) {
	m := Global()
	if m != nil {
		m.StorageUsedBytes.Set(float64(bytes))
	}
}

// SetUptime records the process uptime in seconds
func SetUptime(seconds float64) {
	m := Global()
	if m != nil {
		m.UptimeSeconds.Set(seconds)
	}
}
