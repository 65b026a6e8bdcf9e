package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the content rewards client
type PrometheusMetrics struct {
	// Ledger transport metrics
	LedgerRequestsTotal   *prometheus.CounterVec
	LedgerRequestDuration *prometheus.HistogramVec
	ConnectionErrorsTotal *prometheus.CounterVec

	// Receipt polling metrics
	ReceiptPollsTotal *prometheus.CounterVec
	ReceiptWait       *prometheus.HistogramVec

	// Action metrics
	ActionsTotal *prometheus.CounterVec

	// Read model cache metrics
	CacheRequestsTotal      *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Journal metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		LedgerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_ledger_requests_total",
				Help: "Total number of JSON-RPC requests made to the ledger",
			},
			[]string{"method", "kind", "status"},
		),

		LedgerRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "content_rewards_ledger_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests to the ledger",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "kind"},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_connection_errors_total",
				Help: "Total number of connection errors to ledger endpoints",
			},
			[]string{"endpoint", "error_type"},
		),

		ReceiptPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_receipt_polls_total",
				Help: "Total number of receipt status reads by result",
			},
			[]string{"result"},
		),

		ReceiptWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "content_rewards_receipt_wait_seconds",
				Help:    "Time from write submission to terminal receipt or give-up",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300, 600},
			},
			[]string{"action", "result"},
		),

		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_actions_total",
				Help: "Total number of user actions by outcome",
			},
			[]string{"action", "outcome"},
		),

		CacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_cache_requests_total",
				Help: "Read model cache lookups by view and result",
			},
			[]string{"view", "result"},
		),

		CacheInvalidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_cache_invalidations_total",
				Help: "Read model cache invalidations by view",
			},
			[]string{"view"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_database_operations_total",
				Help: "Total number of journal database operations",
			},
			[]string{"operation", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "content_rewards_database_operation_duration_seconds",
				Help:    "Duration of journal database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_notifications_sent_total",
				Help: "Total number of outcome notifications sent",
			},
			[]string{"channel", "kind"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_notification_failures_total",
				Help: "Total number of failed outcome notifications",
			},
			[]string{"channel", "kind"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_rewards_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "content_rewards_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "content_rewards_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "content_rewards_component_health",
				Help: "Health status of application components (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordLedgerRequest records a ledger JSON-RPC request
func (m *PrometheusMetrics) RecordLedgerRequest(method, kind, status string, duration time.Duration) {
	m.LedgerRequestsTotal.WithLabelValues(method, kind, status).Inc()
	m.LedgerRequestDuration.WithLabelValues(method, kind).Observe(duration.Seconds())
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordReceiptPoll records a single receipt status read
func (m *PrometheusMetrics) RecordReceiptPoll(result string) {
	m.ReceiptPollsTotal.WithLabelValues(result).Inc()
}

// RecordReceiptWait records how long a write waited for its receipt
func (m *PrometheusMetrics) RecordReceiptWait(action, result string, duration time.Duration) {
	m.ReceiptWait.WithLabelValues(action, result).Observe(duration.Seconds())
}

// RecordAction records the outcome of a user action
func (m *PrometheusMetrics) RecordAction(action, outcome string) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordCacheRequest records a cache lookup (hit, stale, miss)
func (m *PrometheusMetrics) RecordCacheRequest(view, result string) {
	m.CacheRequestsTotal.WithLabelValues(view, result).Inc()
}

// RecordCacheInvalidation records a view invalidation
func (m *PrometheusMetrics) RecordCacheInvalidation(view string) {
	m.CacheInvalidationsTotal.WithLabelValues(view).Inc()
}

// RecordDatabaseOperation records a journal database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNotificationSent records a successful notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, kind string) {
	m.NotificationsSentTotal.WithLabelValues(channel, kind).Inc()
}

// RecordNotificationFailure records a notification failure
func (m *PrometheusMetrics) RecordNotificationFailure(channel, kind string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates component health status
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

func registerRuntimeCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
