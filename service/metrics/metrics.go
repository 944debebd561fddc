package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Chain adapter metrics
	adapterCallsTotal   *prometheus.CounterVec
	adapterCallDuration *prometheus.HistogramVec
	adapterFallbacks    *prometheus.CounterVec
	priceSourceTotal    *prometheus.CounterVec

	// Engine metrics
	eligibilityChecksTotal *prometheus.CounterVec
	aggregationDuration    *prometheus.HistogramVec
	transactionsAggregated *prometheus.HistogramVec

	// Workflow metrics
	refreshWorkflowDuration *prometheus.HistogramVec
	refreshActivityDuration *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	rateLimitRejections  *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		adapterCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_adapter_calls_total",
				Help: "Total number of chain adapter calls by chain, operation and status",
			},
			[]string{"chain", "operation", "status"},
		),
		adapterCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_adapter_call_duration_seconds",
				Help:    "Duration of chain adapter calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"chain", "operation"},
		),
		adapterFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_adapter_fallbacks_total",
				Help: "Total number of legacy endpoint fallbacks taken by REST adapters",
			},
			[]string{"chain", "operation"},
		),
		priceSourceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_quotes_total",
				Help: "Total number of price quotes by the source that answered",
			},
			[]string{"source"},
		),

		eligibilityChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eligibility_checks_total",
				Help: "Total number of eligibility checks by outcome",
			},
			[]string{"outcome"},
		),
		aggregationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregation_duration_seconds",
				Help:    "Duration of aggregation engine operations in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		transactionsAggregated: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transactions_aggregated",
				Help:    "Number of transactions combined per aggregation",
				Buckets: []float64{0, 5, 20, 50, 100, 200, 300},
			},
			[]string{"operation"},
		),

		refreshWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresh_workflow_duration_seconds",
				Help:    "Duration of eligible-user refresh workflows in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		refreshActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresh_activity_duration_seconds",
				Help:    "Duration of refresh workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		rateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"handler"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"stream"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"stream", "event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Chain adapter metric helpers

// RecordAdapterCall records one upstream call made by a chain adapter.
func (m *Metrics) RecordAdapterCall(chain, operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.adapterCallsTotal.WithLabelValues(chain, operation, status).Inc()
	m.adapterCallDuration.WithLabelValues(chain, operation).Observe(duration)
}

// RecordAdapterFallback records a retry against a legacy endpoint path.
func (m *Metrics) RecordAdapterFallback(chain, operation string) {
	if m == nil {
		return
	}
	m.adapterFallbacks.WithLabelValues(chain, operation).Inc()
}

// RecordPriceSource records which price source produced a quote.
func (m *Metrics) RecordPriceSource(source string) {
	if m == nil {
		return
	}
	m.priceSourceTotal.WithLabelValues(source).Inc()
}

// Engine metric helpers

// RecordEligibilityCheck records the outcome of an eligibility check
// ("eligible", "not_eligible").
func (m *Metrics) RecordEligibilityCheck(outcome string) {
	if m == nil {
		return
	}
	m.eligibilityChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordAggregation records an engine operation and how many transactions it combined.
func (m *Metrics) RecordAggregation(operation string, txCount int, duration float64) {
	if m == nil {
		return
	}
	m.aggregationDuration.WithLabelValues(operation).Observe(duration)
	m.transactionsAggregated.WithLabelValues(operation).Observe(float64(txCount))
}

// Workflow metric helpers

// RecordWorkflowDuration records refresh workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	if m == nil {
		return
	}
	m.refreshWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, status string, duration float64) {
	if m == nil {
		return
	}
	m.refreshActivityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordRateLimitRejection records a request turned away with 429.
func (m *Metrics) RecordRateLimitRejection(handler string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(handler).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(stream string, delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.WithLabelValues(stream).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(stream, eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(stream, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
