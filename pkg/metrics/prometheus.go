// Package metrics provides Prometheus metrics for the trial telemetry service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the telemetry service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Write path
	uploadsReceived  prometheus.Counter
	uploadsDuplicate prometheus.Counter
	uploadsRejected  *prometheus.CounterVec
	rowsAppended     *prometheus.CounterVec

	// Store and mirror
	storeAppendLatency *prometheus.HistogramVec
	storeReadLatency   *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec
	storeRows          prometheus.Gauge
	mirrorLatency      *prometheus.HistogramVec
	mirrorErrors       *prometheus.CounterVec
	dedupeKeys         prometheus.Gauge

	// Read path
	aggregations       prometheus.Counter
	aggregationLatency prometheus.Histogram
	familyRows         *prometheus.GaugeVec
	familyExcluded     *prometheus.GaugeVec
	unclassifiedRows   prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trialstats",
		subsystem:        "telemetry",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often callers should refresh gauge metrics.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.uploadsReceived = auto.NewCounter(m.counterOpts(
		"uploads_total", "Total number of uploads appended to the primary store"))
	m.uploadsDuplicate = auto.NewCounter(m.counterOpts(
		"uploads_duplicate_total", "Total number of uploads skipped for a repeated idempotency key"))
	m.uploadsRejected = auto.NewCounterVec(m.counterOpts(
		"uploads_rejected_total", "Total number of uploads rejected by reason"),
		[]string{"reason"})
	m.rowsAppended = auto.NewCounterVec(m.counterOpts(
		"rows_appended_total", "Total number of rows appended by store driver"),
		[]string{"driver"})

	m.storeAppendLatency = auto.NewHistogramVec(m.histogramOpts(
		"store_append_latency_milliseconds", "Store append latency in milliseconds"),
		[]string{"driver"})
	m.storeReadLatency = auto.NewHistogramVec(m.histogramOpts(
		"store_read_latency_milliseconds", "Store full read latency in milliseconds"),
		[]string{"driver"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts(
		"store_errors_total", "Total number of store errors by driver and operation"),
		[]string{"driver", "operation"})
	m.storeRows = auto.NewGauge(m.gaugeOpts(
		"store_rows", "Rows seen in the store by the last full read"))
	m.mirrorLatency = auto.NewHistogramVec(m.histogramOpts(
		"mirror_latency_milliseconds", "Mirror write latency in milliseconds"),
		[]string{"mirror"})
	m.mirrorErrors = auto.NewCounterVec(m.counterOpts(
		"mirror_errors_total", "Total number of failed mirror writes"),
		[]string{"mirror"})
	m.dedupeKeys = auto.NewGauge(m.gaugeOpts(
		"dedupe_keys", "Idempotency keys currently remembered"))

	m.aggregations = auto.NewCounter(m.counterOpts(
		"aggregations_total", "Total number of aggregation runs"))
	m.aggregationLatency = auto.NewHistogram(m.histogramOpts(
		"aggregation_latency_milliseconds", "End-to-end aggregation latency in milliseconds"))
	m.familyRows = auto.NewGaugeVec(m.gaugeOpts(
		"family_rows", "Rows used per task family in the last aggregation"),
		[]string{"family"})
	m.familyExcluded = auto.NewGaugeVec(m.gaugeOpts(
		"family_rows_excluded", "Rows excluded for missing data per task family in the last aggregation"),
		[]string{"family"})
	m.unclassifiedRows = auto.NewGauge(m.gaugeOpts(
		"unclassified_rows", "Rows matching no task family in the last aggregation"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts(
		"http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts(
		"http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts(
		"errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts(
		"errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts(
		"errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts(
		"error_latency_milliseconds", "Latency of operations that resulted in errors"),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts(
		"system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts(
		"system_goroutine_count", "Number of goroutines"))
	gc := m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds")
	gc.Buckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
	m.systemGCPauseTime = auto.NewHistogram(gc)
}

// RecordUploadReceived increments the accepted uploads counter.
func RecordUploadReceived() {
	globalManager.uploadsReceived.Inc()
}

// RecordUploadDuplicate increments the duplicate uploads counter.
func RecordUploadDuplicate() {
	globalManager.uploadsDuplicate.Inc()
}

// RecordUploadRejected counts an upload refused before reaching the store.
func RecordUploadRejected(reason string) {
	globalManager.uploadsRejected.WithLabelValues(reason).Inc()
}

// RecordRowAppended counts one appended row.
func RecordRowAppended(driver string) {
	globalManager.rowsAppended.WithLabelValues(driver).Inc()
}

// RecordStoreAppendLatency records store append latency in milliseconds.
func RecordStoreAppendLatency(driver string, latencyMs float64) {
	globalManager.storeAppendLatency.WithLabelValues(driver).Observe(latencyMs)
}

// RecordStoreReadLatency records full read latency in milliseconds.
func RecordStoreReadLatency(driver string, latencyMs float64) {
	globalManager.storeReadLatency.WithLabelValues(driver).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(driver, operation string) {
	globalManager.storeErrors.WithLabelValues(driver, operation).Inc()
}

// UpdateStoreRows sets the row count seen by the last read.
func UpdateStoreRows(count int) {
	globalManager.storeRows.Set(float64(count))
}

// RecordMirrorLatency records a mirror write latency in milliseconds.
func RecordMirrorLatency(mirror string, latencyMs float64) {
	globalManager.mirrorLatency.WithLabelValues(mirror).Observe(latencyMs)
}

// RecordMirrorError counts a failed mirror write.
func RecordMirrorError(mirror string) {
	globalManager.mirrorErrors.WithLabelValues(mirror).Inc()
}

// UpdateDedupeKeys sets the number of remembered idempotency keys.
func UpdateDedupeKeys(count int64) {
	globalManager.dedupeKeys.Set(float64(count))
}

// RecordAggregation counts one aggregation run and its latency.
func RecordAggregation(latencyMs float64) {
	globalManager.aggregations.Inc()
	globalManager.aggregationLatency.Observe(latencyMs)
}

// UpdateFamilyRows sets used and excluded rows for a family.
func UpdateFamilyRows(family string, used, excluded int) {
	globalManager.familyRows.WithLabelValues(family).Set(float64(used))
	globalManager.familyExcluded.WithLabelValues(family).Set(float64(excluded))
}

// UpdateUnclassifiedRows sets the number of rows matching no family.
func UpdateUnclassifiedRows(count int) {
	globalManager.unclassifiedRows.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Default returns the process-wide manager.
func Default() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
