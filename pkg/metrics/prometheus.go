// Package metrics provides Prometheus metrics for the rating service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus metric the service records.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Event flow
	eventsProcessed prometheus.Counter
	eventsFailed    prometheus.Counter
	eventsDuplicate prometheus.Counter
	ratingUpdates   prometheus.Counter

	// Batch processing
	batchSubmissions prometheus.Counter
	batchRetries     prometheus.Counter
	batchExhausted   prometheus.Counter
	chunksCommitted  prometheus.Counter
	chunkFailures    prometheus.Counter

	// Recommendation
	recommendationQueries   prometheus.Counter
	recommendationFallbacks prometheus.Counter

	// Async ingestion
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueFull     prometheus.Counter
	workerCount   prometheus.Gauge
	workerLatency prometheus.Histogram

	// Catalog scale
	totalTracks prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global manager on a custom registry so default Go metrics stay out.
var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton manager
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "harmonia",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Handler serves the registry for GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		}
	}

	m.eventsProcessed = auto.NewCounter(opts("events_processed_total",
		"Total number of listening events successfully applied"))
	m.eventsFailed = auto.NewCounter(opts("events_failed_total",
		"Total number of listening events that failed to apply"))
	m.eventsDuplicate = auto.NewCounter(opts("events_duplicate_total",
		"Total number of duplicate events dropped at ingestion"))
	m.ratingUpdates = auto.NewCounter(opts("rating_updates_total",
		"Total number of rating changes written to the ledger"))

	m.batchSubmissions = auto.NewCounter(opts("batch_submissions_total",
		"Total number of batch submissions received"))
	m.batchRetries = auto.NewCounter(opts("batch_retries_total",
		"Total number of whole-submission retry attempts"))
	m.batchExhausted = auto.NewCounter(opts("batch_exhausted_total",
		"Total number of submissions that exhausted their retry budget"))
	m.chunksCommitted = auto.NewCounter(opts("chunks_committed_total",
		"Total number of batch chunks committed"))
	m.chunkFailures = auto.NewCounter(opts("chunk_failures_total",
		"Total number of batch chunks aborted"))

	m.recommendationQueries = auto.NewCounter(opts("recommendation_queries_total",
		"Total number of recommendation queries served"))
	m.recommendationFallbacks = auto.NewCounter(opts("recommendation_fallbacks_total",
		"Total number of recommendation queries answered from the unfiltered catalog"))

	m.queueSize = auto.NewGauge(gaugeOpts("queue_size",
		"Current size of the async ingestion queue"))
	m.queueCapacity = auto.NewGauge(gaugeOpts("queue_capacity",
		"Capacity of the async ingestion queue"))
	m.queueFull = auto.NewCounter(opts("queue_full_total",
		"Total number of enqueues rejected for backpressure"))
	m.workerCount = auto.NewGauge(gaugeOpts("worker_count",
		"Number of async ingestion workers"))
	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "worker_latency_milliseconds",
		Help:    "Histogram of per-event processing latency on the async path",
		Buckets: m.histogramBuckets,
	})

	m.totalTracks = auto.NewGauge(gaugeOpts("total_tracks",
		"Total number of tracks in the catalog"))

	m.httpRequests = auto.NewCounterVec(opts("http_requests_total",
		"Total number of HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Package-level recorders against the global manager.

func RecordEventProcessed() { globalManager.eventsProcessed.Inc() }
func RecordEventFailed()    { globalManager.eventsFailed.Inc() }
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }
func RecordRatingUpdate()   { globalManager.ratingUpdates.Inc() }

// RecordRatingUpdates adds a committed chunk's worth of rating changes.
func RecordRatingUpdates(n int) {
	if n > 0 {
		globalManager.ratingUpdates.Add(float64(n))
	}
}

func RecordBatchSubmission() { globalManager.batchSubmissions.Inc() }
func RecordBatchRetry()      { globalManager.batchRetries.Inc() }
func RecordBatchExhausted()  { globalManager.batchExhausted.Inc() }
func RecordChunkCommitted()  { globalManager.chunksCommitted.Inc() }
func RecordChunkFailure()    { globalManager.chunkFailures.Inc() }

func RecordRecommendationQuery()    { globalManager.recommendationQueries.Inc() }
func RecordRecommendationFallback() { globalManager.recommendationFallbacks.Inc() }

func UpdateQueueSize(n int)         { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int)     { globalManager.queueCapacity.Set(float64(n)) }
func RecordQueueFull()              { globalManager.queueFull.Inc() }
func UpdateWorkerCount(n int)       { globalManager.workerCount.Set(float64(n)) }
func RecordWorkerLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

func UpdateTotalTracks(n int) { globalManager.totalTracks.Set(float64(n)) }

// RecordHTTPRequest counts one request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes one request's latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}
