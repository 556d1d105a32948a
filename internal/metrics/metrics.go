package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the resolution engine and server.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	imagesAcceptedTotal prometheus.Counter
	resultsDiscarded    prometheus.Counter
	resolutionsFailed   prometheus.Counter
	staleDroppedTotal   prometheus.Counter
	downloadsStarted    prometheus.Counter
	downloadsAbandoned  prometheus.Counter
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	rendersTotal        prometheus.Counter
	activeOperations    prometheus.Gauge
	activeJobs          prometheus.Gauge
	downloadSeconds     prometheus.Histogram
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		imagesAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_images_accepted_total",
			Help: "Total number of fetched images accepted as the loaded image",
		}),
		resultsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_results_discarded_total",
			Help: "Total number of fetched images discarded because a better one was already loaded",
		}),
		resolutionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_resolutions_failed_total",
			Help: "Total number of per-identifier resolutions that ended in failure",
		}),
		staleDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_stale_completions_dropped_total",
			Help: "Total number of completions ignored because their operation was cancelled or replaced",
		}),
		downloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_downloads_started_total",
			Help: "Total number of downloads started",
		}),
		downloadsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_downloads_abandoned_total",
			Help: "Total number of downloads abandoned after a better image arrived",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_cache_hits_total",
			Help: "Total number of cache fetches that produced an image",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_cache_misses_total",
			Help: "Total number of cache fetches that missed or failed",
		}),
		rendersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgmux_renders_total",
			Help: "Total number of acknowledged display renders",
		}),
		activeOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imgmux_active_operations",
			Help: "Number of in-flight per-identifier operations",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imgmux_active_jobs",
			Help: "Number of open resolution jobs on the server",
		}),
		downloadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imgmux_download_duration_seconds",
			Help:    "Wall time of completed downloads",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.imagesAcceptedTotal,
		m.resultsDiscarded,
		m.resolutionsFailed,
		m.staleDroppedTotal,
		m.downloadsStarted,
		m.downloadsAbandoned,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.rendersTotal,
		m.activeOperations,
		m.activeJobs,
		m.downloadSeconds,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncImagesAccepted increments the accepted images counter.
func (m *Metrics) IncImagesAccepted() {
	m.imagesAcceptedTotal.Inc()
}

// IncResultsDiscarded increments the discarded results counter.
func (m *Metrics) IncResultsDiscarded() {
	m.resultsDiscarded.Inc()
}

// IncResolutionsFailed increments the failed resolutions counter.
func (m *Metrics) IncResolutionsFailed() {
	m.resolutionsFailed.Inc()
}

// IncStaleDropped increments the dropped stale completions counter.
func (m *Metrics) IncStaleDropped() {
	m.staleDroppedTotal.Inc()
}

// IncDownloadsStarted increments the started downloads counter.
func (m *Metrics) IncDownloadsStarted() {
	m.downloadsStarted.Inc()
}

// IncDownloadsAbandoned increments the abandoned downloads counter.
func (m *Metrics) IncDownloadsAbandoned() {
	m.downloadsAbandoned.Inc()
}

// IncCacheHits increments the cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMisses increments the cache miss counter.
func (m *Metrics) IncCacheMisses() {
	m.cacheMissesTotal.Inc()
}

// IncRenders increments the acknowledged renders counter.
func (m *Metrics) IncRenders() {
	m.rendersTotal.Inc()
}

// AddActiveOperations adjusts the in-flight operations gauge.
func (m *Metrics) AddActiveOperations(delta int) {
	m.activeOperations.Add(float64(delta))
}

// SetActiveJobs sets the open jobs gauge.
func (m *Metrics) SetActiveJobs(n int) {
	m.activeJobs.Set(float64(n))
}

// ObserveDownload records the wall time of a completed download.
func (m *Metrics) ObserveDownload(d time.Duration) {
	m.downloadSeconds.Observe(d.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
