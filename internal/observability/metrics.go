package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	metricDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds the service's Prometheus instruments.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	CardFailuresTotal         *prometheus.CounterVec
	MetricCalculationsTotal   *prometheus.CounterVec
	MetricCalculationDuration *prometheus.HistogramVec

	CacheHitsTotal             *prometheus.CounterVec
	CacheMissesTotal           *prometheus.CounterVec
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	DashboardsLoaded  prometheus.Gauge
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics creates and registers the instruments on reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitrine_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitrine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitrine_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		CardFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitrine_card_failures_total",
			Help: "Cards skipped during dashboard assembly.",
		}, []string{"dashboard", "stage"}),
		MetricCalculationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitrine_metric_calculations_total",
			Help: "Metric calculations by outcome.",
		}, []string{"metric", "status"}),
		MetricCalculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitrine_metric_calculation_duration_seconds",
			Help:    "Metric calculation duration in seconds.",
			Buckets: metricDurationBuckets,
		}, []string{"metric"}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitrine_cache_hits_total",
			Help: "Shared cache hits by key namespace.",
		}, []string{"namespace"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitrine_cache_misses_total",
			Help: "Shared cache misses by key namespace.",
		}, []string{"namespace"}),
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitrine_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitrine_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		DashboardsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitrine_dashboards_loaded",
			Help: "Number of registered dashboards.",
		}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitrine_definitions_loaded",
			Help: "Number of loaded definition files.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.CardFailuresTotal,
		m.MetricCalculationsTotal,
		m.MetricCalculationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.DashboardsLoaded,
		m.DefinitionsLoaded,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordCardFailure counts a card skipped while assembling dashboard.
// Stage is "build", "authorize" or "load".
func (m *Metrics) RecordCardFailure(dashboard, stage string) {
	m.CardFailuresTotal.WithLabelValues(dashboard, stage).Inc()
}

// RecordMetricCalculation records one metric calculation.
func (m *Metrics) RecordMetricCalculation(uriKey string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.MetricCalculationsTotal.WithLabelValues(uriKey, status).Inc()
	m.MetricCalculationDuration.WithLabelValues(uriKey).Observe(duration.Seconds())
}

// RecordCacheHit records a shared cache hit.
func (m *Metrics) RecordCacheHit(namespace string) {
	m.CacheHitsTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss records a shared cache miss.
func (m *Metrics) RecordCacheMiss(namespace string) {
	m.CacheMissesTotal.WithLabelValues(namespace).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// SetDashboardsLoaded sets the number of registered dashboards.
func (m *Metrics) SetDashboardsLoaded(count int) {
	m.DashboardsLoaded.Set(float64(count))
}

// SetDefinitionsLoaded sets the number of loaded definition files.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	m.DefinitionsLoaded.Set(float64(count))
}

// MetricsMiddleware records request metrics labelled by chi's route pattern
// rather than the raw path, keeping label cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
