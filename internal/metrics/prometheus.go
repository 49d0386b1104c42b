// Package metrics provides Prometheus metrics for the dashboard and the pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    prometheus.Gauge
	responseSize        *prometheus.HistogramVec
	datasetLoads        *prometheus.CounterVec
	datasetLoadDuration prometheus.Histogram
	cacheLookups        *prometheus.CounterVec
	cacheEntries        prometheus.Gauge
	healthStatus        prometheus.Gauge
	scenarioExtractions *prometheus.CounterVec
	llmRequests         *prometheus.CounterVec
	llmTokens           *prometheus.CounterVec
	pipelineRuns        *prometheus.CounterVec
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "planboard_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		responseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planboard_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),
		datasetLoads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_dataset_loads_total",
				Help: "Total number of consolidated file parses",
			},
			[]string{"result"},
		),
		datasetLoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "planboard_dataset_load_duration_seconds",
				Help:    "Time spent parsing a consolidated file",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_dataset_cache_lookups_total",
				Help: "Dataset cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		cacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "planboard_dataset_cache_entries",
				Help: "Number of parsed datasets held in the cache",
			},
		),
		healthStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "planboard_health_status",
				Help: "Health status of the dashboard (1 = healthy, 0 = unhealthy)",
			},
		),
		scenarioExtractions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_pipeline_scenario_extractions_total",
				Help: "Scenario extractions by carrier and outcome",
			},
			[]string{"carrier", "outcome"},
		),
		llmRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_llm_requests_total",
				Help: "LLM API requests by provider and HTTP status",
			},
			[]string{"provider", "status"},
		),
		llmTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_llm_tokens_total",
				Help: "LLM tokens consumed by direction",
			},
			[]string{"direction"},
		),
		pipelineRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planboard_pipeline_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
	}

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordResponseSize records the response size.
func (m *Metrics) RecordResponseSize(method, path string, size int) {
	m.responseSize.WithLabelValues(method, path).Observe(float64(size))
}

// IncRequestsInFlight increments the in-flight requests counter.
func (m *Metrics) IncRequestsInFlight() {
	m.requestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter.
func (m *Metrics) DecRequestsInFlight() {
	m.requestsInFlight.Dec()
}

// RecordDatasetLoad records one parse of a consolidated file.
func (m *Metrics) RecordDatasetLoad(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.datasetLoads.WithLabelValues(result).Inc()
	m.datasetLoadDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a dataset cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a dataset cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// SetCacheEntries sets the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// RecordScenarioExtraction records the outcome of one scenario extraction.
func (m *Metrics) RecordScenarioExtraction(carrier string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.scenarioExtractions.WithLabelValues(carrier, outcome).Inc()
}

// RecordLLMRequest records one LLM API call.
func (m *Metrics) RecordLLMRequest(provider string, statusCode int) {
	m.llmRequests.WithLabelValues(provider, strconv.Itoa(statusCode)).Inc()
}

// AddLLMTokens adds consumed tokens.
func (m *Metrics) AddLLMTokens(input, output int) {
	m.llmTokens.WithLabelValues("input").Add(float64(input))
	m.llmTokens.WithLabelValues("output").Add(float64(output))
}

// RecordPipelineRun records a finished pipeline run.
func (m *Metrics) RecordPipelineRun(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// MetricsMiddleware creates middleware that records HTTP metrics.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncRequestsInFlight()
			defer m.DecRequestsInFlight()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			m.RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
			m.RecordResponseSize(r.Method, path, rw.size)
		})
	}
}

// routeLabel keeps label cardinality bounded: the matched route template, or
// "unmatched" for paths no route claims.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// metricsResponseWriter wraps http.ResponseWriter to capture metrics.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
