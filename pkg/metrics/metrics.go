package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	requestsTotal    prometheus.Counter
	requestsInFlight prometheus.Gauge
	requestsDuration *prometheus.HistogramVec
	requestsByStatus *prometheus.CounterVec

	// Error metrics
	errorsByType *prometheus.CounterVec

	// Removal service metrics
	removalCalls    *prometheus.CounterVec
	removalDuration prometheus.Histogram

	// Pipeline metrics
	imagesProcessed *prometheus.CounterVec
	outputBytes     prometheus.Histogram
}

var globalMetrics = newMetrics()

// Get returns the global metrics instance
func Get() *Metrics {
	return globalMetrics
}

// Reset resets all metrics (for testing)
func Reset() {
	globalMetrics = newMetrics()
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bgfill_requests_total",
			Help: "Total HTTP requests received.",
		}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bgfill_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		requestsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgfill_request_duration_milliseconds",
			Help:    "HTTP request latency by path.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"path"}),
		requestsByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgfill_requests_by_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"code"}),
		errorsByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgfill_errors_total",
			Help: "Pipeline failures by kind.",
		}, []string{"type"}),
		removalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgfill_removal_calls_total",
			Help: "Calls to the background removal service by outcome.",
		}, []string{"outcome"}),
		removalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgfill_removal_duration_seconds",
			Help:    "Latency of the background removal service.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		imagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgfill_images_processed_total",
			Help: "Images produced by operation.",
		}, []string{"operation"}),
		outputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgfill_output_bytes",
			Help:    "Encoded output image size.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestsInFlight,
		m.requestsDuration,
		m.requestsByStatus,
		m.errorsByType,
		m.removalCalls,
		m.removalDuration,
		m.imagesProcessed,
		m.outputBytes,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Request metrics

func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

func (m *Metrics) IncRequestInFlight() {
	m.requestsInFlight.Inc()
}

func (m *Metrics) DecRequestInFlight() {
	m.requestsInFlight.Dec()
}

func (m *Metrics) RecordRequestDuration(path string, duration time.Duration) {
	m.requestsDuration.WithLabelValues(path).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *Metrics) RecordRequestStatus(status int) {
	m.requestsByStatus.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Error metrics

func (m *Metrics) IncError(errorType string) {
	m.errorsByType.WithLabelValues(errorType).Inc()
}

// Removal service metrics

func (m *Metrics) RecordRemoval(outcome string, duration time.Duration) {
	m.removalCalls.WithLabelValues(outcome).Inc()
	m.removalDuration.Observe(duration.Seconds())
}

// Pipeline metrics

func (m *Metrics) RecordOutput(operation string, size int) {
	m.imagesProcessed.WithLabelValues(operation).Inc()
	m.outputBytes.Observe(float64(size))
}

// Prometheus exposition

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// unmatchedRoute labels requests that did not resolve to a registered route,
// keeping the path label set bounded.
const unmatchedRoute = "unmatched"

// Middleware records request counts, latency by route template and status
// codes. The status of a returned error is resolved the way echo's error
// handler will write it.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := Get()
			m.IncRequests()
			m.IncRequestInFlight()
			defer m.DecRequestInFlight()

			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" || errors.Is(err, echo.ErrNotFound) || errors.Is(err, echo.ErrMethodNotAllowed) {
				path = unmatchedRoute
			}
			m.RecordRequestDuration(path, time.Since(start))
			m.RecordRequestStatus(responseStatus(c, err))
			return err
		}
	}
}

func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if inner, ok := he.Internal.(*echo.HTTPError); ok {
			return inner.Code
		}
		return he.Code
	}
	return http.StatusInternalServerError
}
