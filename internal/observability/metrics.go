package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the warehouse service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mergesTotal     *prometheus.CounterVec
	excludedTotal   *prometheus.CounterVec
	resolutionFails prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidemark_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidemark_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidemark_dimension_merges_total",
		Help: "Merge operations applied, by entity kind.",
	}, []string{"kind"})
	excluded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidemark_enrichment_rows_excluded_total",
		Help: "Fact rows excluded during enrichment, by reason.",
	}, []string{"reason"})
	resolutionFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidemark_resolution_failures_total",
		Help: "Merge chain resolutions that failed closed (cycle or depth cap).",
	})
	registry.MustRegister(requests, duration, merges, excluded, resolutionFails)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		mergesTotal:     merges,
		excludedTotal:   excluded,
		resolutionFails: resolutionFails,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// MergeApplied counts a committed merge operation.
func (m *Metrics) MergeApplied(kind string) {
	if m == nil {
		return
	}
	m.mergesTotal.WithLabelValues(kind).Inc()
}

// RowExcluded counts an enrichment exclusion by reason.
func (m *Metrics) RowExcluded(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.excludedTotal.WithLabelValues(reason).Add(float64(n))
}

// ResolutionFailed counts a failed-closed chain resolution.
func (m *Metrics) ResolutionFailed() {
	if m == nil {
		return
	}
	m.resolutionFails.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
