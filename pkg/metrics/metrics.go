// Package metrics provides Prometheus instrumentation.
//
// Every application instance owns a Registry, so several instances in one
// process (tests, mostly) never collide on registration:
//
//	m := metrics.New("appcore")
//	r.UseNamed("metrics", m.Middleware())
//	r.Get("/metrics", "metrics", m.Handler().ServeHTTP)
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// RequestDuration tracks how long each HTTP request takes,
	// broken down by method, route pattern, and status code.
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	RequestInFlight prometheus.Gauge
	ResponseSize    *prometheus.HistogramVec

	// AssetBuilds counts compiler builds by asset kind and result.
	AssetBuilds *prometheus.CounterVec
	// AssetBuildDuration tracks compile latency by asset kind.
	AssetBuildDuration *prometheus.HistogramVec
}

// New builds a registry with Go runtime, process and HTTP metrics.
func New(namespace string) *Registry {
	if namespace == "" {
		namespace = "appcore"
	}
	m := &Registry{
		reg: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		RequestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
		ResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body sizes in bytes.",
			Buckets:   []float64{100, 1_000, 10_000, 100_000, 1_000_000},
		}, []string{"method", "route"}),
		AssetBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "builds_total",
			Help:      "Total asset builds.",
		}, []string{"kind", "result"}),
		AssetBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "build_duration_seconds",
			Help:      "Duration of asset builds in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"kind"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.RequestTotal,
		m.RequestInFlight,
		m.ResponseSize,
		m.AssetBuilds,
		m.AssetBuildDuration,
	)
	return m
}

// Register adds a custom collector.
func (m *Registry) Register(c prometheus.Collector) error {
	return m.reg.Register(c)
}

// Gatherer exposes the underlying registry, mostly for tests.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// Observe records one finished request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Registry) Observe(method, route string, status, size int, start time.Time) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
	m.RequestTotal.WithLabelValues(method, route, code).Inc()
	m.ResponseSize.WithLabelValues(method, route).Observe(float64(size))
}

// ObserveBuild records a compiler run:
//
//	defer m.ObserveBuild("js", err, time.Now())
func (m *Registry) ObserveBuild(kind string, err error, start time.Time) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.AssetBuilds.WithLabelValues(kind, result).Inc()
	m.AssetBuildDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Middleware records duration, count, in-flight and response size for every
// request it wraps.
func (m *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestInFlight.Inc()
			defer m.RequestInFlight.Dec()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.Observe(r.Method, RoutePattern(r), statusOf(ww), ww.BytesWritten(), start)
		})
	}
}

// Handler exposes the registry in the Prometheus text and OpenMetrics formats.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RoutePattern returns the chi pattern that matched r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
