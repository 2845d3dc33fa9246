// Package observability exposes the Prometheus registry and collectors for
// the quoting engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sequenceRetries prometheus.Counter
	conversions     *prometheus.CounterVec
	autosaveWrites  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lanecrest_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lanecrest_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sequenceRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lanecrest_sequence_allocation_retries_total",
		Help: "Quote number allocations retried after a uniqueness conflict.",
	})
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lanecrest_conversions_total",
		Help: "Quote and shipment conversions by stage and outcome.",
	}, []string{"stage", "outcome"})
	autosaveWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lanecrest_autosave_writes_total",
		Help: "Autosave cycles by result (saved, skipped, failed).",
	}, []string{"result"})
	registry.MustRegister(requests, duration, sequenceRetries, conversions, autosaveWrites)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		sequenceRetries: sequenceRetries,
		conversions:     conversions,
		autosaveWrites:  autosaveWrites,
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

// Middleware records metrics for every HTTP request.
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

// SequenceRetry counts one allocation retry after a number collision.
func (m *Metrics) SequenceRetry() {
	if m == nil {
		return
	}
	m.sequenceRetries.Inc()
}

// Conversion counts a pipeline stage outcome ("shipment"/"invoice", "ok"/"error").
func (m *Metrics) Conversion(stage, outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(stage, outcome).Inc()
}

// AutosaveWrite counts an autosave cycle result.
func (m *Metrics) AutosaveWrite(result string) {
	if m == nil {
		return
	}
	m.autosaveWrites.WithLabelValues(result).Inc()
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
