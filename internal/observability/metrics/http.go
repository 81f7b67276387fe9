package metrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	sourceTotal        *prometheus.CounterVec
	sourceDuration     *prometheus.HistogramVec
	fusionDegraded     *prometheus.CounterVec
	rerankFallback     *prometheus.CounterVec
	contextBuildTotal  *prometheus.CounterVec
	contextDuration    *prometheus.HistogramVec
	contextPassages    *prometheus.HistogramVec
	budgetTrimsTotal   *prometheus.CounterVec
	profileEventsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ctxe",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sourceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "fusion",
			Name:      "source_requests_total",
			Help:      "Total retrieval source calls by outcome.",
		},
		[]string{"service", "source", "outcome"},
	)
	sourceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxe",
			Subsystem: "fusion",
			Name:      "source_duration_seconds",
			Help:      "Retrieval source call duration in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
		},
		[]string{"service", "source"},
	)
	fusionDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "fusion",
			Name:      "degraded_total",
			Help:      "Total fused result sets built with at least one source missing.",
		},
		[]string{"service"},
	)
	rerankFallback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "rerank",
			Name:      "fallback_total",
			Help:      "Total rerank calls that fell back to fused order.",
		},
		[]string{"service"},
	)
	contextBuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "context",
			Name:      "build_total",
			Help:      "Total context builds by outcome.",
		},
		[]string{"service", "outcome"},
	)
	contextDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxe",
			Subsystem: "context",
			Name:      "build_duration_seconds",
			Help:      "Context build duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1, 2},
		},
		[]string{"service"},
	)
	contextPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxe",
			Subsystem: "context",
			Name:      "passages",
			Help:      "Distribution of passages included per built context.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	budgetTrimsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "context",
			Name:      "budget_trims_total",
			Help:      "Total context builds that trimmed sections to fit the token budget.",
		},
		[]string{"service"},
	)
	profileEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxe",
			Subsystem: "profile",
			Name:      "events_published_total",
			Help:      "Total profile events published by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		sourceTotal,
		sourceDuration,
		fusionDegraded,
		rerankFallback,
		contextBuildTotal,
		contextDuration,
		contextPassages,
		budgetTrimsTotal,
		profileEventsTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		sourceTotal:        sourceTotal,
		sourceDuration:     sourceDuration,
		fusionDegraded:     fusionDegraded,
		rerankFallback:     rerankFallback,
		contextBuildTotal:  contextBuildTotal,
		contextDuration:    contextDuration,
		contextPassages:    contextPassages,
		budgetTrimsTotal:   budgetTrimsTotal,
		profileEventsTotal: profileEventsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}/close"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveSourceSearch(service, source string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	m.sourceTotal.WithLabelValues(service, source, outcome).Inc()
	m.sourceDuration.WithLabelValues(service, source).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordFusionDegraded(service string) {
	m.fusionDegraded.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRerankFallback(service string) {
	m.rerankFallback.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordContextBuild(service, outcome string, passages int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.contextBuildTotal.WithLabelValues(service, outcome).Inc()
	m.contextDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.contextPassages.WithLabelValues(service).Observe(float64(passages))
}

func (m *HTTPServerMetrics) RecordBudgetTrim(service string) {
	m.budgetTrimsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordProfileEventPublished(service, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.profileEventsTotal.WithLabelValues(service, kind, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
