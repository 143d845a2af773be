package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration     *prometheus.HistogramVec
	candidatesCount   *prometheus.HistogramVec
	degradedTotal     *prometheus.CounterVec
	decisionTotal     *prometheus.CounterVec
	confidenceBand    *prometheus.CounterVec
	claimLabelsTotal  *prometheus.CounterVec
	rateLimitedTotal  *prometheus.CounterVec
	backpressureTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evp",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evp",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each retrieval stage in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "stage"},
	)
	candidatesCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evp",
			Subsystem: "pipeline",
			Name:      "surfaced_candidates",
			Help:      "Distribution of surfaced candidates per corpus per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "corpus"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "pipeline",
			Name:      "degraded_sources_total",
			Help:      "Total queries where a retrieval source was degraded, by source.",
		},
		[]string{"service", "source"},
	)
	decisionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Total gate decisions by outcome and decline reason.",
		},
		[]string{"service", "outcome", "reason"},
	)
	confidenceBand := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "pipeline",
			Name:      "confidence_band_total",
			Help:      "Total queries by resulting confidence band.",
		},
		[]string{"service", "band"},
	)
	claimLabelsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "verify",
			Name:      "claim_labels_total",
			Help:      "Total verified claims by label.",
		},
		[]string{"service", "label"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)
	backpressureTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evp",
			Subsystem: "http",
			Name:      "backpressure_rejections_total",
			Help:      "Total requests shed because the server was saturated.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stageDuration,
		candidatesCount,
		degradedTotal,
		decisionTotal,
		confidenceBand,
		claimLabelsTotal,
		rateLimitedTotal,
		backpressureTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		stageDuration:     stageDuration,
		candidatesCount:   candidatesCount,
		degradedTotal:     degradedTotal,
		decisionTotal:     decisionTotal,
		confidenceBand:    confidenceBand,
		claimLabelsTotal:  claimLabelsTotal,
		rateLimitedTotal:  rateLimitedTotal,
		backpressureTotal: backpressureTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
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
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordRetrieval folds one query's result into the pipeline series.
func (m *HTTPServerMetrics) RecordRetrieval(service string, result *domain.RetrievalResult, decision domain.Decision) {
	if result == nil {
		return
	}
	for stage, ms := range result.Diagnostics.StageTimingsMS {
		m.stageDuration.WithLabelValues(service, stage).Observe(ms / 1000.0)
	}
	for corpus, count := range result.CorpusCounts {
		m.candidatesCount.WithLabelValues(service, string(corpus)).Observe(float64(count))
	}
	for _, source := range result.Diagnostics.DegradedSources {
		m.degradedTotal.WithLabelValues(service, source).Inc()
	}
	m.decisionTotal.WithLabelValues(service, string(decision.Outcome), string(decision.Reason)).Inc()
	m.confidenceBand.WithLabelValues(service, string(result.Band)).Inc()
}

func (m *HTTPServerMetrics) RecordVerification(service string, report domain.VerificationReport) {
	for _, claim := range report.Claims {
		m.claimLabelsTotal.WithLabelValues(service, string(claim.Label)).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordBackpressure(service string) {
	m.backpressureTotal.WithLabelValues(service).Inc()
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
