package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	documentsTotal       *prometheus.CounterVec
	documentDuration     *prometheus.HistogramVec
	documentPages        *prometheus.HistogramVec
	fusionConfidence     *prometheus.HistogramVec
	fusionOverridesTotal *prometheus.CounterVec
	simulationTotal      *prometheus.CounterVec
	dedupHitsTotal       *prometheus.CounterVec
	ocrFallbackTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arkdoc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "documents_total",
			Help:      "Total classified documents by resolved class.",
		},
		[]string{"service", "class"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "document_duration_seconds",
			Help:      "End-to-end classification duration per document.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	documentPages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "document_pages",
			Help:      "Distribution of page counts per document.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	fusionConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "fusion",
			Name:      "confidence",
			Help:      "Distribution of final fused confidence values.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"service"},
	)
	fusionOverridesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "fusion",
			Name:      "overrides_total",
			Help:      "Total documents where lexical evidence overrode the vision class.",
		},
		[]string{"service"},
	)
	simulationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "simulation_total",
			Help:      "Total documents classified while the model was unavailable.",
		},
		[]string{"service"},
	)
	dedupHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "dedup_hits_total",
			Help:      "Total submissions short-circuited by content hash.",
		},
		[]string{"service"},
	)
	ocrFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "classify",
			Name:      "ocr_fallback_total",
			Help:      "Total pages degraded to vision-only fusion after extraction failure.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		documentsTotal,
		documentDuration,
		documentPages,
		fusionConfidence,
		fusionOverridesTotal,
		simulationTotal,
		dedupHitsTotal,
		ocrFallbackTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		documentsTotal:       documentsTotal,
		documentDuration:     documentDuration,
		documentPages:        documentPages,
		fusionConfidence:     fusionConfidence,
		fusionOverridesTotal: fusionOverridesTotal,
		simulationTotal:      simulationTotal,
		dedupHitsTotal:       dedupHitsTotal,
		ocrFallbackTotal:     ocrFallbackTotal,
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
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/progress"):
		return "/v1/documents/{document_id}/progress"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordDocument tracks one finished classification.
func (m *HTTPServerMetrics) RecordDocument(service string, record *domain.DocumentRecord, duration time.Duration) {
	m.documentsTotal.WithLabelValues(service, string(record.Result.DocumentClass)).Inc()
	m.documentDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.documentPages.WithLabelValues(service).Observe(float64(record.PageCount))
	m.fusionConfidence.WithLabelValues(service).Observe(record.Result.Confidence)

	if record.Result.IsSimulation {
		m.simulationTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordFusionOverride(service string) {
	m.fusionOverridesTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordDedupHit(service string) {
	m.dedupHitsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordOCRFallback(service string) {
	m.ocrFallbackTotal.WithLabelValues(service).Inc()
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
