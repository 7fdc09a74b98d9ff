package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	pushTotal    *prometheus.CounterVec
	pushDuration *prometheus.HistogramVec
	pushInFlight prometheus.Gauge
	queueLag     *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	pushTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arkdoc",
			Subsystem: "worker",
			Name:      "record_push_total",
			Help:      "Total record pushes to the ERP store by status.",
		},
		[]string{"service", "status"},
	)
	pushDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "worker",
			Name:      "record_push_duration_seconds",
			Help:      "Record push duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	pushInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arkdoc",
			Subsystem: "worker",
			Name:      "record_push_in_flight",
			Help:      "Number of in-flight record pushes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arkdoc",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between record finalization and push start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(pushTotal, pushDuration, pushInFlight, queueLag)

	return &WorkerMetrics{
		registry:     registry,
		pushTotal:    pushTotal,
		pushDuration: pushDuration,
		pushInFlight: pushInFlight,
		queueLag:     queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartPush() {
	m.pushInFlight.Inc()
}

func (m *WorkerMetrics) FinishPush(service string, duration time.Duration, err error) {
	m.pushInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.pushTotal.WithLabelValues(service, status).Inc()
	m.pushDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
