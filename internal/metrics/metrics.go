// Package metrics exposes Prometheus instrumentation for document
// processing and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docintake"

// Status values recorded for processed documents.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal   *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	documentInFlight prometheus.Gauge
	confidence       *prometheus.HistogramVec
	malformed        prometheus.Counter
	nonconforming    prometheus.Counter

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Processed documents by status and failing stage.",
		},
		[]string{"status", "stage"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document processing duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	documentInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "documents_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	confidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "confidence",
			Help:      "Classifier confidence by predicted label.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"label"},
	)
	malformed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "malformed_responses_total",
			Help:      "Extraction responses that were not a valid JSON object.",
		},
	)
	nonconforming := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "nonconforming_responses_total",
			Help:      "Extraction responses with a field value that is not a primitive or list of primitives.",
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		documentsTotal,
		documentDuration,
		documentInFlight,
		confidence,
		malformed,
		nonconforming,
		requestTotal,
		requestDuration,
	)

	return &Metrics{
		registry:         registry,
		documentsTotal:   documentsTotal,
		documentDuration: documentDuration,
		documentInFlight: documentInFlight,
		confidence:       confidence,
		malformed:        malformed,
		nonconforming:    nonconforming,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartDocument() {
	if m == nil {
		return
	}
	m.documentInFlight.Inc()
}

// FinishDocument records a finished document. stage is the failing stage
// and is ignored on success.
func (m *Metrics) FinishDocument(duration time.Duration, stage string, err error) {
	if m == nil {
		return
	}
	m.documentInFlight.Dec()

	status := StatusOK
	if err != nil {
		status = StatusFailed
	} else {
		stage = ""
	}
	m.documentsTotal.WithLabelValues(status, stage).Inc()
	m.documentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) ObserveConfidence(label string, confidence float64) {
	if m == nil {
		return
	}
	if label == "" {
		label = "abstained"
	}
	m.confidence.WithLabelValues(label).Observe(confidence)
}

func (m *Metrics) MalformedResponse() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) NonconformingResponse() {
	if m == nil {
		return
	}
	m.nonconforming.Inc()
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "/records/") {
		return "/records/{filename}"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
