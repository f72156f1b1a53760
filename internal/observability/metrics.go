package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	storedSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram
	sessionSaveErrors   *prometheus.CounterVec
	corruptSessions     prometheus.Counter

	completionTotal    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	documentExtractTotal *prometheus.CounterVec
	documentBytes        prometheus.Histogram

	janitorRemovedTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			storedSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "docchat_stored_sessions",
					Help: "Number of sessions returned by the last listing.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docchat_session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docchat_session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docchat_session_save_errors_total",
					Help: "Failed session saves by store backend.",
				},
				[]string{"backend"},
			),
			corruptSessions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docchat_corrupt_sessions_total",
					Help: "Stored session records that failed to parse.",
				},
			),
			completionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docchat_completion_total",
					Help: "Completion requests by backend and outcome.",
				},
				[]string{"backend", "outcome"},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "docchat_completion_duration_seconds",
					Help:    "Completion request duration in seconds by backend.",
					Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
				},
				[]string{"backend"},
			),
			documentExtractTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docchat_document_extract_total",
					Help: "Document extractions by extension and status.",
				},
				[]string{"extension", "status"},
			),
			documentBytes: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docchat_document_text_bytes",
					Help:    "Size of extracted document text in bytes.",
					Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
				},
			),
			janitorRemovedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docchat_janitor_removed_total",
					Help: "Stale temporary session files removed by the janitor.",
				},
			),
		}

		prometheus.MustRegister(
			m.storedSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.sessionSaveErrors,
			m.corruptSessions,
			m.completionTotal,
			m.completionDuration,
			m.documentExtractTotal,
			m.documentBytes,
			m.janitorRemovedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetStoredSessions(count int) {
	getMetrics().storedSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(backend string, duration time.Duration, success bool) {
	m := getMetrics()
	m.sessionSaveDuration.Observe(duration.Seconds())
	if !success {
		m.sessionSaveErrors.WithLabelValues(backend).Inc()
	}
}

func RecordCorruptSession() {
	getMetrics().corruptSessions.Inc()
}

// RecordCompletion counts one completion call. outcome is one of
// "success", "fallback", "unavailable" or "error".
func RecordCompletion(backend, outcome string, duration time.Duration) {
	m := getMetrics()
	m.completionTotal.WithLabelValues(backend, outcome).Inc()
	m.completionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordDocumentExtract(extension string, textBytes int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
		m.documentBytes.Observe(float64(textBytes))
	}
	m.documentExtractTotal.WithLabelValues(extension, status).Inc()
}

func RecordJanitorRemoved(count int) {
	getMetrics().janitorRemovedTotal.Add(float64(count))
}
