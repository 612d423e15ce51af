package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type harnessMetrics struct {
	registry *prometheus.Registry

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolInFlight          *prometheus.GaugeVec
	toolQueueWait         *prometheus.HistogramVec
	toolQueueRejects      *prometheus.CounterVec

	modelCallTotal    *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
	modelRetriesTotal *prometheus.CounterVec

	sessionsActive  prometheus.Gauge
	sessionOutcomes *prometheus.CounterVec
	sessionRounds   prometheus.Histogram
}

var (
	once sync.Once
	inst *harnessMetrics
)

func get() *harnessMetrics {
	once.Do(func() {
		registry := prometheus.NewRegistry()
		m := &harnessMetrics{
			registry: registry,
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and observation status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolInFlight: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "tool_in_flight",
					Help: "Currently executing invocations by tool.",
				},
				[]string{"tool"},
			),
			toolQueueWait: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_queue_wait_seconds",
					Help:    "Time spent waiting for a worker slot by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolQueueRejects: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_queue_rejects_total",
					Help: "Requests rejected because a tool queue was saturated.",
				},
				[]string{"tool"},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_call_total",
					Help: "Total model API calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_call_duration_seconds",
					Help:    "Model API call duration in seconds by provider.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
				},
				[]string{"provider"},
			),
			modelRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_retries_total",
					Help: "Model call retries by provider.",
				},
				[]string{"provider"},
			),
			sessionsActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "sessions_active",
					Help: "Sessions currently executing.",
				},
			),
			sessionOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_outcomes_total",
					Help: "Terminal session outcomes by status.",
				},
				[]string{"status"},
			),
			sessionRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_rounds",
					Help:    "Rounds consumed per terminated session.",
					Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 30, 50},
				},
			),
		}

		registry.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolInFlight,
			m.toolQueueWait,
			m.toolQueueRejects,
			m.modelCallTotal,
			m.modelCallDuration,
			m.modelRetriesTotal,
			m.sessionsActive,
			m.sessionOutcomes,
			m.sessionRounds,
		)

		inst = m
	})
	return inst
}

// Handler returns the HTTP handler serving the harness registry.
func Handler() http.Handler {
	m := get()
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordToolExecution records one completed tool execution.
func RecordToolExecution(tool, status string, duration time.Duration) {
	m := get()
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ToolStarted marks an invocation as in flight.
func ToolStarted(tool string) {
	get().toolInFlight.WithLabelValues(tool).Inc()
}

// ToolFinished marks an invocation as done.
func ToolFinished(tool string) {
	get().toolInFlight.WithLabelValues(tool).Dec()
}

// RecordQueueWait records time spent waiting for a worker slot.
func RecordQueueWait(tool string, wait time.Duration) {
	get().toolQueueWait.WithLabelValues(tool).Observe(wait.Seconds())
}

// RecordQueueReject counts a saturated-queue rejection.
func RecordQueueReject(tool string) {
	get().toolQueueRejects.WithLabelValues(tool).Inc()
}

// RecordModelCall records one model API attempt.
func RecordModelCall(provider, status string, duration time.Duration) {
	m := get()
	m.modelCallTotal.WithLabelValues(provider, status).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordModelRetry counts one retried model call.
func RecordModelRetry(provider string) {
	get().modelRetriesTotal.WithLabelValues(provider).Inc()
}

// SessionStarted marks a session as active.
func SessionStarted() {
	get().sessionsActive.Inc()
}

// SessionFinished records a terminal outcome.
func SessionFinished(status string, rounds int) {
	m := get()
	m.sessionsActive.Dec()
	m.sessionOutcomes.WithLabelValues(status).Inc()
	m.sessionRounds.Observe(float64(rounds))
}
