// Package metrics exposes Prometheus instrumentation for the command server.
//
// Every Metrics value owns its own registry so that several servers (or
// several tests) can coexist in one process. All Record methods are safe to
// call on a nil *Metrics, which turns instrumentation off.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scenebridge"

// Metrics contains all Prometheus metrics for the command server
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec

	// Protocol metrics
	DecodeErrors *prometheus.CounterVec
	BytesRead    prometheus.Counter

	// Command metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Executor metrics
	QueueDepth    prometheus.Gauge
	QueueWait     prometheus.Histogram
	TasksRun      prometheus.Counter
	TasksCanceled prometheus.Counter
	TaskPanics    prometheus.Counter
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Current number of connected clients",
		}),
		ConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}, []string{"transport"}),

		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of framing and command decode errors",
		}, []string{"kind"}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total number of bytes read from client sockets",
		}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of processed commands",
		}, []string{"type", "status"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from command decode to response write",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"type"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_queue_depth",
			Help:      "Tasks waiting for the owner context",
		}),
		QueueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "executor_queue_wait_seconds",
			Help:      "Time a task spent queued before it ran",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		TasksRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_tasks_run_total",
			Help:      "Total number of tasks run on the owner context",
		}),
		TasksCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_tasks_canceled_total",
			Help:      "Total number of queued tasks failed without running",
		}),
		TaskPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_task_panics_total",
			Help:      "Total number of tasks that panicked",
		}),
	}
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnectionOpened records an accepted client
func (m *Metrics) RecordConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(transport).Inc()
	m.ActiveConnections.Inc()
}

// RecordConnectionClosed records a client going away
func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// RecordBytesRead adds n to the bytes read counter
func (m *Metrics) RecordBytesRead(n int) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
}

// RecordDecodeError increments the decode error counter for kind
func (m *Metrics) RecordDecodeError(kind string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

// RecordCommand records a processed command and its latency
func (m *Metrics) RecordCommand(cmdType, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(cmdType, status).Inc()
	m.CommandDuration.WithLabelValues(cmdType).Observe(durationSeconds)
}

// SetQueueDepth sets the executor queue depth
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordTaskRun records a task leaving the queue after waiting waitSeconds
func (m *Metrics) RecordTaskRun(waitSeconds float64) {
	if m == nil {
		return
	}
	m.TasksRun.Inc()
	m.QueueWait.Observe(waitSeconds)
}

// RecordTaskCanceled records a queued task failed without running
func (m *Metrics) RecordTaskCanceled() {
	if m == nil {
		return
	}
	m.TasksCanceled.Inc()
}

// RecordTaskPanic records a recovered task panic
func (m *Metrics) RecordTaskPanic() {
	if m == nil {
		return
	}
	m.TaskPanics.Inc()
}
