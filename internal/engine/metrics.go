package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/levyline/taxflow/pkg/api"
)

// Metrics records engine activity as Prometheus collectors. A nil *Metrics
// is valid and records nothing
type Metrics struct {
	executions   *prometheus.CounterVec
	active       prometheus.Gauge
	stepDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	calls        *prometheus.CounterVec
}

const metricsNamespace = "taxflow"

// NewMetrics creates the engine collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "workflow_executions_total",
				Help:      "Total number of finished workflow executions",
			},
			[]string{"workflow", "status"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "workflow_executions_active",
				Help:      "Number of workflow executions currently running",
			},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "step_duration_milliseconds",
				Help:      "Workflow step duration in milliseconds",
				Buckets: []float64{
					1, 5, 10, 50, 100, 500, 1000, 5000, 30000,
				},
			},
			[]string{"function", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts",
			},
			[]string{"function"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "function_calls_total",
				Help:      "Total number of direct function calls",
			},
			[]string{"function", "status"},
		),
	}
	reg.MustRegister(m.executions, m.active, m.stepDuration, m.retries, m.calls)
	return m
}

func (m *Metrics) executionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) executionFinished(
	name api.WorkflowName, status api.ExecutionStatus,
) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.executions.WithLabelValues(string(name), string(status)).Inc()
}

func (m *Metrics) stepFinished(
	fn api.FunctionName, status api.StepStatus, dur time.Duration,
) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(string(fn), string(status)).
		Observe(float64(dur.Milliseconds()))
}

func (m *Metrics) stepRetried(fn api.FunctionName) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(fn)).Inc()
}

func (m *Metrics) functionCalled(
	fn api.FunctionName, status api.ExecutionStatus,
) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(fn), string(status)).Inc()
}
