package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	executionTotal    *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	executionErrors   *prometheus.CounterVec
	activeExecutions  prometheus.Gauge

	failoverOutcomeTotal *prometheus.CounterVec
	circuitOpen          *prometheus.GaugeVec

	streamLinesTotal *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	costTotal        *prometheus.CounterVec

	schedulerTicksTotal    *prometheus.CounterVec
	schedulerEnqueuedTotal *prometheus.CounterVec
	schedulerErrorsTotal   *prometheus.CounterVec

	traceSpansTotal   *prometheus.CounterVec
	repositoryLatency *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			executionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "execution_total",
					Help: "Total persona executions by provider and status.",
				},
				[]string{"provider", "status"},
			),
			executionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "execution_duration_seconds",
					Help:    "Persona execution duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			executionErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "execution_errors_total",
					Help: "Total execution errors by provider.",
				},
				[]string{"provider"},
			),
			activeExecutions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_executions",
					Help: "Current in-flight execution count.",
				},
			),
			failoverOutcomeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "failover_outcome_total",
					Help: "Total candidate attempt outcomes by provider and outcome.",
				},
				[]string{"provider", "outcome"},
			),
			circuitOpen: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_circuit_open",
					Help: "Provider circuit state (1 open, 0 closed).",
				},
				[]string{"provider"},
			),
			streamLinesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_lines_total",
					Help: "Total streamed output lines by provider and line type.",
				},
				[]string{"provider", "type"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tokens_total",
					Help: "Total tokens consumed by provider and direction.",
				},
				[]string{"provider", "direction"},
			),
			costTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cost_usd_total",
					Help: "Accumulated execution cost in USD by provider.",
				},
				[]string{"provider"},
			),
			schedulerTicksTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scheduler_ticks_total",
					Help: "Total scheduler loop ticks by loop name.",
				},
				[]string{"loop"},
			),
			schedulerEnqueuedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scheduler_enqueued_total",
					Help: "Total executions enqueued by scheduler loops.",
				},
				[]string{"loop"},
			),
			schedulerErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scheduler_errors_total",
					Help: "Total per-item scheduler errors by loop name.",
				},
				[]string{"loop"},
			),
			traceSpansTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trace_spans_total",
					Help: "Total trace spans started by kind.",
				},
				[]string{"kind"},
			),
			repositoryLatency: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "repository_op_duration_seconds",
					Help:    "Repository operation duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
		}

		prometheus.MustRegister(
			m.executionTotal,
			m.executionDuration,
			m.executionErrors,
			m.activeExecutions,
			m.failoverOutcomeTotal,
			m.circuitOpen,
			m.streamLinesTotal,
			m.tokensTotal,
			m.costTotal,
			m.schedulerTicksTotal,
			m.schedulerEnqueuedTotal,
			m.schedulerErrorsTotal,
			m.traceSpansTotal,
			m.repositoryLatency,
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

func RecordExecution(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.executionTotal.WithLabelValues(provider, status).Inc()
	m.executionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.executionErrors.WithLabelValues(provider).Inc()
	}
}

func SetActiveExecutions(count int) {
	m := getMetrics()
	m.activeExecutions.Set(float64(count))
}

func RecordFailoverOutcome(provider, outcome string) {
	m := getMetrics()
	m.failoverOutcomeTotal.WithLabelValues(provider, outcome).Inc()
}

func SetCircuitOpen(provider string, open bool) {
	m := getMetrics()
	value := 0.0
	if open {
		value = 1.0
	}
	m.circuitOpen.WithLabelValues(provider).Set(value)
}

func RecordStreamLine(provider, lineType string) {
	m := getMetrics()
	m.streamLinesTotal.WithLabelValues(provider, lineType).Inc()
}

func RecordTokens(provider string, input, output int64) {
	m := getMetrics()
	if input > 0 {
		m.tokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

func RecordCost(provider string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	m := getMetrics()
	m.costTotal.WithLabelValues(provider).Add(costUSD)
}

func RecordSchedulerTick(loop string) {
	m := getMetrics()
	m.schedulerTicksTotal.WithLabelValues(loop).Inc()
}

func RecordSchedulerEnqueued(loop string) {
	m := getMetrics()
	m.schedulerEnqueuedTotal.WithLabelValues(loop).Inc()
}

func RecordSchedulerError(loop string) {
	m := getMetrics()
	m.schedulerErrorsTotal.WithLabelValues(loop).Inc()
}

func RecordTraceSpan(kind string) {
	m := getMetrics()
	m.traceSpansTotal.WithLabelValues(kind).Inc()
}

func RecordRepositoryOp(op string, duration time.Duration) {
	m := getMetrics()
	m.repositoryLatency.WithLabelValues(op).Observe(duration.Seconds())
}
