// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"finflow/circuit"
	"finflow/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Lifecycle operation metrics
	opStartedTotal          *prometheus.CounterVec
	opCompletedTotal        *prometheus.CounterVec
	opFailedTotal           *prometheus.CounterVec
	opDuration              *prometheus.HistogramVec
	transitionRejectedTotal *prometheus.CounterVec

	// Gateway metrics
	gatewayCallTotal *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec

	// Circuit breaker metrics
	circuitState *prometheus.GaugeVec

	// Batch metrics
	batchJobStartedTotal   *prometheus.CounterVec
	batchItemTotal         *prometheus.CounterVec
	batchJobCompletedTotal *prometheus.CounterVec
	batchJobDuration       *prometheus.HistogramVec

	// Sweep metrics
	sweepScannedTotal   *prometheus.CounterVec
	sweepProcessedTotal *prometheus.CounterVec

	// Lock metrics
	lockAcquiredTotal      prometheus.Counter
	lockFailedTotal        *prometheus.CounterVec
	lockExtendedTotal      prometheus.Counter
	lockExtendFailedTotal  prometheus.Counter
	lockForceReleasedTotal prometheus.Counter
	lockAcquireDuration    prometheus.Histogram
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "finflow")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "finflow",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		// Lifecycle operation metrics
		opStartedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_started_total",
			Help:      "Total number of lifecycle operations started",
		}, []string{"kind", "operation"}),

		opCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_completed_total",
			Help:      "Total number of lifecycle operations completed successfully",
		}, []string{"kind", "operation"}),

		opFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_failed_total",
			Help:      "Total number of lifecycle operations failed",
		}, []string{"kind", "operation", "reason"}),

		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"kind", "operation"}),

		transitionRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "transition_rejected_total",
			Help:      "Total number of status transitions rejected by the transition tables",
		}, []string{"kind", "from_status", "to_status"}),

		// Gateway metrics
		gatewayCallTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "gateway_call_total",
			Help:      "Total number of gateway calls by outcome",
		}, []string{"operation", "success"}),

		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "gateway_call_duration_seconds",
			Help:      "Gateway call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"operation"}),

		// Circuit breaker metrics
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
		}, []string{"operation"}),

		// Batch metrics
		batchJobStartedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_job_started_total",
			Help:      "Total number of batch jobs started",
		}, []string{"job_kind"}),

		batchItemTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_item_total",
			Help:      "Total number of batch items processed by outcome",
		}, []string{"job_kind", "success"}),

		batchJobCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_job_completed_total",
			Help:      "Total number of batch jobs completed by final status",
		}, []string{"job_kind", "status"}),

		batchJobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_job_duration_seconds",
			Help:      "Batch job duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~160s
		}, []string{"job_kind"}),

		// Sweep metrics
		sweepScannedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sweep_scanned_total",
			Help:      "Total number of candidates scanned by background sweeps",
		}, []string{"task"}),

		sweepProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sweep_processed_total",
			Help:      "Total number of candidates processed by background sweeps",
		}, []string{"task", "success"}),

		// Lock metrics
		lockAcquiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquired_total",
			Help:      "Total number of locks acquired",
		}),

		lockFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_failed_total",
			Help:      "Total number of lock acquisition failures",
		}, []string{"reason"}),

		lockExtendedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_extended_total",
			Help:      "Total number of lock extensions",
		}),

		lockExtendFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_extend_failed_total",
			Help:      "Total number of lock extension failures",
		}),

		lockForceReleasedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_force_released_total",
			Help:      "Total number of forced lock releases",
		}),

		lockAcquireDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquire_duration_seconds",
			Help:      "Time taken to acquire locks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
	}
}

// Lifecycle operation metrics

func (p *PrometheusMetrics) OperationStarted(kind, operation string) {
	p.opStartedTotal.WithLabelValues(kind, operation).Inc()
}

func (p *PrometheusMetrics) OperationCompleted(kind, operation string, duration time.Duration) {
	p.opCompletedTotal.WithLabelValues(kind, operation).Inc()
	p.opDuration.WithLabelValues(kind, operation).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) OperationFailed(kind, operation string, reason string) {
	p.opFailedTotal.WithLabelValues(kind, operation, reason).Inc()
}

func (p *PrometheusMetrics) TransitionRejected(kind, fromStatus, toStatus string) {
	p.transitionRejectedTotal.WithLabelValues(kind, fromStatus, toStatus).Inc()
}

// Gateway metrics

func (p *PrometheusMetrics) GatewayCall(operation string, success bool, duration time.Duration) {
	p.gatewayCallTotal.WithLabelValues(operation, boolLabel(success)).Inc()
	p.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Circuit breaker metrics

func (p *PrometheusMetrics) CircuitStateChanged(operation string, state circuit.State) {
	p.circuitState.WithLabelValues(operation).Set(float64(state))
}

// Batch metrics

func (p *PrometheusMetrics) BatchJobStarted(jobKind string) {
	p.batchJobStartedTotal.WithLabelValues(jobKind).Inc()
}

func (p *PrometheusMetrics) BatchItemProcessed(jobKind string, success bool) {
	p.batchItemTotal.WithLabelValues(jobKind, boolLabel(success)).Inc()
}

func (p *PrometheusMetrics) BatchJobCompleted(jobKind string, status string, duration time.Duration) {
	p.batchJobCompletedTotal.WithLabelValues(jobKind, status).Inc()
	p.batchJobDuration.WithLabelValues(jobKind).Observe(duration.Seconds())
}

// Sweep metrics

func (p *PrometheusMetrics) SweepScanned(task string, count int) {
	p.sweepScannedTotal.WithLabelValues(task).Add(float64(count))
}

func (p *PrometheusMetrics) SweepProcessed(task string, success bool) {
	p.sweepProcessedTotal.WithLabelValues(task, boolLabel(success)).Inc()
}

// Lock metrics

func (p *PrometheusMetrics) LockAcquired(duration time.Duration) {
	p.lockAcquiredTotal.Inc()
	p.lockAcquireDuration.Observe(duration.Seconds())
}

func (p *PrometheusMetrics) LockFailed(reason string) {
	p.lockFailedTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusMetrics) LockExtended() {
	p.lockExtendedTotal.Inc()
}

func (p *PrometheusMetrics) LockExtendFailed() {
	p.lockExtendFailedTotal.Inc()
}

func (p *PrometheusMetrics) LockForceReleased() {
	p.lockForceReleasedTotal.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
