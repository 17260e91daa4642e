// Package metrics provides the metrics interface for the finflow engine.
package metrics

import (
	"time"

	"finflow/circuit"
)

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// Lifecycle operation metrics
	OperationStarted(kind, operation string)
	OperationCompleted(kind, operation string, duration time.Duration)
	OperationFailed(kind, operation string, reason string)
	TransitionRejected(kind, fromStatus, toStatus string)

	// Gateway metrics
	GatewayCall(operation string, success bool, duration time.Duration)

	// Circuit breaker metrics
	CircuitStateChanged(operation string, state circuit.State)

	// Batch metrics
	BatchJobStarted(jobKind string)
	BatchItemProcessed(jobKind string, success bool)
	BatchJobCompleted(jobKind string, status string, duration time.Duration)

	// Sweep metrics
	SweepScanned(task string, count int)
	SweepProcessed(task string, success bool)

	// Lock metrics
	LockAcquired(duration time.Duration)
	LockFailed(reason string)
	LockExtended()
	LockExtendFailed()
	LockForceReleased()
}

// NoopMetrics is a no-op implementation of Metrics for testing or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new NoopMetrics.
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) OperationStarted(kind, operation string)                         {}
func (n *NoopMetrics) OperationCompleted(kind, operation string, d time.Duration)      {}
func (n *NoopMetrics) OperationFailed(kind, operation string, reason string)           {}
func (n *NoopMetrics) TransitionRejected(kind, fromStatus, toStatus string)            {}
func (n *NoopMetrics) GatewayCall(operation string, success bool, d time.Duration)     {}
func (n *NoopMetrics) CircuitStateChanged(operation string, state circuit.State)       {}
func (n *NoopMetrics) BatchJobStarted(jobKind string)                                  {}
func (n *NoopMetrics) BatchItemProcessed(jobKind string, success bool)                 {}
func (n *NoopMetrics) BatchJobCompleted(jobKind string, status string, d time.Duration) {}
func (n *NoopMetrics) SweepScanned(task string, count int)                             {}
func (n *NoopMetrics) SweepProcessed(task string, success bool)                        {}
func (n *NoopMetrics) LockAcquired(duration time.Duration)                             {}
func (n *NoopMetrics) LockFailed(reason string)                                        {}
func (n *NoopMetrics) LockExtended()                                                   {}
func (n *NoopMetrics) LockExtendFailed()                                               {}
func (n *NoopMetrics) LockForceReleased()                                              {}
