// Package finflow implements a concurrency-safe financial lifecycle engine
// for payments, invoices, and refunds. Every status-changing operation runs
// under a distributed lock, validates the transition against the entity's
// transition table, and persists the mutation together with an append-only
// audit transaction.
package finflow

import (
	"context"
	"errors"
	"time"

	"finflow/circuit"
	"finflow/event"
	"finflow/gateway"
	"finflow/idempotency"
	"finflow/lock"
	"finflow/metrics"
	"finflow/notify"
	"finflow/tracing"
)

// Engine is the main entry point for the financial lifecycle engine.
// It exposes the status-changing operations for payments, invoices, and
// refunds, each keyed by the entity's business number.
type Engine struct {
	// Dependencies
	store    Store
	locker   lock.Locker
	breaker  circuit.Breaker
	events   event.EventBus
	checker  idempotency.Checker
	gateway  gateway.Gateway
	notifier notify.Notifier
	metrics  metrics.Metrics
	tracer   tracing.Tracer
	refs     ReferenceChecker

	// Configuration
	config Config
}

// EngineOption is a function that configures the Engine.
type EngineOption func(*Engine)

// WithEngineStore sets the store for the engine.
func WithEngineStore(s Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithEngineLocker sets the locker for the engine.
func WithEngineLocker(l lock.Locker) EngineOption {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithEngineBreaker sets the circuit breaker for the engine.
func WithEngineBreaker(b circuit.Breaker) EngineOption {
	return func(e *Engine) {
		e.breaker = b
	}
}

// WithEngineEventBus sets the event bus for the engine.
func WithEngineEventBus(eb event.EventBus) EngineOption {
	return func(e *Engine) {
		e.events = eb
	}
}

// WithEngineChecker sets the idempotency checker for the engine.
func WithEngineChecker(ch idempotency.Checker) EngineOption {
	return func(e *Engine) {
		e.checker = ch
	}
}

// WithEngineGateway sets the payment gateway for the engine.
func WithEngineGateway(g gateway.Gateway) EngineOption {
	return func(e *Engine) {
		e.gateway = g
	}
}

// WithEngineNotifier sets the customer notifier for the engine.
func WithEngineNotifier(n notify.Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithEngineMetrics sets the metrics implementation for the engine.
func WithEngineMetrics(m metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithEngineTracer sets the tracer for the engine.
func WithEngineTracer(t tracing.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithEngineReferenceChecker sets the customer/policy reference checker.
func WithEngineReferenceChecker(rc ReferenceChecker) EngineOption {
	return func(e *Engine) {
		e.refs = rc
	}
}

// WithEngineConfig sets the configuration for the engine.
func WithEngineConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

// NewEngine creates a new Engine with the given options.
// The engine must be configured with at least a store and a locker before
// executing operations.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		events:   event.NewNoOpEventBus(),
		notifier: notify.NewNoOpNotifier(),
		metrics:  metrics.NewNoopMetrics(),
		tracer:   &tracing.NoopTracer{},
		config:   DefaultConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Subscribe subscribes a handler to a specific event type.
// Multiple handlers can be registered for the same event type.
func (e *Engine) Subscribe(eventType event.EventType, handler event.EventHandler) error {
	return e.events.Subscribe(eventType, handler)
}

// SubscribeAll subscribes a handler to all events.
func (e *Engine) SubscribeAll(handler event.EventHandler) error {
	return e.events.SubscribeAll(handler)
}

// Store returns the underlying store.
func (e *Engine) Store() Store {
	return e.store
}

// Locker returns the underlying locker.
func (e *Engine) Locker() lock.Locker {
	return e.locker
}

// Gateway returns the underlying payment gateway.
func (e *Engine) Gateway() gateway.Gateway {
	return e.gateway
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// lockEntity acquires the lock for a single entity, waiting up to the
// configured lock wait budget.
func (e *Engine) lockEntity(ctx context.Context, kind, number string) (lock.LockHandle, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.config.LockWait)
	defer cancel()

	start := time.Now()
	handle, err := e.locker.Acquire(lockCtx, []string{LockKey(kind, number)}, e.config.LockTTL)
	if err != nil {
		e.metrics.LockFailed("timeout")
		return nil, err
	}
	e.metrics.LockAcquired(time.Since(start))
	return handle, nil
}

// startLockExtender keeps the held locks alive while a long operation
// (typically a gateway call) is in flight. The returned stop function must
// be called before the handle is released.
func (e *Engine) startLockExtender(ctx context.Context, handle lock.LockHandle) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.config.LockExtendPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := handle.Extend(ctx, e.config.LockTTL); err != nil {
					e.metrics.LockExtendFailed()
					return
				}
				e.metrics.LockExtended()
			}
		}
	}()
	return func() { close(done) }
}

// instrument starts a span and records operation metrics for a lifecycle
// operation. The returned finish function takes the operation's final error.
func (e *Engine) instrument(ctx context.Context, kind, number, operation string) (context.Context, func(error)) {
	start := time.Now()
	e.metrics.OperationStarted(kind, operation)
	ctx, span := e.tracer.StartOperation(ctx, kind, number, operation)

	return ctx, func(err error) {
		if err != nil {
			span.SetError(err)
			e.metrics.OperationFailed(kind, operation, failureReason(err))
		} else {
			e.metrics.OperationCompleted(kind, operation, time.Since(start))
		}
		span.End()
	}
}

// failureReason maps an operation error to a stable metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrGateway):
		return "gateway"
	default:
		return "other"
	}
}

// callGateway executes a gateway call through the circuit breaker keyed by
// the operation name. An open circuit surfaces as ErrCircuitOpen wrapped in
// the gateway error class so call sites treat it like any gateway failure.
func (e *Engine) callGateway(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	var err error
	if e.breaker != nil {
		cfg := e.config.ToBreakerConfig()
		cfg.OnStateChange = func(op string, _, to circuit.State) {
			e.metrics.CircuitStateChanged(op, to)
		}
		err = e.breaker.GetWithConfig(operation, cfg).Execute(ctx, fn)
	} else {
		err = fn()
	}
	e.metrics.GatewayCall(operation, err == nil, time.Since(start))
	return err
}

// publishEvent publishes a domain event. Publish never fails the caller.
func (e *Engine) publishEvent(ctx context.Context, ev event.Event) {
	_ = e.events.Publish(ctx, ev)
}

// notifyCustomer dispatches a fire-and-forget customer notification with its
// own send budget, detached from the caller's context.
func (e *Engine) notifyCustomer(customerID string, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.config.NotifyTimeout)
		defer cancel()
		_ = e.notifier.Notify(ctx, customerID, payload)
	}()
}

// checkReferences validates customer and policy numbers against the systems
// of record, when a checker is configured.
func (e *Engine) checkReferences(ctx context.Context, customerID, policyID string) error {
	if e.refs == nil {
		return nil
	}
	if customerID != "" {
		ok, err := e.refs.CustomerExists(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrValidation
		}
	}
	if policyID != "" {
		ok, err := e.refs.PolicyExists(ctx, policyID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrValidation
		}
	}
	return nil
}
