// Package task runs the periodic back-office sweeps: flagging overdue
// invoices, requeueing failed payments, and kicking off reconciliation runs.
package task

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"finflow"
	"finflow/batch"
	"finflow/event"
	"finflow/metrics"
)

// Sweep names used for metrics and logging.
const (
	SweepOverdueInvoices = "overdue_invoices"
	SweepRetryPayments   = "retry_payments"
	SweepReconcile       = "reconcile"
)

// Config holds the configuration for the sweep worker.
type Config struct {
	// SweepInterval is the interval between sweeps.
	SweepInterval time.Duration
	// OverdueGraceDays is how many days past due an invoice may sit before
	// it is flagged.
	OverdueGraceDays int
	// RetryAge is how long a payment must have been failed before the
	// sweep requeues it.
	RetryAge time.Duration
}

// DefaultConfig returns the default configuration for the sweep worker.
func DefaultConfig() Config {
	return Config{
		SweepInterval:    1 * time.Minute,
		OverdueGraceDays: 0,
		RetryAge:         15 * time.Minute,
	}
}

// Logger defines the logging interface.
type Logger interface {
	Printf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[SweepWorker] "+format, v...)
}

// Worker periodically scans for entities needing attention and pushes them
// through the engine's lock-protected operations. Safe to run alongside
// interactive traffic; every correction takes the entity lock like any
// other caller.
type Worker struct {
	engine  *finflow.Engine
	runner  *batch.Runner
	events  event.EventBus
	metrics metrics.Metrics
	config  Config
	logger  Logger

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// WorkerOption is a function that configures the Worker.
type WorkerOption func(*Worker)

// WithRunner sets the batch runner reconciliation sweeps delegate to.
func WithRunner(r *batch.Runner) WorkerOption {
	return func(w *Worker) {
		w.runner = r
	}
}

// WithEventBus sets the event bus for sweep alerts.
func WithEventBus(e event.EventBus) WorkerOption {
	return func(w *Worker) {
		w.events = e
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithConfig sets the configuration for the worker.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		w.config = cfg
	}
}

// WithLogger sets the logger for the worker.
func WithLogger(l Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a sweep worker over the engine.
func NewWorker(engine *finflow.Engine, opts ...WorkerOption) *Worker {
	w := &Worker{
		engine:  engine,
		events:  event.NewNoOpEventBus(),
		metrics: metrics.NewNoopMetrics(),
		config:  DefaultConfig(),
		logger:  &defaultLogger{},
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the sweep worker in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Printf("started with interval=%v", w.config.SweepInterval)
	return nil
}

// Stop stops the sweep worker gracefully.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Printf("stopped")
}

// IsRunning returns true if the worker is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	// Small startup jitter so multiple instances don't sweep in lockstep.
	select {
	case <-time.After(rand.N(w.config.SweepInterval/10 + 1)):
	case <-w.stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	w.scan(ctx)

	for {
		select {
		case <-ticker.C:
			w.scan(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// scan performs a single pass over all sweeps.
func (w *Worker) scan(ctx context.Context) {
	w.sweepOverdueInvoices(ctx)
	w.sweepRetryPayments(ctx)
	w.sweepReconcile(ctx)
}

// sweepOverdueInvoices flags collectible invoices past their due date.
func (w *Worker) sweepOverdueInvoices(ctx context.Context) {
	asOf := time.Now().AddDate(0, 0, -w.config.OverdueGraceDays)
	invoices, err := w.engine.Store().GetOverdueInvoices(ctx, asOf)
	if err != nil {
		w.logger.Printf("failed to scan overdue invoices: %v", err)
		w.publishAlert(ctx, SweepOverdueInvoices, err)
		return
	}
	w.metrics.SweepScanned(SweepOverdueInvoices, len(invoices))

	for _, inv := range invoices {
		_, markErr := w.engine.MarkInvoiceOverdue(ctx, inv.Number)
		w.metrics.SweepProcessed(SweepOverdueInvoices, markErr == nil)
		if markErr != nil {
			// A concurrent payment may have settled the invoice between the
			// scan and the lock; that is not an anomaly.
			w.logger.Printf("skipping invoice %s: %v", inv.Number, markErr)
		}
	}
}

// sweepRetryPayments requeues payments that have sat failed long enough.
func (w *Worker) sweepRetryPayments(ctx context.Context) {
	payments, err := w.engine.Store().GetRetryablePayments(ctx, w.config.RetryAge)
	if err != nil {
		w.logger.Printf("failed to scan retryable payments: %v", err)
		w.publishAlert(ctx, SweepRetryPayments, err)
		return
	}
	w.metrics.SweepScanned(SweepRetryPayments, len(payments))

	for _, p := range payments {
		_, retryErr := w.engine.RetryPayment(ctx, p.Number)
		w.metrics.SweepProcessed(SweepRetryPayments, retryErr == nil)
		if retryErr != nil {
			w.logger.Printf("skipping payment %s: %v", p.Number, retryErr)
		}
	}
}

// sweepReconcile kicks off a reconciliation batch run.
func (w *Worker) sweepReconcile(ctx context.Context) {
	if w.runner == nil {
		return
	}

	jobID, err := w.runner.ReconcileTransactions(ctx)
	w.metrics.SweepProcessed(SweepReconcile, err == nil)
	if err != nil {
		w.logger.Printf("failed to start reconciliation run: %v", err)
		w.publishAlert(ctx, SweepReconcile, err)
		return
	}
	w.logger.Printf("started reconciliation job %s", jobID)
}

func (w *Worker) publishAlert(ctx context.Context, sweep string, err error) {
	_ = w.events.Publish(ctx, event.NewEvent(event.EventAlertWarning).
		WithData("sweep", sweep).
		WithError(err))
}

// ScanOnce performs a single sweep pass synchronously.
func (w *Worker) ScanOnce(ctx context.Context) {
	w.scan(ctx)
}
