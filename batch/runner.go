package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finflow"
	"finflow/event"
	"finflow/gateway"
)

// PaymentImport is one pre-parsed input row for a payment import run.
type PaymentImport struct {
	CustomerID    string
	PolicyID      string
	Amount        decimal.Decimal
	Currency      string
	Method        finflow.PaymentMethod
	InvoiceNumber string
}

// Runner fans bulk operations out over a fixed worker pool, recording each
// item's outcome on the tracker. Item failures are counted and processing
// continues; only a setup failure fails the whole job.
type Runner struct {
	engine  *finflow.Engine
	tracker *Tracker
	events  event.EventBus
	logger  *slog.Logger
	workers int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunnerEventBus sets the bus batch lifecycle events are published to.
func WithRunnerEventBus(bus event.EventBus) RunnerOption {
	return func(r *Runner) {
		r.events = bus
	}
}

// WithRunnerWorkers overrides the engine-configured worker count.
func WithRunnerWorkers(workers int) RunnerOption {
	return func(r *Runner) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// NewRunner creates a runner over the engine's operations.
func NewRunner(engine *finflow.Engine, tracker *Tracker, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:  engine,
		tracker: tracker,
		events:  event.NewNoOpEventBus(),
		logger:  slog.Default(),
		workers: engine.Config().BatchWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	return r
}

// ImportPayments registers and creates one payment per input row. Returns
// the job id immediately; progress is polled through the tracker.
func (r *Runner) ImportPayments(ctx context.Context, rows []PaymentImport) (string, error) {
	jobID := r.tracker.StartJob(JobKindImportPayments, len(rows))
	r.publishStarted(ctx, jobID, JobKindImportPayments)

	go r.run(context.WithoutCancel(ctx), jobID, JobKindImportPayments, len(rows), func(ctx context.Context, i int) error {
		row := rows[i]
		p := finflow.NewPayment(row.CustomerID, row.PolicyID, row.Amount, row.Currency, row.Method)
		p.InvoiceNumber = row.InvoiceNumber
		return r.engine.CreatePayment(ctx, p)
	})
	return jobID, nil
}

// BatchStatusUpdate moves every listed payment to the target status through
// the corresponding lock-protected operation. The permitted targets are
// enumerated statically; anything else is a setup error.
func (r *Runner) BatchStatusUpdate(ctx context.Context, numbers []string, target finflow.PaymentStatus) (string, error) {
	var apply func(context.Context, string) error
	switch target {
	case finflow.PaymentStatusCancelled:
		apply = func(ctx context.Context, number string) error {
			_, err := r.engine.CancelPayment(ctx, number)
			return err
		}
	case finflow.PaymentStatusFailed:
		apply = func(ctx context.Context, number string) error {
			_, err := r.engine.FailPayment(ctx, number, "batch status update")
			return err
		}
	case finflow.PaymentStatusPending:
		apply = func(ctx context.Context, number string) error {
			_, err := r.engine.RetryPayment(ctx, number)
			return err
		}
	default:
		return "", fmt.Errorf("%w: status %s not permitted for batch update", finflow.ErrValidation, target)
	}

	jobID := r.tracker.StartJob(JobKindStatusUpdate, len(numbers))
	r.publishStarted(ctx, jobID, JobKindStatusUpdate)

	go r.run(context.WithoutCancel(ctx), jobID, JobKindStatusUpdate, len(numbers), func(ctx context.Context, i int) error {
		return apply(ctx, numbers[i])
	})
	return jobID, nil
}

// BatchCancelPayments cancels every listed payment.
func (r *Runner) BatchCancelPayments(ctx context.Context, numbers []string) (string, error) {
	return r.BatchStatusUpdate(ctx, numbers, finflow.PaymentStatusCancelled)
}

// ReconcileTransactions re-checks unreconciled audit movements against the
// processor. Matched movements get their reconciled flag flipped; a payment
// the processor settled but we never confirmed is corrected through the
// lock-protected confirmation path.
func (r *Runner) ReconcileTransactions(ctx context.Context) (string, error) {
	txs, err := r.engine.Store().GetUnreconciledTransactions(ctx, r.engine.Config().ReconcileWindow)
	if err != nil {
		return "", fmt.Errorf("loading unreconciled transactions: %w", err)
	}

	jobID := r.tracker.StartJob(JobKindReconcile, len(txs))
	r.publishStarted(ctx, jobID, JobKindReconcile)

	go r.run(context.WithoutCancel(ctx), jobID, JobKindReconcile, len(txs), func(ctx context.Context, i int) error {
		return r.reconcileOne(ctx, txs[i])
	})
	return jobID, nil
}

// ExportTransactions writes every audit movement matching the filter to w as
// JSON lines. The filter's Limit is used as the page size; all matching pages
// are exported. The caller owns the writer, so unlike the other bulk
// operations the run is synchronous and the returned job is already sealed.
func (r *Runner) ExportTransactions(ctx context.Context, filter *finflow.TxFilter, w io.Writer) (string, error) {
	page := finflow.NewTxFilter()
	if filter != nil {
		*page = *filter
	}

	var all []*finflow.Transaction
	for {
		txs, total, err := r.engine.Store().ListTransactions(ctx, page)
		if err != nil {
			return "", fmt.Errorf("loading transactions: %w", err)
		}
		all = append(all, txs...)
		page.Offset += len(txs)
		if len(txs) == 0 || int64(page.Offset) >= total {
			break
		}
	}

	jobID := r.tracker.StartJob(JobKindExport, len(all))
	r.publishStarted(ctx, jobID, JobKindExport)

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	r.run(ctx, jobID, JobKindExport, len(all), func(_ context.Context, i int) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(all[i])
	})
	return jobID, nil
}

func (r *Runner) reconcileOne(ctx context.Context, tx *finflow.Transaction) error {
	status, err := r.engine.Gateway().CheckStatus(ctx, tx.GatewayReference)
	if err != nil {
		return fmt.Errorf("checking %s: %w", tx.GatewayReference, err)
	}

	switch status {
	case gateway.StatusSuccessful:
		if tx.EntityKind == finflow.KindPayment {
			if _, err := r.engine.ConfirmPayment(ctx, tx.EntityNumber, tx.GatewayReference); err != nil {
				return fmt.Errorf("confirming %s: %w", tx.EntityNumber, err)
			}
		}
	case gateway.StatusFailed:
		if tx.EntityKind == finflow.KindPayment {
			if _, err := r.engine.FailPayment(ctx, tx.EntityNumber, "processor reported failure during reconciliation"); err != nil {
				return fmt.Errorf("failing %s: %w", tx.EntityNumber, err)
			}
		}
	default:
		// Still pending on the processor side; leave for the next sweep.
		return nil
	}

	if err := r.engine.Store().MarkTransactionReconciled(ctx, tx.TxID, time.Now()); err != nil {
		return fmt.Errorf("marking %s reconciled: %w", tx.TxID, err)
	}
	r.publish(ctx, event.NewEvent(event.EventReconciled).
		WithEntity(tx.EntityKind, tx.EntityNumber).
		WithData("tx_id", tx.TxID).
		WithData("gateway_reference", tx.GatewayReference))
	return nil
}

// run drains n items through the worker pool and seals the job.
func (r *Runner) run(ctx context.Context, jobID, kind string, n int, work func(context.Context, int) error) {
	items := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range items {
				err := work(ctx, i)
				if err != nil {
					r.logger.Error("batch item failed",
						"job_id", jobID, "kind", kind, "item", i, "error", err)
				}
				if recErr := r.tracker.RecordItemResult(jobID, err == nil, errString(err)); recErr != nil {
					r.logger.Error("recording item result", "job_id", jobID, "error", recErr)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		items <- i
	}
	close(items)
	wg.Wait()

	if err := r.tracker.CompleteJob(jobID, JobStateCompleted); err != nil {
		r.logger.Error("completing batch job", "job_id", jobID, "error", err)
	}
	r.publishCompleted(ctx, jobID, kind)
}

func (r *Runner) publishStarted(ctx context.Context, jobID, kind string) {
	r.publish(ctx, event.NewEvent(event.EventBatchStarted).
		WithData("job_id", jobID).
		WithData("kind", kind))
}

func (r *Runner) publishCompleted(ctx context.Context, jobID, kind string) {
	r.publish(ctx, event.NewEvent(event.EventBatchCompleted).
		WithData("job_id", jobID).
		WithData("kind", kind))
}

func (r *Runner) publish(ctx context.Context, ev event.Event) {
	_ = r.events.Publish(ctx, ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
