package finflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finflow/event"
)

// CreateInvoice validates references and persists a new invoice in ISSUED.
func (e *Engine) CreateInvoice(ctx context.Context, inv *Invoice) error {
	ctx, finish := e.instrument(ctx, KindInvoice, inv.Number, "create")
	var err error
	defer func() { finish(err) }()

	if !inv.TotalAmount.IsPositive() {
		err = fmt.Errorf("%w: invoice total must be positive", ErrValidation)
		return err
	}
	if inv.Currency == "" {
		err = fmt.Errorf("%w: currency is required", ErrValidation)
		return err
	}
	if err = e.checkReferences(ctx, inv.CustomerID, inv.PolicyID); err != nil {
		err = fmt.Errorf("%w: unknown customer or policy", ErrValidation)
		return err
	}

	if err = e.store.CreateInvoice(ctx, inv); err != nil {
		return err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventInvoiceIssued).
		WithEntity(KindInvoice, inv.Number).
		WithAmount(inv.TotalAmount, inv.Currency).
		WithData("due_date", inv.DueDate))
	e.notifyCustomer(inv.CustomerID, map[string]any{
		"event":          "invoice_issued",
		"invoice_number": inv.Number,
		"total_amount":   inv.TotalAmount.String(),
		"currency":       inv.Currency,
		"due_date":       inv.DueDate,
	})
	return nil
}

// GetInvoice retrieves an invoice by its business number.
func (e *Engine) GetInvoice(ctx context.Context, number string) (*Invoice, error) {
	return e.store.GetInvoice(ctx, number)
}

// ActivateInvoice moves an issued invoice to PENDING, opening it for payment.
func (e *Engine) ActivateInvoice(ctx context.Context, number string) (*Invoice, error) {
	return e.transitionInvoice(ctx, "activate", number, InvoiceStatusPending, event.EventInvoiceIssued)
}

// CancelInvoice cancels an invoice that has not been paid in full.
func (e *Engine) CancelInvoice(ctx context.Context, number string) (*Invoice, error) {
	return e.transitionInvoice(ctx, "cancel", number, InvoiceStatusCancelled, event.EventInvoiceCancelled)
}

// MarkInvoiceOverdue flags a collectible invoice past its due date.
// Used by the background overdue sweep.
func (e *Engine) MarkInvoiceOverdue(ctx context.Context, number string) (*Invoice, error) {
	return e.transitionInvoice(ctx, "mark_overdue", number, InvoiceStatusOverdue, event.EventInvoiceOverdue)
}

// RecordInvoicePayment credits an amount against an invoice under the
// invoice's own lock. The accumulated paid amount is clamped at the total;
// any excess is reported as an overpayment anomaly, never silently lost.
func (e *Engine) RecordInvoicePayment(ctx context.Context, number string, amount decimal.Decimal) (*Invoice, error) {
	return e.creditInvoice(ctx, number, amount, "")
}

// creditInvoice is the shared credit path. gatewayRef, when set, is recorded
// on the audit row and marks the crediting confirmation, so a cascade can be
// told apart from a manual credit and never applied twice.
func (e *Engine) creditInvoice(ctx context.Context, number string, amount decimal.Decimal, gatewayRef string) (*Invoice, error) {
	ctx, finish := e.instrument(ctx, KindInvoice, number, "record_payment")
	var err error
	defer func() { finish(err) }()

	if !amount.IsPositive() {
		err = fmt.Errorf("%w: credited amount must be positive", ErrValidation)
		return nil, err
	}

	handle, lockErr := e.lockEntity(ctx, KindInvoice, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	inv, getErr := e.store.GetInvoice(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if inv.IsTerminal() {
		err = fmt.Errorf("%w: invoice %s is %s", ErrInvalidTransition, number, inv.Status)
		return nil, err
	}

	// An issued invoice receiving its first payment is implicitly opened.
	fromStatus := inv.Status
	if inv.Status == InvoiceStatusIssued {
		inv.Status = InvoiceStatusPending
	}

	newPaid := inv.PaidAmount.Add(amount)
	excess := decimal.Zero
	if newPaid.GreaterThan(inv.TotalAmount) {
		excess = newPaid.Sub(inv.TotalAmount)
		newPaid = inv.TotalAmount
	}

	target := InvoiceStatusPartiallyPaid
	if newPaid.GreaterThanOrEqual(inv.TotalAmount) {
		target = InvoiceStatusPaid
	}

	if target != inv.Status {
		if !ValidateInvoiceTransition(inv.Status, target) {
			e.metrics.TransitionRejected(KindInvoice, string(inv.Status), string(target))
			err = fmt.Errorf("%w: invoice %s cannot go %s -> %s", ErrInvalidTransition, number, inv.Status, target)
			return nil, err
		}
		inv.Status = target
	}

	inv.PaidAmount = newPaid
	if inv.Status == InvoiceStatusPaid {
		now := time.Now()
		inv.PaidAt = &now
	}
	inv.IncrementVersion()

	audit := NewAuditTransaction(KindInvoice, inv.Number, TxTypeAdjustment, amount, inv.Currency,
		string(fromStatus), string(inv.Status))
	audit.GatewayReference = gatewayRef

	if upErr := e.store.UpdateInvoiceWithAudit(ctx, inv, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	if excess.IsPositive() {
		e.publishEvent(ctx, event.NewEvent(event.EventAnomalyOverpayment).
			WithEntity(KindInvoice, inv.Number).
			WithAmount(excess, inv.Currency).
			WithData("total_amount", inv.TotalAmount.String()))
	}

	evType := event.EventInvoicePartiallyPaid
	if inv.Status == InvoiceStatusPaid {
		evType = event.EventInvoicePaid
	}
	e.publishEvent(ctx, event.NewEvent(evType).
		WithEntity(KindInvoice, inv.Number).
		WithAmount(amount, inv.Currency).
		WithData("paid_amount", inv.PaidAmount.String()))
	e.notifyCustomer(inv.CustomerID, map[string]any{
		"event":          "invoice_" + string(inv.Status),
		"invoice_number": inv.Number,
		"paid_amount":    inv.PaidAmount.String(),
		"total_amount":   inv.TotalAmount.String(),
	})

	return inv, nil
}

// applyPaymentToInvoice cascades a completed payment into its invoice.
// The cascade re-enters the lock protocol under the invoice's own key, so a
// payment completion and a direct credit racing on the same invoice
// serialize correctly. The payment's gateway reference travels onto the
// invoice's audit row as the cascade marker.
func (e *Engine) applyPaymentToInvoice(ctx context.Context, p *Payment) error {
	ctx, span := e.tracer.StartCascade(ctx, KindInvoice, p.InvoiceNumber)
	_, err := e.creditInvoice(ctx, p.InvoiceNumber, p.Amount, p.GatewayReference)
	span.SetError(err)
	span.End()
	return err
}

// invoiceCreditApplied reports whether the invoice's audit trail already
// carries the credit for the payment's gateway confirmation.
func (e *Engine) invoiceCreditApplied(ctx context.Context, p *Payment) (bool, error) {
	if p.GatewayReference == "" {
		// No confirmation to match against; nothing can prove the credit is
		// missing, so treat it as applied.
		return true, nil
	}
	filter := NewTxFilter().WithEntity(KindInvoice, p.InvoiceNumber)
	for {
		txs, total, err := e.store.ListTransactions(ctx, filter)
		if err != nil {
			return false, err
		}
		for _, tx := range txs {
			if tx.GatewayReference == p.GatewayReference {
				return true, nil
			}
		}
		filter.Offset += len(txs)
		if len(txs) == 0 || int64(filter.Offset) >= total {
			return false, nil
		}
	}
}

// transitionInvoice runs the common lock-read-validate-persist protocol for
// a simple invoice status change.
func (e *Engine) transitionInvoice(ctx context.Context, operation, number string, to InvoiceStatus, evType event.EventType) (*Invoice, error) {
	ctx, finish := e.instrument(ctx, KindInvoice, number, operation)
	var err error
	defer func() { finish(err) }()

	handle, lockErr := e.lockEntity(ctx, KindInvoice, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	inv, getErr := e.store.GetInvoice(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if !ValidateInvoiceTransition(inv.Status, to) {
		e.metrics.TransitionRejected(KindInvoice, string(inv.Status), string(to))
		err = fmt.Errorf("%w: invoice %s cannot go %s -> %s", ErrInvalidTransition, number, inv.Status, to)
		return nil, err
	}

	fromStatus := inv.Status
	inv.Status = to
	inv.IncrementVersion()

	audit := NewAuditTransaction(KindInvoice, inv.Number, TxTypeAdjustment, inv.Outstanding(), inv.Currency,
		string(fromStatus), string(to))

	if upErr := e.store.UpdateInvoiceWithAudit(ctx, inv, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	e.publishEvent(ctx, event.NewEvent(evType).
		WithEntity(KindInvoice, inv.Number).
		WithAmount(inv.TotalAmount, inv.Currency))
	return inv, nil
}
