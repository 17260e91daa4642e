package finflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finflow/event"
	"finflow/gateway"
	"finflow/idempotency"
)

// CreatePayment validates references and persists a new payment in PENDING.
func (e *Engine) CreatePayment(ctx context.Context, p *Payment) error {
	ctx, finish := e.instrument(ctx, KindPayment, p.Number, "create")
	var err error
	defer func() { finish(err) }()

	if !p.Amount.IsPositive() {
		err = fmt.Errorf("%w: payment amount must be positive", ErrValidation)
		return err
	}
	if p.Currency == "" {
		err = fmt.Errorf("%w: currency is required", ErrValidation)
		return err
	}
	if err = e.checkReferences(ctx, p.CustomerID, p.PolicyID); err != nil {
		err = fmt.Errorf("%w: unknown customer or policy", ErrValidation)
		return err
	}

	if err = e.store.CreatePayment(ctx, p); err != nil {
		return err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventPaymentCreated).
		WithEntity(KindPayment, p.Number).
		WithAmount(p.Amount, p.Currency))
	e.notifyCustomer(p.CustomerID, map[string]any{
		"event":          "payment_created",
		"payment_number": p.Number,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
	})
	return nil
}

// GetPayment retrieves a payment by its business number.
func (e *Engine) GetPayment(ctx context.Context, number string) (*Payment, error) {
	return e.store.GetPayment(ctx, number)
}

// ProcessPayment submits a pending payment to the gateway and settles it to
// COMPLETED or FAILED. The payment's lock is held for the whole round trip
// and extended while the gateway call is in flight; a gateway failure or an
// open circuit leaves the payment FAILED, never stuck in PROCESSING.
func (e *Engine) ProcessPayment(ctx context.Context, number string, card gateway.Card) (*Payment, error) {
	ctx, finish := e.instrument(ctx, KindPayment, number, "process")
	var err error
	defer func() { finish(err) }()

	handle, lockErr := e.lockEntity(ctx, KindPayment, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	p, getErr := e.store.GetPayment(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if !ValidatePaymentTransition(p.Status, PaymentStatusProcessing) {
		e.metrics.TransitionRejected(KindPayment, string(p.Status), string(PaymentStatusProcessing))
		err = fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, number, p.Status)
		return nil, err
	}

	if p.Method == PaymentMethodCreditCard {
		// Structurally invalid method fails fast without a gateway round trip.
		if vErr := e.gateway.ValidatePaymentMethod(card); vErr != nil {
			if failErr := e.settlePaymentFailure(ctx, p, vErr.Error()); failErr != nil {
				err = failErr
				return nil, err
			}
			err = fmt.Errorf("%w: %v", ErrValidation, vErr)
			return nil, err
		}
	}

	fromStatus := p.Status
	p.Status = PaymentStatusProcessing
	p.IncrementVersion()
	if upErr := e.store.UpdatePayment(ctx, p); upErr != nil {
		err = upErr
		return nil, err
	}

	stopExtend := e.startLockExtender(ctx, handle)
	var result *gateway.Result
	gwErr := e.callGateway(ctx, "gateway.process_payment", func() error {
		var callErr error
		result, callErr = e.gateway.ProcessPayment(ctx, gateway.ChargeRequest{
			Amount:   p.Amount,
			Currency: p.Currency,
			Method:   gatewayMethod(p.Method),
			Card:     card,
		})
		return callErr
	})
	stopExtend()

	if gwErr != nil {
		reason := gwErr.Error()
		if result != nil && result.ErrorCode != "" {
			reason = result.ErrorCode
		}
		if failErr := e.settlePaymentFailure(ctx, p, reason); failErr != nil {
			err = failErr
			return nil, err
		}
		err = fmt.Errorf("%w: %v", ErrGateway, gwErr)
		return p, err
	}

	now := time.Now()
	p.Status = PaymentStatusCompleted
	p.GatewayReference = result.Reference
	p.FailureReason = ""
	p.CompletedAt = &now
	p.IncrementVersion()

	audit := NewAuditTransaction(KindPayment, p.Number, TxTypeCharge, p.Amount, p.Currency,
		string(fromStatus), string(PaymentStatusCompleted))
	audit.GatewayReference = result.Reference

	if upErr := e.store.UpdatePaymentWithAudit(ctx, p, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventPaymentCompleted).
		WithEntity(KindPayment, p.Number).
		WithAmount(p.Amount, p.Currency).
		WithData("gateway_reference", result.Reference))
	e.notifyCustomer(p.CustomerID, map[string]any{
		"event":          "payment_completed",
		"payment_number": p.Number,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
	})

	if p.InvoiceNumber != "" {
		if cascadeErr := e.applyPaymentToInvoice(ctx, p); cascadeErr != nil {
			err = cascadeErr
			return p, err
		}
	}

	if e.checker != nil {
		key := idempotency.ConfirmationKey(KindPayment, result.Reference)
		_ = e.checker.Mark(ctx, key, []byte(p.Number), e.config.IdempotencyTTL)
	}

	return p, nil
}

// gatewayMethod maps a payment's funding method to the processor's.
func gatewayMethod(m PaymentMethod) gateway.Method {
	switch m {
	case PaymentMethodBankTransfer:
		return gateway.MethodBankTransfer
	case PaymentMethodDirectDebit:
		return gateway.MethodDirectDebit
	default:
		return gateway.MethodCard
	}
}

// settlePaymentFailure transitions an in-flight payment to FAILED with an
// audit record. Called with the payment's lock held.
func (e *Engine) settlePaymentFailure(ctx context.Context, p *Payment, reason string) error {
	fromStatus := p.Status
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.IncrementVersion()

	audit := NewAuditTransaction(KindPayment, p.Number, TxTypeCharge, p.Amount, p.Currency,
		string(fromStatus), string(PaymentStatusFailed))

	if err := e.store.UpdatePaymentWithAudit(ctx, p, audit); err != nil {
		return err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventPaymentFailed).
		WithEntity(KindPayment, p.Number).
		WithAmount(p.Amount, p.Currency).
		WithData("failure_reason", reason))
	e.notifyCustomer(p.CustomerID, map[string]any{
		"event":          "payment_failed",
		"payment_number": p.Number,
		"reason":         reason,
	})
	return nil
}

// ConfirmPayment applies an external gateway confirmation to a payment.
// Re-delivery of the same confirmation is a no-op success: an already
// terminal or completed payment is left untouched and the invoice cascade is
// not applied twice. The confirmation is marked consumed only after the
// linked invoice has been credited, so a re-delivery after a cascade failure
// recovers the credit instead of short-circuiting.
func (e *Engine) ConfirmPayment(ctx context.Context, number, gatewayReference string) (*Payment, error) {
	ctx, finish := e.instrument(ctx, KindPayment, number, "confirm")
	var err error
	defer func() { finish(err) }()

	key := idempotency.ConfirmationKey(KindPayment, gatewayReference)
	if e.checker != nil {
		seen, _, checkErr := e.checker.Check(ctx, key)
		if checkErr == nil && seen {
			return e.store.GetPayment(ctx, number)
		}
	}

	handle, lockErr := e.lockEntity(ctx, KindPayment, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	p, getErr := e.store.GetPayment(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	// Duplicate delivery against a settled payment is not an error, but a
	// completed payment whose invoice credit never landed (cascade failure on
	// the first delivery) gets the cascade re-attempted here.
	if p.Status == PaymentStatusCompleted || p.IsTerminal() {
		if p.Status == PaymentStatusCompleted && p.InvoiceNumber != "" {
			applied, chkErr := e.invoiceCreditApplied(ctx, p)
			if chkErr != nil {
				err = chkErr
				return nil, err
			}
			if !applied {
				if cascadeErr := e.applyPaymentToInvoice(ctx, p); cascadeErr != nil {
					err = cascadeErr
					return p, err
				}
			}
		}
		if e.checker != nil {
			_ = e.checker.Mark(ctx, key, []byte(p.Number), e.config.IdempotencyTTL)
		}
		return p, nil
	}

	if !ValidatePaymentTransition(p.Status, PaymentStatusCompleted) {
		e.metrics.TransitionRejected(KindPayment, string(p.Status), string(PaymentStatusCompleted))
		err = fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, number, p.Status)
		return nil, err
	}

	now := time.Now()
	fromStatus := p.Status
	p.Status = PaymentStatusCompleted
	p.GatewayReference = gatewayReference
	p.FailureReason = ""
	p.CompletedAt = &now
	p.IncrementVersion()

	audit := NewAuditTransaction(KindPayment, p.Number, TxTypeCharge, p.Amount, p.Currency,
		string(fromStatus), string(PaymentStatusCompleted))
	audit.GatewayReference = gatewayReference

	if upErr := e.store.UpdatePaymentWithAudit(ctx, p, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventPaymentCompleted).
		WithEntity(KindPayment, p.Number).
		WithAmount(p.Amount, p.Currency).
		WithData("gateway_reference", gatewayReference))

	if p.InvoiceNumber != "" {
		if cascadeErr := e.applyPaymentToInvoice(ctx, p); cascadeErr != nil {
			err = cascadeErr
			return p, err
		}
	}

	if e.checker != nil {
		_ = e.checker.Mark(ctx, key, []byte(p.Number), e.config.IdempotencyTTL)
	}

	return p, nil
}

// FailPayment moves a payment to FAILED with the given reason.
func (e *Engine) FailPayment(ctx context.Context, number, reason string) (*Payment, error) {
	return e.transitionPayment(ctx, "fail", number, PaymentStatusFailed, func(p *Payment) {
		p.FailureReason = reason
	}, event.EventPaymentFailed, map[string]any{"failure_reason": reason})
}

// CancelPayment cancels a payment that has not completed.
func (e *Engine) CancelPayment(ctx context.Context, number string) (*Payment, error) {
	return e.transitionPayment(ctx, "cancel", number, PaymentStatusCancelled, nil,
		event.EventPaymentCancelled, nil)
}

// RetryPayment moves a failed payment back to PENDING for another attempt.
func (e *Engine) RetryPayment(ctx context.Context, number string) (*Payment, error) {
	return e.transitionPayment(ctx, "retry", number, PaymentStatusPending, func(p *Payment) {
		p.FailureReason = ""
	}, event.EventPaymentCreated, nil)
}

// markPaymentRefunded records a completed refund against its payment.
func (e *Engine) markPaymentRefunded(ctx context.Context, number, refundNumber string) (*Payment, error) {
	return e.transitionPayment(ctx, "mark_refunded", number, PaymentStatusRefunded, nil,
		event.EventPaymentRefunded, map[string]any{"refund_number": refundNumber})
}

// transitionPayment runs the common lock-read-validate-persist protocol for
// a simple payment status change. evData, if any, is attached to the
// published event.
func (e *Engine) transitionPayment(ctx context.Context, operation, number string, to PaymentStatus, mutate func(*Payment), evType event.EventType, evData map[string]any) (*Payment, error) {
	ctx, finish := e.instrument(ctx, KindPayment, number, operation)
	var err error
	defer func() { finish(err) }()

	handle, lockErr := e.lockEntity(ctx, KindPayment, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	p, getErr := e.store.GetPayment(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if !ValidatePaymentTransition(p.Status, to) {
		e.metrics.TransitionRejected(KindPayment, string(p.Status), string(to))
		err = fmt.Errorf("%w: payment %s cannot go %s -> %s", ErrInvalidTransition, number, p.Status, to)
		return nil, err
	}

	fromStatus := p.Status
	p.Status = to
	if mutate != nil {
		mutate(p)
	}
	p.IncrementVersion()

	txType := TxTypeAdjustment
	if to == PaymentStatusRefunded {
		txType = TxTypeRefund
	}
	audit := NewAuditTransaction(KindPayment, p.Number, txType, p.Amount, p.Currency,
		string(fromStatus), string(to))

	if upErr := e.store.UpdatePaymentWithAudit(ctx, p, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	ev := event.NewEvent(evType).
		WithEntity(KindPayment, p.Number).
		WithAmount(p.Amount, p.Currency)
	for k, v := range evData {
		ev = ev.WithData(k, v)
	}
	e.publishEvent(ctx, ev)
	return p, nil
}

// IsRetryablePaymentError reports whether a payment processing error is
// worth retrying (gateway trouble rather than a caller mistake).
func IsRetryablePaymentError(err error) bool {
	return errors.Is(err, ErrGateway) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrLockTimeout)
}
