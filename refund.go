package finflow

import (
	"context"
	"fmt"
	"time"

	"finflow/event"
	"finflow/gateway"
)

// RequestRefund validates and persists a refund request against a completed
// payment. The refund amount must not exceed the original payment amount and
// must carry the same currency.
func (e *Engine) RequestRefund(ctx context.Context, r *Refund) error {
	ctx, finish := e.instrument(ctx, KindRefund, r.Number, "request")
	var err error
	defer func() { finish(err) }()

	if !r.Amount.IsPositive() {
		err = fmt.Errorf("%w: refund amount must be positive", ErrValidation)
		return err
	}

	p, getErr := e.store.GetPayment(ctx, r.PaymentNumber)
	if getErr != nil {
		err = getErr
		return err
	}
	if p.Status != PaymentStatusCompleted {
		err = fmt.Errorf("%w: payment %s is %s, only completed payments are refundable",
			ErrValidation, p.Number, p.Status)
		return err
	}
	if r.Amount.GreaterThan(p.Amount) {
		err = fmt.Errorf("%w: refund amount %s exceeds payment amount %s",
			ErrValidation, r.Amount, p.Amount)
		return err
	}
	if r.Currency != p.Currency {
		err = fmt.Errorf("%w: refund currency %s does not match payment currency %s",
			ErrValidation, r.Currency, p.Currency)
		return err
	}

	if err = e.store.CreateRefund(ctx, r); err != nil {
		return err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventRefundRequested).
		WithEntity(KindRefund, r.Number).
		WithAmount(r.Amount, r.Currency).
		WithData("payment_number", r.PaymentNumber))
	e.notifyCustomer(p.CustomerID, map[string]any{
		"event":          "refund_requested",
		"refund_number":  r.Number,
		"payment_number": r.PaymentNumber,
		"amount":         r.Amount.String(),
	})
	return nil
}

// GetRefund retrieves a refund by its business number.
func (e *Engine) GetRefund(ctx context.Context, number string) (*Refund, error) {
	return e.store.GetRefund(ctx, number)
}

// ApproveRefund approves a requested refund.
func (e *Engine) ApproveRefund(ctx context.Context, number string) (*Refund, error) {
	return e.transitionRefund(ctx, "approve", number, RefundStatusApproved, nil,
		event.EventRefundApproved)
}

// RejectRefund rejects a refund request.
func (e *Engine) RejectRefund(ctx context.Context, number, reason string) (*Refund, error) {
	return e.transitionRefund(ctx, "reject", number, RefundStatusRejected, func(r *Refund) {
		r.FailureReason = reason
	}, event.EventRefundRejected)
}

// RetryRefund moves a failed refund back to APPROVED for another attempt.
func (e *Engine) RetryRefund(ctx context.Context, number string) (*Refund, error) {
	return e.transitionRefund(ctx, "retry", number, RefundStatusApproved, func(r *Refund) {
		r.FailureReason = ""
	}, event.EventRefundApproved)
}

// ProcessRefund submits an approved refund to the gateway and settles it to
// COMPLETED or FAILED. Completion cascades into the originating payment,
// which moves to REFUNDED under its own lock.
func (e *Engine) ProcessRefund(ctx context.Context, number string) (*Refund, error) {
	ctx, finish := e.instrument(ctx, KindRefund, number, "process")
	var err error
	defer func() { finish(err) }()

	handle, lockErr := e.lockEntity(ctx, KindRefund, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	r, getErr := e.store.GetRefund(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if !ValidateRefundTransition(r.Status, RefundStatusProcessing) {
		e.metrics.TransitionRejected(KindRefund, string(r.Status), string(RefundStatusProcessing))
		err = fmt.Errorf("%w: refund %s is %s", ErrInvalidTransition, number, r.Status)
		return nil, err
	}

	p, payErr := e.store.GetPayment(ctx, r.PaymentNumber)
	if payErr != nil {
		err = payErr
		return nil, err
	}

	fromStatus := r.Status
	r.Status = RefundStatusProcessing
	r.IncrementVersion()
	if upErr := e.store.UpdateRefund(ctx, r); upErr != nil {
		err = upErr
		return nil, err
	}

	stopExtend := e.startLockExtender(ctx, handle)
	var result *gateway.Result
	gwErr := e.callGateway(ctx, "gateway.process_refund", func() error {
		var callErr error
		result, callErr = e.gateway.ProcessRefund(ctx, p.GatewayReference, r.Amount, r.Currency)
		return callErr
	})
	stopExtend()

	if gwErr != nil {
		reason := gwErr.Error()
		if result != nil && result.ErrorCode != "" {
			reason = result.ErrorCode
		}
		if failErr := e.settleRefundFailure(ctx, r, reason); failErr != nil {
			err = failErr
			return nil, err
		}
		err = fmt.Errorf("%w: %v", ErrGateway, gwErr)
		return r, err
	}

	now := time.Now()
	r.Status = RefundStatusCompleted
	r.GatewayReference = result.Reference
	r.FailureReason = ""
	r.CompletedAt = &now
	r.IncrementVersion()

	audit := NewAuditTransaction(KindRefund, r.Number, TxTypeRefund, r.Amount, r.Currency,
		string(fromStatus), string(RefundStatusCompleted))
	audit.GatewayReference = result.Reference

	if upErr := e.store.UpdateRefundWithAudit(ctx, r, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventRefundCompleted).
		WithEntity(KindRefund, r.Number).
		WithAmount(r.Amount, r.Currency).
		WithData("gateway_reference", result.Reference))
	e.notifyCustomer(p.CustomerID, map[string]any{
		"event":         "refund_completed",
		"refund_number": r.Number,
		"amount":        r.Amount.String(),
	})

	// Cascade into the payment under its own lock.
	if _, cascadeErr := e.markPaymentRefunded(ctx, r.PaymentNumber, r.Number); cascadeErr != nil {
		err = cascadeErr
		return r, err
	}

	return r, nil
}

// settleRefundFailure transitions an in-flight refund to FAILED with an
// audit record. Called with the refund's lock held.
func (e *Engine) settleRefundFailure(ctx context.Context, r *Refund, reason string) error {
	fromStatus := r.Status
	r.Status = RefundStatusFailed
	r.FailureReason = reason
	r.IncrementVersion()

	audit := NewAuditTransaction(KindRefund, r.Number, TxTypeRefund, r.Amount, r.Currency,
		string(fromStatus), string(RefundStatusFailed))

	if err := e.store.UpdateRefundWithAudit(ctx, r, audit); err != nil {
		return err
	}

	e.publishEvent(ctx, event.NewEvent(event.EventRefundFailed).
		WithEntity(KindRefund, r.Number).
		WithAmount(r.Amount, r.Currency).
		WithData("failure_reason", reason))
	return nil
}

// transitionRefund runs the common lock-read-validate-persist protocol for
// a simple refund status change.
func (e *Engine) transitionRefund(ctx context.Context, operation, number string, to RefundStatus, mutate func(*Refund), evType event.EventType) (*Refund, error) {
	ctx, finish := e.instrument(ctx, KindRefund, number, operation)
	var err error
	defer func() { finish(err) }()

	handle, lockErr := e.lockEntity(ctx, KindRefund, number)
	if lockErr != nil {
		err = lockErr
		return nil, err
	}
	defer handle.Release(ctx)

	r, getErr := e.store.GetRefund(ctx, number)
	if getErr != nil {
		err = getErr
		return nil, err
	}

	if !ValidateRefundTransition(r.Status, to) {
		e.metrics.TransitionRejected(KindRefund, string(r.Status), string(to))
		err = fmt.Errorf("%w: refund %s cannot go %s -> %s", ErrInvalidTransition, number, r.Status, to)
		return nil, err
	}

	fromStatus := r.Status
	r.Status = to
	if mutate != nil {
		mutate(r)
	}
	r.IncrementVersion()

	audit := NewAuditTransaction(KindRefund, r.Number, TxTypeRefund, r.Amount, r.Currency,
		string(fromStatus), string(to))

	if upErr := e.store.UpdateRefundWithAudit(ctx, r, audit); upErr != nil {
		err = upErr
		return nil, err
	}

	e.publishEvent(ctx, event.NewEvent(evType).
		WithEntity(KindRefund, r.Number).
		WithAmount(r.Amount, r.Currency))
	return r, nil
}
