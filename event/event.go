// Package event provides event definitions and the event bus for the
// financial lifecycle engine.
package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a domain event
type EventType string

const (
	// Payment lifecycle events
	EventPaymentCreated   EventType = "payment.created"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentCancelled EventType = "payment.cancelled"
	EventPaymentRefunded  EventType = "payment.refunded"

	// Invoice lifecycle events
	EventInvoiceIssued        EventType = "invoice.issued"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePartiallyPaid EventType = "invoice.partially_paid"
	EventInvoiceOverdue       EventType = "invoice.overdue"
	EventInvoiceCancelled     EventType = "invoice.cancelled"

	// Refund lifecycle events
	EventRefundRequested EventType = "refund.requested"
	EventRefundApproved  EventType = "refund.approved"
	EventRefundRejected  EventType = "refund.rejected"
	EventRefundCompleted EventType = "refund.completed"
	EventRefundFailed    EventType = "refund.failed"

	// Batch events
	EventBatchStarted   EventType = "batch.started"
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"

	// Reconciliation events
	EventReconciled EventType = "reconcile.matched"

	// Anomaly events, e.g. a payment exceeding the invoice outstanding
	EventAnomalyOverpayment EventType = "anomaly.overpayment"

	// Alert events
	EventAlertWarning  EventType = "alert.warning"
	EventAlertCritical EventType = "alert.critical"
)

// Event is a domain event emitted after a committed status change.
// Events are advisory: handlers must not be relied on for correctness.
type Event struct {
	Type         EventType       // event type
	EntityKind   string          // "payment", "invoice", "refund"
	EntityNumber string          // business identifier of the entity
	Amount       decimal.Decimal // amount involved, when applicable
	Currency     string          // ISO 4217 currency code
	Timestamp    time.Time       // event timestamp
	Data         map[string]any  // additional data
	Error        error           // error, for failure events only
}

// NewEvent creates a new event with the given type and automatically sets the timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithEntity sets the entity kind and number on the event.
func (e Event) WithEntity(kind, number string) Event {
	e.EntityKind = kind
	e.EntityNumber = number
	return e
}

// WithAmount sets the amount and currency on the event.
func (e Event) WithAmount(amount decimal.Decimal, currency string) Event {
	e.Amount = amount
	e.Currency = currency
	return e
}

// WithError sets the error on the event.
func (e Event) WithError(err error) Event {
	e.Error = err
	return e
}

// WithData sets a key-value pair in the event data.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}
