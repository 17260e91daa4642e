package finflow

import (
	"context"
	"time"
)

// Store defines the persistence interface for financial entities and their
// audit trail. This interface is implemented by store/memory and store/mysql.
// Each call is atomic and durable on its own; the *WithAudit variants
// additionally persist the entity mutation and the appended audit Transaction
// as a single unit.
type Store interface {
	// Payment operations

	// CreatePayment creates a new payment record.
	CreatePayment(ctx context.Context, p *Payment) error

	// UpdatePayment updates an existing payment.
	// It uses optimistic locking via the version field.
	UpdatePayment(ctx context.Context, p *Payment) error

	// UpdatePaymentWithAudit updates a payment and appends an audit
	// transaction atomically.
	UpdatePaymentWithAudit(ctx context.Context, p *Payment, audit *Transaction) error

	// GetPayment retrieves a payment by its business number.
	GetPayment(ctx context.Context, number string) (*Payment, error)

	// Invoice operations

	// CreateInvoice creates a new invoice record.
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// UpdateInvoice updates an existing invoice.
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	// UpdateInvoiceWithAudit updates an invoice and appends an audit
	// transaction atomically.
	UpdateInvoiceWithAudit(ctx context.Context, inv *Invoice, audit *Transaction) error

	// GetInvoice retrieves an invoice by its business number.
	GetInvoice(ctx context.Context, number string) (*Invoice, error)

	// Refund operations

	// CreateRefund creates a new refund record.
	CreateRefund(ctx context.Context, r *Refund) error

	// UpdateRefund updates an existing refund.
	UpdateRefund(ctx context.Context, r *Refund) error

	// UpdateRefundWithAudit updates a refund and appends an audit
	// transaction atomically.
	UpdateRefundWithAudit(ctx context.Context, r *Refund, audit *Transaction) error

	// GetRefund retrieves a refund by its business number.
	GetRefund(ctx context.Context, number string) (*Refund, error)

	// Audit trail

	// CreateTransaction appends an audit transaction.
	CreateTransaction(ctx context.Context, tx *Transaction) error

	// ListTransactions lists audit transactions with optional filters.
	ListTransactions(ctx context.Context, filter *TxFilter) ([]*Transaction, int64, error)

	// Sweep queries

	// GetUnreconciledTransactions retrieves audit transactions that carry a
	// gateway reference, are not yet reconciled, and are older than the
	// specified duration.
	GetUnreconciledTransactions(ctx context.Context, olderThan time.Duration) ([]*Transaction, error)

	// MarkTransactionReconciled flips the reconciled flag on an audit
	// transaction. The only permitted mutation of the audit trail.
	MarkTransactionReconciled(ctx context.Context, txID string, at time.Time) error

	// GetOverdueInvoices retrieves invoices still collectible past their
	// due date as of the given instant.
	GetOverdueInvoices(ctx context.Context, asOf time.Time) ([]*Invoice, error)

	// GetRetryablePayments retrieves failed payments last updated before
	// the given duration ago.
	GetRetryablePayments(ctx context.Context, olderThan time.Duration) ([]*Payment, error)

	// Idempotency operations (optional, can use separate Checker)

	// CheckIdempotency checks if an operation was already executed.
	// Returns exists=true if the operation was executed, along with its result.
	CheckIdempotency(ctx context.Context, key string) (exists bool, result []byte, err error)

	// MarkIdempotency marks an operation as executed with its result.
	MarkIdempotency(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// DeleteExpiredIdempotency removes expired idempotency records.
	DeleteExpiredIdempotency(ctx context.Context) (int64, error)
}

// ReferenceChecker validates customer and policy references before entity
// creation. Backed by the customer/policy systems of record.
type ReferenceChecker interface {
	// CustomerExists reports whether the customer number is known.
	CustomerExists(ctx context.Context, customerID string) (bool, error)

	// PolicyExists reports whether the policy number is known.
	PolicyExists(ctx context.Context, policyID string) (bool, error)
}

// TxFilter defines filters for listing audit transactions.
type TxFilter struct {
	// EntityKind filters by entity kind ("payment", "invoice", "refund").
	EntityKind string

	// EntityNumber filters by entity business number.
	EntityNumber string

	// TxType filters by transaction type.
	TxType string

	// StartTime filters transactions created after this time.
	StartTime time.Time

	// EndTime filters transactions created before this time.
	EndTime time.Time

	// Limit specifies the maximum number of results to return.
	Limit int

	// Offset specifies the number of results to skip.
	Offset int
}

// NewTxFilter creates a new TxFilter with default values.
func NewTxFilter() *TxFilter {
	return &TxFilter{
		Limit:  100,
		Offset: 0,
	}
}

// WithEntity sets the entity kind and number filters.
func (f *TxFilter) WithEntity(kind, number string) *TxFilter {
	f.EntityKind = kind
	f.EntityNumber = number
	return f
}

// WithTxType sets the transaction type filter.
func (f *TxFilter) WithTxType(txType string) *TxFilter {
	f.TxType = txType
	return f
}

// WithTimeRange sets the time range filter.
func (f *TxFilter) WithTimeRange(start, end time.Time) *TxFilter {
	f.StartTime = start
	f.EndTime = end
	return f
}

// WithPagination sets pagination parameters.
func (f *TxFilter) WithPagination(limit, offset int) *TxFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
