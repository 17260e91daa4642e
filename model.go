package finflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how a payment is funded.
type PaymentMethod string

const (
	// PaymentMethodCreditCard is a card payment processed through the gateway
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	// PaymentMethodBankTransfer is a direct bank transfer
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	// PaymentMethodDirectDebit is a recurring direct debit mandate
	PaymentMethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
)

// Payment represents a customer payment against a policy.
type Payment struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// Number is the unique business identifier (e.g., "PAY-2026-000123").
	Number string `db:"payment_number" json:"payment_number"`

	// CustomerID references the paying customer.
	CustomerID string `db:"customer_id" json:"customer_id"`

	// PolicyID references the insurance policy the payment is for.
	PolicyID string `db:"policy_id" json:"policy_id"`

	// InvoiceNumber is the invoice this payment settles, if any.
	InvoiceNumber string `db:"invoice_number" json:"invoice_number,omitempty"`

	// Amount is the payment amount. Always positive.
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `db:"currency" json:"currency"`

	// Method is the funding method.
	Method PaymentMethod `db:"method" json:"method"`

	// Status is the current payment status.
	Status PaymentStatus `db:"status" json:"status"`

	// GatewayReference is the processor's reference once submitted.
	GatewayReference string `db:"gateway_reference" json:"gateway_reference,omitempty"`

	// FailureReason records why the last attempt failed.
	FailureReason string `db:"failure_reason" json:"failure_reason,omitempty"`

	// Reconciled indicates the payment has been matched against its confirmation.
	Reconciled bool `db:"reconciled" json:"reconciled"`

	// ReconciledAt is when the payment was reconciled.
	ReconciledAt *time.Time `db:"reconciled_at" json:"reconciled_at,omitempty"`

	// Version is used for optimistic locking.
	Version int `db:"version" json:"version"`

	// CreatedAt is when the payment was created.
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// UpdatedAt is when the payment was last updated.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// CompletedAt is when the gateway confirmed the payment.
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Invoice represents a premium invoice issued against a policy.
type Invoice struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// Number is the unique business identifier (e.g., "INV-2026-000045").
	Number string `db:"invoice_number" json:"invoice_number"`

	// CustomerID references the billed customer.
	CustomerID string `db:"customer_id" json:"customer_id"`

	// PolicyID references the insurance policy.
	PolicyID string `db:"policy_id" json:"policy_id"`

	// TotalAmount is the full amount due.
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`

	// PaidAmount is the sum credited so far. Never exceeds TotalAmount.
	PaidAmount decimal.Decimal `db:"paid_amount" json:"paid_amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `db:"currency" json:"currency"`

	// Status is the current invoice status.
	Status InvoiceStatus `db:"status" json:"status"`

	// DueDate is when full payment is due.
	DueDate time.Time `db:"due_date" json:"due_date"`

	// Version is used for optimistic locking.
	Version int `db:"version" json:"version"`

	// CreatedAt is when the invoice was created.
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// UpdatedAt is when the invoice was last updated.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// PaidAt is when the invoice reached PAID.
	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

// Refund represents a refund request against a completed payment.
type Refund struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// Number is the unique business identifier (e.g., "REF-2026-000007").
	Number string `db:"refund_number" json:"refund_number"`

	// PaymentNumber is the completed payment being refunded.
	PaymentNumber string `db:"payment_number" json:"payment_number"`

	// Amount is the refund amount. Never exceeds the payment amount.
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `db:"currency" json:"currency"`

	// Reason is the customer-supplied refund reason.
	Reason string `db:"reason" json:"reason"`

	// Status is the current refund status.
	Status RefundStatus `db:"status" json:"status"`

	// GatewayReference is the processor's reference once submitted.
	GatewayReference string `db:"gateway_reference" json:"gateway_reference,omitempty"`

	// FailureReason records why the last attempt failed.
	FailureReason string `db:"failure_reason" json:"failure_reason,omitempty"`

	// Version is used for optimistic locking.
	Version int `db:"version" json:"version"`

	// CreatedAt is when the refund was requested.
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// UpdatedAt is when the refund was last updated.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// CompletedAt is when the gateway confirmed the refund.
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Transaction is an immutable audit record of a single financial movement.
// One row is appended for every status change that moves money or settles
// an obligation; rows are never updated.
type Transaction struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// TxID is the unique transaction identifier.
	TxID string `db:"tx_id" json:"tx_id"`

	// EntityKind is the kind of entity the movement belongs to
	// ("payment", "invoice", "refund").
	EntityKind string `db:"entity_kind" json:"entity_kind"`

	// EntityNumber is the business identifier of the entity.
	EntityNumber string `db:"entity_number" json:"entity_number"`

	// TxType describes the movement (e.g., "CHARGE", "REFUND", "ADJUSTMENT").
	TxType string `db:"tx_type" json:"tx_type"`

	// Amount is the movement amount.
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `db:"currency" json:"currency"`

	// FromStatus is the entity status before the movement.
	FromStatus string `db:"from_status" json:"from_status"`

	// ToStatus is the entity status after the movement.
	ToStatus string `db:"to_status" json:"to_status"`

	// GatewayReference is the processor's reference, if any.
	GatewayReference string `db:"gateway_reference" json:"gateway_reference,omitempty"`

	// Reconciled indicates the movement has been matched against the
	// processor's record. The only mutation ever applied to a row.
	Reconciled bool `db:"reconciled" json:"reconciled"`

	// ReconciledAt is when the movement was reconciled.
	ReconciledAt *time.Time `db:"reconciled_at" json:"reconciled_at,omitempty"`

	// CreatedAt is when the movement was recorded.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Entity kinds used for lock keys and audit records.
const (
	KindPayment = "payment"
	KindInvoice = "invoice"
	KindRefund  = "refund"
)

// Audit transaction types.
const (
	TxTypeCharge     = "CHARGE"
	TxTypeRefund     = "REFUND"
	TxTypeAdjustment = "ADJUSTMENT"
)

// LockKey returns the canonical lock key for an entity, "<kind>:<number>".
func LockKey(kind, number string) string {
	return kind + ":" + number
}

// NewPayment creates a Payment in PENDING with a generated business number.
func NewPayment(customerID, policyID string, amount decimal.Decimal, currency string, method PaymentMethod) *Payment {
	now := time.Now()
	return &Payment{
		Number:     newNumber("PAY"),
		CustomerID: customerID,
		PolicyID:   policyID,
		Amount:     amount,
		Currency:   currency,
		Method:     method,
		Status:     PaymentStatusPending,
		Version:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewInvoice creates an Invoice in ISSUED with a generated business number.
func NewInvoice(customerID, policyID string, total decimal.Decimal, currency string, dueDate time.Time) *Invoice {
	now := time.Now()
	return &Invoice{
		Number:      newNumber("INV"),
		CustomerID:  customerID,
		PolicyID:    policyID,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Currency:    currency,
		Status:      InvoiceStatusIssued,
		DueDate:     dueDate,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewRefund creates a Refund in REQUESTED with a generated business number.
func NewRefund(paymentNumber string, amount decimal.Decimal, currency, reason string) *Refund {
	now := time.Now()
	return &Refund{
		Number:        newNumber("REF"),
		PaymentNumber: paymentNumber,
		Amount:        amount,
		Currency:      currency,
		Reason:        reason,
		Status:        RefundStatusRequested,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewAuditTransaction creates an audit record for a status change.
func NewAuditTransaction(kind, number, txType string, amount decimal.Decimal, currency, fromStatus, toStatus string) *Transaction {
	return &Transaction{
		TxID:         uuid.New().String(),
		EntityKind:   kind,
		EntityNumber: number,
		TxType:       txType,
		Amount:       amount,
		Currency:     currency,
		FromStatus:   fromStatus,
		ToStatus:     toStatus,
		CreatedAt:    time.Now(),
	}
}

// newNumber generates a business number like "PAY-2026-a1b2c3d4".
func newNumber(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Year(), id)
}

// IsTerminal returns true if the payment is in a terminal status.
func (p *Payment) IsTerminal() bool {
	return IsPaymentTerminal(p.Status)
}

// IncrementVersion increments the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.Version++
	p.UpdatedAt = time.Now()
}

// IsTerminal returns true if the invoice is in a terminal status.
func (i *Invoice) IsTerminal() bool {
	return IsInvoiceTerminal(i.Status)
}

// Outstanding returns the amount still due.
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// IncrementVersion increments the version for optimistic locking.
func (i *Invoice) IncrementVersion() {
	i.Version++
	i.UpdatedAt = time.Now()
}

// IsTerminal returns true if the refund is in a terminal status.
func (r *Refund) IsTerminal() bool {
	return IsRefundTerminal(r.Status)
}

// IncrementVersion increments the version for optimistic locking.
func (r *Refund) IncrementVersion() {
	r.Version++
	r.UpdatedAt = time.Now()
}
