// Package gateway defines the payment processor interface and a simulated
// implementation for development and testing.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDeclined is returned when the processor declines an operation.
	ErrDeclined = errors.New("gateway declined")
	// ErrInvalidPaymentMethod is returned when a payment method fails
	// structural validation.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrUnknownReference is returned when a gateway reference is not known
	// to the processor.
	ErrUnknownReference = errors.New("unknown gateway reference")
)

// Status represents the processor-side status of a gateway transaction.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusVoided     Status = "VOIDED"
)

// TxType identifies the kind of gateway transaction.
type TxType string

const (
	TxAuthOnly TxType = "AUTH_ONLY"
	TxCapture  TxType = "CAPTURE"
	TxPayment  TxType = "PAYMENT"
	TxRefund   TxType = "REFUND"
	TxVoid     TxType = "VOID"
)

// Result is the processor's record of a single gateway transaction.
type Result struct {
	TransactionID string          `json:"transaction_id"`
	Type          TxType          `json:"type"`
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	AuthCode      string          `json:"auth_code,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Method identifies how a charge is funded on the processor side.
type Method string

const (
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodDirectDebit  Method = "DIRECT_DEBIT"
)

// Card carries the structural fields of a card payment method.
// Only plausibility is checked; no real card data ever reaches this code.
type Card struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
}

// ChargeRequest describes a charge to authorize or process. Card is consulted
// only for card-funded charges.
type ChargeRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Method   Method          `json:"method,omitempty"`
	Card     Card            `json:"card"`
}

// CardFunded reports whether the charge is funded by card. An unset method is
// treated as card.
func (r ChargeRequest) CardFunded() bool {
	return r.Method == "" || r.Method == MethodCard
}

// Gateway is the stable interface over an external payment processor.
// Monetary operations block for the processor round trip and honor ctx
// cancellation.
type Gateway interface {
	// Authorize places a hold for the requested amount without capturing it.
	Authorize(ctx context.Context, req ChargeRequest) (*Result, error)

	// Capture settles a previously authorized charge.
	Capture(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Result, error)

	// ProcessPayment authorizes and captures in a single operation.
	ProcessPayment(ctx context.Context, req ChargeRequest) (*Result, error)

	// ProcessRefund returns funds against a previously successful charge.
	ProcessRefund(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Result, error)

	// Void cancels an authorization before capture.
	Void(ctx context.Context, reference string) (*Result, error)

	// Tokenize exchanges a payment method for an opaque reusable token.
	Tokenize(ctx context.Context, card Card) (string, error)

	// CheckStatus reports the processor-side status of a reference.
	// Returns ErrUnknownReference for references the processor has no
	// record of.
	CheckStatus(ctx context.Context, reference string) (Status, error)

	// ValidatePaymentMethod performs structural checks on a payment method
	// before any processor round trip. Returns ErrInvalidPaymentMethod on
	// failure.
	ValidatePaymentMethod(card Card) error
}
