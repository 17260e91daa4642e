package finflow

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment has been created but not submitted
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusProcessing indicates the payment has been submitted to the gateway
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	// PaymentStatusCompleted indicates the gateway confirmed the payment
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusFailed indicates the gateway declined or the attempt failed
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusCancelled indicates the payment was cancelled before completion
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	// PaymentStatusRefunded indicates a completed payment was fully refunded
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	// InvoiceStatusIssued indicates the invoice has been issued
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	// InvoiceStatusPending indicates the invoice is awaiting payment
	InvoiceStatusPending InvoiceStatus = "PENDING"
	// InvoiceStatusPartiallyPaid indicates some but not all of the total has been paid
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	// InvoiceStatusPaid indicates the invoice has been paid in full
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusOverdue indicates the due date has passed without full payment
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	// InvoiceStatusCancelled indicates the invoice was cancelled
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	// RefundStatusRequested indicates the refund has been requested
	RefundStatusRequested RefundStatus = "REQUESTED"
	// RefundStatusApproved indicates the refund has been approved
	RefundStatusApproved RefundStatus = "APPROVED"
	// RefundStatusProcessing indicates the refund has been submitted to the gateway
	RefundStatusProcessing RefundStatus = "PROCESSING"
	// RefundStatusCompleted indicates the gateway confirmed the refund
	RefundStatusCompleted RefundStatus = "COMPLETED"
	// RefundStatusFailed indicates the refund attempt failed
	RefundStatusFailed RefundStatus = "FAILED"
	// RefundStatusRejected indicates the refund request was rejected
	RefundStatusRejected RefundStatus = "REJECTED"
)

// validPaymentTransitions defines valid status transitions for payments
var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusProcessing,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusCancelled,
	},
	PaymentStatusProcessing: {
		PaymentStatusCompleted,
		PaymentStatusFailed,
	},
	PaymentStatusFailed: {
		PaymentStatusPending,
		PaymentStatusCancelled,
	},
	PaymentStatusCompleted: {
		PaymentStatusRefunded,
	},
	PaymentStatusCancelled: {},
	PaymentStatusRefunded:  {},
}

// ValidatePaymentTransition checks if a payment status transition is valid
func ValidatePaymentTransition(from, to PaymentStatus) bool {
	validTargets, ok := validPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsPaymentTerminal returns true if the payment status is terminal (no further transitions)
func IsPaymentTerminal(status PaymentStatus) bool {
	switch status {
	case PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// validInvoiceTransitions defines valid status transitions for invoices
var validInvoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusIssued: {
		InvoiceStatusPending,
		InvoiceStatusCancelled,
	},
	InvoiceStatusPending: {
		InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
	},
	InvoiceStatusPartiallyPaid: {
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
	},
	InvoiceStatusOverdue: {
		InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid,
		InvoiceStatusCancelled,
	},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

// ValidateInvoiceTransition checks if an invoice status transition is valid
func ValidateInvoiceTransition(from, to InvoiceStatus) bool {
	validTargets, ok := validInvoiceTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsInvoiceTerminal returns true if the invoice status is terminal
func IsInvoiceTerminal(status InvoiceStatus) bool {
	switch status {
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// validRefundTransitions defines valid status transitions for refunds
var validRefundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusRequested: {
		RefundStatusApproved,
		RefundStatusRejected,
	},
	RefundStatusApproved: {
		RefundStatusProcessing,
		RefundStatusCompleted,
		RefundStatusFailed,
		RefundStatusRejected,
	},
	RefundStatusProcessing: {
		RefundStatusCompleted,
		RefundStatusFailed,
	},
	RefundStatusFailed: {
		RefundStatusApproved,
	},
	RefundStatusCompleted: {},
	RefundStatusRejected:  {},
}

// ValidateRefundTransition checks if a refund status transition is valid
func ValidateRefundTransition(from, to RefundStatus) bool {
	validTargets, ok := validRefundTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsRefundTerminal returns true if the refund status is terminal
func IsRefundTerminal(status RefundStatus) bool {
	switch status {
	case RefundStatusCompleted, RefundStatusRejected:
		return true
	default:
		return false
	}
}
