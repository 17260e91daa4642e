package finflow

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewPayment(t *testing.T) {
	p := NewPayment("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR", PaymentMethodCreditCard)

	if !strings.HasPrefix(p.Number, "PAY-") {
		t.Errorf("number = %s, want PAY- prefix", p.Number)
	}
	if p.Status != PaymentStatusPending {
		t.Errorf("status = %s, want PENDING", p.Status)
	}
	if p.Version != 0 {
		t.Errorf("version = %d, want 0", p.Version)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNewInvoice(t *testing.T) {
	due := time.Now().Add(30 * 24 * time.Hour)
	inv := NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(500), "EUR", due)

	if !strings.HasPrefix(inv.Number, "INV-") {
		t.Errorf("number = %s, want INV- prefix", inv.Number)
	}
	if inv.Status != InvoiceStatusIssued {
		t.Errorf("status = %s, want ISSUED", inv.Status)
	}
	if !inv.PaidAmount.IsZero() {
		t.Errorf("paid = %s, want zero", inv.PaidAmount)
	}
	if !inv.DueDate.Equal(due) {
		t.Errorf("due = %v, want %v", inv.DueDate, due)
	}
}

func TestNewRefund(t *testing.T) {
	r := NewRefund("PAY-2026-abc", decimal.NewFromInt(50), "EUR", "duplicate charge")

	if !strings.HasPrefix(r.Number, "REF-") {
		t.Errorf("number = %s, want REF- prefix", r.Number)
	}
	if r.Status != RefundStatusRequested {
		t.Errorf("status = %s, want REQUESTED", r.Status)
	}
	if r.PaymentNumber != "PAY-2026-abc" {
		t.Errorf("payment number = %s", r.PaymentNumber)
	}
}

func TestBusinessNumbersUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := NewPayment("CUST-1", "POL-1", decimal.NewFromInt(1), "EUR", PaymentMethodCreditCard)
		if seen[p.Number] {
			t.Fatalf("duplicate number %s", p.Number)
		}
		seen[p.Number] = true
	}
}

func TestLockKey(t *testing.T) {
	if got := LockKey(KindPayment, "PAY-2026-abc"); got != "payment:PAY-2026-abc" {
		t.Errorf("LockKey() = %s", got)
	}
	if got := LockKey(KindInvoice, "INV-2026-def"); got != "invoice:INV-2026-def" {
		t.Errorf("LockKey() = %s", got)
	}
}

func TestIncrementVersion(t *testing.T) {
	p := NewPayment("CUST-1", "POL-1", decimal.NewFromInt(1), "EUR", PaymentMethodCreditCard)
	before := p.UpdatedAt

	time.Sleep(time.Millisecond)
	p.IncrementVersion()

	if p.Version != 1 {
		t.Errorf("version = %d, want 1", p.Version)
	}
	if !p.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestInvoiceOutstanding(t *testing.T) {
	inv := NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR", time.Now())
	inv.PaidAmount = decimal.NewFromInt(40)

	if got := inv.Outstanding(); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Outstanding() = %s, want 60", got)
	}
}

func TestNewAuditTransaction(t *testing.T) {
	tx := NewAuditTransaction(KindPayment, "PAY-2026-abc", TxTypeCharge,
		decimal.NewFromInt(100), "EUR", "PENDING", "COMPLETED")

	if tx.TxID == "" {
		t.Error("expected a transaction id")
	}
	if tx.EntityKind != KindPayment || tx.EntityNumber != "PAY-2026-abc" {
		t.Errorf("entity = %s/%s", tx.EntityKind, tx.EntityNumber)
	}
	if tx.FromStatus != "PENDING" || tx.ToStatus != "COMPLETED" {
		t.Errorf("statuses = %s -> %s", tx.FromStatus, tx.ToStatus)
	}
	if tx.Reconciled {
		t.Error("new audit rows start unreconciled")
	}
}

func TestEntityTerminalHelpers(t *testing.T) {
	p := NewPayment("CUST-1", "POL-1", decimal.NewFromInt(1), "EUR", PaymentMethodCreditCard)
	if p.IsTerminal() {
		t.Error("pending payment should not be terminal")
	}
	p.Status = PaymentStatusCancelled
	if !p.IsTerminal() {
		t.Error("cancelled payment should be terminal")
	}

	inv := NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(1), "EUR", time.Now())
	inv.Status = InvoiceStatusPaid
	if !inv.IsTerminal() {
		t.Error("paid invoice should be terminal")
	}

	r := NewRefund("PAY-1", decimal.NewFromInt(1), "EUR", "r")
	r.Status = RefundStatusRejected
	if !r.IsTerminal() {
		t.Error("rejected refund should be terminal")
	}
}
