package task

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finflow"
	"finflow/batch"
	cbmemory "finflow/circuit/memory"
	"finflow/gateway"
	lkmemory "finflow/lock/memory"
	stmemory "finflow/store/memory"
)

func testWorker(t *testing.T) (*Worker, *finflow.Engine) {
	t.Helper()

	e := finflow.NewEngine(
		finflow.WithEngineStore(stmemory.NewMemoryStore()),
		finflow.WithEngineLocker(lkmemory.NewMemoryLocker()),
		finflow.WithEngineBreaker(cbmemory.NewMemoryBreaker()),
		finflow.WithEngineGateway(gateway.NewSimulator(
			gateway.WithSuccessRate(100),
			gateway.WithLatency(0),
		)),
		finflow.WithEngineConfig(finflow.ApplyOptions(
			finflow.WithReconcileWindow(time.Nanosecond),
		)),
	)
	w := NewWorker(e, WithConfig(Config{
		SweepInterval:    10 * time.Millisecond,
		OverdueGraceDays: 0,
		RetryAge:         time.Nanosecond,
	}))
	return w, e
}

func TestSweepOverdueInvoices(t *testing.T) {
	w, e := testWorker(t)

	overdue := finflow.NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR",
		time.Now().Add(-48*time.Hour))
	if err := e.CreateInvoice(context.Background(), overdue); err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}
	if _, err := e.ActivateInvoice(context.Background(), overdue.Number); err != nil {
		t.Fatalf("ActivateInvoice() error = %v", err)
	}

	current := finflow.NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR",
		time.Now().Add(30*24*time.Hour))
	if err := e.CreateInvoice(context.Background(), current); err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}
	if _, err := e.ActivateInvoice(context.Background(), current.Number); err != nil {
		t.Fatalf("ActivateInvoice() error = %v", err)
	}

	w.ScanOnce(context.Background())

	got, _ := e.GetInvoice(context.Background(), overdue.Number)
	if got.Status != finflow.InvoiceStatusOverdue {
		t.Errorf("overdue invoice status = %s, want OVERDUE", got.Status)
	}
	got, _ = e.GetInvoice(context.Background(), current.Number)
	if got.Status != finflow.InvoiceStatusPending {
		t.Errorf("current invoice status = %s, want PENDING untouched", got.Status)
	}
}

func TestSweepOverdueInvoices_GracePeriod(t *testing.T) {
	w, e := testWorker(t)
	w.config.OverdueGraceDays = 7

	// Three days past due: inside the grace window, not flagged.
	inv := finflow.NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR",
		time.Now().Add(-3*24*time.Hour))
	if err := e.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}
	if _, err := e.ActivateInvoice(context.Background(), inv.Number); err != nil {
		t.Fatalf("ActivateInvoice() error = %v", err)
	}

	w.ScanOnce(context.Background())

	got, _ := e.GetInvoice(context.Background(), inv.Number)
	if got.Status != finflow.InvoiceStatusPending {
		t.Errorf("status = %s, want PENDING inside grace window", got.Status)
	}
}

func TestSweepRetryPayments(t *testing.T) {
	w, e := testWorker(t)

	p := finflow.NewPayment("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR", finflow.PaymentMethodBankTransfer)
	if err := e.CreatePayment(context.Background(), p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	if _, err := e.FailPayment(context.Background(), p.Number, "processor outage"); err != nil {
		t.Fatalf("FailPayment() error = %v", err)
	}

	// Let the failure age past the (nanosecond) retry window.
	time.Sleep(5 * time.Millisecond)
	w.ScanOnce(context.Background())

	got, _ := e.GetPayment(context.Background(), p.Number)
	if got.Status != finflow.PaymentStatusPending {
		t.Errorf("status = %s, want PENDING after requeue", got.Status)
	}
	if got.FailureReason != "" {
		t.Errorf("failure reason = %q, want cleared", got.FailureReason)
	}
}

func TestSweepReconcileDelegatesToRunner(t *testing.T) {
	w, e := testWorker(t)
	tracker := batch.NewTracker()
	w.runner = batch.NewRunner(e, tracker)

	card := gateway.Card{
		Number:      "4532015112830366",
		HolderName:  "Jane Tester",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 3,
	}
	p := finflow.NewPayment("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR", finflow.PaymentMethodCreditCard)
	if err := e.CreatePayment(context.Background(), p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	if _, err := e.ProcessPayment(context.Background(), p.Number, card); err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	w.ScanOnce(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		txs, _, err := e.Store().ListTransactions(context.Background(),
			finflow.NewTxFilter().WithEntity(finflow.KindPayment, p.Number))
		if err != nil {
			t.Fatalf("ListTransactions() error = %v", err)
		}
		reconciled := true
		for _, tx := range txs {
			if tx.GatewayReference != "" && !tx.Reconciled {
				reconciled = false
			}
		}
		if reconciled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reconciliation sweep never flipped the reconciled flag")
}

func TestWorker_StartStop(t *testing.T) {
	w, _ := testWorker(t)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Error("expected worker running after Start")
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}

	w.Stop()
	if w.IsRunning() {
		t.Error("expected worker stopped after Stop")
	}

	// Stopping twice is safe.
	w.Stop()

	// Restart works.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	w.Stop()
}

func TestWorker_PeriodicScan(t *testing.T) {
	w, e := testWorker(t)

	inv := finflow.NewInvoice("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR",
		time.Now().Add(-48*time.Hour))
	if err := e.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}
	if _, err := e.ActivateInvoice(context.Background(), inv.Number); err != nil {
		t.Fatalf("ActivateInvoice() error = %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := e.GetInvoice(context.Background(), inv.Number)
		if err != nil {
			t.Fatalf("GetInvoice() error = %v", err)
		}
		if got.Status == finflow.InvoiceStatusOverdue {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("periodic sweep never flagged the overdue invoice")
}
