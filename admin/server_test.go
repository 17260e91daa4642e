package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func testServer(t *testing.T) (*Server, *finflow.Engine, *batch.Tracker) {
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
	tracker := batch.NewTracker()
	s := NewServer(e,
		WithServerTracker(tracker),
		WithServerRunner(batch.NewRunner(e, tracker)),
	)
	return s, e, tracker
}

func doRequest(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	s, _, tracker := testServer(t)

	jobID := tracker.StartJob(batch.JobKindImportPayments, 5)
	tracker.RecordItemResult(jobID, true, "")
	tracker.RecordItemResult(jobID, false, "item failed")

	rec, resp := doRequest(t, s, http.MethodGet, "/api/jobs/"+jobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("success = false: %+v", resp.Error)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data type = %T, want object", resp.Data)
	}
	if data["id"] != jobID {
		t.Errorf("id = %v, want %s", data["id"], jobID)
	}
	if data["processed_items"] != float64(2) {
		t.Errorf("processed = %v, want 2", data["processed_items"])
	}
	if data["failure_count"] != float64(1) {
		t.Errorf("failures = %v, want 1", data["failure_count"])
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, _, _ := testServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/jobs/no-such-job")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeJobNotFound {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeJobNotFound)
	}
}

func TestLockStatusAndForceRelease(t *testing.T) {
	s, e, _ := testServer(t)

	key := finflow.LockKey(finflow.KindPayment, "PAY-2026-000001")

	_, resp := doRequest(t, s, http.MethodGet, "/api/locks/"+key)
	data := resp.Data.(map[string]any)
	if data["locked"] != false {
		t.Errorf("locked = %v, want false", data["locked"])
	}

	handle, err := e.Locker().Acquire(context.Background(), []string{key}, 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer handle.Release(context.Background())

	_, resp = doRequest(t, s, http.MethodGet, "/api/locks/"+key)
	data = resp.Data.(map[string]any)
	if data["locked"] != true {
		t.Errorf("locked = %v, want true", data["locked"])
	}

	rec, resp := doRequest(t, s, http.MethodPost, "/api/locks/"+key+"/release")
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d (%s)", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("release success = false: %+v", resp.Error)
	}

	_, resp = doRequest(t, s, http.MethodGet, "/api/locks/"+key)
	data = resp.Data.(map[string]any)
	if data["locked"] != false {
		t.Errorf("locked = %v after forced release, want false", data["locked"])
	}
}

func TestStartReconcile(t *testing.T) {
	s, _, tracker := testServer(t)

	rec, resp := doRequest(t, s, http.MethodPost, "/api/batch/reconcile")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]any)
	jobID, _ := data["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	// The job is poll-able through the jobs endpoint.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := tracker.GetStatus(jobID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if status.EndTime != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reconcile job never completed")
}

func TestListTransactions(t *testing.T) {
	s, e, _ := testServer(t)

	p := finflow.NewPayment("CUST-1", "POL-1", decimal.NewFromInt(100), "EUR", finflow.PaymentMethodCreditCard)
	if err := e.CreatePayment(context.Background(), p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	card := gateway.Card{
		Number:      "4532015112830366",
		HolderName:  "Jane Tester",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 3,
	}
	if _, err := e.ProcessPayment(context.Background(), p.Number, card); err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}

	rec, resp := doRequest(t, s, http.MethodGet,
		"/api/transactions?entity_kind=payment&entity_number="+p.Number)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]any)
	if data["total"] != float64(1) {
		t.Errorf("total = %v, want 1", data["total"])
	}

	// Bad pagination is rejected.
	rec, resp = doRequest(t, s, http.MethodGet, "/api/transactions?limit=-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeInvalidRequest)
	}
}

func TestGetJob_NoTrackerConfigured(t *testing.T) {
	e := finflow.NewEngine(
		finflow.WithEngineStore(stmemory.NewMemoryStore()),
		finflow.WithEngineLocker(lkmemory.NewMemoryLocker()),
		finflow.WithEngineGateway(gateway.NewSimulator(gateway.WithLatency(0))),
	)
	s := NewServer(e)

	rec, _ := doRequest(t, s, http.MethodGet, "/api/jobs/some-id")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
