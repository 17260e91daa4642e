// Package memory provides an in-memory implementation of the finflow.Store
// interface for single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"finflow"
)

// MemoryStore implements finflow.Store with maps guarded by a single mutex.
// Every read returns a copy so callers never share entity pointers.
type MemoryStore struct {
	mu           sync.Mutex
	payments     map[string]*finflow.Payment
	invoices     map[string]*finflow.Invoice
	refunds      map[string]*finflow.Refund
	transactions []*finflow.Transaction
	idempotency  map[string]idempotencyRecord
}

type idempotencyRecord struct {
	result    []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:    make(map[string]*finflow.Payment),
		invoices:    make(map[string]*finflow.Invoice),
		refunds:     make(map[string]*finflow.Refund),
		idempotency: make(map[string]idempotencyRecord),
	}
}

// ============================================================================
// Payment Operations
// ============================================================================

func (s *MemoryStore) CreatePayment(ctx context.Context, p *finflow.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.Number]; exists {
		return finflow.ErrAlreadyExists
	}

	cp := *p
	s.payments[p.Number] = &cp
	return nil
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *finflow.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePaymentLocked(p)
}

func (s *MemoryStore) UpdatePaymentWithAudit(ctx context.Context, p *finflow.Payment, audit *finflow.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updatePaymentLocked(p); err != nil {
		return err
	}
	s.appendTransactionLocked(audit)
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, number string) (*finflow.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[number]
	if !ok {
		return nil, finflow.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) updatePaymentLocked(p *finflow.Payment) error {
	existing, ok := s.payments[p.Number]
	if !ok {
		return finflow.ErrNotFound
	}

	if existing.Version != p.Version-1 {
		return finflow.ErrVersionConflict
	}

	cp := *p
	s.payments[p.Number] = &cp
	return nil
}

// ============================================================================
// Invoice Operations
// ============================================================================

func (s *MemoryStore) CreateInvoice(ctx context.Context, inv *finflow.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.Number]; exists {
		return finflow.ErrAlreadyExists
	}

	cp := *inv
	s.invoices[inv.Number] = &cp
	return nil
}

func (s *MemoryStore) UpdateInvoice(ctx context.Context, inv *finflow.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateInvoiceLocked(inv)
}

func (s *MemoryStore) UpdateInvoiceWithAudit(ctx context.Context, inv *finflow.Invoice, audit *finflow.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateInvoiceLocked(inv); err != nil {
		return err
	}
	s.appendTransactionLocked(audit)
	return nil
}

func (s *MemoryStore) GetInvoice(ctx context.Context, number string) (*finflow.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[number]
	if !ok {
		return nil, finflow.ErrNotFound
	}

	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) updateInvoiceLocked(inv *finflow.Invoice) error {
	existing, ok := s.invoices[inv.Number]
	if !ok {
		return finflow.ErrNotFound
	}

	if existing.Version != inv.Version-1 {
		return finflow.ErrVersionConflict
	}

	cp := *inv
	s.invoices[inv.Number] = &cp
	return nil
}

// ============================================================================
// Refund Operations
// ============================================================================

func (s *MemoryStore) CreateRefund(ctx context.Context, r *finflow.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refunds[r.Number]; exists {
		return finflow.ErrAlreadyExists
	}

	cp := *r
	s.refunds[r.Number] = &cp
	return nil
}

func (s *MemoryStore) UpdateRefund(ctx context.Context, r *finflow.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRefundLocked(r)
}

func (s *MemoryStore) UpdateRefundWithAudit(ctx context.Context, r *finflow.Refund, audit *finflow.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateRefundLocked(r); err != nil {
		return err
	}
	s.appendTransactionLocked(audit)
	return nil
}

func (s *MemoryStore) GetRefund(ctx context.Context, number string) (*finflow.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refunds[number]
	if !ok {
		return nil, finflow.ErrNotFound
	}

	cp := *r
	return &cp, nil
}

func (s *MemoryStore) updateRefundLocked(r *finflow.Refund) error {
	existing, ok := s.refunds[r.Number]
	if !ok {
		return finflow.ErrNotFound
	}

	if existing.Version != r.Version-1 {
		return finflow.ErrVersionConflict
	}

	cp := *r
	s.refunds[r.Number] = &cp
	return nil
}

// ============================================================================
// Audit Trail
// ============================================================================

func (s *MemoryStore) CreateTransaction(ctx context.Context, tx *finflow.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendTransactionLocked(tx)
	return nil
}

func (s *MemoryStore) appendTransactionLocked(tx *finflow.Transaction) {
	cp := *tx
	cp.ID = int64(len(s.transactions) + 1)
	tx.ID = cp.ID
	s.transactions = append(s.transactions, &cp)
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter *finflow.TxFilter) ([]*finflow.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*finflow.Transaction
	for _, tx := range s.transactions {
		if filter != nil {
			if filter.EntityKind != "" && tx.EntityKind != filter.EntityKind {
				continue
			}
			if filter.EntityNumber != "" && tx.EntityNumber != filter.EntityNumber {
				continue
			}
			if filter.TxType != "" && tx.TxType != filter.TxType {
				continue
			}
			if !filter.StartTime.IsZero() && tx.CreatedAt.Before(filter.StartTime) {
				continue
			}
			if !filter.EndTime.IsZero() && tx.CreatedAt.After(filter.EndTime) {
				continue
			}
		}
		cp := *tx
		result = append(result, &cp)
	}

	total := int64(len(result))

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		if start >= len(result) {
			return nil, total, nil
		}
		end := start + filter.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[start:end]
	}

	return result, total, nil
}

// ============================================================================
// Sweep Queries
// ============================================================================

func (s *MemoryStore) GetUnreconciledTransactions(ctx context.Context, olderThan time.Duration) ([]*finflow.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-olderThan)
	var result []*finflow.Transaction
	for _, tx := range s.transactions {
		if !tx.Reconciled && tx.GatewayReference != "" && tx.CreatedAt.Before(threshold) {
			cp := *tx
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) MarkTransactionReconciled(ctx context.Context, txID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions {
		if tx.TxID == txID {
			tx.Reconciled = true
			reconciledAt := at
			tx.ReconciledAt = &reconciledAt
			return nil
		}
	}
	return finflow.ErrNotFound
}

func (s *MemoryStore) GetOverdueInvoices(ctx context.Context, asOf time.Time) ([]*finflow.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*finflow.Invoice
	for _, inv := range s.invoices {
		collectible := inv.Status == finflow.InvoiceStatusPending ||
			inv.Status == finflow.InvoiceStatusPartiallyPaid
		if collectible && inv.DueDate.Before(asOf) {
			cp := *inv
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetRetryablePayments(ctx context.Context, olderThan time.Duration) ([]*finflow.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-olderThan)
	var result []*finflow.Payment
	for _, p := range s.payments {
		if p.Status == finflow.PaymentStatusFailed && p.UpdatedAt.Before(threshold) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

// ============================================================================
// Idempotency Operations
// ============================================================================

func (s *MemoryStore) CheckIdempotency(ctx context.Context, key string) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[key]
	if !ok {
		return false, nil, nil
	}

	if time.Now().After(record.expiresAt) {
		delete(s.idempotency, key)
		return false, nil, nil
	}

	return true, record.result, nil
}

func (s *MemoryStore) MarkIdempotency(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idempotency[key] = idempotencyRecord{
		result:    result,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredIdempotency(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var count int64
	for key, record := range s.idempotency {
		if now.After(record.expiresAt) {
			delete(s.idempotency, key)
			count++
		}
	}
	return count, nil
}

// Ensure MemoryStore implements finflow.Store interface.
var _ finflow.Store = (*MemoryStore)(nil)
