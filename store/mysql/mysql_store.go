// Package mysql provides a MySQL implementation of the finflow.Store interface.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"finflow"
)

// MySQLStore implements the finflow.Store interface using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// New creates a new MySQLStore with the given database connection.
func New(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const paymentColumns = `id, payment_number, customer_id, policy_id, invoice_number,
	amount, currency, method, status, gateway_reference, failure_reason,
	reconciled, reconciled_at, version, created_at, updated_at, completed_at`

const invoiceColumns = `id, invoice_number, customer_id, policy_id, total_amount,
	paid_amount, currency, status, due_date, version, created_at, updated_at, paid_at`

const refundColumns = `id, refund_number, payment_number, amount, currency, reason,
	status, gateway_reference, failure_reason, version, created_at, updated_at, completed_at`

const transactionColumns = `id, tx_id, entity_kind, entity_number, tx_type, amount,
	currency, from_status, to_status, gateway_reference, reconciled, reconciled_at, created_at`

// execer abstracts *sql.DB and *sql.Tx so updates run inside or outside a
// database transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================================================
// Payment Operations
// ============================================================================

// CreatePayment creates a new payment record.
func (s *MySQLStore) CreatePayment(ctx context.Context, p *finflow.Payment) error {
	query := `
		INSERT INTO ff_payments (
			payment_number, customer_id, policy_id, invoice_number, amount,
			currency, method, status, gateway_reference, failure_reason,
			reconciled, reconciled_at, version, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		p.Number, p.CustomerID, p.PolicyID, p.InvoiceNumber, p.Amount,
		p.Currency, p.Method, p.Status, p.GatewayReference, p.FailureReason,
		p.Reconciled, p.ReconciledAt, p.Version, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return finflow.ErrAlreadyExists
		}
		return fmt.Errorf("%w: create payment: %v", finflow.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id

	return nil
}

// UpdatePayment updates an existing payment with optimistic locking.
// The caller is expected to have already incremented the version.
func (s *MySQLStore) UpdatePayment(ctx context.Context, p *finflow.Payment) error {
	return s.updatePayment(ctx, s.db, p)
}

// UpdatePaymentWithAudit updates a payment and appends an audit transaction
// in a single database transaction.
func (s *MySQLStore) UpdatePaymentWithAudit(ctx context.Context, p *finflow.Payment, audit *finflow.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updatePayment(ctx, tx, p); err != nil {
			return err
		}
		return s.insertTransaction(ctx, tx, audit)
	})
}

func (s *MySQLStore) updatePayment(ctx context.Context, db execer, p *finflow.Payment) error {
	query := `
		UPDATE ff_payments SET
			invoice_number = ?, status = ?, gateway_reference = ?, failure_reason = ?,
			reconciled = ?, reconciled_at = ?, version = ?, updated_at = ?, completed_at = ?
		WHERE payment_number = ? AND version = ?
	`

	// The caller has already incremented the version, so p.Version is the new
	// value and p.Version-1 must match the stored row
	result, err := db.ExecContext(ctx, query,
		p.InvoiceNumber, p.Status, p.GatewayReference, p.FailureReason,
		p.Reconciled, p.ReconciledAt, p.Version, time.Now(), p.CompletedAt,
		p.Number, p.Version-1,
	)
	if err != nil {
		return fmt.Errorf("%w: update payment: %v", finflow.ErrStoreOperationFailed, err)
	}

	return s.checkUpdated(ctx, result, "ff_payments", "payment_number", p.Number)
}

// GetPayment retrieves a payment by its business number.
func (s *MySQLStore) GetPayment(ctx context.Context, number string) (*finflow.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM ff_payments WHERE payment_number = ?`, paymentColumns)

	p := &finflow.Payment{}
	err := s.db.QueryRowContext(ctx, query, number).Scan(
		&p.ID, &p.Number, &p.CustomerID, &p.PolicyID, &p.InvoiceNumber,
		&p.Amount, &p.Currency, &p.Method, &p.Status, &p.GatewayReference, &p.FailureReason,
		&p.Reconciled, &p.ReconciledAt, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, finflow.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get payment: %v", finflow.ErrStoreOperationFailed, err)
	}

	return p, nil
}

// ============================================================================
// Invoice Operations
// ============================================================================

// CreateInvoice creates a new invoice record.
func (s *MySQLStore) CreateInvoice(ctx context.Context, inv *finflow.Invoice) error {
	query := `
		INSERT INTO ff_invoices (
			invoice_number, customer_id, policy_id, total_amount, paid_amount,
			currency, status, due_date, version, created_at, updated_at, paid_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		inv.Number, inv.CustomerID, inv.PolicyID, inv.TotalAmount, inv.PaidAmount,
		inv.Currency, inv.Status, inv.DueDate, inv.Version, inv.CreatedAt, inv.UpdatedAt, inv.PaidAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return finflow.ErrAlreadyExists
		}
		return fmt.Errorf("%w: create invoice: %v", finflow.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	inv.ID = id

	return nil
}

// UpdateInvoice updates an existing invoice with optimistic locking.
func (s *MySQLStore) UpdateInvoice(ctx context.Context, inv *finflow.Invoice) error {
	return s.updateInvoice(ctx, s.db, inv)
}

// UpdateInvoiceWithAudit updates an invoice and appends an audit transaction
// in a single database transaction.
func (s *MySQLStore) UpdateInvoiceWithAudit(ctx context.Context, inv *finflow.Invoice, audit *finflow.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateInvoice(ctx, tx, inv); err != nil {
			return err
		}
		return s.insertTransaction(ctx, tx, audit)
	})
}

func (s *MySQLStore) updateInvoice(ctx context.Context, db execer, inv *finflow.Invoice) error {
	query := `
		UPDATE ff_invoices SET
			paid_amount = ?, status = ?, version = ?, updated_at = ?, paid_at = ?
		WHERE invoice_number = ? AND version = ?
	`

	result, err := db.ExecContext(ctx, query,
		inv.PaidAmount, inv.Status, inv.Version, time.Now(), inv.PaidAt,
		inv.Number, inv.Version-1,
	)
	if err != nil {
		return fmt.Errorf("%w: update invoice: %v", finflow.ErrStoreOperationFailed, err)
	}

	return s.checkUpdated(ctx, result, "ff_invoices", "invoice_number", inv.Number)
}

// GetInvoice retrieves an invoice by its business number.
func (s *MySQLStore) GetInvoice(ctx context.Context, number string) (*finflow.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM ff_invoices WHERE invoice_number = ?`, invoiceColumns)

	inv := &finflow.Invoice{}
	err := s.db.QueryRowContext(ctx, query, number).Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.PolicyID, &inv.TotalAmount,
		&inv.PaidAmount, &inv.Currency, &inv.Status, &inv.DueDate, &inv.Version,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.PaidAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, finflow.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get invoice: %v", finflow.ErrStoreOperationFailed, err)
	}

	return inv, nil
}

// ============================================================================
// Refund Operations
// ============================================================================

// CreateRefund creates a new refund record.
func (s *MySQLStore) CreateRefund(ctx context.Context, r *finflow.Refund) error {
	query := `
		INSERT INTO ff_refunds (
			refund_number, payment_number, amount, currency, reason, status,
			gateway_reference, failure_reason, version, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		r.Number, r.PaymentNumber, r.Amount, r.Currency, r.Reason, r.Status,
		r.GatewayReference, r.FailureReason, r.Version, r.CreatedAt, r.UpdatedAt, r.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return finflow.ErrAlreadyExists
		}
		return fmt.Errorf("%w: create refund: %v", finflow.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id

	return nil
}

// UpdateRefund updates an existing refund with optimistic locking.
func (s *MySQLStore) UpdateRefund(ctx context.Context, r *finflow.Refund) error {
	return s.updateRefund(ctx, s.db, r)
}

// UpdateRefundWithAudit updates a refund and appends an audit transaction
// in a single database transaction.
func (s *MySQLStore) UpdateRefundWithAudit(ctx context.Context, r *finflow.Refund, audit *finflow.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateRefund(ctx, tx, r); err != nil {
			return err
		}
		return s.insertTransaction(ctx, tx, audit)
	})
}

func (s *MySQLStore) updateRefund(ctx context.Context, db execer, r *finflow.Refund) error {
	query := `
		UPDATE ff_refunds SET
			status = ?, gateway_reference = ?, failure_reason = ?,
			version = ?, updated_at = ?, completed_at = ?
		WHERE refund_number = ? AND version = ?
	`

	result, err := db.ExecContext(ctx, query,
		r.Status, r.GatewayReference, r.FailureReason,
		r.Version, time.Now(), r.CompletedAt,
		r.Number, r.Version-1,
	)
	if err != nil {
		return fmt.Errorf("%w: update refund: %v", finflow.ErrStoreOperationFailed, err)
	}

	return s.checkUpdated(ctx, result, "ff_refunds", "refund_number", r.Number)
}

// GetRefund retrieves a refund by its business number.
func (s *MySQLStore) GetRefund(ctx context.Context, number string) (*finflow.Refund, error) {
	query := fmt.Sprintf(`SELECT %s FROM ff_refunds WHERE refund_number = ?`, refundColumns)

	r := &finflow.Refund{}
	err := s.db.QueryRowContext(ctx, query, number).Scan(
		&r.ID, &r.Number, &r.PaymentNumber, &r.Amount, &r.Currency, &r.Reason,
		&r.Status, &r.GatewayReference, &r.FailureReason, &r.Version,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, finflow.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get refund: %v", finflow.ErrStoreOperationFailed, err)
	}

	return r, nil
}

// ============================================================================
// Audit Trail
// ============================================================================

// CreateTransaction appends an audit transaction.
func (s *MySQLStore) CreateTransaction(ctx context.Context, tx *finflow.Transaction) error {
	return s.insertTransaction(ctx, s.db, tx)
}

func (s *MySQLStore) insertTransaction(ctx context.Context, db execer, tx *finflow.Transaction) error {
	query := `
		INSERT INTO ff_transactions (
			tx_id, entity_kind, entity_number, tx_type, amount, currency,
			from_status, to_status, gateway_reference, reconciled, reconciled_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		tx.TxID, tx.EntityKind, tx.EntityNumber, tx.TxType, tx.Amount, tx.Currency,
		tx.FromStatus, tx.ToStatus, tx.GatewayReference, tx.Reconciled, tx.ReconciledAt, tx.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return finflow.ErrAlreadyExists
		}
		return fmt.Errorf("%w: create transaction: %v", finflow.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	tx.ID = id

	return nil
}

// ListTransactions lists audit transactions with optional filters.
func (s *MySQLStore) ListTransactions(ctx context.Context, filter *finflow.TxFilter) ([]*finflow.Transaction, int64, error) {
	var conditions []string
	var args []any

	if filter.EntityKind != "" {
		conditions = append(conditions, "entity_kind = ?")
		args = append(args, filter.EntityKind)
	}

	if filter.EntityNumber != "" {
		conditions = append(conditions, "entity_number = ?")
		args = append(args, filter.EntityNumber)
	}

	if filter.TxType != "" {
		conditions = append(conditions, "tx_type = ?")
		args = append(args, filter.TxType)
	}

	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.StartTime)
	}

	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ff_transactions %s", whereClause)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions: %v", finflow.ErrStoreOperationFailed, err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ff_transactions
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, transactionColumns, whereClause)

	args = append(args, filter.Limit, filter.Offset)
	transactions, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// ============================================================================
// Sweep Queries
// ============================================================================

// GetUnreconciledTransactions retrieves audit transactions with a gateway
// reference that are not yet reconciled and older than the specified duration.
func (s *MySQLStore) GetUnreconciledTransactions(ctx context.Context, olderThan time.Duration) ([]*finflow.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ff_transactions
		WHERE reconciled = FALSE AND gateway_reference <> '' AND created_at < ?
		ORDER BY created_at ASC
	`, transactionColumns)

	threshold := time.Now().Add(-olderThan)
	return s.queryTransactions(ctx, query, threshold)
}

// MarkTransactionReconciled flips the reconciled flag on an audit transaction.
func (s *MySQLStore) MarkTransactionReconciled(ctx context.Context, txID string, at time.Time) error {
	query := `
		UPDATE ff_transactions SET reconciled = TRUE, reconciled_at = ?
		WHERE tx_id = ? AND reconciled = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, at, txID)
	if err != nil {
		return fmt.Errorf("%w: mark transaction reconciled: %v", finflow.ErrStoreOperationFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return finflow.ErrNotFound
	}

	return nil
}

// GetOverdueInvoices retrieves invoices still collectible past their due date.
func (s *MySQLStore) GetOverdueInvoices(ctx context.Context, asOf time.Time) ([]*finflow.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ff_invoices
		WHERE status IN (?, ?) AND due_date < ?
		ORDER BY due_date ASC
	`, invoiceColumns)

	rows, err := s.db.QueryContext(ctx, query,
		finflow.InvoiceStatusPending, finflow.InvoiceStatusPartiallyPaid, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: get overdue invoices: %v", finflow.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var invoices []*finflow.Invoice
	for rows.Next() {
		inv := &finflow.Invoice{}
		err := rows.Scan(
			&inv.ID, &inv.Number, &inv.CustomerID, &inv.PolicyID, &inv.TotalAmount,
			&inv.PaidAmount, &inv.Currency, &inv.Status, &inv.DueDate, &inv.Version,
			&inv.CreatedAt, &inv.UpdatedAt, &inv.PaidAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan invoice: %v", finflow.ErrStoreOperationFailed, err)
		}
		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate invoices: %v", finflow.ErrStoreOperationFailed, err)
	}

	return invoices, nil
}

// GetRetryablePayments retrieves failed payments last updated before the
// given duration ago.
func (s *MySQLStore) GetRetryablePayments(ctx context.Context, olderThan time.Duration) ([]*finflow.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ff_payments
		WHERE status = ? AND updated_at < ?
		ORDER BY created_at ASC
	`, paymentColumns)

	threshold := time.Now().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, query, finflow.PaymentStatusFailed, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: get retryable payments: %v", finflow.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var payments []*finflow.Payment
	for rows.Next() {
		p := &finflow.Payment{}
		err := rows.Scan(
			&p.ID, &p.Number, &p.CustomerID, &p.PolicyID, &p.InvoiceNumber,
			&p.Amount, &p.Currency, &p.Method, &p.Status, &p.GatewayReference, &p.FailureReason,
			&p.Reconciled, &p.ReconciledAt, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan payment: %v", finflow.ErrStoreOperationFailed, err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate payments: %v", finflow.ErrStoreOperationFailed, err)
	}

	return payments, nil
}

// queryTransactions is a helper function to query audit transactions.
func (s *MySQLStore) queryTransactions(ctx context.Context, query string, args ...any) ([]*finflow.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query transactions: %v", finflow.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var transactions []*finflow.Transaction
	for rows.Next() {
		tx := &finflow.Transaction{}
		err := rows.Scan(
			&tx.ID, &tx.TxID, &tx.EntityKind, &tx.EntityNumber, &tx.TxType, &tx.Amount,
			&tx.Currency, &tx.FromStatus, &tx.ToStatus, &tx.GatewayReference,
			&tx.Reconciled, &tx.ReconciledAt, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", finflow.ErrStoreOperationFailed, err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %v", finflow.ErrStoreOperationFailed, err)
	}

	return transactions, nil
}

// ============================================================================
// Idempotency Operations
// ============================================================================

// CheckIdempotency checks if an operation was already executed.
func (s *MySQLStore) CheckIdempotency(ctx context.Context, key string) (bool, []byte, error) {
	query := `
		SELECT result FROM ff_idempotency
		WHERE idempotency_key = ? AND expires_at > ?
	`

	var result []byte
	err := s.db.QueryRowContext(ctx, query, key, time.Now()).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%w: check idempotency: %v", finflow.ErrIdempotencyCheckFailed, err)
	}

	return true, result, nil
}

// MarkIdempotency marks an operation as executed with its result.
func (s *MySQLStore) MarkIdempotency(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	query := `
		INSERT INTO ff_idempotency (idempotency_key, result, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE result = VALUES(result), expires_at = VALUES(expires_at)
	`

	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx, query, key, result, now, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: mark idempotency: %v", finflow.ErrStoreOperationFailed, err)
	}

	return nil
}

// DeleteExpiredIdempotency removes expired idempotency records.
func (s *MySQLStore) DeleteExpiredIdempotency(ctx context.Context) (int64, error) {
	query := `DELETE FROM ff_idempotency WHERE expires_at < ?`

	result, err := s.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired idempotency: %v", finflow.ErrStoreOperationFailed, err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// withTx runs fn inside a database transaction, rolling back on error.
func (s *MySQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", finflow.ErrStoreOperationFailed, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", finflow.ErrStoreOperationFailed, err)
	}

	return nil
}

// checkUpdated distinguishes a missing row from an optimistic lock conflict
// after an update matched zero rows.
func (s *MySQLStore) checkUpdated(ctx context.Context, result sql.Result, table, column, number string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, column)
		if err := s.db.QueryRowContext(ctx, query, number).Scan(&count); err != nil {
			return fmt.Errorf("%w: check row exists: %v", finflow.ErrStoreOperationFailed, err)
		}
		if count == 0 {
			return finflow.ErrNotFound
		}
		return finflow.ErrVersionConflict
	}

	return nil
}

// isDuplicateKeyError checks if the error is a MySQL duplicate key error.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// MySQL error code 1062 is for duplicate entry
	return strings.Contains(err.Error(), "Duplicate entry") ||
		strings.Contains(err.Error(), "1062")
}

// Ensure MySQLStore implements finflow.Store interface.
var _ finflow.Store = (*MySQLStore)(nil)
