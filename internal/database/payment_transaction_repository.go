package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ridehub/ms-booking/internal/models"
)

const transactionColumns = `
	id, transaction_id, order_ref, booking_id, method, status, amount,
	gateway_create_date, gateway_note, created_at, updated_at, is_deleted`

// PaymentTransactionRepository handles payment transaction database operations
type PaymentTransactionRepository struct {
	db *sqlx.DB
}

// NewPaymentTransactionRepository creates a new PaymentTransactionRepository
func NewPaymentTransactionRepository(db *sqlx.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

// GetByTransactionID retrieves a transaction by its gateway reference.
// Returns nil, nil when it does not exist.
func (r *PaymentTransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE transaction_id = $1 AND is_deleted = FALSE`
	err := r.db.GetContext(ctx, &txn, query, transactionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", transactionID, err)
	}
	return &txn, nil
}

// FindPollable returns non-deleted transactions for the given method that are
// still pending and were created after the lookback ceiling
func (r *PaymentTransactionRepository) FindPollable(ctx context.Context, method models.PaymentMethod, createdAfter time.Time) ([]*models.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE method = $1
		  AND status = ANY($2)
		  AND created_at > $3
		  AND is_deleted = FALSE
		ORDER BY created_at`

	pending := make([]string, len(models.PendingPaymentStatuses))
	for i, s := range models.PendingPaymentStatuses {
		pending[i] = string(s)
	}

	var txns []*models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &txns, query, method, pq.Array(pending), createdAfter); err != nil {
		return nil, fmt.Errorf("failed to list pollable transactions: %w", err)
	}
	return txns, nil
}

// UpdateStatus sets a new status (and optionally appends a note) on a
// transaction that is not yet terminal. Returns false when the row was
// already terminal, so a terminal status is never overwritten.
func (r *PaymentTransactionRepository) UpdateStatus(ctx context.Context, transactionID string, status models.PaymentStatus, note *string, now time.Time) (bool, error) {
	return updateTransactionStatus(ctx, r.db, transactionID, status, note, now)
}

func updateTransactionStatus(ctx context.Context, exec sqlx.ExecerContext, transactionID string, status models.PaymentStatus, note *string, now time.Time) (bool, error) {
	pending := make([]string, len(models.PendingPaymentStatuses))
	for i, s := range models.PendingPaymentStatuses {
		pending[i] = string(s)
	}

	query := `
		UPDATE payment_transactions
		SET status = $2,
		    gateway_note = CASE
		        WHEN $3::text IS NULL THEN gateway_note
		        WHEN gateway_note IS NULL OR gateway_note = '' THEN $3::text
		        ELSE gateway_note || ' | ' || $3::text
		    END,
		    updated_at = $4
		WHERE transaction_id = $1 AND status = ANY($5) AND is_deleted = FALSE`

	result, err := exec.ExecContext(ctx, query, transactionID, status, note, now, pq.Array(pending))
	if err != nil {
		return false, fmt.Errorf("failed to update transaction %s to %s: %w", transactionID, status, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
