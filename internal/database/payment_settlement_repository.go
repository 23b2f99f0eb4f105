package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentSettlementRepository applies a payment event in one database
// transaction so the transaction row, the booking row and the webhook log
// either all change or none do.
type PaymentSettlementRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentSettlementRepository creates a new settlement repository
func NewPaymentSettlementRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentSettlementRepository {
	return &PaymentSettlementRepository{
		db:     db,
		logger: logger,
	}
}

// Settle writes a settlement atomically. When the transaction is already
// terminal nothing is written and TransactionUpdated is false. Any error
// rolls everything back, including the log row, so the same payload can be
// retried. A lost race on the payload hash returns ErrDuplicateWebhook.
func (r *PaymentSettlementRepository) Settle(ctx context.Context, settlement *models.PaymentSettlement) (models.SettlementOutcome, error) {
	var outcome models.SettlementOutcome
	if settlement == nil || settlement.Log == nil {
		return outcome, fmt.Errorf("settlement requires a webhook log entry")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback()

	// 1. Guarded transaction update
	updated, err := updateTransactionStatus(ctx, tx, settlement.TransactionID, settlement.Status, nil, settlement.At)
	if err != nil {
		return outcome, err
	}
	if !updated {
		return outcome, nil
	}

	// 2. Guarded booking update
	moved := false
	if settlement.BookingID != nil && settlement.BookingTo != "" {
		moved, err = transitionBookingStatus(ctx, tx, *settlement.BookingID, settlement.BookingFrom, settlement.BookingTo, settlement.At)
		if err != nil {
			return outcome, err
		}
	}

	// 3. Webhook log row
	if err := insertWebhookLog(ctx, tx, settlement.Log); err != nil {
		return outcome, err
	}

	if err := tx.Commit(); err != nil {
		return outcome, fmt.Errorf("failed to commit settlement for %s: %w", settlement.TransactionID, err)
	}

	outcome.TransactionUpdated = true
	outcome.BookingTransitioned = moved

	r.logger.WithFields(logrus.Fields{
		"transaction_id":       settlement.TransactionID,
		"status":               settlement.Status,
		"booking_transitioned": moved,
		"webhook_log_id":       settlement.Log.ID,
	}).Debug("Payment settlement committed")

	return outcome, nil
}
