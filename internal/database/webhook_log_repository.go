package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateWebhook is returned when the payload hash already exists
var ErrDuplicateWebhook = errors.New("webhook payload already recorded")

// WebhookLogRepository handles payment webhook log operations
type WebhookLogRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db *sqlx.DB, logger *logrus.Logger) *WebhookLogRepository {
	return &WebhookLogRepository{
		db:     db,
		logger: logger,
	}
}

// ExistsByPayloadHash checks whether a payload has already been recorded
func (r *WebhookLogRepository) ExistsByPayloadHash(ctx context.Context, payloadHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM payment_webhook_logs WHERE payload_hash = $1)`
	if err := r.db.GetContext(ctx, &exists, query, payloadHash); err != nil {
		return false, fmt.Errorf("failed to check webhook payload hash: %w", err)
	}
	return exists, nil
}

// insertWebhookLog writes a log row on a DB or a Tx. A concurrent insert of
// the same payload loses on the unique hash and gets ErrDuplicateWebhook.
func insertWebhookLog(ctx context.Context, exec sqlx.ExecerContext, entry *models.PaymentWebhookLog) error {
	if entry == nil {
		return fmt.Errorf("webhook log entry cannot be nil")
	}

	query := `
		INSERT INTO payment_webhook_logs (
			id, provider, payload_hash, payload, source,
			processing_status, result, transaction_id, received_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := exec.ExecContext(ctx, query,
		entry.ID, entry.Provider, entry.PayloadHash, entry.Payload, entry.Source,
		entry.ProcessingStatus, entry.Result, entry.TransactionID, entry.ReceivedAt, entry.ProcessedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateWebhook
		}
		return fmt.Errorf("failed to record payment webhook: %w", err)
	}
	return nil
}
