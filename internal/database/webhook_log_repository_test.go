package database

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestWebhookLogRepository_ExistsByPayloadHash(t *testing.T) {
	sqlxDB, mock := newMockSqlx(t)
	repo := NewWebhookLogRepository(sqlxDB, quietLogger())

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM payment_webhook_logs WHERE payload_hash = \$1\)`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByPayloadHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWebhookLog(t *testing.T) {
	ctx := context.Background()
	event := &models.PaymentStatusEvent{
		Source:         models.PaymentSourceGateway,
		Provider:       models.PaymentMethodVNPay,
		TransactionRef: "TXN-1",
		RawPayload:     "vnp_TxnRef=TXN-1",
	}

	t.Run("Success", func(t *testing.T) {
		sqlxDB, mock := newMockSqlx(t)
		entry := models.NewPaymentWebhookLog(event, "hash-1", time.Now())
		entry.MarkProcessed("SUCCESS", entry.ReceivedAt)

		mock.ExpectExec(`INSERT INTO payment_webhook_logs`).
			WithArgs(entry.ID, models.PaymentMethodVNPay, "hash-1", "vnp_TxnRef=TXN-1",
				models.PaymentSourceGateway, models.WebhookStatusProcessed, "SUCCESS", "TXN-1",
				entry.ReceivedAt, entry.ReceivedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, insertWebhookLog(ctx, sqlxDB, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unique Violation", func(t *testing.T) {
		sqlxDB, mock := newMockSqlx(t)
		entry := models.NewPaymentWebhookLog(event, "hash-1", time.Now())

		mock.ExpectExec(`INSERT INTO payment_webhook_logs`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := insertWebhookLog(ctx, sqlxDB, entry)
		assert.ErrorIs(t, err, ErrDuplicateWebhook)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nil Entry", func(t *testing.T) {
		sqlxDB, _ := newMockSqlx(t)
		assert.Error(t, insertWebhookLog(ctx, sqlxDB, nil))
	})
}
