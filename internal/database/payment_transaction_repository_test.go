package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionRowColumns = []string{
	"id", "transaction_id", "order_ref", "booking_id", "method", "status", "amount",
	"gateway_create_date", "gateway_note", "created_at", "updated_at", "is_deleted",
}

func TestPaymentTransactionRepository_FindPollable(t *testing.T) {
	sqlxDB, mock := newMockSqlx(t)
	repo := NewPaymentTransactionRepository(sqlxDB)
	createdAfter := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM payment_transactions\s+WHERE method = \$1\s+AND status = ANY\(\$2\)\s+AND created_at > \$3`).
		WithArgs(models.PaymentMethodVNPay, sqlmock.AnyArg(), createdAfter).
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow(1, "TXN-1", "BK-1", 10, "VNPAY", "INITIATED", "150000.00", "20260301093000", nil, createdAfter.Add(time.Hour), nil, false))

	txns, err := repo.FindPollable(context.Background(), models.PaymentMethodVNPay, createdAfter)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "TXN-1", txns[0].TransactionID)
	assert.Equal(t, models.PaymentStatusInitiated, txns[0].Status)
	require.NotNil(t, txns[0].BookingID)
	assert.Equal(t, int64(10), *txns[0].BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentTransactionRepository_GetByTransactionID(t *testing.T) {
	sqlxDB, mock := newMockSqlx(t)
	repo := NewPaymentTransactionRepository(sqlxDB)

	mock.ExpectQuery(`SELECT .+ FROM payment_transactions WHERE transaction_id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	txn, err := repo.GetByTransactionID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, txn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentTransactionRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Pending Row Updated", func(t *testing.T) {
		sqlxDB, mock := newMockSqlx(t)
		repo := NewPaymentTransactionRepository(sqlxDB)
		note := "confirmed by poll"

		mock.ExpectExec(`UPDATE payment_transactions\s+SET status = \$2`).
			WithArgs("TXN-1", models.PaymentStatusSuccess, &note, now, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdateStatus(ctx, "TXN-1", models.PaymentStatusSuccess, &note, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Terminal Row Untouched", func(t *testing.T) {
		sqlxDB, mock := newMockSqlx(t)
		repo := NewPaymentTransactionRepository(sqlxDB)

		mock.ExpectExec(`UPDATE payment_transactions`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdateStatus(ctx, "TXN-1", models.PaymentStatusFailed, nil, now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
