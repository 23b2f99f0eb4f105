package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollingFixture struct {
	clock        *movableClock
	bookings     *fakeBookingStore
	transactions *fakeTransactionStore
	logs         *fakeWebhookLogStore
	publisher    *fakePublisher
	querier      *fakeQuerier
	service      *PaymentPollingService
}

// newPollingFixture wires the poller to a real webhook processor over fakes
func newPollingFixture(result *vnpay.QueryResult) *pollingFixture {
	f := &pollingFixture{
		clock:        &movableClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		bookings:     newFakeBookingStore(),
		transactions: newFakeTransactionStore(),
		logs:         newFakeWebhookLogStore(),
		publisher:    &fakePublisher{},
		querier:      &fakeQuerier{result: result},
	}

	settlements := &fakeSettlementStore{bookings: f.bookings, transactions: f.transactions, logs: f.logs}
	webhooks := NewPaymentWebhookService(f.bookings, f.transactions, f.logs, settlements, newFakeSessionStore(), &fakeSeatLocks{},
		f.publisher, map[models.PaymentMethod]SignatureVerifier{}, quietLogger())
	webhooks.now = f.clock.Now

	f.service = NewPaymentPollingService(f.transactions, f.bookings, f.querier, webhooks, DefaultPaymentPollingConfig(), quietLogger())
	f.service.now = f.clock.Now
	return f
}

func (f *pollingFixture) addPending(id string, createdAgo time.Duration, bookingExpiresIn time.Duration) {
	bookingID := int64(len(f.transactions.txns) + 1)
	now := f.clock.Now()

	booking := awaitingBooking(bookingID, now.Add(bookingExpiresIn))
	f.bookings.bookings[bookingID] = booking

	f.transactions.txns[id] = &models.PaymentTransaction{
		TransactionID:     id,
		OrderRef:          booking.BookingCode,
		BookingID:         &bookingID,
		Method:            models.PaymentMethodVNPay,
		Status:            models.PaymentStatusInitiated,
		Amount:            dec("150000"),
		GatewayCreateDate: strPtr("20260301180000"),
		CreatedAt:         now.Add(-createdAgo),
	}
}

func queryResult(code, status string) *vnpay.QueryResult {
	amount := dec("150000")
	return &vnpay.QueryResult{ResponseCode: code, TransactionStatus: status, Amount: &amount}
}

func TestPollPending_SuccessFlowsThroughWebhookProcessor(t *testing.T) {
	f := newPollingFixture(queryResult("00", "00"))
	f.addPending("TXN-1", time.Hour, 10*time.Minute)

	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Found)
	assert.Equal(t, 1, summary.Polled)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, models.PaymentStatusSuccess, f.transactions.get("TXN-1").Status)
	assert.Equal(t, models.BookingStatusConfirmed, f.bookings.get(1).Status)
	assert.Equal(t, 0, f.service.Tracker().Len(), "terminal status drops tracking")

	require.Len(t, f.querier.requests, 1)
	req := f.querier.requests[0]
	assert.Equal(t, "TXN-1", req.TxnRef)
	assert.Equal(t, "20260301180000", req.TransactionDate)
	assert.Equal(t, "127.0.0.1", req.IPAddr)

	logs := f.logs.all()
	require.Len(t, logs, 1)
	assert.Equal(t, models.PaymentSourceReconciliationPoller, logs[0].Source)
	assert.True(t, strings.HasPrefix(logs[0].Payload, "vnp_TxnRef=TXN-1&"))
	assert.Contains(t, logs[0].Payload, "vnp_SecureHash=POLLING_SYNTHESIZED_")
	assert.Contains(t, logs[0].Payload, "vnp_Amount=15000000")
}

func TestPollPending_MissingTransactionStatusIsNotApplied(t *testing.T) {
	f := newPollingFixture(queryResult("00", ""))
	f.addPending("TXN-1", time.Hour, 10*time.Minute)

	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Polled)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, models.PaymentStatusInitiated, f.transactions.get("TXN-1").Status)
	assert.Equal(t, models.BookingStatusAwaitingPayment, f.bookings.get(1).Status)
	assert.Empty(t, f.logs.all())
	assert.Equal(t, 1, f.service.Tracker().Len(), "still tracked for the next tick")
}

func TestPollPending_LookbackWindow(t *testing.T) {
	f := newPollingFixture(queryResult("00", "00"))
	f.addPending("TXN-OLD", 25*time.Hour, 10*time.Minute)
	f.addPending("TXN-NEW", 23*time.Hour, 10*time.Minute)

	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Found)
	require.Len(t, f.querier.requests, 1)
	assert.Equal(t, "TXN-NEW", f.querier.requests[0].TxnRef)
	assert.Equal(t, models.PaymentStatusInitiated, f.transactions.get("TXN-OLD").Status)
}

func TestPollPending_UnchangedStatusRespectsCooldown(t *testing.T) {
	f := newPollingFixture(queryResult("00", "07"))
	f.addPending("TXN-1", time.Hour, 30*time.Minute)
	f.transactions.txns["TXN-1"].Status = models.PaymentStatusProcessing

	_, err := f.service.PollPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.logs.all(), "unchanged status submits nothing")

	f.clock.Advance(30 * time.Second)
	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, f.querier.calls())

	f.clock.Advance(61 * time.Second)
	_, err = f.service.PollPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.querier.calls())
	assert.Equal(t, 2, f.service.Tracker().Attempts("TXN-1"))
}

func TestPollPending_GatewayErrorDoesNotConsumeAttempt(t *testing.T) {
	f := newPollingFixture(nil)
	f.querier.err = errors.New("connection reset")
	f.addPending("TXN-1", time.Hour, 30*time.Minute)

	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Polled)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 0, f.service.Tracker().Attempts("TXN-1"))
	assert.Equal(t, models.PaymentStatusInitiated, f.transactions.get("TXN-1").Status)
}

func TestPollPending_RejectedQueryChangesNothing(t *testing.T) {
	f := newPollingFixture(&vnpay.QueryResult{ResponseCode: "91", Message: "Transaction not found"})
	f.addPending("TXN-1", time.Hour, 30*time.Minute)

	_, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.service.Tracker().Attempts("TXN-1"))
	assert.Equal(t, models.PaymentStatusInitiated, f.transactions.get("TXN-1").Status)
	assert.Empty(t, f.logs.all())
}

func TestPollPending_DuplicateRequestBackoffConverges(t *testing.T) {
	f := newPollingFixture(&vnpay.QueryResult{ResponseCode: vnpay.CodeDuplicateRequest})
	f.addPending("TXN-1", time.Minute, 6*time.Hour)

	for i := 0; i < 20; i++ {
		_, err := f.service.PollPending(context.Background())
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)
	}

	cfg := DefaultPaymentPollingConfig()
	assert.Equal(t, 1+cfg.BackoffGap, f.querier.calls())
	assert.Equal(t, cfg.MaxAttempts, f.service.Tracker().Attempts("TXN-1"))
	assert.Equal(t, models.PaymentStatusInitiated, f.transactions.get("TXN-1").Status)
}

func TestPollPending_MaxAttemptsStopsPolling(t *testing.T) {
	f := newPollingFixture(queryResult("00", "07"))
	f.addPending("TXN-1", time.Minute, 6*time.Hour)
	f.service.Tracker().FastForward("TXN-1", 30)

	summary, err := f.service.PollPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, f.querier.calls())
}

func TestPollPending_ExpiredBookingRecovery(t *testing.T) {
	tests := []struct {
		name       string
		result     *vnpay.QueryResult
		err        error
		wantStatus models.PaymentStatus
		wantNote   string
	}{
		{"paid anyway", queryResult("00", "00"), nil, models.PaymentStatusSuccessButBookingExpired, "CRITICAL"},
		{"status missing", queryResult("00", ""), nil, models.PaymentStatusRequiresManualReview, "no transaction status"},
		{"not paid", queryResult("00", "02"), nil, models.PaymentStatusFailed, "Booking expired - payment failed (gateway 00/02)"},
		{"gateway unreachable", nil, errors.New("timeout"), models.PaymentStatusRequiresManualReview, "could not be verified"},
		{"query rejected", &vnpay.QueryResult{ResponseCode: "99", Message: "No response"}, nil, models.PaymentStatusRequiresManualReview, "query failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollingFixture(tt.result)
			f.querier.err = tt.err
			f.addPending("TXN-1", time.Hour, -time.Minute)
			f.transactions.txns["TXN-1"].GatewayNote = strPtr("created")
			f.service.Tracker().Record("TXN-1", f.clock.Now().Add(-time.Hour))

			summary, err := f.service.PollPending(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Recovered)
			assert.Equal(t, 0, summary.Polled)

			txn := f.transactions.get("TXN-1")
			assert.Equal(t, tt.wantStatus, txn.Status)
			require.NotNil(t, txn.GatewayNote)
			assert.True(t, strings.HasPrefix(*txn.GatewayNote, "created | "))
			assert.Contains(t, *txn.GatewayNote, tt.wantNote)

			assert.Equal(t, 1, f.querier.calls(), "gateway asked exactly once")
			assert.Equal(t, 0, f.service.Tracker().Len())
			assert.Equal(t, models.BookingStatusAwaitingPayment, f.bookings.get(1).Status, "booking left to the reaper")
			assert.Empty(t, f.logs.all())
		})
	}
}

func TestPollTransaction(t *testing.T) {
	t.Run("bypasses eligibility", func(t *testing.T) {
		f := newPollingFixture(queryResult("00", "00"))
		f.addPending("TXN-1", time.Hour, 30*time.Minute)
		f.service.Tracker().FastForward("TXN-1", 30)

		updated, err := f.service.PollTransaction(context.Background(), "TXN-1")
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, models.PaymentStatusSuccess, f.transactions.get("TXN-1").Status)
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newPollingFixture(queryResult("00", "00"))
		f.addPending("TXN-1", time.Hour, 30*time.Minute)
		f.transactions.txns["TXN-1"].Method = models.PaymentMethodMoMo

		updated, err := f.service.PollTransaction(context.Background(), "TXN-1")
		require.NoError(t, err)
		assert.False(t, updated)
		assert.Equal(t, 0, f.querier.calls())
	})

	t.Run("unknown", func(t *testing.T) {
		f := newPollingFixture(queryResult("00", "00"))

		updated, err := f.service.PollTransaction(context.Background(), "TXN-404")
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("unchanged", func(t *testing.T) {
		f := newPollingFixture(queryResult("00", "10"))
		f.addPending("TXN-1", time.Hour, 30*time.Minute)
		f.transactions.txns["TXN-1"].Status = models.PaymentStatusProcessing

		updated, err := f.service.PollTransaction(context.Background(), "TXN-1")
		require.NoError(t, err)
		assert.False(t, updated)
	})
}

func TestCleanupTracking(t *testing.T) {
	f := newPollingFixture(nil)
	now := f.clock.Now()
	f.service.Tracker().Record("stale", now.Add(-3*time.Hour))
	f.service.Tracker().Record("recent", now.Add(-time.Hour))

	removed := f.service.CleanupTracking()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, f.service.Tracker().Attempts("recent"))
}
