package services

import (
	"context"
	"time"

	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/seatlock"
	"github.com/ridehub/ms-booking/pkg/vnpay"
)

// BookingStore is the booking persistence used by the reconciliation services.
// Implemented by database.BookingRepository.
type BookingStore interface {
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	FindExpiredAwaitingPayment(ctx context.Context, now time.Time) ([]*models.Booking, error)
	CountExpiredAwaitingPayment(ctx context.Context, now time.Time) (int, error)
	MarkCanceled(ctx context.Context, id int64, now time.Time) (bool, error)
}

// TransactionStore is implemented by database.PaymentTransactionRepository
type TransactionStore interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	FindPollable(ctx context.Context, method models.PaymentMethod, createdAfter time.Time) ([]*models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, transactionID string, status models.PaymentStatus, note *string, now time.Time) (bool, error)
}

// WebhookLogStore is implemented by database.WebhookLogRepository
type WebhookLogStore interface {
	ExistsByPayloadHash(ctx context.Context, payloadHash string) (bool, error)
}

// SettlementStore commits an applied payment event atomically.
// Implemented by database.PaymentSettlementRepository.
type SettlementStore interface {
	Settle(ctx context.Context, settlement *models.PaymentSettlement) (models.SettlementOutcome, error)
}

// SessionStore holds the short-lived booking session in Redis.
// Implemented by cache.SessionStore.
type SessionStore interface {
	SeatNumbers(ctx context.Context, bookingID int64) ([]string, error)
	DeleteSession(ctx context.Context, bookingID int64) error
}

// SeatLockClient is implemented by seatlock.Client
type SeatLockClient interface {
	CancelSeatLocks(ctx context.Context, req seatlock.LockRequest) error
	ConfirmSeatLocks(ctx context.Context, req seatlock.LockRequest) error
}

// EventPublisher is implemented by events.Producer and events.NoopPublisher
type EventPublisher interface {
	PublishBookingCanceled(ctx context.Context, event events.BookingEvent) error
	PublishBookingConfirmed(ctx context.Context, event events.BookingEvent) error
}

// TransactionQuerier asks the gateway for the current state of a payment.
// Implemented by vnpay.Client.
type TransactionQuerier interface {
	QueryTransaction(ctx context.Context, req vnpay.QueryRequest) (*vnpay.QueryResult, error)
}

// SignatureVerifier checks a gateway callback payload.
// Implemented by vnpay.Client.
type SignatureVerifier interface {
	VerifyIPN(raw string) bool
}

// PaymentEventProcessor applies a payment status event.
// Implemented by PaymentWebhookService.
type PaymentEventProcessor interface {
	Process(ctx context.Context, event *models.PaymentStatusEvent) (string, error)
}
