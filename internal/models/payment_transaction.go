package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies the gateway used for a transaction
type PaymentMethod string

const (
	PaymentMethodVNPay      PaymentMethod = "VNPAY"
	PaymentMethodMoMo       PaymentMethod = "MOMO"
	PaymentMethodZaloPay    PaymentMethod = "ZALOPAY"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodCash       PaymentMethod = "CASH"
)

// PaymentStatus represents the status of a payment transaction
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "INITIATED"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSuccess    PaymentStatus = "SUCCESS"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"

	// Manual-recovery statuses set when a booking expired while its payment
	// was still in flight.
	PaymentStatusSuccessButBookingExpired PaymentStatus = "PAYMENT_SUCCESS_BUT_BOOKING_EXPIRED"
	PaymentStatusRequiresManualReview     PaymentStatus = "REQUIRES_MANUAL_REVIEW"
)

// PendingPaymentStatuses are the statuses a poll may still change
var PendingPaymentStatuses = []PaymentStatus{PaymentStatusInitiated, PaymentStatusProcessing}

// IsTerminal reports whether the status must never be overwritten
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusProcessing:
		return false
	}
	return true
}

// PaymentTransaction represents one payment attempt for a booking
type PaymentTransaction struct {
	ID                int64           `json:"id" db:"id"`
	TransactionID     string          `json:"transaction_id" db:"transaction_id"`
	OrderRef          string          `json:"order_ref" db:"order_ref"`
	BookingID         *int64          `json:"booking_id,omitempty" db:"booking_id"`
	Method            PaymentMethod   `json:"method" db:"method"`
	Status            PaymentStatus   `json:"status" db:"status"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	GatewayCreateDate *string         `json:"gateway_create_date,omitempty" db:"gateway_create_date"`
	GatewayNote       *string         `json:"gateway_note,omitempty" db:"gateway_note"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
	IsDeleted         bool            `json:"is_deleted" db:"is_deleted"`
}

// AppendNote appends a note to the gateway note, separated by " | "
func (t *PaymentTransaction) AppendNote(note string) {
	if t.GatewayNote != nil && *t.GatewayNote != "" {
		joined := *t.GatewayNote + " | " + note
		t.GatewayNote = &joined
		return
	}
	t.GatewayNote = &note
}
