package models

import "time"

// PaymentSettlement is one applied payment event: the transaction status,
// the linked booking status and the webhook log row, committed together.
type PaymentSettlement struct {
	TransactionID string
	Status        PaymentStatus
	// BookingID nil or BookingTo empty leaves the booking untouched
	BookingID   *int64
	BookingFrom []BookingStatus
	BookingTo   BookingStatus
	Log         *PaymentWebhookLog
	At          time.Time
}

// SettlementOutcome reports which guarded updates matched
type SettlementOutcome struct {
	TransactionUpdated  bool
	BookingTransitioned bool
}
