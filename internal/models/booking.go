package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusDraft           BookingStatus = "DRAFT"
	BookingStatusAwaitingPayment BookingStatus = "AWAITING_PAYMENT"
	BookingStatusConfirmed       BookingStatus = "CONFIRMED"
	BookingStatusCanceled        BookingStatus = "CANCELED"
	BookingStatusRefunded        BookingStatus = "REFUNDED"
)

// Booking represents a passenger reservation on a trip.
// ExpiresAt is only meaningful while Status is AWAITING_PAYMENT.
type Booking struct {
	ID             int64           `json:"id" db:"id"`
	BookingCode    string          `json:"booking_code" db:"booking_code"`
	Status         BookingStatus   `json:"status" db:"status"`
	Quantity       int             `json:"quantity" db:"quantity"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	TimeoutMinutes *int            `json:"timeout_minutes,omitempty" db:"timeout_minutes"`
	LockGroupID    *string         `json:"lock_group_id,omitempty" db:"lock_group_id"`
	TripID         *int64          `json:"trip_id,omitempty" db:"trip_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
	IsDeleted      bool            `json:"is_deleted" db:"is_deleted"`
}

// IsExpiredAt reports whether the booking is still awaiting payment and its
// expiry has passed at the given instant.
func (b *Booking) IsExpiredAt(now time.Time) bool {
	if b == nil || b.IsDeleted {
		return false
	}
	if b.Status != BookingStatusAwaitingPayment || b.ExpiresAt == nil {
		return false
	}
	return !b.ExpiresAt.After(now)
}

// HoldsSeatLocks reports whether the booking carries enough identity to
// address its seat locks in the route service.
func (b *Booking) HoldsSeatLocks() bool {
	return b.LockGroupID != nil && *b.LockGroupID != "" && b.TripID != nil
}

// SetExpiration sets the expiry to now + timeoutMinutes
func (b *Booking) SetExpiration(now time.Time, timeoutMinutes int) {
	expiresAt := now.Add(time.Duration(timeoutMinutes) * time.Minute)
	b.ExpiresAt = &expiresAt
	b.TimeoutMinutes = &timeoutMinutes
}

// CleanupReport summarises one expiration sweep
type CleanupReport struct {
	TotalExpiredFound int       `json:"total_expired_found"`
	CanceledCount     int       `json:"canceled_count"`
	FailedCount       int       `json:"failed_count"`
	RemainingExpired  int       `json:"remaining_expired"`
	ProcessingTimeMs  int64     `json:"processing_time_ms"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// CleanupStatus is the read-only view returned by the admin status endpoint
type CleanupStatus struct {
	ExpiredBookingsCount int       `json:"expired_bookings_count"`
	CleanupNeeded        bool      `json:"cleanup_needed"`
	CheckedAt            time.Time `json:"checked_at"`
}
