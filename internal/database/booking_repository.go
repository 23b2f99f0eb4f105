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

const bookingColumns = `
	id, booking_code, status, quantity, total_amount, expires_at,
	timeout_minutes, lock_group_id, trip_id, created_at, updated_at, is_deleted`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID retrieves a booking by ID. Returns nil, nil when it does not exist.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return &booking, nil
}

// ============================================================================
// EXPIRATION (Background Job Support)
// ============================================================================

// FindExpiredAwaitingPayment returns non-deleted bookings still awaiting
// payment whose expires_at is at or before now
func (r *BookingRepository) FindExpiredAwaitingPayment(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		  AND is_deleted = FALSE
		ORDER BY expires_at`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, models.BookingStatusAwaitingPayment, now); err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return bookings, nil
}

// CountExpiredAwaitingPayment counts the rows FindExpiredAwaitingPayment would return
func (r *BookingRepository) CountExpiredAwaitingPayment(ctx context.Context, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE status = $1
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		  AND is_deleted = FALSE`

	var count int
	if err := r.db.GetContext(ctx, &count, query, models.BookingStatusAwaitingPayment, now); err != nil {
		return 0, fmt.Errorf("failed to count expired bookings: %w", err)
	}
	return count, nil
}

// ============================================================================
// STATUS UPDATE OPERATIONS
// ============================================================================

// TransitionStatus moves a booking to status `to` only while its current
// status is one of `from`. Returns false when the guard did not match, which
// callers treat as "someone else already moved it".
func (r *BookingRepository) TransitionStatus(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, now time.Time) (bool, error) {
	return transitionBookingStatus(ctx, r.db, id, from, to, now)
}

// transitionBookingStatus runs the guarded booking update on a DB or a Tx
func transitionBookingStatus(ctx context.Context, exec sqlx.ExecerContext, id int64, from []models.BookingStatus, to models.BookingStatus, now time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE bookings
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4) AND is_deleted = FALSE`

	result, err := exec.ExecContext(ctx, query, id, to, now, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("failed to update booking %d to %s: %w", id, to, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkCanceled cancels a booking that is still awaiting payment
func (r *BookingRepository) MarkCanceled(ctx context.Context, id int64, now time.Time) (bool, error) {
	return r.TransitionStatus(ctx, id, []models.BookingStatus{models.BookingStatusAwaitingPayment}, models.BookingStatusCanceled, now)
}
