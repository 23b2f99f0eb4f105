package services

import (
	"context"
	"time"

	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/seatlock"
	"github.com/sirupsen/logrus"
)

// seatReleaser returns or commits the seats a booking holds in the route
// service. Every step is best effort.
type seatReleaser struct {
	sessions  SessionStore
	seatLocks SeatLockClient
	logger    *logrus.Logger
}

// seats reads the booking's seat list from its session. A missing or
// unreadable session yields an empty list.
func (r *seatReleaser) seats(ctx context.Context, booking *models.Booking) []string {
	fields := logrus.Fields{"booking_id": booking.ID, "booking_code": booking.BookingCode}

	seats, err := r.sessions.SeatNumbers(ctx, booking.ID)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("Failed to read seat list from booking session")
		return []string{}
	}
	if seats == nil {
		r.logger.WithFields(fields).Warn("No seat list in booking session")
		return []string{}
	}
	return seats
}

// release cancels the seat locks, then deletes the session key
// unconditionally. Returns the seat numbers that were released.
func (r *seatReleaser) release(ctx context.Context, booking *models.Booking) []string {
	fields := logrus.Fields{"booking_id": booking.ID, "booking_code": booking.BookingCode}

	var seats []string
	if booking.HoldsSeatLocks() {
		seats = r.seats(ctx, booking)
		err := r.seatLocks.CancelSeatLocks(ctx, seatlock.LockRequest{
			BookingID:   booking.ID,
			TripID:      *booking.TripID,
			SeatNumbers: seats,
		})
		if err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("Failed to cancel seat locks")
		} else {
			r.logger.WithFields(fields).WithField("seats", seats).Info("Seat locks canceled")
		}
	}

	if err := r.sessions.DeleteSession(ctx, booking.ID); err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("Failed to delete booking session")
	}
	return seats
}

// confirm commits the seat locks of a paid booking
func (r *seatReleaser) confirm(ctx context.Context, booking *models.Booking) []string {
	if !booking.HoldsSeatLocks() {
		return nil
	}

	seats := r.seats(ctx, booking)
	err := r.seatLocks.ConfirmSeatLocks(ctx, seatlock.LockRequest{
		BookingID:   booking.ID,
		TripID:      *booking.TripID,
		SeatNumbers: seats,
	})
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":   booking.ID,
			"booking_code": booking.BookingCode,
		}).Error("Failed to confirm seat locks for paid booking")
	}
	return seats
}

func newBookingEvent(eventType string, booking *models.Booking, status models.BookingStatus, seats []string, at time.Time) events.BookingEvent {
	return events.BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		TripID:      booking.TripID,
		SeatNumbers: seats,
		Status:      string(status),
		OccurredAt:  at,
	}
}
