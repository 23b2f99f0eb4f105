package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
)

// ExpirationReasonTimeout is the cancellation reason published for reaped bookings
const ExpirationReasonTimeout = "PAYMENT_TIMEOUT"

// BookingExpirationService cancels bookings whose payment window has passed
// and returns their seats to sale.
type BookingExpirationService struct {
	bookings  BookingStore
	releaser  *seatReleaser
	publisher EventPublisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingExpirationService creates a new expiration service
func NewBookingExpirationService(
	bookings BookingStore,
	sessions SessionStore,
	seatLocks SeatLockClient,
	publisher EventPublisher,
	logger *logrus.Logger,
) *BookingExpirationService {
	return &BookingExpirationService{
		bookings: bookings,
		releaser: &seatReleaser{
			sessions:  sessions,
			seatLocks: seatLocks,
			logger:    logger,
		},
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RunSweep cancels every expired AWAITING_PAYMENT booking. Each booking is
// handled independently; only a listing failure aborts the pass.
func (s *BookingExpirationService) RunSweep(ctx context.Context) (*models.CleanupReport, error) {
	start := s.now()
	report := &models.CleanupReport{StartTime: start}

	expired, err := s.bookings.FindExpiredAwaitingPayment(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired bookings: %w", err)
	}
	report.TotalExpiredFound = len(expired)

	if len(expired) > 0 {
		s.logger.WithField("count", len(expired)).Info("Processing expired bookings")
	}

	for _, booking := range expired {
		if ctx.Err() != nil {
			s.logger.WithError(ctx.Err()).Warn("Expiration sweep interrupted")
			break
		}

		canceled, err := s.expireBooking(ctx, booking)
		if err != nil {
			report.FailedCount++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id":   booking.ID,
				"booking_code": booking.BookingCode,
			}).Error("Failed to cancel expired booking")
			continue
		}
		if canceled {
			report.CanceledCount++
		}
	}

	report.EndTime = s.now()
	report.ProcessingTimeMs = report.EndTime.Sub(start).Milliseconds()

	if report.TotalExpiredFound > 0 {
		s.logger.WithFields(logrus.Fields{
			"found":    report.TotalExpiredFound,
			"canceled": report.CanceledCount,
			"failed":   report.FailedCount,
			"ms":       report.ProcessingTimeMs,
		}).Info("Expiration sweep complete")
	}

	return report, nil
}

// expireBooking cancels one booking. Returns false when another actor moved
// the booking out of AWAITING_PAYMENT first.
func (s *BookingExpirationService) expireBooking(ctx context.Context, booking *models.Booking) (bool, error) {
	now := s.now()

	canceled, err := s.bookings.MarkCanceled(ctx, booking.ID, now)
	if err != nil {
		return false, err
	}
	if !canceled {
		s.logger.WithField("booking_code", booking.BookingCode).Debug("Booking no longer awaiting payment, skipping")
		return false, nil
	}

	booking.Status = models.BookingStatusCanceled
	booking.UpdatedAt = &now

	seats := s.releaser.release(ctx, booking)

	event := newBookingEvent(events.TypeBookingCanceled, booking, models.BookingStatusCanceled, seats, now)
	event.Reason = ExpirationReasonTimeout
	if err := s.publisher.PublishBookingCanceled(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_code", booking.BookingCode).Warn("Failed to publish booking canceled event")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"booking_code": booking.BookingCode,
	}).Info("Expired booking canceled")

	return true, nil
}

// TriggerCleanup runs a sweep on demand and reports what is left afterwards
func (s *BookingExpirationService) TriggerCleanup(ctx context.Context) (*models.CleanupReport, error) {
	s.logger.Info("Manual expiration cleanup triggered")

	report, err := s.RunSweep(ctx)
	if err != nil {
		return nil, err
	}

	remaining, err := s.ExpiredCount(ctx)
	if err != nil {
		return nil, err
	}
	report.RemainingExpired = remaining
	report.EndTime = s.now()
	report.ProcessingTimeMs = report.EndTime.Sub(report.StartTime).Milliseconds()

	return report, nil
}

// ExpiredCount returns how many bookings are waiting to be reaped
func (s *BookingExpirationService) ExpiredCount(ctx context.Context) (int, error) {
	count, err := s.bookings.CountExpiredAwaitingPayment(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count expired bookings: %w", err)
	}
	return count, nil
}

// CleanupStatus returns the admin view of pending expirations
func (s *BookingExpirationService) CleanupStatus(ctx context.Context) (*models.CleanupStatus, error) {
	count, err := s.ExpiredCount(ctx)
	if err != nil {
		return nil, err
	}
	return &models.CleanupStatus{
		ExpiredBookingsCount: count,
		CleanupNeeded:        count > 0,
		CheckedAt:            s.now(),
	}, nil
}

// IsBookingExpired reports whether the booking is past its payment window.
// An unknown booking is not expired.
func (s *BookingExpirationService) IsBookingExpired(ctx context.Context, bookingID int64) (bool, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	return booking.IsExpiredAt(s.now()), nil
}

// SetBookingExpiration starts the payment window on a booking
func (s *BookingExpirationService) SetBookingExpiration(booking *models.Booking, timeoutMinutes int) {
	booking.SetExpiration(s.now(), timeoutMinutes)
}
