package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ridehub/ms-booking/internal/database"
	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
)

// Webhook processing results
const (
	WebhookResultInvalidSignature    = "INVALID_SIGNATURE"
	WebhookResultAlreadyProcessed    = "ALREADY_PROCESSED"
	WebhookResultTransactionNotFound = "TRANSACTION_NOT_FOUND"
	WebhookResultAlreadyFinal        = "ALREADY_FINAL"
	WebhookResultSuccess             = "SUCCESS"
	WebhookResultFailed              = "FAILED"
	WebhookResultRefunded            = "REFUNDED"
	WebhookResultProcessed           = "PROCESSED"
	WebhookResultUnsupportedStatus   = "UNSUPPORTED_STATUS"
	WebhookResultError               = "ERROR"
)

// IsAppliedWebhookResult reports whether a result changed transaction state
func IsAppliedWebhookResult(result string) bool {
	switch result {
	case WebhookResultSuccess, WebhookResultFailed, WebhookResultRefunded, WebhookResultProcessed:
		return true
	}
	return false
}

// PaymentWebhookService is the single entry point for payment status
// changes, whether they come from the gateway or from the poller.
type PaymentWebhookService struct {
	bookings     BookingStore
	transactions TransactionStore
	webhookLogs  WebhookLogStore
	settlements  SettlementStore
	releaser     *seatReleaser
	publisher    EventPublisher
	verifiers    map[models.PaymentMethod]SignatureVerifier
	logger       *logrus.Logger
	now          func() time.Time
}

// NewPaymentWebhookService creates a new webhook service. verifiers holds the
// signature check for each provider that sends callbacks.
func NewPaymentWebhookService(
	bookings BookingStore,
	transactions TransactionStore,
	webhookLogs WebhookLogStore,
	settlements SettlementStore,
	sessions SessionStore,
	seatLocks SeatLockClient,
	publisher EventPublisher,
	verifiers map[models.PaymentMethod]SignatureVerifier,
	logger *logrus.Logger,
) *PaymentWebhookService {
	return &PaymentWebhookService{
		bookings:     bookings,
		transactions: transactions,
		webhookLogs:  webhookLogs,
		settlements:  settlements,
		releaser: &seatReleaser{
			sessions:  sessions,
			seatLocks: seatLocks,
			logger:    logger,
		},
		publisher: publisher,
		verifiers: verifiers,
		logger:    logger,
		now:       time.Now,
	}
}

// PayloadHash is the idempotency key of a webhook payload
func PayloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// settlementPlan is what an event status does to the transaction and its booking
type settlementPlan struct {
	paymentStatus models.PaymentStatus
	bookingFrom   []models.BookingStatus
	bookingTo     models.BookingStatus
	result        string
}

func planSettlement(status models.PaymentStatus) (settlementPlan, bool) {
	switch status {
	case models.PaymentStatusSuccess:
		return settlementPlan{
			paymentStatus: models.PaymentStatusSuccess,
			bookingFrom:   []models.BookingStatus{models.BookingStatusAwaitingPayment},
			bookingTo:     models.BookingStatusConfirmed,
			result:        WebhookResultSuccess,
		}, true
	case models.PaymentStatusFailed:
		return settlementPlan{
			paymentStatus: models.PaymentStatusFailed,
			bookingFrom:   []models.BookingStatus{models.BookingStatusAwaitingPayment},
			bookingTo:     models.BookingStatusCanceled,
			result:        WebhookResultFailed,
		}, true
	case models.PaymentStatusRefunded:
		return settlementPlan{
			paymentStatus: models.PaymentStatusRefunded,
			bookingFrom:   []models.BookingStatus{models.BookingStatusAwaitingPayment, models.BookingStatusConfirmed},
			bookingTo:     models.BookingStatusRefunded,
			result:        WebhookResultRefunded,
		}, true
	case models.PaymentStatusProcessing:
		return settlementPlan{
			paymentStatus: models.PaymentStatusProcessing,
			result:        WebhookResultProcessed,
		}, true
	}
	return settlementPlan{}, false
}

// Process verifies and applies one payment status event. The returned
// result names what happened; an error is returned only for storage
// failures, after which nothing has been written and the same event may be
// retried.
func (s *PaymentWebhookService) Process(ctx context.Context, event *models.PaymentStatusEvent) (string, error) {
	fields := logrus.Fields{
		"transaction_id": event.TransactionRef,
		"provider":       event.Provider,
		"source":         event.Source,
	}

	if !s.verify(event) {
		s.logger.WithFields(fields).Warn("Payment webhook rejected: invalid signature")
		return WebhookResultInvalidSignature, nil
	}

	payloadHash := PayloadHash(event.RawPayload)
	seen, err := s.webhookLogs.ExistsByPayloadHash(ctx, payloadHash)
	if err != nil {
		return "", err
	}
	if seen {
		s.logger.WithFields(fields).Debug("Payment webhook already processed")
		return WebhookResultAlreadyProcessed, nil
	}

	txn, err := s.transactions.GetByTransactionID(ctx, event.TransactionRef)
	if err != nil {
		return "", err
	}
	if txn == nil {
		s.logger.WithFields(fields).Warn("Payment webhook for unknown transaction")
		return WebhookResultTransactionNotFound, nil
	}
	if txn.Status.IsTerminal() {
		s.logger.WithFields(fields).WithField("status", txn.Status).Info("Payment webhook for final transaction ignored")
		return WebhookResultAlreadyFinal, nil
	}

	plan, ok := planSettlement(event.Status)
	if !ok {
		s.logger.WithFields(fields).WithField("status", event.Status).Warn("Payment webhook carries unsupported status")
		return WebhookResultUnsupportedStatus, nil
	}

	var booking *models.Booking
	if plan.bookingTo != "" {
		booking, err = s.linkedBooking(ctx, txn)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Failed to apply payment webhook")
			return WebhookResultError, err
		}
	}

	now := s.now()
	entry := models.NewPaymentWebhookLog(event, payloadHash, now)
	entry.MarkProcessed(plan.result, now)

	settlement := &models.PaymentSettlement{
		TransactionID: txn.TransactionID,
		Status:        plan.paymentStatus,
		Log:           entry,
		At:            now,
	}
	if booking != nil {
		settlement.BookingID = &booking.ID
		settlement.BookingFrom = plan.bookingFrom
		settlement.BookingTo = plan.bookingTo
	}

	outcome, err := s.settlements.Settle(ctx, settlement)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateWebhook) {
			return WebhookResultAlreadyProcessed, nil
		}
		s.logger.WithError(err).WithFields(fields).Error("Failed to apply payment webhook")
		return WebhookResultError, err
	}
	if !outcome.TransactionUpdated {
		s.logger.WithFields(fields).Info("Transaction reached a final status concurrently")
		return WebhookResultAlreadyFinal, nil
	}

	if booking != nil {
		s.afterSettlement(ctx, event, txn, booking, plan, outcome.BookingTransitioned, now)
	}

	s.logger.WithFields(fields).WithField("result", plan.result).Info("Payment webhook processed")
	return plan.result, nil
}

func (s *PaymentWebhookService) verify(event *models.PaymentStatusEvent) bool {
	if event.IsSynthesized() {
		return hasSynthesizedSignature(event.Signature)
	}
	verifier, ok := s.verifiers[event.Provider]
	if !ok || verifier == nil {
		return false
	}
	return verifier.VerifyIPN(event.RawPayload)
}

// afterSettlement runs the seat and event side effects of a committed
// settlement. They are best effort and never undo the settlement.
func (s *PaymentWebhookService) afterSettlement(
	ctx context.Context,
	event *models.PaymentStatusEvent,
	txn *models.PaymentTransaction,
	booking *models.Booking,
	plan settlementPlan,
	transitioned bool,
	now time.Time,
) {
	if !transitioned {
		fields := logrus.Fields{
			"booking_code":   booking.BookingCode,
			"booking_status": booking.Status,
			"transaction_id": txn.TransactionID,
		}
		if plan.paymentStatus == models.PaymentStatusSuccess {
			s.logger.WithFields(fields).Warn("Payment succeeded but booking is no longer awaiting payment")
		} else {
			s.logger.WithFields(fields).Debug("Booking already left the payable states")
		}
		return
	}

	if plan.bookingTo == models.BookingStatusConfirmed {
		seats := s.releaser.confirm(ctx, booking)

		bookingEvent := newBookingEvent(events.TypeBookingConfirmed, booking, models.BookingStatusConfirmed, seats, now)
		bookingEvent.TransactionID = txn.TransactionID
		if err := s.publisher.PublishBookingConfirmed(ctx, bookingEvent); err != nil {
			s.logger.WithError(err).WithField("booking_code", booking.BookingCode).Warn("Failed to publish booking confirmed event")
		}
		return
	}

	seats := s.releaser.release(ctx, booking)

	bookingEvent := newBookingEvent(events.TypeBookingCanceled, booking, plan.bookingTo, seats, now)
	bookingEvent.TransactionID = txn.TransactionID
	bookingEvent.Reason = "PAYMENT_" + string(plan.paymentStatus)
	if event.ResponseCode != "" {
		bookingEvent.Reason += ":" + event.ResponseCode
	}
	if err := s.publisher.PublishBookingCanceled(ctx, bookingEvent); err != nil {
		s.logger.WithError(err).WithField("booking_code", booking.BookingCode).Warn("Failed to publish booking canceled event")
	}
}

func (s *PaymentWebhookService) linkedBooking(ctx context.Context, txn *models.PaymentTransaction) (*models.Booking, error) {
	if txn.BookingID == nil {
		s.logger.WithField("transaction_id", txn.TransactionID).Warn("Transaction has no linked booking")
		return nil, nil
	}
	booking, err := s.bookings.GetByID(ctx, *txn.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %d: %w", *txn.BookingID, err)
	}
	if booking == nil {
		s.logger.WithField("booking_id", *txn.BookingID).Warn("Linked booking not found")
	}
	return booking, nil
}
