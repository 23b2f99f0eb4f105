package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/sirupsen/logrus"
)

// PaymentPollingConfig holds configuration for the reconciliation poller
type PaymentPollingConfig struct {
	Method      models.PaymentMethod
	MaxAttempts int           // polls per transaction before giving up
	Lookback    time.Duration // only transactions created within this window
	Cooldown    time.Duration // minimum gap between polls of one transaction
	TrackingTTL time.Duration // tracking entries idle longer than this are dropped
	BackoffGap  int           // a duplicate-request reply leaves this many attempts
	CallerIP    string
}

// DefaultPaymentPollingConfig returns default configuration
func DefaultPaymentPollingConfig() PaymentPollingConfig {
	return PaymentPollingConfig{
		Method:      models.PaymentMethodVNPay,
		MaxAttempts: 30,
		Lookback:    24 * time.Hour,
		Cooldown:    90 * time.Second,
		TrackingTTL: 2 * time.Hour,
		BackoffGap:  5,
		CallerIP:    "127.0.0.1",
	}
}

// PollSummary counts what one polling pass did
type PollSummary struct {
	Found     int `json:"found"`
	Polled    int `json:"polled"`
	Updated   int `json:"updated"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
}

// PaymentPollingService asks the gateway about payments that never received
// a callback and feeds any change through the webhook processor.
type PaymentPollingService struct {
	transactions TransactionStore
	bookings     BookingStore
	gateway      TransactionQuerier
	processor    PaymentEventProcessor
	tracker      *PollTracker
	config       PaymentPollingConfig
	logger       *logrus.Logger
	now          func() time.Time
}

// NewPaymentPollingService creates a new polling service
func NewPaymentPollingService(
	transactions TransactionStore,
	bookings BookingStore,
	gateway TransactionQuerier,
	processor PaymentEventProcessor,
	config PaymentPollingConfig,
	logger *logrus.Logger,
) *PaymentPollingService {
	return &PaymentPollingService{
		transactions: transactions,
		bookings:     bookings,
		gateway:      gateway,
		processor:    processor,
		tracker:      NewPollTracker(),
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// Tracker exposes the per-instance tracking state
func (s *PaymentPollingService) Tracker() *PollTracker {
	return s.tracker
}

// PollPending runs one polling pass over the pending transactions in the
// lookback window.
func (s *PaymentPollingService) PollPending(ctx context.Context) (*PollSummary, error) {
	cutoff := s.now().Add(-s.config.Lookback)

	txns, err := s.transactions.FindPollable(ctx, s.config.Method, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transactions: %w", err)
	}

	summary := &PollSummary{Found: len(txns)}
	s.logger.WithFields(logrus.Fields{
		"count":  len(txns),
		"method": s.config.Method,
	}).Debug("Polling pending transactions")

	for _, txn := range txns {
		if ctx.Err() != nil {
			s.logger.WithError(ctx.Err()).Warn("Polling pass interrupted")
			break
		}

		expired, err := s.bookingExpired(ctx, txn)
		if err != nil {
			s.logger.WithError(err).WithField("transaction_id", txn.TransactionID).Error("Failed to check booking expiration")
			continue
		}
		if expired {
			s.recoverExpiredBooking(ctx, txn)
			summary.Recovered++
			continue
		}

		if !s.tracker.Eligible(txn.TransactionID, s.now(), s.config.MaxAttempts, s.config.Cooldown) {
			summary.Skipped++
			continue
		}

		summary.Polled++
		if s.poll(ctx, txn) {
			summary.Updated++
		}
	}

	if summary.Updated > 0 || summary.Recovered > 0 {
		s.logger.WithFields(logrus.Fields{
			"found":     summary.Found,
			"polled":    summary.Polled,
			"updated":   summary.Updated,
			"recovered": summary.Recovered,
		}).Info("Payment polling pass complete")
	}

	return summary, nil
}

// PollTransaction polls one transaction on demand, ignoring the attempt
// limit and cooldown. Returns whether a status change was applied.
func (s *PaymentPollingService) PollTransaction(ctx context.Context, transactionID string) (bool, error) {
	s.logger.WithField("transaction_id", transactionID).Info("Manual payment poll triggered")

	txn, err := s.transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if txn == nil || txn.IsDeleted {
		return false, nil
	}
	if txn.Method != s.config.Method {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"method":         txn.Method,
		}).Warn("Transaction is not handled by this poller")
		return false, nil
	}
	if txn.Status.IsTerminal() {
		return false, nil
	}

	return s.poll(ctx, txn), nil
}

// CleanupTracking drops tracking entries idle for longer than the TTL
func (s *PaymentPollingService) CleanupTracking() int {
	removed := s.tracker.Cleanup(s.now().Add(-s.config.TrackingTTL))
	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": s.tracker.Len(),
		}).Info("Polling tracking cleaned up")
	}
	return removed
}

func (s *PaymentPollingService) bookingExpired(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	if txn.BookingID == nil {
		return false, nil
	}
	booking, err := s.bookings.GetByID(ctx, *txn.BookingID)
	if err != nil {
		return false, err
	}
	return booking.IsExpiredAt(s.now()), nil
}

func (s *PaymentPollingService) queryRequest(txn *models.PaymentTransaction) vnpay.QueryRequest {
	req := vnpay.QueryRequest{
		TxnRef:   txn.TransactionID,
		OrderRef: txn.OrderRef,
		IPAddr:   s.config.CallerIP,
	}
	if txn.GatewayCreateDate != nil {
		req.TransactionDate = *txn.GatewayCreateDate
	}
	return req
}

// poll queries the gateway once. Transport errors do not consume an attempt.
func (s *PaymentPollingService) poll(ctx context.Context, txn *models.PaymentTransaction) bool {
	fields := logrus.Fields{"transaction_id": txn.TransactionID, "order_ref": txn.OrderRef}

	s.tracker.Record(txn.TransactionID, s.now())

	result, err := s.gateway.QueryTransaction(ctx, s.queryRequest(txn))
	if err != nil {
		s.tracker.Rollback(txn.TransactionID)
		s.logger.WithError(err).WithFields(fields).Warn("Gateway query failed")
		return false
	}

	if result.IsDuplicate() {
		s.tracker.FastForward(txn.TransactionID, s.config.MaxAttempts-s.config.BackoffGap)
		s.logger.WithFields(fields).Debug("Duplicate gateway request, backing off")
		return false
	}

	if !result.IsSuccess() {
		s.logger.WithFields(fields).WithFields(logrus.Fields{
			"response_code": result.ResponseCode,
			"message":       result.Message,
		}).Warn("Gateway query rejected")
		return false
	}

	newStatus := classifyVNPay(result.ResponseCode, result.TransactionStatus)
	if newStatus == "" {
		s.logger.WithFields(fields).Warn("Gateway reply missing transaction status")
		return false
	}
	if newStatus == txn.Status {
		s.logger.WithFields(fields).WithField("status", newStatus).Debug("Transaction status unchanged")
		return false
	}

	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"from": txn.Status,
		"to":   newStatus,
	}).Info("Transaction status changed at gateway")

	event := synthesizeVNPayEvent(txn, result, s.now())
	outcome, err := s.processor.Process(ctx, event)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Failed to apply polled status")
		return false
	}

	if newStatus.IsTerminal() {
		s.tracker.Remove(txn.TransactionID)
	}

	s.logger.WithFields(fields).WithField("result", outcome).Debug("Polled status applied")
	return IsAppliedWebhookResult(outcome)
}

// recoverExpiredBooking settles a pending payment whose booking has already
// expired. The gateway is asked once; if the customer paid anyway the
// transaction is flagged for manual recovery.
func (s *PaymentPollingService) recoverExpiredBooking(ctx context.Context, txn *models.PaymentTransaction) {
	fields := logrus.Fields{"transaction_id": txn.TransactionID, "order_ref": txn.OrderRef}
	defer s.tracker.Remove(txn.TransactionID)

	var (
		status models.PaymentStatus
		note   string
	)

	result, err := s.gateway.QueryTransaction(ctx, s.queryRequest(txn))
	switch {
	case err != nil:
		status = models.PaymentStatusRequiresManualReview
		note = fmt.Sprintf("Booking expired but gateway status could not be verified (error: %v). Manual review required.", err)
	case !result.IsSuccess():
		status = models.PaymentStatusRequiresManualReview
		note = fmt.Sprintf("Booking expired and gateway query failed (code %s: %s). Manual review required.",
			result.ResponseCode, result.Message)
	case result.TransactionStatus == "":
		status = models.PaymentStatusRequiresManualReview
		note = "Booking expired and gateway reply carried no transaction status. Manual review required."
	case result.TransactionStatus == vnpay.CodeSuccess:
		status = models.PaymentStatusSuccessButBookingExpired
		note = fmt.Sprintf("CRITICAL: payment succeeded (status %s, amount %s) but booking had expired when checked at %s. Manual recovery required.",
			result.TransactionStatus, formatAmount(result.Amount), s.now().UTC().Format(time.RFC3339))
	default:
		status = models.PaymentStatusFailed
		note = fmt.Sprintf("Booking expired - payment failed (gateway %s/%s)", result.ResponseCode, result.TransactionStatus)
	}

	updated, err := s.transactions.UpdateStatus(ctx, txn.TransactionID, status, &note, s.now())
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Failed to record expired booking payment outcome")
		return
	}
	if !updated {
		s.logger.WithFields(fields).Debug("Transaction already final, expired booking recovery skipped")
		return
	}

	entry := s.logger.WithFields(fields).WithField("status", status)
	switch status {
	case models.PaymentStatusSuccessButBookingExpired:
		entry.Error("Payment succeeded for expired booking, manual recovery required")
	case models.PaymentStatusRequiresManualReview:
		entry.Warn("Expired booking payment marked for manual review")
	default:
		entry.Info("Expired booking payment marked failed")
	}
}
