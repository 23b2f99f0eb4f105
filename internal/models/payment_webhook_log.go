package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookProcessingStatus is the outcome recorded on a webhook log row
type WebhookProcessingStatus string

const (
	WebhookStatusReceived  WebhookProcessingStatus = "RECEIVED"
	WebhookStatusProcessed WebhookProcessingStatus = "PROCESSED"
)

// PaymentWebhookLog is one row per applied webhook payload. The row is
// written in the same transaction as the status change it caused, and the
// payload hash is unique so a replayed payload is detected before it is
// applied.
type PaymentWebhookLog struct {
	ID               uuid.UUID               `json:"id" db:"id"`
	Provider         PaymentMethod           `json:"provider" db:"provider"`
	PayloadHash      string                  `json:"payload_hash" db:"payload_hash"`
	Payload          string                  `json:"payload" db:"payload"`
	Source           PaymentEventSource      `json:"source" db:"source"`
	ProcessingStatus WebhookProcessingStatus `json:"processing_status" db:"processing_status"`
	Result           *string                 `json:"result,omitempty" db:"result"`
	TransactionID    *string                 `json:"transaction_id,omitempty" db:"transaction_id"`
	ReceivedAt       time.Time               `json:"received_at" db:"received_at"`
	ProcessedAt      *time.Time              `json:"processed_at,omitempty" db:"processed_at"`
}

// NewPaymentWebhookLog creates a log entry in RECEIVED state
func NewPaymentWebhookLog(event *PaymentStatusEvent, payloadHash string, receivedAt time.Time) *PaymentWebhookLog {
	log := &PaymentWebhookLog{
		ID:               uuid.New(),
		Provider:         event.Provider,
		PayloadHash:      payloadHash,
		Payload:          event.RawPayload,
		Source:           event.Source,
		ProcessingStatus: WebhookStatusReceived,
		ReceivedAt:       receivedAt,
	}
	if event.TransactionRef != "" {
		ref := event.TransactionRef
		log.TransactionID = &ref
	}
	return log
}

// MarkProcessed records the applied result on the entry
func (l *PaymentWebhookLog) MarkProcessed(result string, at time.Time) {
	l.ProcessingStatus = WebhookStatusProcessed
	l.Result = &result
	l.ProcessedAt = &at
}
