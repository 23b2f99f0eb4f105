package models

import "github.com/shopspring/decimal"

// PaymentEventSource identifies who produced a payment status event
type PaymentEventSource string

const (
	PaymentSourceGateway              PaymentEventSource = "GATEWAY"
	PaymentSourceReconciliationPoller PaymentEventSource = "RECONCILIATION_POLLER"
)

// PaymentStatusEvent is the provider-neutral form of a payment status change.
// Gateway callbacks and poller-synthesized updates both arrive as this type
// and go through the same processing path.
type PaymentStatusEvent struct {
	Source            PaymentEventSource `json:"source"`
	Provider          PaymentMethod      `json:"provider"`
	TransactionRef    string             `json:"transaction_ref"`
	OrderInfo         string             `json:"order_info,omitempty"`
	ResponseCode      string             `json:"response_code"`
	TransactionStatus string             `json:"transaction_status"`
	Amount            decimal.Decimal    `json:"amount"`
	PayDate           string             `json:"pay_date,omitempty"`
	Status            PaymentStatus      `json:"status"`

	// RawPayload is the provider wire encoding, hashed for idempotency
	RawPayload string `json:"raw_payload"`
	Signature  string `json:"signature"`
}

// IsSynthesized reports whether the event was produced by the poller
func (e *PaymentStatusEvent) IsSynthesized() bool {
	return e.Source == PaymentSourceReconciliationPoller
}
