package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/shopspring/decimal"
)

// SynthesizedSignaturePrefix marks events produced by the reconciliation
// poller instead of the gateway.
const SynthesizedSignaturePrefix = "POLLING_SYNTHESIZED_"

// classifyVNPay maps a VNPay response to a payment status. A "00" response
// code defers to the transaction status for the remaining checks; when that
// status is missing the outcome is unknown and the empty status is returned,
// which no caller applies.
func classifyVNPay(responseCode, transactionStatus string) models.PaymentStatus {
	code := responseCode
	if code == vnpay.CodeSuccess {
		if transactionStatus == "" {
			return ""
		}
		code = transactionStatus
	}

	switch code {
	case vnpay.CodeSuccess:
		return models.PaymentStatusSuccess
	case vnpay.CodeProcessing, vnpay.CodeAwaitingPayment:
		return models.PaymentStatusProcessing
	case vnpay.CodeRefunded:
		return models.PaymentStatusRefunded
	default:
		return models.PaymentStatusFailed
	}
}

// EventFromVNPayIPN turns a raw IPN query string into a gateway event. The
// signature is not checked here; the webhook processor verifies it.
func EventFromVNPayIPN(raw string) (*models.PaymentStatusEvent, error) {
	ipn, params, err := vnpay.ParseIPN(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid VNPay IPN: %w", err)
	}

	event := &models.PaymentStatusEvent{
		Source:            models.PaymentSourceGateway,
		Provider:          models.PaymentMethodVNPay,
		TransactionRef:    ipn.TxnRef,
		OrderInfo:         ipn.OrderInfo,
		ResponseCode:      ipn.ResponseCode,
		TransactionStatus: ipn.TransactionStatus,
		PayDate:           ipn.PayDate,
		Status:            classifyVNPay(ipn.ResponseCode, ipn.TransactionStatus),
		RawPayload:        raw,
		Signature:         params.Get(vnpay.ParamSecureHash),
	}
	if ipn.Amount != nil {
		event.Amount = *ipn.Amount
	}
	return event, nil
}

// synthesizeVNPayEvent encodes a querydr result in IPN wire form so the
// webhook log holds the same payload shape for both sources.
func synthesizeVNPayEvent(txn *models.PaymentTransaction, result *vnpay.QueryResult, now time.Time) *models.PaymentStatusEvent {
	ipn := &vnpay.IPN{
		TxnRef:            txn.TransactionID,
		OrderInfo:         "Payment for booking: " + txn.OrderRef,
		ResponseCode:      result.ResponseCode,
		TransactionStatus: result.TransactionStatus,
		Amount:            result.Amount,
		BankCode:          "VNPAY",
		CardType:          "ATM",
	}
	if txn.GatewayCreateDate != nil {
		ipn.PayDate = *txn.GatewayCreateDate
	}

	signature := fmt.Sprintf("%s%d", SynthesizedSignaturePrefix, now.UnixMilli())

	amount := txn.Amount
	if result.Amount != nil {
		amount = *result.Amount
	}

	return &models.PaymentStatusEvent{
		Source:            models.PaymentSourceReconciliationPoller,
		Provider:          models.PaymentMethodVNPay,
		TransactionRef:    txn.TransactionID,
		OrderInfo:         ipn.OrderInfo,
		ResponseCode:      result.ResponseCode,
		TransactionStatus: result.TransactionStatus,
		Amount:            amount,
		PayDate:           ipn.PayDate,
		Status:            classifyVNPay(result.ResponseCode, result.TransactionStatus),
		RawPayload:        ipn.Encode() + "&" + vnpay.ParamSecureHash + "=" + signature,
		Signature:         signature,
	}
}

func hasSynthesizedSignature(signature string) bool {
	return strings.HasPrefix(signature, SynthesizedSignaturePrefix) &&
		len(signature) > len(SynthesizedSignaturePrefix)
}

func formatAmount(amount *decimal.Decimal) string {
	if amount == nil {
		return "unknown"
	}
	return amount.String()
}
