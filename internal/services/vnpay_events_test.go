package services

import (
	"testing"
	"time"

	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyVNPay(t *testing.T) {
	tests := []struct {
		responseCode      string
		transactionStatus string
		want              models.PaymentStatus
	}{
		{"00", "00", models.PaymentStatusSuccess},
		{"00", "", ""},
		{"07", "", models.PaymentStatusProcessing},
		{"10", "", models.PaymentStatusProcessing},
		{"00", "07", models.PaymentStatusProcessing},
		{"09", "", models.PaymentStatusRefunded},
		{"24", "02", models.PaymentStatusFailed},
		{"00", "02", models.PaymentStatusFailed},
		{"99", "", models.PaymentStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.responseCode+"/"+tt.transactionStatus, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyVNPay(tt.responseCode, tt.transactionStatus))
		})
	}
}

func TestEventFromVNPayIPN(t *testing.T) {
	raw := "vnp_TxnRef=TXN-1&vnp_OrderInfo=Payment+for+booking%3A+BK-1&vnp_ResponseCode=00" +
		"&vnp_TransactionStatus=00&vnp_Amount=15000000&vnp_PayDate=20260301093000&vnp_SecureHash=abc123"

	event, err := EventFromVNPayIPN(raw)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentSourceGateway, event.Source)
	assert.Equal(t, models.PaymentMethodVNPay, event.Provider)
	assert.Equal(t, "TXN-1", event.TransactionRef)
	assert.Equal(t, "Payment for booking: BK-1", event.OrderInfo)
	assert.Equal(t, models.PaymentStatusSuccess, event.Status)
	assert.True(t, dec("150000").Equal(event.Amount))
	assert.Equal(t, "abc123", event.Signature)
	assert.Equal(t, raw, event.RawPayload)
	assert.False(t, event.IsSynthesized())

	_, err = EventFromVNPayIPN("vnp_ResponseCode=00")
	assert.Error(t, err)
}

func TestSynthesizeVNPayEvent(t *testing.T) {
	now := time.UnixMilli(1772359500000)
	txn := &models.PaymentTransaction{
		TransactionID:     "TXN-1",
		OrderRef:          "BK-1",
		Amount:            dec("150000"),
		GatewayCreateDate: strPtr("20260301093000"),
	}

	event := synthesizeVNPayEvent(txn, queryResult("00", "00"), now)

	assert.Equal(t, models.PaymentSourceReconciliationPoller, event.Source)
	assert.Equal(t, "POLLING_SYNTHESIZED_1772359500000", event.Signature)
	assert.True(t, hasSynthesizedSignature(event.Signature))
	assert.Equal(t, models.PaymentStatusSuccess, event.Status)
	assert.Equal(t, "20260301093000", event.PayDate)

	ipn, params, err := vnpay.ParseIPN(event.RawPayload)
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", ipn.TxnRef)
	assert.Equal(t, "Payment for booking: BK-1", ipn.OrderInfo)
	assert.Equal(t, "VNPAY", ipn.BankCode)
	assert.Equal(t, "ATM", ipn.CardType)
	assert.Equal(t, "15000000", params.Get(vnpay.ParamAmount))
	assert.Equal(t, event.Signature, params.Get(vnpay.ParamSecureHash))

	later := synthesizeVNPayEvent(txn, queryResult("00", "00"), now.Add(time.Millisecond))
	assert.NotEqual(t, PayloadHash(event.RawPayload), PayloadHash(later.RawPayload), "each poll hashes differently")
}

func TestSynthesizeVNPayEvent_NoAmountUsesStored(t *testing.T) {
	txn := &models.PaymentTransaction{TransactionID: "TXN-2", OrderRef: "BK-2", Amount: dec("99000")}

	event := synthesizeVNPayEvent(txn, &vnpay.QueryResult{ResponseCode: "00", TransactionStatus: "02"}, time.Now())

	assert.True(t, dec("99000").Equal(event.Amount))
	assert.NotContains(t, event.RawPayload, vnpay.ParamAmount)
	assert.NotContains(t, event.RawPayload, vnpay.ParamPayDate)
	assert.Equal(t, models.PaymentStatusFailed, event.Status)
}
