package vnpay

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// IPN and query parameter names
const (
	ParamTxnRef            = "vnp_TxnRef"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamAmount            = "vnp_Amount"
	ParamPayDate           = "vnp_PayDate"
	ParamBankCode          = "vnp_BankCode"
	ParamCardType          = "vnp_CardType"
	ParamTmnCode           = "vnp_TmnCode"
	ParamSecureHash        = "vnp_SecureHash"
	ParamSecureHashType    = "vnp_SecureHashType"
)

// amountScale is the factor VNPay applies to amounts on the wire
var amountScale = decimal.NewFromInt(100)

// IPN is an instant payment notification, or a notification synthesized in
// the same shape from a querydr result.
type IPN struct {
	TxnRef            string
	OrderInfo         string
	ResponseCode      string
	TransactionStatus string
	Amount            *decimal.Decimal // major currency units
	PayDate           string
	BankCode          string
	CardType          string
	SecureHash        string
}

// ParseIPN decodes a raw IPN query string
func ParseIPN(raw string) (*IPN, url.Values, error) {
	params, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid IPN query string: %w", err)
	}
	if params.Get(ParamTxnRef) == "" {
		return nil, nil, fmt.Errorf("IPN missing %s", ParamTxnRef)
	}

	ipn := &IPN{
		TxnRef:            params.Get(ParamTxnRef),
		OrderInfo:         params.Get(ParamOrderInfo),
		ResponseCode:      params.Get(ParamResponseCode),
		TransactionStatus: params.Get(ParamTransactionStatus),
		PayDate:           params.Get(ParamPayDate),
		BankCode:          params.Get(ParamBankCode),
		CardType:          params.Get(ParamCardType),
		SecureHash:        params.Get(ParamSecureHash),
	}
	if amountStr := params.Get(ParamAmount); amountStr != "" {
		amount, err := ParseAmount(amountStr)
		if err != nil {
			return nil, nil, err
		}
		ipn.Amount = &amount
	}
	return ipn, params, nil
}

// Encode renders the IPN in its canonical field order. The secure hash is
// not included.
func (n *IPN) Encode() string {
	var sb strings.Builder
	write := func(key, value string) {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(value))
	}

	write(ParamTxnRef, n.TxnRef)
	write(ParamOrderInfo, n.OrderInfo)
	write(ParamResponseCode, n.ResponseCode)
	write(ParamTransactionStatus, n.TransactionStatus)
	if n.Amount != nil {
		write(ParamAmount, FormatAmount(*n.Amount))
	}
	if n.PayDate != "" {
		write(ParamPayDate, n.PayDate)
	}
	write(ParamBankCode, n.BankCode)
	write(ParamCardType, n.CardType)
	return sb.String()
}

// ParseAmount converts a wire amount (x100) to major units
func ParseAmount(s string) (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", ParamAmount, s, err)
	}
	return raw.Div(amountScale), nil
}

// FormatAmount converts major units to the wire amount (x100)
func FormatAmount(amount decimal.Decimal) string {
	return amount.Mul(amountScale).Truncate(0).String()
}

// Acknowledgement codes a merchant returns to an IPN
const (
	AckConfirmed        = "00"
	AckOrderNotFound    = "01"
	AckAlreadyConfirmed = "02"
	AckInvalidSignature = "97"
	AckUnknownError     = "99"
)

// IPNAck is the JSON body VNPay expects in reply to an IPN
type IPNAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}
