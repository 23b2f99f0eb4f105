package vnpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Response codes returned by querydr
const (
	CodeSuccess          = "00"
	CodeInvalidDate      = "03"
	CodeProcessing       = "07"
	CodeRefunded         = "09"
	CodeAwaitingPayment  = "10"
	CodeDuplicateRequest = "94"
	CodeNoResponse       = "99"
)

// DateLayout is VNPay's yyyyMMddHHmmss timestamp layout, always GMT+7
const DateLayout = "20060102150405"

var gmt7 = time.FixedZone("GMT+7", 7*60*60)

// FormatDate renders t as a VNPay timestamp
func FormatDate(t time.Time) string {
	return t.In(gmt7).Format(DateLayout)
}

// Config holds merchant credentials and endpoints
type Config struct {
	TmnCode    string
	HashSecret string
	Version    string
	QueryURL   string
	Timeout    time.Duration
}

// Client talks to the VNPay merchant API
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
}

// NewClient creates a VNPay client. Each request is bounded by cfg.Timeout.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// QueryRequest identifies the transaction to look up
type QueryRequest struct {
	TxnRef          string
	OrderRef        string
	TransactionDate string // original vnp_CreateDate of the payment, GMT+7
	IPAddr          string
}

// QueryResult is the parsed querydr response
type QueryResult struct {
	ResponseCode      string
	Message           string
	TransactionStatus string
	Amount            *decimal.Decimal
}

// IsSuccess reports whether the query itself succeeded
func (r *QueryResult) IsSuccess() bool {
	return r.ResponseCode == CodeSuccess
}

// IsDuplicate reports a "duplicate request" reply. Callers treat the
// transaction status as unknown and back off.
func (r *QueryResult) IsDuplicate() bool {
	return r.ResponseCode == CodeDuplicateRequest
}

// queryDRRequest is the querydr JSON body
type queryDRRequest struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TxnRef          string `json:"vnp_TxnRef"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

// QueryTransaction calls querydr. A transport or decoding failure is an
// error; a gateway-level rejection is a result with a non-success code.
func (c *Client) QueryTransaction(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if len(req.TransactionDate) != len(DateLayout) {
		// VNPay cannot match a transaction without its original create date
		return &QueryResult{
			ResponseCode: CodeInvalidDate,
			Message:      "Missing/invalid vnp_TransactionDate",
		}, nil
	}

	orderInfo := "Query transaction: " + req.TxnRef
	if req.OrderRef != "" {
		orderInfo = "Query transaction for order: " + req.OrderRef
	}

	body := queryDRRequest{
		RequestID:       fmt.Sprintf("%d-%s", c.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")),
		Version:         c.config.Version,
		Command:         "querydr",
		TmnCode:         c.config.TmnCode,
		TxnRef:          req.TxnRef,
		OrderInfo:       orderInfo,
		TransactionDate: req.TransactionDate,
		CreateDate:      FormatDate(c.now()),
		IPAddr:          req.IPAddr,
	}
	body.SecureHash = HMACSHA512(c.config.HashSecret, strings.Join([]string{
		body.RequestID,
		body.Version,
		body.Command,
		body.TmnCode,
		body.TxnRef,
		body.TransactionDate,
		body.CreateDate,
		body.IPAddr,
		body.OrderInfo,
	}, "|"))

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal querydr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.QueryURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build querydr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"txn_ref":    req.TxnRef,
		"request_id": body.RequestID,
	}).Debug("Querying VNPay transaction")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call querydr: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read querydr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querydr returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &QueryResult{ResponseCode: CodeNoResponse, Message: "No response from VNPay"}, nil
	}

	return c.parseQueryResponse(respBody)
}

func (c *Client) parseQueryResponse(body []byte) (*QueryResult, error) {
	var raw map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse querydr response: %w", err)
	}

	field := func(key string) string {
		v, ok := raw[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}

	result := &QueryResult{
		ResponseCode:      field("vnp_ResponseCode"),
		Message:           field("vnp_Message"),
		TransactionStatus: field(ParamTransactionStatus),
	}
	if amountStr := field(ParamAmount); amountStr != "" {
		amount, err := ParseAmount(amountStr)
		if err != nil {
			c.logger.WithField("amount", amountStr).Warn("Could not parse amount from VNPay response")
		} else {
			result.Amount = &amount
		}
	}
	return result, nil
}

// VerifyIPN checks the secure hash on a raw IPN query string
func (c *Client) VerifyIPN(raw string) bool {
	_, params, err := ParseIPN(raw)
	if err != nil {
		return false
	}
	return VerifyParams(params, c.config.HashSecret)
}

// TmnCode returns the merchant terminal code
func (c *Client) TmnCode() string {
	return c.config.TmnCode
}
