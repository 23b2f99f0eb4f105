package seatlock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource returns a bearer token for service-to-service calls
type TokenSource func() (string, error)

// Config holds configuration for the seat-lock service client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client releases and confirms seat locks held by bookings
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewClient creates a new seat-lock client. tokens may be nil when the
// seat-lock service does not require authentication.
func NewClient(config Config, tokens TokenSource) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		tokens:  tokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// LockRequest identifies the seats held for a booking
type LockRequest struct {
	BookingID   int64    `json:"bookingId"`
	TripID      int64    `json:"tripId"`
	SeatNumbers []string `json:"seatNumbers"`
}

// LockResponse is the seat-lock service reply
type LockResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CancelSeatLocks releases the seats so they can be sold again
func (c *Client) CancelSeatLocks(ctx context.Context, req LockRequest) error {
	return c.post(ctx, "/api/seat-locks/cancel", req)
}

// ConfirmSeatLocks turns held seats into sold seats
func (c *Client) ConfirmSeatLocks(ctx context.Context, req LockRequest) error {
	return c.post(ctx, "/api/seat-locks/confirm", req)
}

func (c *Client) post(ctx context.Context, path string, req LockRequest) error {
	if req.SeatNumbers == nil {
		req.SeatNumbers = []string{}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal seat-lock request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create seat-lock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens()
		if err != nil {
			return fmt.Errorf("failed to obtain service token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send seat-lock request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read seat-lock response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("seat-lock service returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var lockResp LockResponse
	if err := json.Unmarshal(body, &lockResp); err != nil {
		return fmt.Errorf("failed to parse seat-lock response: %w", err)
	}

	if !strings.EqualFold(lockResp.Status, "OK") {
		return fmt.Errorf("seat-lock %s rejected for booking %d: status=%s message=%s",
			strings.TrimPrefix(path, "/api/seat-locks/"), req.BookingID, lockResp.Status, lockResp.Message)
	}

	return nil
}
