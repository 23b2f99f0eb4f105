package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ridehub/ms-booking/internal/config"
)

// SessionStore reads the per-booking session state written by the booking
// flow: the held seat list and the checkout session key.
type SessionStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisClient builds a client and pings it with the configured timeout
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewSessionStore wraps a redis client. Every call is bounded by opTimeout.
func NewSessionStore(client *redis.Client, opTimeout time.Duration) *SessionStore {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &SessionStore{client: client, opTimeout: opTimeout}
}

// SeatNumbers returns the seat list held for a booking. A missing key
// returns nil, nil.
func (s *SessionStore) SeatNumbers(ctx context.Context, bookingID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, SeatsKey(bookingID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seat list for booking %d: %w", bookingID, err)
	}
	return DecodeSeatList(data)
}

// DeleteSession removes the booking session key and the seat list next to
// it. Deleting missing keys is not an error.
func (s *SessionStore) DeleteSession(ctx context.Context, bookingID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, SessionKey(bookingID), SeatsKey(bookingID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session for booking %d: %w", bookingID, err)
	}
	return nil
}

// Ping checks that redis is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// DecodeSeatList parses a JSON array of seat identifiers. Numeric entries
// are accepted and rendered as strings; null entries are skipped.
func DecodeSeatList(data []byte) ([]string, error) {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid seat list payload: %w", err)
	}

	seats := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			seats = append(seats, v)
		case float64:
			seats = append(seats, fmt.Sprintf("%v", v))
		default:
			seats = append(seats, fmt.Sprint(v))
		}
	}
	return seats, nil
}

// SeatsKey is the redis key holding a booking's seat list
func SeatsKey(bookingID int64) string {
	return fmt.Sprintf("booking:seats:%d", bookingID)
}

// SessionKey is the redis key holding a booking's checkout session
func SessionKey(bookingID int64) string {
	return fmt.Sprintf("booking:sess:%d", bookingID)
}
