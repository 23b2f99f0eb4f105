package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ridehub/ms-booking/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event types published for the notification service
const (
	TypeBookingCanceled  = "BOOKING_CANCELED"
	TypeBookingConfirmed = "BOOKING_CONFIRMED"
)

// BookingEvent is the payload written to the booking lifecycle topics
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     int64     `json:"booking_id"`
	BookingCode   string    `json:"booking_code"`
	TripID        *int64    `json:"trip_id,omitempty"`
	SeatNumbers   []string  `json:"seat_numbers,omitempty"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// messageWriter is the subset of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes booking lifecycle events to Kafka
type Producer struct {
	writer         messageWriter
	canceledTopic  string
	confirmedTopic string
	writeTimeout   time.Duration
	logger         *logrus.Logger
}

// NewProducer creates a producer. The writer has no default topic; each
// message carries its own.
func NewProducer(cfg config.KafkaConfig, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newProducer(writer, cfg, logger)
}

func newProducer(writer messageWriter, cfg config.KafkaConfig, logger *logrus.Logger) *Producer {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Producer{
		writer:         writer,
		canceledTopic:  cfg.CanceledTopic,
		confirmedTopic: cfg.ConfirmedTopic,
		writeTimeout:   writeTimeout,
		logger:         logger,
	}
}

// PublishBookingCanceled publishes to the canceled topic
func (p *Producer) PublishBookingCanceled(ctx context.Context, event BookingEvent) error {
	event.Type = TypeBookingCanceled
	return p.publish(ctx, p.canceledTopic, event)
}

// PublishBookingConfirmed publishes to the confirmed topic
func (p *Producer) PublishBookingConfirmed(ctx context.Context, event BookingEvent) error {
	event.Type = TypeBookingConfirmed
	return p.publish(ctx, p.confirmedTopic, event)
}

func (p *Producer) publish(ctx context.Context, topic string, event BookingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(event.BookingID, 10)),
		Value: data,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":        topic,
		"booking_code": event.BookingCode,
		"type":         event.Type,
	}).Debug("Booking event published")
	return nil
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NoopPublisher discards events. Used when Kafka is disabled.
type NoopPublisher struct{}

// PublishBookingCanceled does nothing
func (NoopPublisher) PublishBookingCanceled(context.Context, BookingEvent) error { return nil }

// PublishBookingConfirmed does nothing
func (NoopPublisher) PublishBookingConfirmed(context.Context, BookingEvent) error { return nil }
