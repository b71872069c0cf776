// Package broker publishes booking lifecycle events to Kafka.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

// messageWriter is the subset of *kafka.Writer used by the producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes booking events keyed by booking id so that every event
// of one booking lands on the same partition
type Producer struct {
	writer messageWriter
	logger *logrus.Logger
}

// NewProducer creates an asynchronous Kafka producer. Delivery failures are
// logged from the completion callback and never reach the request path.
func NewProducer(brokers []string, topic string, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithError(err).WithField("messages", len(messages)).Warn("Failed to deliver booking events")
			}
		},
	}

	return &Producer{writer: writer, logger: logger}
}

// PublishBookingEvent serializes and enqueues a booking event
func (p *Producer) PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BookingID.String()),
		Value: eventBytes,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"booking_id": event.BookingID,
	}).Debug("Published booking event")
	return nil
}

// Close flushes pending messages and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingEvent(context.Context, *models.BookingEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
