package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"airline-booking/internal/logger"
	"airline-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, logger: log}
}

// Start consumes until ctx is cancelled. A message is committed only after
// handler returns nil, so a failed message is redelivered to the group.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, msg kafka.Message) error) error {
	c.logger.Info("KAFKA", "Consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Commit failed for offset %d: %v", msg.Offset, err))
		}
	}
}

// DecodeReconciliation parses a booking.reconciliation message.
func DecodeReconciliation(msg kafka.Message) (models.ReconciliationEvent, error) {
	var event models.ReconciliationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal reconciliation event: %w", err)
	}
	if event.Receipt.PaymentID == "" {
		return event, errors.New("reconciliation event has no payment id")
	}
	return event, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
