package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"airline-booking/internal/config"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

// Publish writes v as JSON to topic. Messages with the same key keep their order.
func (p *Producer) Publish(ctx context.Context, topic, key string, v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(msgBytes)))

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
}

// PublishBookingConfirmed streams a stored booking to downstream consumers
func (p *Producer) PublishBookingConfirmed(ctx context.Context, event models.BookingConfirmedEvent) error {
	return p.Publish(ctx, p.Topics.BookingConfirmed, event.BookingID, event)
}

// PublishReconciliation queues a captured payment that has no booking yet
func (p *Producer) PublishReconciliation(ctx context.Context, event models.ReconciliationEvent) error {
	return p.Publish(ctx, p.Topics.BookingReconciliation, event.Receipt.PaymentID, event)
}

func (p *Producer) PublishPassengerCheckedIn(ctx context.Context, event models.PassengerCheckedInEvent) error {
	return p.Publish(ctx, p.Topics.PassengerCheckedIn, strconv.FormatInt(event.PassengerID, 10), event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
