package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
)

// Event is one message for the document topic. Messages with the same Key
// land on the same partition and keep their relative order.
type Event struct {
	Key   string
	Value any
}

func (e Event) message() (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %s: %w", e.Key, err)
	}
	return kafka.Message{Key: []byte(e.Key), Value: value}, nil
}

// Producer writes events synchronously, waiting for every in-sync replica.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer returns a Producer for topic. Partitions are chosen by key
// hash.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger.WithComponent("kafka-producer").With("topic", topic),
	}
}

// Publish returns once the broker has acknowledged event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := event.message()
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing %s: %w", event.Key, err)
	}
	p.logger.Debug("event published", "key", event.Key, "value_size", len(msg.Value))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
