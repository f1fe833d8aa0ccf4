// Package kafka provides the document topic's producer and consumer, backed
// by segmentio/kafka-go. Events travel as JSON; the consumer hands each
// message to a MessageHandler and commits it only once handled.
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
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message. A non-nil
// error leaves the message uncommitted and it is retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// retryBackoff paces redelivery of a message whose handler failed.
var retryBackoff = resilience.Backoff{
	Initial:    200 * time.Millisecond,
	Max:        30 * time.Second,
	Multiplier: 2,
	Jitter:     0.1,
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a Consumer for topic. A new consumer group starts at
// the oldest message so every document event is seen in order.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  logger.WithComponent("kafka-consumer").With("topic", topic),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled. A message whose handler fails is retried until it succeeds
// or ctx ends, so later events are never applied before it.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle runs the handler until it succeeds. It returns false when ctx
// ended first.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	err := resilience.RetryUntil(ctx, retryBackoff,
		func() error { return c.handler(ctx, msg.Key, msg.Value) },
		func(attempt int, err error, wait time.Duration) {
			c.logger.Error("failed to process message, retrying",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", attempt,
				"next_delay", wait,
				"error", err,
			)
		},
	)
	return err == nil
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
