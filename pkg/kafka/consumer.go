// Package kafka provides producer and consumer clients backed by
// segmentio/kafka-go. Events travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
)

// ErrSkip marks a message that can never be processed. The consumer logs
// it and commits its offset instead of redelivering it.
var ErrSkip = errors.New("skip message")

// MessageHandler is invoked for each fetched message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a topic and dispatches them to a
// MessageHandler. Offsets are committed only after the handler succeeds,
// or, with WithDeferredCommit, when CommitProcessed is called.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler

	deferred  bool
	mu        sync.Mutex
	processed []kafka.Message
}

type ConsumerOption func(*Consumer)

// WithDeferredCommit holds the offsets of handled messages until
// CommitProcessed. Use it when handler effects become durable later.
func WithDeferredCommit() ConsumerOption {
	return func(c *Consumer) { c.deferred = true }
}

// NewConsumer creates a Consumer for the given topic and handler. A new
// consumer group starts at the earliest offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	c := &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the consume loop until ctx is cancelled.
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
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			if !errors.Is(err, ErrSkip) {
				c.logger.Error("failed to process message",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
				continue
			}
			c.logger.Warn("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if c.deferred {
			c.mu.Lock()
			c.processed = append(c.processed, msg)
			c.mu.Unlock()
			continue
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

// CommitProcessed commits the offsets of every message handled so far.
func (c *Consumer) CommitProcessed(ctx context.Context) error {
	c.mu.Lock()
	msgs := c.processed
	c.processed = nil
	c.mu.Unlock()
	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.mu.Lock()
		c.processed = append(msgs, c.processed...)
		c.mu.Unlock()
		return fmt.Errorf("committing %d offsets: %w", len(msgs), err)
	}
	c.logger.Debug("offsets committed", "count", len(msgs))
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Malformed values wrap
// ErrSkip.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %w", ErrSkip, err)
	}
	return result, nil
}
