// Package kafka wraps segmentio/kafka-go with a JSON producer and a
// consume loop that dispatches each message to a handler callback.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
)

// MessageHandler processes one message. A returned error is retried up to
// the consumer's attempt limit before the message is skipped.
type MessageHandler func(ctx context.Context, key, value []byte) error

// ResultHook observes each handled message; err is nil on success.
type ResultHook func(topic string, err error)

// reader is the subset of *kafka.Reader the loop uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	topic       string
	reader      reader
	handler     MessageHandler
	onResult    ResultHook
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(topic, r, handler)
}

func newConsumer(topic string, r reader, handler MessageHandler) *Consumer {
	return &Consumer{
		topic:       topic,
		reader:      r,
		handler:     handler,
		maxAttempts: 3,
		backoff:     time.Second,
		logger:      slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// OnResult registers a hook called after every message.
func (c *Consumer) OnResult(hook ResultHook) { c.onResult = hook }

// Start consumes until ctx is cancelled or the reader is closed. Messages
// are committed after the handler succeeds or exhausts its attempts.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		err = c.handle(ctx, msg)
		if c.onResult != nil {
			c.onResult(c.topic, err)
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("dropping message after retries",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
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

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		c.logger.Warn("handler failed", "attempt", attempt, "offset", msg.Offset, "error", err)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
