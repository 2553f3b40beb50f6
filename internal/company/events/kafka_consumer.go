package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/companytrigger/internal/company/errors"
	"github.com/gartstein/companytrigger/internal/company/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Delivery results recorded in metrics.Deliveries.
const (
	resultHandled   = "handled"
	resultRetried   = "retried"
	resultDropped   = "dropped"
	resultSkipped   = "skipped"
	resultMalformed = "malformed"
)

// maxFetchWait is the pause between failed fetches once the backoff stops.
const maxFetchWait = 5 * time.Second

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one creation event.
type Handler func(context.Context, Event) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// MaxAttempts bounds deliveries of one event, the first included.
	MaxAttempts int
}

// Consumer delivers creation events to a Handler with at-least-once
// semantics: a message is committed only after the handler succeeded, failed
// permanently, or used up its attempts.
type Consumer struct {
	reader      KafkaReader
	logger      *zap.Logger
	handler     Handler
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   cfg.Topic,
			Dialer:  kafka.DefaultDialer,
		}),
		logger:      logger.Named("kafka_consumer"),
		maxAttempts: max(cfg.MaxAttempts, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

func (c *Consumer) RegisterHandler(fn Handler) {
	c.handler = fn
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("no handler registered")
	}
	fetchBackOff := c.newBackOff()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("Kafka reader closed, stopping")
				return nil
			}
			wait := fetchBackOff.NextBackOff()
			if wait == backoff.Stop {
				wait = maxFetchWait
			}
			c.logger.Error("Failed to fetch message", zap.Error(err), zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		fetchBackOff.Reset()

		if !c.process(ctx, msg) {
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

// process handles one message and reports whether it may be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		metrics.Deliveries.WithLabelValues(resultMalformed).Inc()
		c.logger.Error("Failed to parse event",
			zap.Error(err),
			zap.ByteString("value", msg.Value),
		)
		return true
	}

	if !event.IsCompanyCreation() {
		metrics.Deliveries.WithLabelValues(resultSkipped).Inc()
		return true
	}

	operation := func() error {
		err := c.handler(ctx, event)
		if errors.Is(err, e.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.Deliveries.WithLabelValues(resultRetried).Inc()
		c.logger.Warn("Failed to handle event, redelivering",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.Duration("wait", wait),
		)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctx.Err() != nil {
			// Left uncommitted; the group redelivers it after a restart.
			return false
		}
		metrics.Deliveries.WithLabelValues(resultDropped).Inc()
		c.logger.Error("Failed to handle event, dropping",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("document", event.Ref().String()),
		)
		return true
	}

	metrics.Deliveries.WithLabelValues(resultHandled).Inc()
	return true
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
