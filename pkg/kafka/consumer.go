// Package kafka carries run requests in and domain events out over Kafka.
package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	fetchBackoffMin = 100 * time.Millisecond
	fetchBackoffMax = 10 * time.Second
)

// MessageHandler processes one run request. Returning an error other than a
// PermanentError leaves the message uncommitted for redelivery.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// PermanentError marks a message that will never succeed; it is committed and skipped
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer reads run requests one at a time so a workspace's runs are handled in offset order
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  ectologger.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.ConsumerGroup,
			MinBytes:       1,
			MaxBytes:       1 << 20, // requests are small JSON documents
			MaxWait:        time.Second,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: 0,
		}),
		handler: handler,
		logger:  logger,
	}
}

// Start launches the fetch loop and returns immediately
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.running.Store(true)
	c.done.Add(1)
	go c.run(ctx)

	cfg := c.reader.Config()
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": cfg.Topic,
		"group": cfg.GroupID,
	}).Info("Listening for run requests")
	return nil
}

// Stop lets the in-flight request finish and closes the reader
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.done.Wait()
	return c.reader.Close()
}

// Health reports whether the fetch loop is still running
func (c *Consumer) Health() bool {
	return c.running.Load()
}

func (c *Consumer) run(ctx context.Context) {
	defer c.done.Done()
	defer c.running.Store(false)

	backoff := fetchBackoffMin
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
			return
		case err != nil:
			c.logger.WithContext(ctx).WithError(err).WithField("retry_in", backoff.String()).Warn("Failed to fetch run request")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffMin
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.handle")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
	})

	err := c.handler(ctx, newIncomingMessage(msg))
	var permanent *PermanentError
	switch {
	case err == nil:
	case errors.As(err, &permanent):
		log.WithError(err).Warn("Skipping run request that can never succeed")
	default:
		tracing.RecordError(span, err)
		log.WithError(err).Error("Run request failed; leaving it for redelivery")
		return
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit run request")
	}
}
