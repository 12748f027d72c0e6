package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	HeaderEventType   = "event_type"
	HeaderTenantID    = "tenant_id"
	HeaderContentType = "content_type"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	// Compression is one of none, gzip, snappy, lz4 or zstd
	Compression string
}

// Producer publishes reconciliation lifecycle events. It satisfies events.Publisher.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:  kafka.TCP(cfg.Brokers...),
			Topic: cfg.Topic,
			// messages are keyed by workspace so one workspace's events stay ordered
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            codec,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", name)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Publish(ctx context.Context, key, eventType, tenantID string, value []byte) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      p.writer.Topic,
		"event_type": eventType,
		"key":        key,
	})

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
			{Key: HeaderTenantID, Value: []byte(tenantID)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	})
	if err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to publish event")
		return err
	}

	log.Debug("Published event")
	return nil
}
