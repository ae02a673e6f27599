package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"vigil/internal/logger"
	"vigil/internal/metrics"
	"vigil/internal/models"
)

// Publisher errors
var (
	ErrPublisherClosed = errors.New("publisher is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert event")
)

// PublisherConfig holds Kafka publisher settings.
type PublisherConfig struct {
	PoolSize     int
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

// Publisher writes fired alerts to the alert stream topic so downstream
// consumers see the same alerts subscribers do. Delivery is best-effort;
// a failed publish never blocks or fails the evaluation tick.
type Publisher struct {
	cfg     PublisherConfig
	topic   string
	writers []*kafka.Writer
	pool    chan *kafka.Writer
	closed  atomic.Bool

	// Metrics
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, cfg PublisherConfig) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	if topic == "" {
		return nil, errors.New("topic is required")
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	p := &Publisher{
		cfg:     cfg,
		topic:   topic,
		writers: make([]*kafka.Writer, cfg.PoolSize),
		pool:    make(chan *kafka.Writer, cfg.PoolSize),
	}

	for i := 0; i < cfg.PoolSize; i++ {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by sensor
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  1, // retry handled here, with backoff
			Async:        false,
		}
		p.writers[i] = writer
		p.pool <- writer
	}

	return p, nil
}

// Publish sends one alert event to the stream.
func (p *Publisher) Publish(ctx context.Context, event *models.AlertEvent) error {
	return p.PublishBatch(ctx, []*models.AlertEvent{event})
}

// PublishBatch sends a batch of alert events in one write.
func (p *Publisher) PublishBatch(ctx context.Context, events []*models.AlertEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	if len(events) == 0 {
		return nil
	}

	log := logger.WithComponent("alert_publisher")
	start := time.Now()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().
				Err(err).
				Str("sensor_id", event.SensorID).
				Int64("subscriber_id", event.SubscriberID).
				Msg("failed to serialize alert event")
			p.failed.Add(1)
			metrics.AlertPublishTotal.WithLabelValues("failed").Inc()
			continue
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(event.PartitionKey),
			Value: data,
			Headers: []kafka.Header{
				{Key: "sensor_id", Value: []byte(event.SensorID)},
				{Key: "subscriber_id", Value: []byte(strconv.FormatInt(event.SubscriberID, 10))},
				{Key: "bound", Value: []byte(event.Metric + "_" + string(event.Direction))},
			},
			Time: event.FiredAt,
		})
	}

	if len(messages) == 0 {
		return nil
	}

	// Get writer from pool
	var writer *kafka.Writer
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.failed.Add(uint64(len(messages)))
		return ctx.Err()
	}

	err := p.writeWithRetry(ctx, writer, messages)
	duration := time.Since(start)

	metrics.AlertPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Dur("duration", duration).
			Msg("failed to publish alert events")
		p.failed.Add(uint64(len(messages)))
		metrics.AlertPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	log.Debug().
		Int("batch_size", len(messages)).
		Dur("duration", duration).
		Msg("alert events published")

	p.published.Add(uint64(len(messages)))
	metrics.AlertPublishTotal.WithLabelValues("success").Add(float64(len(messages)))

	return nil
}

// writeWithRetry writes messages with exponential backoff retry.
func (p *Publisher) writeWithRetry(ctx context.Context, writer *kafka.Writer, messages []kafka.Message) error {
	log := logger.WithComponent("alert_publisher")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying alert publish")

			metrics.AlertPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("alert publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing writers: %v", errs)
	}
	return nil
}

// Stats returns publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

// PublisherStats holds publisher metrics.
type PublisherStats struct {
	Published uint64
	Failed    uint64
}
