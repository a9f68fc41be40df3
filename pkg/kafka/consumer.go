package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageHandler processes one source.synced message. A failing message is retried in
// place and is never committed.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// ErrConsumerHalted is reported by Ping once a message exhausted its attempts.
var ErrConsumerHalted = errors.New("kafka consumer halted on a failing message")

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxAttempts bounds handler calls per message before the loop halts.
	MaxAttempts int
	// RetryBackoff is the first delay between attempts. It doubles per attempt.
	RetryBackoff time.Duration
}

// Consumer reads source sync notifications as part of a consumer group. Group offsets
// are per-partition high-water marks, so a message that keeps failing halts the loop
// instead of letting a later commit acknowledge it. A restart or rebalance redelivers it.
type Consumer struct {
	reader       messageReader
	topic        string
	logger       ectologger.Logger
	handler      MessageHandler
	maxAttempts  int
	retryBackoff time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc

	mu     sync.RWMutex
	halted bool
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
	c := newConsumer(reader, cfg.Topic, logger, handler)
	if cfg.MaxAttempts > 0 {
		c.maxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		c.retryBackoff = cfg.RetryBackoff
	}
	return c
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:       reader,
		topic:        topic,
		logger:       logger,
		handler:      handler,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
}

// Start launches the consume loop. It returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

// Stop cancels the loop, waits for the in-flight message and closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

// Ping fails once the loop halted on a message it could not process.
func (c *Consumer) Ping(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.halted {
		return ErrConsumerHalted
	}
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		if !c.processMessage(ctx, msg) {
			return
		}
	}
}

// processMessage reports whether the loop may fetch the next message.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers["traceparent"],
	}

	if err := incoming.ParseSourceSynced(); err != nil {
		metrics.RecordKafkaConsume(c.topic, "invalid")
		log.WithError(err).Error("Failed to parse message, skipping")
		c.commit(ctx, log, msg)
		return true
	}

	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, incoming)
		if err == nil {
			break
		}
		metrics.RecordKafkaConsume(c.topic, "error")
		attemptLog := log.WithField("attempt", attempt).WithError(err)

		if ctx.Err() != nil {
			attemptLog.Warn("Consumer stopping with message uncommitted")
			return false
		}
		if attempt >= c.maxAttempts {
			attemptLog.Error("Message failed every attempt, halting consumer without committing")
			c.mu.Lock()
			c.halted = true
			c.mu.Unlock()
			return false
		}

		attemptLog.Warnf("Failed to process message, retrying in %s", backoff)
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}

	metrics.RecordKafkaConsume(c.topic, "success")
	c.commit(ctx, log, msg)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) commit(ctx context.Context, log ectologger.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}
