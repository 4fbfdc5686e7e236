package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"BarPilot/pkg/logger"
)

// MessageHandler processes messages from a single topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, value []byte) error
}

// Consumer reads one topic in strict partition order. Messages are
// handled and committed one at a time: each message advances the bar
// clock, so overlapping handlers would reorder decisions.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	log     *logger.Logger
	cfg     *ConsumerConfig

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewConsumer creates a consumer bound to the handler's topic.
func NewConsumer(handler MessageHandler, log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "barpilot",
		MinBytes:   1,
		MaxBytes:   10 << 20,
		RetryMax:   3,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	cfg.Topic = handler.Topic()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	initConsumerMetricsOnce()
	return &Consumer{
		reader:  reader,
		handler: handler,
		log:     log,
		cfg:     cfg,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the fetch loop until the context is cancelled or Stop is
// called.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error("kafka fetch failed",
				logger.String("topic", c.cfg.Topic),
				logger.Error(err))
			continue
		}

		c.handle(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("kafka commit failed",
				logger.String("topic", c.cfg.Topic),
				logger.Error(err))
		}
	}
}

// handle retries with exponential backoff. A message that still fails
// after RetryMax attempts is skipped: the stream is a clock, and one
// poisoned bar must not halt it.
func (c *Consumer) handle(ctx context.Context, value []byte) {
	start := time.Now()
	backoff := c.cfg.BackoffMin
	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if err = c.handler.Handle(ctx, value); err == nil {
			consumedMessages.WithLabelValues(c.cfg.Topic).Inc()
			consumerLatency.WithLabelValues(c.cfg.Topic).Observe(time.Since(start).Seconds())
			return
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}
	consumerDropped.WithLabelValues(c.cfg.Topic).Inc()
	c.log.Error("message dropped after retries",
		logger.String("topic", c.cfg.Topic),
		logger.Int("attempts", c.cfg.RetryMax+1),
		logger.Error(err))
}

// Stop cancels the loop, waits for it to drain and closes the reader.
func (c *Consumer) Stop() error {
	var err error
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
		err = c.reader.Close()
	})
	return err
}

var (
	consumerMetricsOnce sync.Once
	consumedMessages    *prometheus.CounterVec
	consumerDropped     *prometheus.CounterVec
	consumerLatency     *prometheus.HistogramVec
)

func initConsumerMetricsOnce() {
	consumerMetricsOnce.Do(func() {
		consumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "barpilot_kafka_consumed_messages_total",
			Help: "Messages handled successfully.",
		}, []string{"topic"})
		consumerDropped = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "barpilot_kafka_dropped_messages_total",
			Help: "Messages dropped after exhausting retries.",
		}, []string{"topic"})
		consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barpilot_kafka_consumer_handle_seconds",
			Help:    "Handler latency by topic.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}
