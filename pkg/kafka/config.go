package kafka

import "time"

// ProducerConfig holds the writer configuration.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
	HashByKey    bool
}

// ProducerOption configures the producer.
type ProducerOption func(*ProducerConfig)

func WithProducerBrokers(brokers ...string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithCompression(comp string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = comp }
}

func WithProducerMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout = d }
}

// WithHashByKey routes messages with the same key to the same partition.
func WithHashByKey() ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = true }
}

// ConsumerConfig holds the reader configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*ConsumerConfig)

func WithConsumerBrokers(brokers ...string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

func WithRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}
