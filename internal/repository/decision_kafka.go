package repository

import (
	"context"
	"fmt"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	pkgkafka "BarPilot/pkg/kafka"
)

// KafkaDecisionPublisher emits decisions to the bus topic consumed by the
// execution dashboard and downstream loggers. Keyed by symbol so one
// instrument's decisions stay ordered within a partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Emit(ctx context.Context, d *models.Decision) error {
	key := []byte(d.Symbol + ":" + d.Timeframe)
	if err := p.producer.Publish(ctx, p.topic, key, d); err != nil {
		return fmt.Errorf("publish decision %s: %w", d.EventID, err)
	}
	return nil
}

func (p *KafkaDecisionPublisher) Close() error { return p.producer.Close() }

// KafkaAlertPublisher adapts the producer to the alert dispatcher's
// Publisher interface.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer}
}

func (p *KafkaAlertPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

var _ drepo.DecisionSink = (*KafkaDecisionPublisher)(nil)
