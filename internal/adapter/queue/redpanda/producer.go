// Package redpanda provides the Redpanda/Kafka handoff between the API
// process and the tip-generation worker. Delivery is at-least-once; the
// resume guard on the consumer side makes duplicate deliveries harmless.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

// TopicTips is the Kafka topic for tip-generation tasks.
const TopicTips = "ponderation-tips"

// Producer wraps a Kafka producer and implements domain.TipQueue.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer and ensures the topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTopic(brokers, TopicTips)
}

// NewProducerWithTopic constructs a Producer against a specific topic.
// Tests use it for isolation.
func NewProducerWithTopic(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}

	return &Producer{client: client, topic: topic}, nil
}

// EnqueueTips publishes one tip-generation task. The ponderation id doubles
// as the record key so retries of the same ponderation stay ordered.
func (p *Producer) EnqueueTips(ctx domain.Context, payload domain.TipsTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.PonderationID),
		Value: b,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("produce: %w", err)
	}

	observability.TipTasksEnqueuedTotal.Inc()
	slog.Info("tip task enqueued",
		slog.String("topic", p.topic),
		slog.String("ponderation_id", payload.PonderationID))
	return payload.PonderationID, nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
