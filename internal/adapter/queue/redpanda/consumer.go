package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// TipGenerator runs tip generation for one ponderation. It is the usecase
// boundary the consumer dispatches into.
type TipGenerator interface {
	Generate(ctx domain.Context, ponderationID string) error
}

// Consumer polls the tips topic and processes records strictly one at a
// time. Tip generation paces itself against the completion API rate limits,
// so parallel record processing would only fight those limits.
type Consumer struct {
	client  *kgo.Client
	tips    TipGenerator
	topic   string
	groupID string
}

// NewConsumer constructs a consumer-group Consumer with manual commits.
func NewConsumer(brokers []string, groupID string, tips TipGenerator) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, TopicTips, tips)
}

// NewConsumerWithTopic constructs a Consumer against a specific topic.
func NewConsumerWithTopic(brokers []string, groupID, topic string, tips TipGenerator) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}

	return &Consumer{client: client, tips: tips, topic: topic, groupID: groupID}, nil
}

// Run polls and processes records until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("tip consumer started",
		slog.String("topic", c.topic),
		slog.String("group_id", c.groupID))

	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			slog.Info("tip consumer stopping")
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return nil
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Any("error", fe.Err))
			}
			continue
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			c.processRecord(ctx, rec)
			if err := c.client.CommitRecords(ctx, rec); err != nil {
				slog.Error("commit failed",
					slog.String("topic", rec.Topic),
					slog.Int64("offset", rec.Offset),
					slog.Any("error", err))
			}
		}
	}
}

// processRecord runs one task. Failures are logged and the record is still
// committed: generation is resumable, and the regenerate endpoint re-enqueues
// on demand, so a poisoned record must not wedge the partition.
func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	var payload domain.TipsTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		slog.Error("malformed tip task payload",
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		return
	}
	if payload.PonderationID == "" {
		slog.Error("tip task missing ponderation id", slog.Int64("offset", rec.Offset))
		return
	}

	if err := c.tips.Generate(ctx, payload.PonderationID); err != nil {
		slog.Error("tip generation failed",
			slog.String("ponderation_id", payload.PonderationID),
			slog.Any("error", err))
		return
	}
	slog.Info("tip task processed", slog.String("ponderation_id", payload.PonderationID))
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
