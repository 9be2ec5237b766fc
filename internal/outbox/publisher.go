// Package outbox drains the ledger outbox table into Kafka. Rows are
// written in the same transaction as their audit event, so every event
// reaches the stream at least once; consumers deduplicate on event_id.
package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher produces outbox envelopes to the audit event topic.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the brokers and ensures the topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil &&
		!errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}

	return &Publisher{client: client, topic: topic}, nil
}

// Publish produces one envelope keyed by document id, so a document's
// events stay ordered within their partition.
func (p *Publisher) Publish(ctx context.Context, documentID string, envelope []byte) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(documentID),
		Value: envelope,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
