// Package kafka publishes transition records to a Kafka topic. The topic is
// the durable audit stream; the consumer package materialises it into
// Postgres for querying.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "stagegate/pkg/platform/audit"
)

// HeaderRecordID carries the record ID so consumers can insert idempotently
// without decoding the payload first.
const HeaderRecordID = "record_id"

// Producer implements audit.Sink. Records are keyed by entity ID so one
// entity's history stays ordered within a partition.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewClient builds a producer client for brokers.
func NewClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicas int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func New(client *kgo.Client, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

// Append produces one record and waits for the broker acknowledgement.
func (p *Producer) Append(ctx context.Context, record audit.TransitionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transition record: %w", err)
	}
	msg := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(record.EntityID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderRecordID, Value: []byte(record.ID)},
			{Key: "domain", Value: []byte(record.Domain)},
		},
	}
	if err := p.client.ProduceSync(ctx, msg).FirstErr(); err != nil {
		return fmt.Errorf("produce transition record: %w", err)
	}
	return nil
}

func (p *Producer) Close() {
	p.client.Close()
}
