// Package consumer materialises the Kafka transition-audit stream into a
// queryable store.
package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/store/kafka"
	"stagegate/pkg/platform/tx"
)

// Store receives decoded records. Appends must be idempotent on record ID.
type Store interface {
	Append(ctx context.Context, record audit.TransitionRecord) error
}

// Consumer polls a consumer group and commits offsets only after a batch has
// been stored.
type Consumer struct {
	client *kgo.Client
	store  Store
	db     *sql.DB
	logger *slog.Logger

	maxElapsed time.Duration
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// WithDB stores each polled batch in a single transaction.
func WithDB(db *sql.DB) Option {
	return func(c *Consumer) { c.db = db }
}

// WithMaxElapsed caps how long a failing batch is retried before Run returns.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.maxElapsed = d
		}
	}
}

// NewClient builds a group consumer for topic with manual commits.
func NewClient(brokers []string, group, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

func New(client *kgo.Client, store Store, opts ...Option) *Consumer {
	c := &Consumer{
		client:     client,
		store:      store,
		logger:     slog.New(slog.DiscardHandler),
		maxElapsed: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}

		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = c.maxElapsed
		if err := backoff.Retry(func() error {
			return c.Handle(ctx, records)
		}, backoff.WithContext(bo, ctx)); err != nil {
			return fmt.Errorf("store audit batch: %w", err)
		}
		if err := c.client.CommitRecords(ctx, records...); err != nil {
			c.logger.ErrorContext(ctx, "commit audit offsets failed", "error", err)
		}
	}
}

// Handle decodes and stores a batch. Undecodable messages are logged and
// skipped so they are committed instead of redelivered forever.
func (c *Consumer) Handle(ctx context.Context, records []*kgo.Record) error {
	store := func(ctx context.Context) error {
		for _, msg := range records {
			record, ok := c.decode(ctx, msg)
			if !ok {
				continue
			}
			if err := c.store.Append(ctx, record); err != nil {
				return err
			}
		}
		return nil
	}
	if c.db == nil {
		return store(ctx)
	}
	return tx.Run(ctx, c.db, store)
}

func (c *Consumer) decode(ctx context.Context, msg *kgo.Record) (audit.TransitionRecord, bool) {
	var record audit.TransitionRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		c.logger.WarnContext(ctx, "skipping undecodable audit message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return record, false
	}
	if record.ID == "" {
		for _, h := range msg.Headers {
			if h.Key == kafka.HeaderRecordID {
				record.ID = string(h.Value)
			}
		}
	}
	if record.ID == "" || !record.Domain.IsValid() {
		c.logger.WarnContext(ctx, "skipping incomplete audit message",
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		return record, false
	}
	return record, true
}
