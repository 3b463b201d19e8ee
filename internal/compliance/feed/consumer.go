package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"medisupply/internal/platform/kafka"
	dErrors "medisupply/pkg/domain-errors"
)

// Client is satisfied by *kgo.Client configured with a consumer group and
// auto-commit disabled.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Consumer ingests snapshot records. Records that can never be ingested
// (malformed, invalid, duplicate, unknown vendor) are logged and committed;
// any other failure stops the consumer without committing so the record
// is redelivered.
type Consumer struct {
	client     Client
	ingester   Ingester
	salesTopic string
	planTopic  string
	logger     *slog.Logger
}

func NewConsumer(client Client, ingester Ingester, salesTopic, planTopic string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:     client,
		ingester:   ingester,
		salesTopic: salesTopic,
		planTopic:  planTopic,
		logger:     logger,
	}
}

// ConsumerOpts returns the client options the consumer expects.
func ConsumerOpts(group string, topics ...string) []kgo.Opt {
	return []kgo.Opt{
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "snapshot feed consumer started",
		"sales_topic", c.salesTopic, "plan_topic", c.planTopic)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.logger.InfoContext(ctx, "snapshot feed consumer stopped")
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		var done []*kgo.Record
		var runErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if runErr != nil {
				return
			}
			if err := c.Handle(ctx, r); err != nil {
				runErr = err
				return
			}
			done = append(done, r)
		})
		if len(done) > 0 {
			if err := c.client.CommitRecords(ctx, done...); err != nil {
				return fmt.Errorf("commit offsets: %w", err)
			}
		}
		if runErr != nil {
			return runErr
		}
	}
}

// Handle ingests one record. It returns an error only when the record
// should be retried.
func (c *Consumer) Handle(ctx context.Context, r *kgo.Record) error {
	ctx = kafka.Extract(ctx, r)
	var err error
	switch r.Topic {
	case c.salesTopic:
		err = c.handleSales(ctx, r.Value)
	case c.planTopic:
		err = c.handlePlan(ctx, r.Value)
	default:
		c.logger.WarnContext(ctx, "record from unexpected topic skipped", "topic", r.Topic)
		return nil
	}
	if err == nil {
		return nil
	}

	log := c.logger.With("topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
	switch dErrors.GetCode(err) {
	case dErrors.CodeConflict:
		log.InfoContext(ctx, "duplicate snapshot acknowledged", "reason", dErrors.Message(err))
		return nil
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeReferentialIntegrity:
		log.WarnContext(ctx, "snapshot rejected", "code", dErrors.GetCode(err), "reason", dErrors.Message(err))
		return nil
	default:
		log.ErrorContext(ctx, "snapshot ingestion failed", "error", err)
		return fmt.Errorf("ingest %s record at offset %d: %w", r.Topic, r.Offset, err)
	}
}

func (c *Consumer) handleSales(ctx context.Context, value []byte) error {
	var msg SalesMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed sales snapshot")
	}
	snap, err := msg.Snapshot()
	if err != nil {
		return err
	}
	return c.ingester.IngestSales(ctx, snap)
}

func (c *Consumer) handlePlan(ctx context.Context, value []byte) error {
	var msg PlanMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed plan snapshot")
	}
	plan, err := msg.Snapshot()
	if err != nil {
		return err
	}
	return c.ingester.IngestPlan(ctx, plan)
}
