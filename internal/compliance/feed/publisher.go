package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"medisupply/internal/compliance/models"
	"medisupply/internal/platform/kafka"
)

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes sales snapshots to the sales feed, keyed by vendor so
// one vendor's snapshots stay ordered.
type Publisher struct {
	producer Producer
	topic    string
}

func NewPublisher(producer Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) PublishSales(ctx context.Context, snap *models.SalesSnapshot) error {
	value, err := json.Marshal(NewSalesMessage(snap))
	if err != nil {
		return fmt.Errorf("encode sales snapshot: %w", err)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(snap.VendorID.String()), Value: value}
	kafka.Inject(ctx, record)
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish sales snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// PublishPlan writes a plan snapshot to the plan feed. Used to replay plans
// fetched from the planning service and by tests.
func (p *Publisher) PublishPlan(ctx context.Context, topic string, msg PlanMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode plan snapshot: %w", err)
	}
	record := &kgo.Record{Topic: topic, Key: []byte(msg.Region), Value: value}
	kafka.Inject(ctx, record)
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish plan snapshot %s: %w", msg.PlanSnapshotID, err)
	}
	return nil
}
