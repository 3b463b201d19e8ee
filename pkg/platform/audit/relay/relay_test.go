package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"medisupply/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	pending   []postgres.OutboxEntry
	published []uuid.UUID
}

func (f *fakeOutbox) ListPending(_ context.Context, limit int) ([]postgres.OutboxEntry, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakeProducer struct {
	records []*kgo.Record
	failKey string
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		f.records = append(f.records, r)
		results[i] = kgo.ProduceResult{Record: r}
		if string(r.Key) == f.failKey {
			results[i].Err = errors.New("broker unavailable")
		}
	}
	return results
}

func TestRelayOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := postgres.OutboxEntry{ID: uuid.New(), AggregateType: "order", AggregateID: "order-1", EventType: "order_created", Payload: []byte(`{}`)}
	bad := postgres.OutboxEntry{ID: uuid.New(), AggregateType: "order", AggregateID: "order-2", EventType: "order_created", Payload: []byte(`{}`)}

	outbox := &fakeOutbox{pending: []postgres.OutboxEntry{ok, bad}}
	producer := &fakeProducer{failKey: "order-2"}
	r := New(outbox, producer, "audit-events", time.Second, 10, logger)

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ok.ID}, outbox.published, "failed entries stay pending")

	require.Len(t, producer.records, 2)
	assert.Equal(t, "audit-events", producer.records[0].Topic)
	assert.Equal(t, []byte("order-1"), producer.records[0].Key)
}

func TestRelayOnce_EmptyOutbox(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(&fakeOutbox{}, &fakeProducer{}, "audit-events", 0, 0, logger)

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
