//go:build integration

package feed_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"medisupply/internal/compliance/feed"
	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	"medisupply/internal/compliance/store"
	"medisupply/internal/platform/config"
	"medisupply/internal/platform/kafka"
	id "medisupply/pkg/domain"
	"medisupply/pkg/testutil/containers"
)

type FeedSuite struct {
	suite.Suite
	cfg config.KafkaConfig
}

func TestFeedSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(FeedSuite))
}

func (s *FeedSuite) SetupSuite() {
	broker := containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.KafkaConfig{Brokers: broker.Brokers, Partitions: 1}
}

func (s *FeedSuite) TestPublishedSnapshotIsIngestedOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	suffix := uuid.NewString()[:8]
	salesTopic, planTopic := "sales-"+suffix, "plans-"+suffix

	producer, err := kafka.NewClient(s.cfg)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(kafka.EnsureTopics(ctx, producer, 1, salesTopic, planTopic))

	mem := store.NewInMemory()
	vendor := models.Vendor{ID: id.VendorID(uuid.New()), Name: "Ana Torres", Region: "Andina", Active: true}
	mem.PutVendor(vendor)
	svc := service.New(mem)

	period, err := id.ParsePeriod("quarterly", "2025-01-01", "2025-03-31")
	s.Require().NoError(err)
	snap := &models.SalesSnapshot{
		ID:          id.SalesSnapshotID(uuid.New()),
		VendorID:    vendor.ID,
		Period:      period,
		TotalOrders: 1,
		TotalSales:  decimal.RequireFromString("85.00"),
		Products: []models.ProductSales{
			{ProductID: id.ProductID(uuid.New()), ProductName: "Gauze", Quantity: 10, Sales: decimal.RequireFromString("85.00")},
		},
		CapturedAt: time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC),
	}

	pub := feed.NewPublisher(producer, salesTopic)
	s.Require().NoError(pub.PublishSales(ctx, snap))
	s.Require().NoError(pub.PublishSales(ctx, snap), "redelivery of the same snapshot")
	s.Require().NoError(pub.PublishPlan(ctx, planTopic, feed.PlanMessage{
		PlanSnapshotID: id.PlanSnapshotID(uuid.New()),
		Region:         "Andina",
		Year:           2025,
		Quarter:        "Q1",
		TotalGoal:      decimal.NewFromInt(100),
	}))

	consumerClient, err := kafka.NewClient(s.cfg, feed.ConsumerOpts("compliance-"+suffix, salesTopic, planTopic)...)
	s.Require().NoError(err)
	consumer := feed.NewConsumer(consumerClient, svc, salesTopic, planTopic, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	s.Eventually(func() bool {
		_, err := mem.LatestPlanSnapshot(ctx, "andina", period.Start, period.End)
		return err == nil
	}, 30*time.Second, 200*time.Millisecond)

	stored, err := mem.FindSalesSnapshot(ctx, vendor.ID, period)
	s.Require().NoError(err)
	s.Equal(snap.ID, stored.ID)

	stop()
	consumerClient.Close()
	s.NoError(<-done)

	result, err := svc.Compute(ctx, service.ComputeRequest{VendorID: vendor.ID, Period: period})
	s.Require().NoError(err)
	s.Equal(models.StatusWarning, result.Status)
}
