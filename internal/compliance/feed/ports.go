package feed

import (
	"context"

	"medisupply/internal/compliance/models"
)

// Ingester is the aggregator as seen by the feed consumer.
type Ingester interface {
	IngestSales(ctx context.Context, snap *models.SalesSnapshot) error
	IngestPlan(ctx context.Context, plan *models.PlanSnapshot) error
}
