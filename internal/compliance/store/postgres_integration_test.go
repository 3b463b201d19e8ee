//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	"medisupply/internal/compliance/store"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/testutil/containers"
)

type PostgresComplianceSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	service  *service.Service
	vendor   models.Vendor
	period   id.Period
}

func TestPostgresComplianceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresComplianceSuite))
}

func (s *PostgresComplianceSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.service = service.New(s.store)
}

func (s *PostgresComplianceSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"compliance_products", "compliance_results", "plan_snapshot_products", "plan_snapshots",
		"sales_snapshot_products", "sales_snapshots", "vendors"))

	s.vendor = models.Vendor{ID: id.VendorID(uuid.New()), Name: "Ana Torres", Email: "ana@example.com", Region: "Andina", Active: true}
	s.Require().NoError(s.store.SaveVendor(ctx, s.vendor))
	period, err := id.ParsePeriod("quarterly", "2025-04-01", "2025-06-30")
	s.Require().NoError(err)
	s.period = period
}

func (s *PostgresComplianceSuite) seedSnapshots(sales, goal string) *models.PlanSnapshot {
	ctx := context.Background()
	gauze := id.ProductID(uuid.New())
	s.Require().NoError(s.service.IngestSales(ctx, &models.SalesSnapshot{
		ID:          id.SalesSnapshotID(uuid.New()),
		VendorID:    s.vendor.ID,
		Period:      s.period,
		TotalOrders: 7,
		TotalSales:  decimal.RequireFromString(sales),
		Products: []models.ProductSales{
			{ProductID: gauze, ProductName: "Gauze", Quantity: 12, Sales: decimal.RequireFromString(sales)},
		},
	}))
	plan := &models.PlanSnapshot{
		ID:       id.PlanSnapshotID(uuid.New()),
		Region:   "Andina",
		Year:     2025,
		Quarter:  "Q2",
		Products: []models.ProductGoal{{ProductID: gauze, ProductName: "Gauze", Goal: decimal.RequireFromString(goal)}},
	}
	s.Require().NoError(s.service.IngestPlan(ctx, plan))
	return plan
}

func (s *PostgresComplianceSuite) TestSnapshotsRoundTrip() {
	ctx := context.Background()
	plan := s.seedSnapshots("250.50", "300")

	snap, err := s.store.FindSalesSnapshot(ctx, s.vendor.ID, s.period)
	s.Require().NoError(err)
	s.Equal("250.50", snap.TotalSales.StringFixed(2))
	s.Require().Len(snap.Products, 1)
	s.True(snap.Period.SameBounds(s.period))

	latest, err := s.store.LatestPlanSnapshot(ctx, "andina", s.period.Start, s.period.End)
	s.Require().NoError(err)
	s.Equal(plan.ID, latest.ID)
	s.Equal("300.00", latest.TotalGoal.StringFixed(2))

	err = s.service.IngestSales(ctx, &models.SalesSnapshot{
		ID: id.SalesSnapshotID(uuid.New()), VendorID: s.vendor.ID, Period: s.period,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PostgresComplianceSuite) TestComputeAndSupersede() {
	ctx := context.Background()
	s.seedSnapshots("240", "300")
	req := service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period}

	first, err := s.service.Compute(ctx, req)
	s.Require().NoError(err)
	s.Equal("80.00", first.CompliancePct.StringFixed(2))
	s.Equal(models.StatusWarning, first.Status)

	_, err = s.service.Compute(ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateComplianceResult))

	req.Supersede = true
	second, err := s.service.Compute(ctx, req)
	s.Require().NoError(err)
	s.Equal(2, second.Version)

	stored, err := s.store.FindResult(ctx, second.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.SupersedesID)
	s.Equal(first.ID, *stored.SupersedesID)
	s.Require().Len(stored.Products, 1)
	s.Require().NotNil(stored.Products[0].CompliancePct)
	s.Equal("80.00", stored.Products[0].CompliancePct.StringFixed(2))

	active, err := s.store.ListResults(ctx, service.ResultFilter{VendorID: s.vendor.ID, Period: &s.period})
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(second.ID, active[0].ID)

	var sum decimal.Decimal
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(sales), 0) FROM compliance_products WHERE compliance_id = $1`,
		uuid.UUID(second.ID)).Scan(&sum))
	s.True(sum.Sub(second.TotalSales).Abs().LessThanOrEqual(models.SumTolerance))
}

func (s *PostgresComplianceSuite) TestConcurrentComputeHasOneWinner() {
	ctx := context.Background()
	s.seedSnapshots("100", "100")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Compute(ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeDuplicateComplianceResult), "unexpected error: %v", err)
		}
	}
	s.Equal(1, succeeded)
}
