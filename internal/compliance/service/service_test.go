package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	"medisupply/internal/compliance/store"
	ordermodels "medisupply/internal/orders/models"
	orderstore "medisupply/internal/orders/store"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/platform/audit"
	"medisupply/pkg/platform/audit/publisher"
	auditmemory "medisupply/pkg/platform/audit/store/memory"
	"medisupply/pkg/testutil"
)

// =============================================================================
// Compliance Aggregator Test Suite
// =============================================================================

type AggregatorSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemory
	orders     *orderstore.InMemory
	auditStore *auditmemory.InMemoryStore
	service    *service.Service
	period     id.Period
	vendor     models.Vendor
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = testutil.FixedContext(time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.orders = orderstore.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = service.New(s.store,
		service.WithOrders(s.orders, nil),
		service.WithAuditor(publisher.NewPublisher(s.auditStore)),
		service.WithConcurrency(4),
	)

	period, err := id.ParsePeriod("trimestral", "2025-01-01", "2025-03-31")
	s.Require().NoError(err)
	s.period = period
	s.vendor = s.addVendor("Ana Torres", "Andina")
}

func (s *AggregatorSuite) addVendor(name, region string) models.Vendor {
	v := models.Vendor{ID: id.VendorID(uuid.New()), Name: name, Region: region, Active: true}
	s.store.PutVendor(v)
	return v
}

func (s *AggregatorSuite) ingestSales(vendorID id.VendorID, total string) *models.SalesSnapshot {
	snap := &models.SalesSnapshot{
		ID:          id.SalesSnapshotID(uuid.New()),
		VendorID:    vendorID,
		Period:      s.period,
		TotalOrders: 4,
		TotalSales:  decimal.RequireFromString(total),
		Products: []models.ProductSales{
			{ProductID: id.ProductID(uuid.New()), ProductName: "Gauze", Quantity: 10, Sales: decimal.RequireFromString(total)},
		},
	}
	s.Require().NoError(s.service.IngestSales(s.ctx, snap))
	return snap
}

func (s *AggregatorSuite) ingestPlan(region, goal string, fetchedAt time.Time) *models.PlanSnapshot {
	plan := &models.PlanSnapshot{
		ID:        id.PlanSnapshotID(uuid.New()),
		Region:    region,
		Year:      2025,
		Quarter:   "Q1",
		TotalGoal: decimal.RequireFromString(goal),
		FetchedAt: fetchedAt,
	}
	s.Require().NoError(s.service.IngestPlan(s.ctx, plan))
	return plan
}

// =============================================================================
// Compute Tests
// =============================================================================

func (s *AggregatorSuite) TestCompute() {
	s.Run("classifies and persists the result", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "80")
		plan := s.ingestPlan("Andina", "100", time.Now())

		result, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		s.Require().NoError(err)
		s.Equal("80.00", result.CompliancePct.StringFixed(2))
		s.Equal(models.StatusWarning, result.Status)
		s.Equal(plan.ID, result.PlanSnapshotID)
		s.Equal(1, result.Version)

		stored, err := s.service.GetResult(s.ctx, result.ID)
		s.Require().NoError(err)
		s.True(stored.TotalSales.Equal(result.TotalSales))

		events, err := s.auditStore.ListByAction(s.ctx, audit.EventComplianceComputed)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("picks the most recently fetched plan", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "120")
		s.ingestPlan("Andina", "200", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
		latest := s.ingestPlan("andina", "100", time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))

		result, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		s.Require().NoError(err)
		s.Equal(latest.ID, result.PlanSnapshotID)
		s.Equal(models.StatusOK, result.Status)
	})

	s.Run("zero goal is an undefined goal and writes nothing", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "50")
		s.ingestPlan("Andina", "0", time.Now())

		_, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		s.True(dErrors.HasCode(err, dErrors.CodeUndefinedGoal))

		results, err := s.service.ListResults(s.ctx, service.ResultFilter{VendorID: s.vendor.ID})
		s.Require().NoError(err)
		s.Empty(results)

		rejected, err := s.auditStore.ListByAction(s.ctx, audit.EventComplianceRejected)
		s.Require().NoError(err)
		s.Len(rejected, 1)
	})

	s.Run("recomputation is rejected naming the key", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "50")
		plan := s.ingestPlan("Andina", "100", time.Now())
		req := service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period}

		_, err := s.service.Compute(s.ctx, req)
		s.Require().NoError(err)
		_, err = s.service.Compute(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateComplianceResult))
		s.Contains(dErrors.Message(err), s.vendor.ID.String())
		s.Contains(dErrors.Message(err), plan.ID.String())
		s.Contains(dErrors.Message(err), "quarterly:2025-01-01:2025-03-31")
	})

	s.Run("explicit supersession creates the next version", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "50")
		s.ingestPlan("Andina", "100", time.Now())
		req := service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period}

		first, err := s.service.Compute(s.ctx, req)
		s.Require().NoError(err)
		req.Supersede = true
		second, err := s.service.Compute(s.ctx, req)
		s.Require().NoError(err)

		s.Equal(2, second.Version)
		s.Require().NotNil(second.SupersedesID)
		s.Equal(first.ID, *second.SupersedesID)

		old, err := s.service.GetResult(s.ctx, first.ID)
		s.Require().NoError(err)
		s.False(old.IsActive())

		active, err := s.service.ListResults(s.ctx, service.ResultFilter{VendorID: s.vendor.ID})
		s.Require().NoError(err)
		s.Require().Len(active, 1)
		s.Equal(second.ID, active[0].ID)

		all, err := s.service.ListResults(s.ctx, service.ResultFilter{VendorID: s.vendor.ID, IncludeSuperseded: true})
		s.Require().NoError(err)
		s.Len(all, 2)
	})

	s.Run("unknown vendor", func() {
		s.SetupTest()
		_, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: id.VendorID(uuid.New()), Period: s.period})
		s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity))
	})

	s.Run("missing sales snapshot", func() {
		s.SetupTest()
		s.ingestPlan("Andina", "100", time.Now())
		_, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("explicit plan must exist and cover the vendor", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "50")
		other := s.ingestPlan("Caribe", "100", time.Now())

		missing := id.PlanSnapshotID(uuid.New())
		_, err := s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period, PlanSnapshotID: &missing})
		s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity))

		_, err = s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period, PlanSnapshotID: &other.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AggregatorSuite) TestConcurrentComputeHasOneWinner() {
	s.ingestSales(s.vendor.ID, "90")
	s.ingestPlan("Andina", "100", time.Now())

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Compute(s.ctx, service.ComputeRequest{VendorID: s.vendor.ID, Period: s.period})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateComplianceResult))
	}
	s.Equal(1, succeeded)
}

// =============================================================================
// Period Run Tests
// =============================================================================

func (s *AggregatorSuite) TestRunPeriod() {
	s.Run("computes every active vendor with sales and skips the rest", func() {
		s.SetupTest()
		second := s.addVendor("Luis Gomez", "Andina")
		idle := s.addVendor("Marta Ruiz", "Andina")
		inactive := models.Vendor{ID: id.VendorID(uuid.New()), Name: "Old", Region: "Andina", Active: false}
		s.store.PutVendor(inactive)
		s.ingestSales(s.vendor.ID, "100")
		s.ingestSales(second.ID, "40")
		s.ingestPlan("Andina", "100", time.Now())

		report, err := s.service.RunPeriod(s.ctx, s.period, service.RunOptions{})
		s.Require().NoError(err)
		s.Len(report.Outcomes, 3)
		s.NoError(report.FirstError())
		s.Len(report.Results(), 2)

		for _, o := range report.Outcomes {
			switch o.VendorID {
			case s.vendor.ID:
				s.Equal(models.StatusOK, o.Result.Status)
			case second.ID:
				s.Equal(models.StatusAlert, o.Result.Status)
			case idle.ID:
				s.True(o.Skipped)
			default:
				s.Failf("unexpected vendor", "%s", o.VendorID)
			}
		}
	})

	s.Run("one vendor failing does not stop the others", func() {
		s.SetupTest()
		caribe := s.addVendor("Pedro Diaz", "Caribe")
		s.ingestSales(s.vendor.ID, "100")
		s.ingestSales(caribe.ID, "100")
		s.ingestPlan("Andina", "100", time.Now())
		s.ingestPlan("Caribe", "0", time.Now())

		report, err := s.service.RunPeriod(s.ctx, s.period, service.RunOptions{})
		s.Require().NoError(err)
		s.Len(report.Results(), 1)
		s.True(dErrors.HasCode(report.FirstError(), dErrors.CodeUndefinedGoal))
	})

	s.Run("explicit vendors without sales fail", func() {
		s.SetupTest()
		report, err := s.service.RunPeriod(s.ctx, s.period, service.RunOptions{VendorIDs: []id.VendorID{s.vendor.ID}})
		s.Require().NoError(err)
		s.Require().Len(report.Outcomes, 1)
		s.True(dErrors.HasCode(report.FirstError(), dErrors.CodeNotFound))
	})
}

// =============================================================================
// Snapshot Tests
// =============================================================================

func (s *AggregatorSuite) TestIngest() {
	s.Run("duplicate sales snapshot is a conflict", func() {
		s.SetupTest()
		s.ingestSales(s.vendor.ID, "10")
		dup := &models.SalesSnapshot{
			ID: id.SalesSnapshotID(uuid.New()), VendorID: s.vendor.ID, Period: s.period,
			TotalSales: decimal.Zero,
		}
		err := s.service.IngestSales(s.ctx, dup)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("sales for an unknown vendor", func() {
		s.SetupTest()
		err := s.service.IngestSales(s.ctx, &models.SalesSnapshot{
			ID: id.SalesSnapshotID(uuid.New()), VendorID: id.VendorID(uuid.New()), Period: s.period,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity))
	})

	s.Run("duplicate plan snapshot id is a conflict", func() {
		s.SetupTest()
		plan := s.ingestPlan("Andina", "10", time.Now())
		again := *plan
		err := s.service.IngestPlan(s.ctx, &again)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("has sales data", func() {
		s.SetupTest()
		has, err := s.service.HasSalesData(s.ctx, s.vendor.ID, s.period)
		s.Require().NoError(err)
		s.False(has)
		s.ingestSales(s.vendor.ID, "10")
		has, err = s.service.HasSalesData(s.ctx, s.vendor.ID, s.period)
		s.Require().NoError(err)
		s.True(has)
	})

	s.Run("active vendors exclude inactive ones", func() {
		s.SetupTest()
		other := s.addVendor("Luis Rojas", "Caribe")
		s.store.PutVendor(models.Vendor{ID: id.VendorID(uuid.New()), Name: "Inactiva", Region: "Andina"})

		ids, err := s.service.ActiveVendors(s.ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]id.VendorID{s.vendor.ID, other.ID}, ids)
	})
}

func (s *AggregatorSuite) TestBuildSalesSnapshot() {
	gauze := id.ProductID(uuid.New())
	syringe := id.ProductID(uuid.New())
	client := id.ClientID(uuid.New())

	deliver := func(seller id.SellerID, at time.Time, lines ...ordermodels.OrderLine) {
		o, created, err := ordermodels.NewOrder(id.OrderID(uuid.New()), client, seller, lines, at.Add(-72*time.Hour))
		s.Require().NoError(err)
		o.State = ordermodels.StateDelivered
		o.LastUpdatedAt = at
		s.Require().NoError(s.orders.Create(s.ctx, o, created))
	}
	line := func(p id.ProductID, sku string, qty int, unit string) ordermodels.OrderLine {
		return ordermodels.OrderLine{ProductID: p, SKU: sku, Quantity: qty, UnitValue: decimal.RequireFromString(unit), ReservationID: id.ReservationID(uuid.New())}
	}

	seller := id.SellerID(s.vendor.ID)
	deliver(seller, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		line(gauze, "SKU-GAU", 100, "8.50"), line(syringe, "SKU-SYR", 10, "4.99"))
	deliver(seller, time.Date(2025, 3, 31, 23, 30, 0, 0, time.UTC), line(gauze, "SKU-GAU", 2, "8.50"))
	deliver(seller, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), line(gauze, "SKU-GAU", 1, "8.50"))
	deliver(id.SellerID(uuid.New()), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), line(gauze, "SKU-GAU", 5, "8.50"))

	snap, err := s.service.BuildSalesSnapshot(s.ctx, s.vendor.ID, s.period)
	s.Require().NoError(err)
	s.Equal(2, snap.TotalOrders)
	s.Equal("916.90", snap.TotalSales.StringFixed(2))
	s.Require().Len(snap.Products, 2)
	s.Equal(gauze, snap.Products[0].ProductID)
	s.Equal("SKU-GAU", snap.Products[0].ProductName)
	s.Equal(102, snap.Products[0].Quantity)
	s.Equal("867.00", snap.Products[0].Sales.StringFixed(2))
	s.NoError(snap.Validate())

	s.Require().NoError(s.service.IngestSales(s.ctx, snap))
	has, err := s.service.HasSalesData(s.ctx, s.vendor.ID, s.period)
	s.Require().NoError(err)
	s.True(has)
}
