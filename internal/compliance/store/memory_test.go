package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

func testPeriod(t *testing.T) id.Period {
	t.Helper()
	p, err := id.ParsePeriod("bimonthly", "2025-01-01", "2025-02-28")
	require.NoError(t, err)
	return p
}

func newResult(vendorID id.VendorID, period id.Period, planID id.PlanSnapshotID) *models.ComplianceResult {
	return &models.ComplianceResult{
		ID:             id.ComplianceID(uuid.New()),
		VendorID:       vendorID,
		Period:         period,
		PlanSnapshotID: planID,
		TotalGoal:      decimal.NewFromInt(100),
		TotalSales:     decimal.NewFromInt(90),
		CompliancePct:  decimal.NewFromInt(90),
		Status:         models.StatusWarning,
		ComputedAt:     time.Now(),
	}
}

func TestInMemoryCreateVersion(t *testing.T) {
	ctx := context.Background()
	period := testPeriod(t)
	vendorID := id.VendorID(uuid.New())
	planID := id.PlanSnapshotID(uuid.New())

	t.Run("rejects a second active result for the key", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.CreateVersion(ctx, newResult(vendorID, period, planID), false))
		err := s.CreateVersion(ctx, newResult(vendorID, period, planID), false)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("different plan snapshot is a different key", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.CreateVersion(ctx, newResult(vendorID, period, planID), false))
		assert.NoError(t, s.CreateVersion(ctx, newResult(vendorID, period, id.PlanSnapshotID(uuid.New())), false))
	})

	t.Run("supersede links versions", func(t *testing.T) {
		s := NewInMemory()
		first := newResult(vendorID, period, planID)
		require.NoError(t, s.CreateVersion(ctx, first, false))
		second := newResult(vendorID, period, planID)
		require.NoError(t, s.CreateVersion(ctx, second, true))

		assert.Equal(t, 1, first.Version)
		assert.Equal(t, 2, second.Version)
		require.NotNil(t, second.SupersedesID)
		assert.Equal(t, first.ID, *second.SupersedesID)

		old, err := s.FindResult(ctx, first.ID)
		require.NoError(t, err)
		assert.NotNil(t, old.SupersededAt)

		active, err := s.ListResults(ctx, service.ResultFilter{Period: &period})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, second.ID, active[0].ID)
	})

	t.Run("supersede without an active result starts at version one", func(t *testing.T) {
		s := NewInMemory()
		r := newResult(vendorID, period, planID)
		require.NoError(t, s.CreateVersion(ctx, r, true))
		assert.Equal(t, 1, r.Version)
		assert.Nil(t, r.SupersedesID)
	})
}

func TestInMemorySnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	period := testPeriod(t)
	vendorID := id.VendorID(uuid.New())

	snap := &models.SalesSnapshot{ID: id.SalesSnapshotID(uuid.New()), VendorID: vendorID, Period: period}
	require.NoError(t, s.SaveSalesSnapshot(ctx, snap))
	dup := &models.SalesSnapshot{ID: id.SalesSnapshotID(uuid.New()), VendorID: vendorID, Period: period}
	assert.ErrorIs(t, s.SaveSalesSnapshot(ctx, dup), sentinel.ErrConflict)

	found, err := s.FindSalesSnapshot(ctx, vendorID, period)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, found.ID)

	_, err = s.FindSalesSnapshot(ctx, id.VendorID(uuid.New()), period)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	older := &models.PlanSnapshot{ID: id.PlanSnapshotID(uuid.New()), Region: "Andina",
		PeriodStart: period.Start, PeriodEnd: period.End, FetchedAt: time.Now().Add(-time.Hour)}
	newer := &models.PlanSnapshot{ID: id.PlanSnapshotID(uuid.New()), Region: "Andina",
		PeriodStart: period.Start, PeriodEnd: period.End, FetchedAt: time.Now()}
	require.NoError(t, s.SavePlanSnapshot(ctx, older))
	require.NoError(t, s.SavePlanSnapshot(ctx, newer))
	assert.ErrorIs(t, s.SavePlanSnapshot(ctx, newer), sentinel.ErrConflict)

	latest, err := s.LatestPlanSnapshot(ctx, "ANDINA", period.Start, period.End)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = s.LatestPlanSnapshot(ctx, "Caribe", period.Start, period.End)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryVendors(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	s.PutVendor(models.Vendor{ID: id.VendorID(uuid.New()), Name: "B", Region: "Andina", Active: true})
	s.PutVendor(models.Vendor{ID: id.VendorID(uuid.New()), Name: "A", Region: "Andina", Active: true})
	s.PutVendor(models.Vendor{ID: id.VendorID(uuid.New()), Name: "C", Region: "Andina", Active: false})

	active, err := s.ListVendors(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "A", active[0].Name)

	all, err := s.ListVendors(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.FindVendor(ctx, id.VendorID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
