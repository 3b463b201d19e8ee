// Package store persists vendors, compliance snapshots and results.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
	"medisupply/pkg/requestcontext"
)

// InMemory keeps compliance data in maps under one lock. The active-result
// index is the single serialization point for CreateVersion.
type InMemory struct {
	mu       sync.RWMutex
	vendors  map[id.VendorID]models.Vendor
	sales    map[string]*models.SalesSnapshot
	plans    map[id.PlanSnapshotID]*models.PlanSnapshot
	results  map[id.ComplianceID]*models.ComplianceResult
	active   map[string]id.ComplianceID
	versions map[string]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		vendors:  make(map[id.VendorID]models.Vendor),
		sales:    make(map[string]*models.SalesSnapshot),
		plans:    make(map[id.PlanSnapshotID]*models.PlanSnapshot),
		results:  make(map[id.ComplianceID]*models.ComplianceResult),
		active:   make(map[string]id.ComplianceID),
		versions: make(map[string]int),
	}
}

func salesKey(vendorID id.VendorID, period id.Period) string {
	return vendorID.String() + "|" + period.Key()
}

// PutVendor seeds or replaces a vendor.
func (s *InMemory) PutVendor(v models.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[v.ID] = v
}

func (s *InMemory) FindVendor(_ context.Context, vendorID id.VendorID) (*models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[vendorID]
	if !ok {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, sentinel.ErrNotFound)
	}
	return &v, nil
}

func (s *InMemory) ListVendors(_ context.Context, activeOnly bool) ([]models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if activeOnly && !v.Active {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) SaveSalesSnapshot(_ context.Context, snap *models.SalesSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := salesKey(snap.VendorID, snap.Period)
	if _, ok := s.sales[key]; ok {
		return fmt.Errorf("sales snapshot %s: %w", key, sentinel.ErrConflict)
	}
	c := *snap
	c.Products = append([]models.ProductSales(nil), snap.Products...)
	s.sales[key] = &c
	return nil
}

func (s *InMemory) FindSalesSnapshot(_ context.Context, vendorID id.VendorID, period id.Period) (*models.SalesSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sales[salesKey(vendorID, period)]
	if !ok {
		return nil, fmt.Errorf("sales snapshot for vendor %s: %w", vendorID, sentinel.ErrNotFound)
	}
	c := *snap
	c.Products = append([]models.ProductSales(nil), snap.Products...)
	return &c, nil
}

func (s *InMemory) SavePlanSnapshot(_ context.Context, plan *models.PlanSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; ok {
		return fmt.Errorf("plan snapshot %s: %w", plan.ID, sentinel.ErrConflict)
	}
	c := *plan
	c.Products = append([]models.ProductGoal(nil), plan.Products...)
	s.plans[plan.ID] = &c
	return nil
}

func (s *InMemory) FindPlanSnapshot(_ context.Context, planID id.PlanSnapshotID) (*models.PlanSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("plan snapshot %s: %w", planID, sentinel.ErrNotFound)
	}
	c := *plan
	c.Products = append([]models.ProductGoal(nil), plan.Products...)
	return &c, nil
}

// LatestPlanSnapshot returns the most recently fetched plan for the region
// with exactly the given bounds.
func (s *InMemory) LatestPlanSnapshot(_ context.Context, region string, start, end time.Time) (*models.PlanSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.PlanSnapshot
	for _, p := range s.plans {
		if !strings.EqualFold(p.Region, region) || !p.PeriodStart.Equal(start) || !p.PeriodEnd.Equal(end) {
			continue
		}
		if latest == nil || p.FetchedAt.After(latest.FetchedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("plan snapshot for region %s: %w", region, sentinel.ErrNotFound)
	}
	c := *latest
	c.Products = append([]models.ProductGoal(nil), latest.Products...)
	return &c, nil
}

func (s *InMemory) CreateVersion(ctx context.Context, result *models.ComplianceResult, supersede bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := result.Key().String()
	if activeID, ok := s.active[key]; ok {
		if !supersede {
			return fmt.Errorf("compliance %s: %w", key, sentinel.ErrConflict)
		}
		now := requestcontext.Now(ctx)
		prev := s.results[activeID]
		prev.SupersededAt = &now
		supersedes := activeID
		result.SupersedesID = &supersedes
	}
	s.versions[key]++
	result.Version = s.versions[key]
	s.results[result.ID] = result.Clone()
	s.active[key] = result.ID
	return nil
}

func (s *InMemory) FindResult(_ context.Context, complianceID id.ComplianceID) (*models.ComplianceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[complianceID]
	if !ok {
		return nil, fmt.Errorf("compliance result %s: %w", complianceID, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListResults returns matching results, newest computation first.
func (s *InMemory) ListResults(_ context.Context, filter service.ResultFilter) ([]*models.ComplianceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ComplianceResult, 0)
	for _, r := range s.results {
		if !filter.IncludeSuperseded && !r.IsActive() {
			continue
		}
		if !filter.VendorID.IsNil() && r.VendorID != filter.VendorID {
			continue
		}
		if filter.Period != nil && (r.Period.Type != filter.Period.Type || !r.Period.SameBounds(*filter.Period)) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}
