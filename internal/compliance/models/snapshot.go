// Package models holds the compliance inputs (sales and plan snapshots),
// the evaluation that turns them into results, and the result aggregate.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

// SumTolerance is the largest accepted difference between a total and the
// sum of its per-product parts.
var SumTolerance = decimal.RequireFromString("0.01")

// Vendor is a seller evaluated against the goals of its region.
type Vendor struct {
	ID     id.VendorID `json:"vendor_id"`
	Name   string      `json:"name"`
	Email  string      `json:"email,omitempty"`
	Region string      `json:"region"`
	Active bool        `json:"active"`
}

// ProductSales is one product's share of a sales snapshot.
type ProductSales struct {
	ProductID   id.ProductID    `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Sales       decimal.Decimal `json:"sales"`
}

// SalesSnapshot is an immutable aggregate of a vendor's delivered sales
// over one period. At most one exists per (vendor, period).
type SalesSnapshot struct {
	ID          id.SalesSnapshotID `json:"snapshot_id"`
	VendorID    id.VendorID        `json:"vendor_id"`
	Period      id.Period          `json:"period"`
	TotalOrders int                `json:"total_orders"`
	TotalSales  decimal.Decimal    `json:"total_sales"`
	Products    []ProductSales     `json:"products"`
	CapturedAt  time.Time          `json:"captured_at"`
}

// Key identifies the snapshot's (vendor, period) slot.
func (s *SalesSnapshot) Key() string {
	return fmt.Sprintf("vendor %s period %s", s.VendorID, s.Period.Key())
}

// Validate checks totals are non-negative and that per-product sales add
// up to TotalSales.
func (s *SalesSnapshot) Validate() error {
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "sales snapshot id is required")
	}
	if s.VendorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "sales snapshot vendor_id is required")
	}
	if !s.Period.Type.IsValid() || s.Period.End.Before(s.Period.Start) {
		return dErrors.Newf(dErrors.CodeValidation, "sales snapshot %s has an invalid period", s.ID)
	}
	if s.TotalOrders < 0 || s.TotalSales.IsNegative() {
		return dErrors.Newf(dErrors.CodeValidation, "sales snapshot %s has negative totals", s.ID)
	}
	sum := decimal.Zero
	for _, p := range s.Products {
		if p.ProductID.IsNil() {
			return dErrors.Newf(dErrors.CodeValidation, "sales snapshot %s has a product without id", s.ID)
		}
		if p.Sales.IsNegative() || p.Quantity < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "sales snapshot %s: product %s has negative sales", s.ID, p.ProductID)
		}
		sum = sum.Add(p.Sales)
	}
	if sum.Sub(s.TotalSales).Abs().GreaterThan(SumTolerance) {
		return dErrors.Newf(dErrors.CodeValidation,
			"sales snapshot %s: product sales sum %s does not match total %s",
			s.ID, sum.StringFixed(2), s.TotalSales.StringFixed(2))
	}
	return nil
}

// ProductGoal is one product's goal within a plan.
type ProductGoal struct {
	ProductID   id.ProductID    `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Goal        decimal.Decimal `json:"goal"`
}

// PlanSnapshot is an immutable copy of a regional sales plan as fetched
// from the planning service. Several snapshots may cover the same region
// and bounds; the newest FetchedAt is the default match.
type PlanSnapshot struct {
	ID          id.PlanSnapshotID `json:"plan_snapshot_id"`
	Region      string            `json:"region"`
	Year        int               `json:"year"`
	Quarter     string            `json:"quarter,omitempty"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	TotalGoal   decimal.Decimal   `json:"total_goal"`
	Products    []ProductGoal     `json:"products"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// CalculateTotalGoal sums the per-product goals.
func (p *PlanSnapshot) CalculateTotalGoal() decimal.Decimal {
	total := decimal.Zero
	for _, g := range p.Products {
		total = total.Add(g.Goal)
	}
	return total
}

// Normalize fills bounds from Year/Quarter when absent and the total goal
// from the product goals when it is zero.
func (p *PlanSnapshot) Normalize() error {
	p.Region = strings.TrimSpace(p.Region)
	p.Quarter = strings.ToUpper(strings.TrimSpace(p.Quarter))
	if p.PeriodStart.IsZero() && p.PeriodEnd.IsZero() {
		start, end, err := PlanBounds(p.Year, p.Quarter)
		if err != nil {
			return err
		}
		p.PeriodStart, p.PeriodEnd = start, end
	}
	if p.TotalGoal.IsZero() && len(p.Products) > 0 {
		p.TotalGoal = p.CalculateTotalGoal()
	}
	return nil
}

func (p *PlanSnapshot) Validate() error {
	if p.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "plan snapshot id is required")
	}
	if p.Region == "" {
		return dErrors.Newf(dErrors.CodeValidation, "plan snapshot %s: region is required", p.ID)
	}
	if p.PeriodStart.IsZero() || p.PeriodEnd.Before(p.PeriodStart) {
		return dErrors.Newf(dErrors.CodeValidation, "plan snapshot %s has invalid bounds", p.ID)
	}
	if p.TotalGoal.IsNegative() {
		return dErrors.Newf(dErrors.CodeValidation, "plan snapshot %s has a negative goal", p.ID)
	}
	for _, g := range p.Products {
		if g.ProductID.IsNil() || g.Goal.IsNegative() {
			return dErrors.Newf(dErrors.CodeValidation, "plan snapshot %s has an invalid product goal", p.ID)
		}
	}
	return nil
}

// Covers reports whether the plan applies to the vendor's region over
// exactly the period's bounds.
func (p *PlanSnapshot) Covers(v *Vendor, period id.Period) bool {
	return strings.EqualFold(p.Region, v.Region) &&
		p.PeriodStart.Equal(period.Start) && p.PeriodEnd.Equal(period.End)
}

var quarters = map[string]int{"Q1": 1, "Q2": 2, "Q3": 3, "Q4": 4}

// PlanBounds converts a plan's year and quarter ("Q1".."Q4", or empty for
// the whole year) to calendar bounds.
func PlanBounds(year int, quarter string) (time.Time, time.Time, error) {
	if year < 2000 || year > 9999 {
		return time.Time{}, time.Time{}, dErrors.Newf(dErrors.CodeValidation, "invalid plan year %d", year)
	}
	if quarter == "" {
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC), nil
	}
	q, ok := quarters[quarter]
	if !ok {
		return time.Time{}, time.Time{}, dErrors.Newf(dErrors.CodeValidation, "invalid plan quarter %q", quarter)
	}
	start := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return start, end, nil
}
