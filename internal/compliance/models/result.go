package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusAlert   Status = "alert"

	// StatusUnplanned marks a product that sold without a goal. It only
	// appears on per-product rows.
	StatusUnplanned Status = "unplanned"
)

var hundred = decimal.NewFromInt(100)

// Thresholds are lower bounds, in percent, for the ok and warning bands.
// Anything below Warning is an alert.
type Thresholds struct {
	OK      decimal.Decimal
	Warning decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{OK: decimal.NewFromInt(100), Warning: decimal.NewFromInt(80)}
}

// NewThresholds builds thresholds from configured percentages.
func NewThresholds(ok, warning float64) (Thresholds, error) {
	t := Thresholds{OK: decimal.NewFromFloat(ok), Warning: decimal.NewFromFloat(warning)}
	if t.Warning.IsNegative() || t.Warning.GreaterThan(t.OK) {
		return Thresholds{}, dErrors.Newf(dErrors.CodeValidation,
			"warning threshold %s must be between 0 and the ok threshold %s", t.Warning, t.OK)
	}
	return t, nil
}

func (t Thresholds) Classify(pct decimal.Decimal) Status {
	switch {
	case pct.GreaterThanOrEqual(t.OK):
		return StatusOK
	case pct.GreaterThanOrEqual(t.Warning):
		return StatusWarning
	default:
		return StatusAlert
	}
}

// Percentage returns round(sales / goal × 100, 2). ok is false when the
// goal is not positive.
func Percentage(sales, goal decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if !goal.IsPositive() {
		return decimal.Zero, false
	}
	return sales.Mul(hundred).Div(goal).Round(2), true
}

// ResultKey is the uniqueness key of a compliance result.
type ResultKey struct {
	VendorID       id.VendorID
	Period         id.Period
	PlanSnapshotID id.PlanSnapshotID
}

func (k ResultKey) String() string {
	return fmt.Sprintf("vendor %s, period %s, plan %s", k.VendorID, k.Period.Key(), k.PlanSnapshotID)
}

// ComplianceProduct is the per-product decomposition of a result.
// CompliancePct is nil when the product has no goal.
type ComplianceProduct struct {
	ProductID     id.ProductID     `json:"product_id"`
	ProductName   string           `json:"product_name,omitempty"`
	Goal          decimal.Decimal  `json:"goal"`
	Sales         decimal.Decimal  `json:"sales"`
	CompliancePct *decimal.Decimal `json:"compliance_pct"`
	Status        Status           `json:"status"`
}

// ComplianceResult is write-once. A recomputation for the same key is a
// new version that supersedes the active one.
type ComplianceResult struct {
	ID              id.ComplianceID     `json:"compliance_id"`
	VendorID        id.VendorID         `json:"vendor_id"`
	Period          id.Period           `json:"period"`
	PlanSnapshotID  id.PlanSnapshotID   `json:"plan_snapshot_id"`
	SalesSnapshotID id.SalesSnapshotID  `json:"sales_snapshot_id"`
	Version         int                 `json:"version"`
	TotalGoal       decimal.Decimal     `json:"total_goal"`
	TotalSales      decimal.Decimal     `json:"total_sales"`
	CompliancePct   decimal.Decimal     `json:"compliance_pct"`
	Status          Status              `json:"status"`
	ComputedAt      time.Time           `json:"computed_at"`
	SupersedesID    *id.ComplianceID    `json:"supersedes_id,omitempty"`
	SupersededAt    *time.Time          `json:"superseded_at,omitempty"`
	Products        []ComplianceProduct `json:"products"`
}

// MarshalJSON renders the percentage with exactly two decimals and an
// unplanned product's missing percentage as null.
func (p ComplianceProduct) MarshalJSON() ([]byte, error) {
	type plain ComplianceProduct
	var pct *string
	if p.CompliancePct != nil {
		s := p.CompliancePct.StringFixed(2)
		pct = &s
	}
	return json.Marshal(struct {
		plain
		Goal          string  `json:"goal"`
		Sales         string  `json:"sales"`
		CompliancePct *string `json:"compliance_pct"`
	}{plain(p), p.Goal.StringFixed(2), p.Sales.StringFixed(2), pct})
}

// MarshalJSON renders money and the percentage with exactly two decimals.
func (r ComplianceResult) MarshalJSON() ([]byte, error) {
	type plain ComplianceResult
	return json.Marshal(struct {
		plain
		TotalGoal     string `json:"total_goal"`
		TotalSales    string `json:"total_sales"`
		CompliancePct string `json:"compliance_pct"`
	}{plain(r), r.TotalGoal.StringFixed(2), r.TotalSales.StringFixed(2), r.CompliancePct.StringFixed(2)})
}

func (r *ComplianceResult) Key() ResultKey {
	return ResultKey{VendorID: r.VendorID, Period: r.Period, PlanSnapshotID: r.PlanSnapshotID}
}

func (r *ComplianceResult) IsActive() bool {
	return r.SupersededAt == nil
}

// CheckProductSum verifies that per-product sales add up to TotalSales.
func (r *ComplianceResult) CheckProductSum() error {
	sum := decimal.Zero
	for _, p := range r.Products {
		sum = sum.Add(p.Sales)
	}
	if sum.Sub(r.TotalSales).Abs().GreaterThan(SumTolerance) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"compliance %s: product sales %s do not add up to %s",
			r.Key(), sum.StringFixed(2), r.TotalSales.StringFixed(2))
	}
	return nil
}

func (r *ComplianceResult) Clone() *ComplianceResult {
	c := *r
	c.Products = append([]ComplianceProduct(nil), r.Products...)
	if r.SupersedesID != nil {
		v := *r.SupersedesID
		c.SupersedesID = &v
	}
	if r.SupersededAt != nil {
		v := *r.SupersededAt
		c.SupersededAt = &v
	}
	return &c
}

// Evaluate computes the compliance of a vendor's sales against a plan.
// Version and supersession are assigned by the store. Per-product rows
// list planned products in plan order, then products sold without a goal.
func Evaluate(complianceID id.ComplianceID, sales *SalesSnapshot, plan *PlanSnapshot, t Thresholds, now time.Time) (*ComplianceResult, error) {
	key := ResultKey{VendorID: sales.VendorID, Period: sales.Period, PlanSnapshotID: plan.ID}
	pct, ok := Percentage(sales.TotalSales, plan.TotalGoal)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUndefinedGoal, "plan goal is zero for %s", key)
	}

	sold := make(map[id.ProductID]ProductSales, len(sales.Products))
	for _, p := range sales.Products {
		agg := sold[p.ProductID]
		agg.ProductID = p.ProductID
		if agg.ProductName == "" {
			agg.ProductName = p.ProductName
		}
		agg.Quantity += p.Quantity
		agg.Sales = agg.Sales.Add(p.Sales)
		sold[p.ProductID] = agg
	}

	products := make([]ComplianceProduct, 0, len(plan.Products)+len(sales.Products))
	planned := make(map[id.ProductID]bool, len(plan.Products))
	for _, g := range plan.Products {
		if planned[g.ProductID] {
			continue
		}
		planned[g.ProductID] = true
		s := sold[g.ProductID]
		row := ComplianceProduct{
			ProductID:   g.ProductID,
			ProductName: g.ProductName,
			Goal:        g.Goal,
			Sales:       s.Sales,
			Status:      StatusUnplanned,
		}
		if row.ProductName == "" {
			row.ProductName = s.ProductName
		}
		if p, ok := Percentage(s.Sales, g.Goal); ok {
			row.CompliancePct = &p
			row.Status = t.Classify(p)
		}
		products = append(products, row)
	}
	for _, p := range sales.Products {
		if planned[p.ProductID] {
			continue
		}
		planned[p.ProductID] = true
		s := sold[p.ProductID]
		products = append(products, ComplianceProduct{
			ProductID:   p.ProductID,
			ProductName: s.ProductName,
			Goal:        decimal.Zero,
			Sales:       s.Sales,
			Status:      StatusUnplanned,
		})
	}

	result := &ComplianceResult{
		ID:              complianceID,
		VendorID:        sales.VendorID,
		Period:          sales.Period,
		PlanSnapshotID:  plan.ID,
		SalesSnapshotID: sales.ID,
		TotalGoal:       plan.TotalGoal,
		TotalSales:      sales.TotalSales,
		CompliancePct:   pct,
		Status:          t.Classify(pct),
		ComputedAt:      now,
		Products:        products,
	}
	if err := result.CheckProductSum(); err != nil {
		return nil, err
	}
	return result, nil
}
