package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quarterPeriod(t *testing.T) id.Period {
	t.Helper()
	p, err := id.ParsePeriod("quarterly", "2025-01-01", "2025-03-31")
	require.NoError(t, err)
	return p
}

func salesSnapshot(t *testing.T, total string, products ...ProductSales) *SalesSnapshot {
	t.Helper()
	if products == nil {
		products = []ProductSales{{ProductID: id.ProductID(uuid.New()), Quantity: 1, Sales: dec(total)}}
	}
	return &SalesSnapshot{
		ID:          id.SalesSnapshotID(uuid.New()),
		VendorID:    id.VendorID(uuid.New()),
		Period:      quarterPeriod(t),
		TotalOrders: 3,
		TotalSales:  dec(total),
		Products:    products,
	}
}

func planSnapshot(goal string, products ...ProductGoal) *PlanSnapshot {
	return &PlanSnapshot{
		ID:        id.PlanSnapshotID(uuid.New()),
		Region:    "Andina",
		Year:      2025,
		Quarter:   "Q1",
		TotalGoal: dec(goal),
		Products:  products,
	}
}

func TestEvaluateClassification(t *testing.T) {
	tests := []struct {
		name   string
		sales  string
		goal   string
		pct    string
		status Status
	}{
		{"at goal", "100", "100", "100.00", StatusOK},
		{"above goal", "120", "100", "120.00", StatusOK},
		{"warning band", "80", "100", "80.00", StatusWarning},
		{"just below warning", "79.99", "100", "79.99", StatusAlert},
		{"alert", "50", "100", "50.00", StatusAlert},
		{"rounds to two places", "1", "3", "33.33", StatusAlert},
		{"no sales", "0", "100", "0.00", StatusAlert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(id.ComplianceID(uuid.New()), salesSnapshot(t, tt.sales), planSnapshot(tt.goal), DefaultThresholds(), time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.pct, result.CompliancePct.StringFixed(2))
			assert.Equal(t, tt.status, result.Status)
		})
	}
}

func TestEvaluateUndefinedGoal(t *testing.T) {
	sales := salesSnapshot(t, "10")
	plan := planSnapshot("0")

	_, err := Evaluate(id.ComplianceID(uuid.New()), sales, plan, DefaultThresholds(), time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUndefinedGoal))
	assert.Contains(t, dErrors.Message(err), sales.VendorID.String())
	assert.Contains(t, dErrors.Message(err), plan.ID.String())
}

func TestEvaluateProducts(t *testing.T) {
	gauze := id.ProductID(uuid.New())
	syringe := id.ProductID(uuid.New())
	masks := id.ProductID(uuid.New())
	unsold := id.ProductID(uuid.New())

	sales := salesSnapshot(t, "300.00",
		ProductSales{ProductID: gauze, ProductName: "Gauze", Quantity: 10, Sales: dec("90.00")},
		ProductSales{ProductID: syringe, ProductName: "Syringe", Quantity: 20, Sales: dec("150.00")},
		ProductSales{ProductID: masks, ProductName: "Masks", Quantity: 5, Sales: dec("60.00")},
	)
	plan := planSnapshot("400.00",
		ProductGoal{ProductID: gauze, Goal: dec("100.00")},
		ProductGoal{ProductID: syringe, Goal: dec("150.00")},
		ProductGoal{ProductID: unsold, ProductName: "Gloves", Goal: dec("150.00")},
	)

	result, err := Evaluate(id.ComplianceID(uuid.New()), sales, plan, DefaultThresholds(), time.Now())
	require.NoError(t, err)
	require.Len(t, result.Products, 4)

	assert.Equal(t, gauze, result.Products[0].ProductID)
	assert.Equal(t, "Gauze", result.Products[0].ProductName, "name falls back to the sales line")
	assert.Equal(t, "90.00", result.Products[0].CompliancePct.StringFixed(2))
	assert.Equal(t, StatusWarning, result.Products[0].Status)

	assert.Equal(t, StatusOK, result.Products[1].Status)

	assert.Equal(t, unsold, result.Products[2].ProductID)
	assert.True(t, result.Products[2].Sales.IsZero())
	assert.Equal(t, StatusAlert, result.Products[2].Status)

	assert.Equal(t, masks, result.Products[3].ProductID)
	assert.Nil(t, result.Products[3].CompliancePct)
	assert.Equal(t, StatusUnplanned, result.Products[3].Status)

	sum := decimal.Zero
	for _, p := range result.Products {
		sum = sum.Add(p.Sales)
	}
	assert.True(t, sum.Equal(result.TotalSales), "per-product sales add up to the total")
	assert.Equal(t, "75.00", result.CompliancePct.StringFixed(2))
	assert.Equal(t, StatusAlert, result.Status)
}

func TestResultJSON(t *testing.T) {
	planned := id.ProductID(uuid.New())
	unplanned := id.ProductID(uuid.New())
	sales := salesSnapshot(t, "80",
		ProductSales{ProductID: planned, ProductName: "Gauze", Quantity: 8, Sales: dec("72")},
		ProductSales{ProductID: unplanned, ProductName: "Masks", Quantity: 1, Sales: dec("8")},
	)
	plan := planSnapshot("100", ProductGoal{ProductID: planned, Goal: dec("90")})

	result, err := Evaluate(id.ComplianceID(uuid.New()), sales, plan, DefaultThresholds(), time.Now())
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "80.00", body["compliance_pct"])
	assert.Equal(t, "80.00", body["total_sales"])
	assert.Equal(t, "100.00", body["total_goal"])
	assert.Equal(t, "warning", body["status"])

	products, ok := body["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "80.00", first["compliance_pct"])
	assert.Equal(t, "90.00", first["goal"])
	assert.Equal(t, "72.00", first["sales"])
	second := products[1].(map[string]any)
	assert.Contains(t, second, "compliance_pct")
	assert.Nil(t, second["compliance_pct"], "unplanned products render a null percentage")
}

func TestSalesSnapshotValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, salesSnapshot(t, "12.50").Validate())
	})

	t.Run("product sum within tolerance", func(t *testing.T) {
		s := salesSnapshot(t, "10.00",
			ProductSales{ProductID: id.ProductID(uuid.New()), Sales: dec("3.33")},
			ProductSales{ProductID: id.ProductID(uuid.New()), Sales: dec("6.66")},
		)
		assert.NoError(t, s.Validate())
	})

	t.Run("product sum mismatch", func(t *testing.T) {
		s := salesSnapshot(t, "10.00",
			ProductSales{ProductID: id.ProductID(uuid.New()), Sales: dec("3.00")},
		)
		err := s.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("negative total", func(t *testing.T) {
		s := salesSnapshot(t, "0")
		s.TotalOrders = -1
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeValidation))
	})

	t.Run("missing vendor", func(t *testing.T) {
		s := salesSnapshot(t, "1")
		s.VendorID = id.VendorID(uuid.Nil)
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeValidation))
	})
}

func TestPlanSnapshotNormalize(t *testing.T) {
	t.Run("quarter bounds and total from products", func(t *testing.T) {
		p := planSnapshot("0",
			ProductGoal{ProductID: id.ProductID(uuid.New()), Goal: dec("40")},
			ProductGoal{ProductID: id.ProductID(uuid.New()), Goal: dec("60.5")},
		)
		p.Quarter = " q2 "
		require.NoError(t, p.Normalize())
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), p.PeriodStart)
		assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), p.PeriodEnd)
		assert.Equal(t, "100.50", p.TotalGoal.StringFixed(2))
		assert.NoError(t, p.Validate())
	})

	t.Run("annual plan", func(t *testing.T) {
		p := planSnapshot("10")
		p.Quarter = ""
		require.NoError(t, p.Normalize())
		assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), p.PeriodEnd)
	})

	t.Run("unknown quarter", func(t *testing.T) {
		p := planSnapshot("10")
		p.Quarter = "Q5"
		assert.True(t, dErrors.HasCode(p.Normalize(), dErrors.CodeValidation))
	})

	t.Run("covers vendor region and period", func(t *testing.T) {
		p := planSnapshot("10")
		require.NoError(t, p.Normalize())
		vendor := &Vendor{Region: "andina"}
		assert.True(t, p.Covers(vendor, quarterPeriod(t)))
		assert.False(t, p.Covers(&Vendor{Region: "Caribe"}, quarterPeriod(t)))
	})
}

func TestThresholds(t *testing.T) {
	custom, err := NewThresholds(95, 70)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, custom.Classify(dec("95")))
	assert.Equal(t, StatusWarning, custom.Classify(dec("70")))
	assert.Equal(t, StatusAlert, custom.Classify(dec("69.99")))

	_, err = NewThresholds(80, 90)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
