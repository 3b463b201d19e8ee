// Package feed moves sales and plan snapshots over Kafka: a consumer that
// ingests them into the aggregator and a publisher for the sales side.
package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"medisupply/internal/compliance/models"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

// SalesMessage is the wire format of the sales feed. Period bounds are
// YYYY-MM-DD dates.
type SalesMessage struct {
	SnapshotID  id.SalesSnapshotID    `json:"snapshot_id"`
	VendorID    id.VendorID           `json:"vendor_id"`
	PeriodType  string                `json:"period_type"`
	PeriodStart string                `json:"period_start"`
	PeriodEnd   string                `json:"period_end"`
	TotalOrders int                   `json:"total_orders"`
	TotalSales  decimal.Decimal       `json:"total_sales"`
	Products    []models.ProductSales `json:"products"`
	CapturedAt  time.Time             `json:"captured_at"`
}

func NewSalesMessage(s *models.SalesSnapshot) SalesMessage {
	return SalesMessage{
		SnapshotID:  s.ID,
		VendorID:    s.VendorID,
		PeriodType:  string(s.Period.Type),
		PeriodStart: s.Period.Start.Format(id.DateLayout),
		PeriodEnd:   s.Period.End.Format(id.DateLayout),
		TotalOrders: s.TotalOrders,
		TotalSales:  s.TotalSales,
		Products:    s.Products,
		CapturedAt:  s.CapturedAt,
	}
}

func (m SalesMessage) Snapshot() (*models.SalesSnapshot, error) {
	period, err := id.ParsePeriod(m.PeriodType, m.PeriodStart, m.PeriodEnd)
	if err != nil {
		return nil, err
	}
	return &models.SalesSnapshot{
		ID:          m.SnapshotID,
		VendorID:    m.VendorID,
		Period:      period,
		TotalOrders: m.TotalOrders,
		TotalSales:  m.TotalSales,
		Products:    m.Products,
		CapturedAt:  m.CapturedAt,
	}, nil
}

// PlanMessage is the wire format of the plan feed. Bounds are optional and
// derived from Year/Quarter when absent.
type PlanMessage struct {
	PlanSnapshotID id.PlanSnapshotID    `json:"plan_snapshot_id"`
	Region         string               `json:"region"`
	Year           int                  `json:"year"`
	Quarter        string               `json:"quarter,omitempty"`
	PeriodStart    string               `json:"period_start,omitempty"`
	PeriodEnd      string               `json:"period_end,omitempty"`
	TotalGoal      decimal.Decimal      `json:"total_goal"`
	Products       []models.ProductGoal `json:"products"`
	FetchedAt      time.Time            `json:"fetched_at"`
}

func (m PlanMessage) Snapshot() (*models.PlanSnapshot, error) {
	plan := &models.PlanSnapshot{
		ID:        m.PlanSnapshotID,
		Region:    m.Region,
		Year:      m.Year,
		Quarter:   m.Quarter,
		TotalGoal: m.TotalGoal,
		Products:  m.Products,
		FetchedAt: m.FetchedAt,
	}
	if m.PeriodStart != "" || m.PeriodEnd != "" {
		start, err := time.Parse(id.DateLayout, m.PeriodStart)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid plan period_start %q", m.PeriodStart)
		}
		end, err := time.Parse(id.DateLayout, m.PeriodEnd)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid plan period_end %q", m.PeriodEnd)
		}
		plan.PeriodStart, plan.PeriodEnd = start, end
	}
	return plan, nil
}
