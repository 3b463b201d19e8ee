package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medisupply/internal/compliance/handler/mocks"
	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type ComplianceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestComplianceHandlerSuite(t *testing.T) {
	suite.Run(t, new(ComplianceHandlerSuite))
}

func (s *ComplianceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func sampleResult() *models.ComplianceResult {
	period, _ := id.ParsePeriod("quarterly", "2025-01-01", "2025-03-31")
	return &models.ComplianceResult{
		ID:            id.ComplianceID(uuid.New()),
		VendorID:      id.VendorID(uuid.New()),
		Period:        period,
		Version:       1,
		TotalGoal:     decimal.NewFromInt(1000),
		TotalSales:    decimal.NewFromInt(800),
		CompliancePct: decimal.NewFromInt(80),
		Status:        models.StatusWarning,
		ComputedAt:    time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// GET /compliance/periods
// =============================================================================

func (s *ComplianceHandlerSuite) TestPeriods() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/periods"))

	testutil.AssertStatusOK(s.T(), rr)
	body := testutil.UnmarshalResponse[PeriodsResponse](s.T(), rr)
	s.Require().Len(body.Periods, 4)
	s.Equal("bimestral", body.Periods[0].Value)
	s.Equal(id.PeriodAnnual, body.Periods[3].PeriodType)
}

// =============================================================================
// GET /compliance/results
// =============================================================================

func (s *ComplianceHandlerSuite) TestListResults() {
	s.Run("passes vendor and period filter", func() {
		vendorID := uuid.New()
		result := sampleResult()
		s.service.EXPECT().ListResults(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f service.ResultFilter) ([]*models.ComplianceResult, error) {
				s.Equal(id.VendorID(vendorID), f.VendorID)
				s.Require().NotNil(f.Period)
				s.Equal(id.PeriodQuarterly, f.Period.Type)
				s.False(f.IncludeSuperseded)
				return []*models.ComplianceResult{result}, nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/compliance/results?vendor_id="+vendorID.String()+"&period_type=trimestral&start=2025-01-01&end=2025-03-31"))

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.EqualValues(1, (*body)["count"])
		results := (*body)["results"].([]any)
		first := results[0].(map[string]any)
		s.Equal("warning", first["status"])
		s.Equal("80.00", first["compliance_pct"])
	})

	s.Run("no filter lists everything and returns an empty array", func() {
		s.service.EXPECT().ListResults(gomock.Any(), service.ResultFilter{}).Return(nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"results":[],"count":0}`, string(testutil.ReadBody(s.T(), rr)))
	})

	s.Run("include_superseded is parsed", func() {
		s.service.EXPECT().ListResults(gomock.Any(), service.ResultFilter{IncludeSuperseded: true}).Return(nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results?include_superseded=true"))
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("partial period filter is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results?period_type=anual"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("unknown period type is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/compliance/results?period_type=weekly&start=2025-01-01&end=2025-01-07"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("malformed vendor id is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results?vendor_id=v1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

// =============================================================================
// GET /compliance/results/{complianceID}
// =============================================================================

func (s *ComplianceHandlerSuite) TestGetResult() {
	s.Run("found", func() {
		result := sampleResult()
		s.service.EXPECT().GetResult(gomock.Any(), result.ID).Return(result, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results/"+result.ID.String()))

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(result.ID.String(), (*body)["compliance_id"])
		s.Equal(float64(1), (*body)["version"])
	})

	s.Run("not found maps to 404", func() {
		complianceID := id.ComplianceID(uuid.New())
		s.service.EXPECT().GetResult(gomock.Any(), complianceID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "compliance result not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/results/"+complianceID.String()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

// =============================================================================
// POST /compliance/sales-data/validate
// =============================================================================

func (s *ComplianceHandlerSuite) TestValidateSalesData() {
	s.Run("reports presence of a snapshot", func() {
		vendorID := uuid.New()
		s.service.EXPECT().HasSalesData(gomock.Any(), id.VendorID(vendorID), gomock.Any()).Return(true, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/sales-data/validate", map[string]any{
			"vendor_id":   vendorID.String(),
			"period_type": "bimestral",
			"start":       "2025-01-01",
			"end":         "2025-02-28",
		}))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "has_data", true)
	})

	s.Run("inverted bounds never reach the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/sales-data/validate", map[string]any{
			"vendor_id":   uuid.NewString(),
			"period_type": "bimestral",
			"start":       "2025-02-28",
			"end":         "2025-01-01",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}
