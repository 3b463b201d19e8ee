package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/platform/httputil"
	"medisupply/pkg/requestcontext"
)

// Service defines the read side of the compliance aggregator.
type Service interface {
	GetResult(ctx context.Context, complianceID id.ComplianceID) (*models.ComplianceResult, error)
	ListResults(ctx context.Context, filter service.ResultFilter) ([]*models.ComplianceResult, error)
	HasSalesData(ctx context.Context, vendorID id.VendorID, period id.Period) (bool, error)
}

// Handler serves computed compliance results. Computation itself runs in
// the compliance job.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts compliance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/compliance/periods", h.HandlePeriods)
	r.Get("/compliance/results", h.HandleListResults)
	r.Get("/compliance/results/{complianceID}", h.HandleGetResult)
	r.Post("/compliance/sales-data/validate", h.HandleValidateSalesData)
}

// HandlePeriods handles GET /compliance/periods.
func (h *Handler) HandlePeriods(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, PeriodsResponse{Periods: periodOptions})
}

// HandleListResults handles GET /compliance/results. Period filters are
// all-or-nothing: period_type, start and end must be given together.
func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.service.ListResults(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list compliance results failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if results == nil {
		results = []*models.ComplianceResult{}
	}
	httputil.WriteJSON(w, http.StatusOK, ResultsResponse{Results: results, Count: len(results)})
}

// HandleGetResult handles GET /compliance/results/{complianceID}.
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	complianceID, err := id.ParseComplianceID(chi.URLParam(r, "complianceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.GetResult(r.Context(), complianceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleValidateSalesData handles POST /compliance/sales-data/validate.
func (h *Handler) HandleValidateSalesData(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[SalesDataRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	vendorID, err := id.ParseVendorID(req.VendorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	period, err := id.ParsePeriod(req.PeriodType, req.Start, req.End)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ok, err := h.service.HasSalesData(r.Context(), vendorID, period)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SalesDataResponse{VendorID: vendorID, Period: period, HasData: ok})
}

func parseFilter(r *http.Request) (service.ResultFilter, error) {
	q := r.URL.Query()
	var filter service.ResultFilter

	if raw := strings.TrimSpace(q.Get("vendor_id")); raw != "" {
		vendorID, err := id.ParseVendorID(raw)
		if err != nil {
			return filter, err
		}
		filter.VendorID = vendorID
	}

	periodType, start, end := q.Get("period_type"), q.Get("start"), q.Get("end")
	if periodType != "" || start != "" || end != "" {
		if periodType == "" || start == "" || end == "" {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "period_type, start and end must be provided together")
		}
		period, err := id.ParsePeriod(periodType, start, end)
		if err != nil {
			return filter, err
		}
		filter.Period = &period
	}

	if raw := q.Get("include_superseded"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, dErrors.Newf(dErrors.CodeInvalidInput, "invalid include_superseded %q", raw)
		}
		filter.IncludeSuperseded = v
	}
	return filter, nil
}
