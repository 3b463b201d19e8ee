// Package service computes vendor compliance from immutable sales and plan
// snapshots, and ingests those snapshots from the feeds.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	catalogmodels "medisupply/internal/catalog/models"
	"medisupply/internal/compliance/metrics"
	"medisupply/internal/compliance/models"
	ordermodels "medisupply/internal/orders/models"
	"medisupply/internal/platform/tracing"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/platform/audit"
	"medisupply/pkg/platform/sentinel"
	"medisupply/pkg/requestcontext"
)

// Store persists vendors, snapshots and results. Snapshots are write-once:
// saving a second sales snapshot for the same (vendor, period), or a plan
// snapshot with an existing ID, returns sentinel.ErrConflict.
//
// CreateVersion inserts result as the active version for its key. When an
// active version exists it returns sentinel.ErrConflict unless supersede
// is set, in which case the old version is marked superseded and result
// becomes the next version, atomically.
type Store interface {
	FindVendor(ctx context.Context, vendorID id.VendorID) (*models.Vendor, error)
	ListVendors(ctx context.Context, activeOnly bool) ([]models.Vendor, error)
	SaveSalesSnapshot(ctx context.Context, s *models.SalesSnapshot) error
	FindSalesSnapshot(ctx context.Context, vendorID id.VendorID, period id.Period) (*models.SalesSnapshot, error)
	SavePlanSnapshot(ctx context.Context, p *models.PlanSnapshot) error
	FindPlanSnapshot(ctx context.Context, planID id.PlanSnapshotID) (*models.PlanSnapshot, error)
	LatestPlanSnapshot(ctx context.Context, region string, start, end time.Time) (*models.PlanSnapshot, error)
	CreateVersion(ctx context.Context, result *models.ComplianceResult, supersede bool) error
	FindResult(ctx context.Context, complianceID id.ComplianceID) (*models.ComplianceResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]*models.ComplianceResult, error)
}

// ResultFilter narrows ListResults. Zero values match everything;
// superseded versions are excluded unless IncludeSuperseded is set.
type ResultFilter struct {
	VendorID          id.VendorID
	Period            *id.Period
	IncludeSuperseded bool
}

// Orders is the read side of the order store used to build sales
// snapshots.
type Orders interface {
	ListDelivered(ctx context.Context, sellerID id.SellerID, from, to time.Time) ([]*ordermodels.Order, error)
}

// Catalog names products in built snapshots.
type Catalog interface {
	FindProduct(ctx context.Context, productID id.ProductID) (*catalogmodels.Product, error)
}

type Service struct {
	store       Store
	orders      Orders
	catalog     Catalog
	thresholds  models.Thresholds
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     audit.Emitter
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithThresholds(t models.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithConcurrency bounds how many vendors RunPeriod evaluates at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithOrders enables BuildSalesSnapshot.
func WithOrders(orders Orders, catalog Catalog) Option {
	return func(s *Service) {
		s.orders = orders
		s.catalog = catalog
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		thresholds:  models.DefaultThresholds(),
		concurrency: 8,
		logger:      slog.Default(),
		tracer:      tracing.Tracer("medisupply/compliance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeRequest selects one compliance computation. A nil PlanSnapshotID
// picks the newest plan snapshot covering the vendor's region and period.
type ComputeRequest struct {
	VendorID       id.VendorID
	Period         id.Period
	PlanSnapshotID *id.PlanSnapshotID
	Supersede      bool
}

// Compute evaluates and persists one compliance result.
//
// Errors: CodeReferentialIntegrity (unknown vendor or plan snapshot),
// CodeNotFound (no sales or no matching plan snapshot), CodeValidation
// (plan does not cover the vendor/period), CodeUndefinedGoal,
// CodeDuplicateComplianceResult.
func (s *Service) Compute(ctx context.Context, req ComputeRequest) (result *models.ComplianceResult, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "compliance.Compute",
		attribute.String("vendor_id", req.VendorID.String()),
		attribute.String("period", req.Period.Key()),
	)
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	result, err = s.compute(ctx, req)
	if err != nil {
		code := dErrors.GetCode(err)
		s.metrics.IncFailed(string(code))
		s.emit(ctx, audit.EventComplianceRejected, "vendor", req.VendorID.String(), string(code), dErrors.Message(err))
		return nil, err
	}

	s.metrics.ObserveComputed(string(result.Status), result.CompliancePct.InexactFloat64(), time.Since(start).Seconds())
	event := audit.EventComplianceComputed
	if result.SupersedesID != nil {
		event = audit.EventComplianceSuperseded
	}
	s.emit(ctx, event, "vendor", req.VendorID.String(), string(result.Status), result.Key().String())
	s.logger.InfoContext(ctx, "compliance computed",
		"compliance_id", result.ID,
		"vendor_id", result.VendorID,
		"period", result.Period.Key(),
		"plan_snapshot_id", result.PlanSnapshotID,
		"version", result.Version,
		"compliance_pct", result.CompliancePct.StringFixed(2),
		"status", result.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) compute(ctx context.Context, req ComputeRequest) (*models.ComplianceResult, error) {
	vendor, err := s.store.FindVendor(ctx, req.VendorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeReferentialIntegrity, "vendor %s does not exist", req.VendorID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vendor")
	}

	sales, err := s.store.FindSalesSnapshot(ctx, vendor.ID, req.Period)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no sales snapshot for vendor %s, period %s", vendor.ID, req.Period.Key())
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sales snapshot")
	}

	plan, err := s.resolvePlan(ctx, vendor, req)
	if err != nil {
		return nil, err
	}

	result, err := models.Evaluate(id.ComplianceID(uuid.New()), sales, plan, s.thresholds, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateVersion(ctx, result, req.Supersede); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeDuplicateComplianceResult,
				"compliance already computed for %s", result.Key())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist compliance result")
	}
	return result, nil
}

func (s *Service) resolvePlan(ctx context.Context, vendor *models.Vendor, req ComputeRequest) (*models.PlanSnapshot, error) {
	if req.PlanSnapshotID != nil {
		plan, err := s.store.FindPlanSnapshot(ctx, *req.PlanSnapshotID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeReferentialIntegrity, "plan snapshot %s does not exist", *req.PlanSnapshotID)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load plan snapshot")
		}
		if !plan.Covers(vendor, req.Period) {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"plan snapshot %s (region %s) does not cover vendor %s (region %s), period %s",
				plan.ID, plan.Region, vendor.ID, vendor.Region, req.Period.Key())
		}
		return plan, nil
	}
	plan, err := s.store.LatestPlanSnapshot(ctx, vendor.Region, req.Period.Start, req.Period.End)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound,
			"no plan snapshot for region %s, period %s (vendor %s)", vendor.Region, req.Period.Key(), vendor.ID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load plan snapshot")
	}
	return plan, nil
}

// RunOptions configures a period run. Empty VendorIDs means every active
// vendor.
type RunOptions struct {
	VendorIDs []id.VendorID
	Supersede bool
}

// Outcome is one vendor's result within a run. When a run covers all
// active vendors, those without a sales snapshot for the period are
// skipped rather than failed.
type Outcome struct {
	VendorID id.VendorID              `json:"vendor_id"`
	Result   *models.ComplianceResult `json:"result,omitempty"`
	Skipped  bool                     `json:"skipped,omitempty"`
	Err      error                    `json:"-"`
	Error    string                   `json:"error,omitempty"`
}

// RunReport collects the outcomes of a period run in vendor order.
type RunReport struct {
	Period     id.Period `json:"period"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Results returns the results persisted by the run.
func (r *RunReport) Results() []*models.ComplianceResult {
	var out []*models.ComplianceResult
	for _, o := range r.Outcomes {
		if o.Result != nil {
			out = append(out, o.Result)
		}
	}
	return out
}

// FirstError returns the first failed outcome's error in vendor order.
func (r *RunReport) FirstError() error {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

// RunPeriod computes compliance for every selected vendor in parallel.
// Vendor failures are recorded per outcome and never cancel the others;
// the returned error is reserved for failures to start the run.
func (s *Service) RunPeriod(ctx context.Context, period id.Period, opts RunOptions) (report *RunReport, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "compliance.RunPeriod", attribute.String("period", period.Key()))
	defer func() { tracing.End(span, err) }()

	vendorIDs, err := s.selectVendors(ctx, opts.VendorIDs)
	if err != nil {
		return nil, err
	}

	report = &RunReport{Period: period, StartedAt: time.Now(), Outcomes: make([]Outcome, len(vendorIDs))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, vendorID := range vendorIDs {
		g.Go(func() error {
			report.Outcomes[i] = s.runVendor(gctx, vendorID, period, opts)
			return nil
		})
	}
	_ = g.Wait()
	report.FinishedAt = time.Now()

	s.logger.InfoContext(ctx, "compliance period run finished",
		"period", period.Key(),
		"vendors", len(vendorIDs),
		"computed", len(report.Results()),
	)
	return report, nil
}

func (s *Service) runVendor(ctx context.Context, vendorID id.VendorID, period id.Period, opts RunOptions) Outcome {
	outcome := Outcome{VendorID: vendorID}
	if len(opts.VendorIDs) == 0 {
		has, err := s.HasSalesData(ctx, vendorID, period)
		if err != nil {
			outcome.Err, outcome.Error = err, dErrors.Message(err)
			return outcome
		}
		if !has {
			outcome.Skipped = true
			return outcome
		}
	}
	result, err := s.Compute(ctx, ComputeRequest{VendorID: vendorID, Period: period, Supersede: opts.Supersede})
	if err != nil {
		outcome.Err, outcome.Error = err, dErrors.Message(err)
		return outcome
	}
	outcome.Result = result
	return outcome
}

func (s *Service) selectVendors(ctx context.Context, requested []id.VendorID) ([]id.VendorID, error) {
	if len(requested) > 0 {
		out := append([]id.VendorID(nil), requested...)
		sortVendorIDs(out)
		return out, nil
	}
	vendors, err := s.store.ListVendors(ctx, true)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vendors")
	}
	out := make([]id.VendorID, len(vendors))
	for i, v := range vendors {
		out[i] = v.ID
	}
	sortVendorIDs(out)
	return out, nil
}

// ActiveVendors returns the IDs of every active vendor in run order.
func (s *Service) ActiveVendors(ctx context.Context) ([]id.VendorID, error) {
	return s.selectVendors(ctx, nil)
}

func sortVendorIDs(ids []id.VendorID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// IngestSales stores a sales snapshot from the feed or from
// BuildSalesSnapshot. A second snapshot for the same (vendor, period) is
// rejected with CodeConflict.
func (s *Service) IngestSales(ctx context.Context, snap *models.SalesSnapshot) (err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "compliance.IngestSales",
		attribute.String("snapshot_id", snap.ID.String()))
	defer func() { tracing.End(span, err) }()

	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = requestcontext.Now(ctx)
	}
	if err := snap.Validate(); err != nil {
		s.metrics.IncIngested("sales", "invalid")
		return err
	}
	if _, err := s.store.FindVendor(ctx, snap.VendorID); err != nil {
		s.metrics.IncIngested("sales", "invalid")
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeReferentialIntegrity, "vendor %s does not exist", snap.VendorID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vendor")
	}
	if err := s.store.SaveSalesSnapshot(ctx, snap); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncIngested("sales", "duplicate")
			return dErrors.Newf(dErrors.CodeConflict, "sales snapshot already ingested for %s", snap.Key())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save sales snapshot")
	}
	s.metrics.IncIngested("sales", "stored")
	s.emit(ctx, audit.EventSnapshotIngested, "sales_snapshot", snap.ID.String(), "stored", snap.Key())
	return nil
}

// IngestPlan normalizes and stores a plan snapshot. Re-delivery of the same
// snapshot ID is rejected with CodeConflict.
func (s *Service) IngestPlan(ctx context.Context, plan *models.PlanSnapshot) (err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "compliance.IngestPlan",
		attribute.String("plan_snapshot_id", plan.ID.String()))
	defer func() { tracing.End(span, err) }()

	if plan.FetchedAt.IsZero() {
		plan.FetchedAt = requestcontext.Now(ctx)
	}
	if err := plan.Normalize(); err != nil {
		s.metrics.IncIngested("plan", "invalid")
		return err
	}
	if err := plan.Validate(); err != nil {
		s.metrics.IncIngested("plan", "invalid")
		return err
	}
	if err := s.store.SavePlanSnapshot(ctx, plan); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncIngested("plan", "duplicate")
			return dErrors.Newf(dErrors.CodeConflict, "plan snapshot %s already ingested", plan.ID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save plan snapshot")
	}
	s.metrics.IncIngested("plan", "stored")
	s.emit(ctx, audit.EventSnapshotIngested, "plan_snapshot", plan.ID.String(), "stored", plan.Region)
	return nil
}

// HasSalesData reports whether a sales snapshot exists for the vendor and
// period.
func (s *Service) HasSalesData(ctx context.Context, vendorID id.VendorID, period id.Period) (bool, error) {
	_, err := s.store.FindSalesSnapshot(ctx, vendorID, period)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sales snapshot")
	}
	return true, nil
}

// BuildSalesSnapshot aggregates the vendor's orders delivered within the
// period into a new snapshot. It does not store it.
func (s *Service) BuildSalesSnapshot(ctx context.Context, vendorID id.VendorID, period id.Period) (snap *models.SalesSnapshot, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "compliance.BuildSalesSnapshot",
		attribute.String("vendor_id", vendorID.String()),
		attribute.String("period", period.Key()),
	)
	defer func() { tracing.End(span, err) }()

	if s.orders == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "order source is not configured")
	}
	if _, err := s.store.FindVendor(ctx, vendorID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeReferentialIntegrity, "vendor %s does not exist", vendorID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vendor")
	}

	to := period.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
	orders, err := s.orders.ListDelivered(ctx, id.SellerID(vendorID), period.Start, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list delivered orders")
	}

	snap = &models.SalesSnapshot{
		ID:          id.SalesSnapshotID(uuid.New()),
		VendorID:    vendorID,
		Period:      period,
		TotalOrders: len(orders),
		TotalSales:  decimal.Zero,
		CapturedAt:  requestcontext.Now(ctx),
	}
	index := make(map[id.ProductID]int)
	for _, o := range orders {
		snap.TotalSales = snap.TotalSales.Add(o.TotalValue)
		for _, l := range o.Lines {
			i, ok := index[l.ProductID]
			if !ok {
				i = len(snap.Products)
				index[l.ProductID] = i
				snap.Products = append(snap.Products, models.ProductSales{
					ProductID:   l.ProductID,
					ProductName: s.productName(ctx, l),
				})
			}
			snap.Products[i].Quantity += l.Quantity
			snap.Products[i].Sales = snap.Products[i].Sales.Add(l.Total())
		}
	}
	return snap, nil
}

func (s *Service) productName(ctx context.Context, line ordermodels.OrderLine) string {
	if s.catalog != nil {
		if p, err := s.catalog.FindProduct(ctx, line.ProductID); err == nil {
			return p.Name
		}
	}
	return line.SKU
}

// GetResult returns one result, superseded or not.
func (s *Service) GetResult(ctx context.Context, complianceID id.ComplianceID) (*models.ComplianceResult, error) {
	r, err := s.store.FindResult(ctx, complianceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "compliance result %s not found", complianceID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance result")
	}
	return r, nil
}

func (s *Service) ListResults(ctx context.Context, filter ResultFilter) ([]*models.ComplianceResult, error) {
	results, err := s.store.ListResults(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance results")
	}
	return results, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subjectType, subject, decision, reason string) {
	s.logger.InfoContext(ctx, string(event),
		subjectType+"_id", subject,
		"decision", decision,
		"reason", reason,
		"event", event,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(event),
		SubjectType: subjectType,
		Subject:     subject,
		Decision:    decision,
		Reason:      reason,
		Timestamp:   requestcontext.Now(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
