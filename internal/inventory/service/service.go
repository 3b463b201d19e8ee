// Package service implements the inventory ledger: FIFO reservations across
// warehouses with idempotent commit and release.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medisupply/internal/inventory/metrics"
	"medisupply/internal/inventory/models"
	"medisupply/internal/platform/tracing"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/platform/audit"
	"medisupply/pkg/platform/sentinel"
	"medisupply/pkg/requestcontext"
)

// Store persists lots and reservations. The Execute methods run fn while
// holding exclusive locks on every lot fn may touch and persist the mutated
// copies only when fn returns nil.
type Store interface {
	SaveLot(ctx context.Context, lot *models.StockLot) error
	ListLots(ctx context.Context, productID id.ProductID) ([]*models.StockLot, error)
	FindReservation(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error)

	// ExecuteReserve locks all lots of productID and persists the reservation fn returns.
	ExecuteReserve(ctx context.Context, productID id.ProductID,
		fn func(lots []*models.StockLot) (*models.Reservation, error)) (*models.Reservation, error)

	// ExecuteReservation locks the reservation and the lots it draws from.
	ExecuteReservation(ctx context.Context, reservationID id.ReservationID,
		fn func(res *models.Reservation, lots map[id.LotID]*models.StockLot) error) (*models.Reservation, error)
}

// Service is the inventory ledger.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
	tracer  trace.Tracer
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

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: tracing.Tracer("medisupply/inventory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve holds quantity units of productID, drawing from the oldest lots
// first across every warehouse. The reservation is all-or-nothing: on
// shortfall no lot is touched and CodeInsufficientStock is returned.
func (s *Service) Reserve(ctx context.Context, productID id.ProductID, quantity int) (res *models.Reservation, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "inventory.Reserve",
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", quantity),
	)
	defer func() { tracing.End(span, err) }()

	if productID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "product_id is required")
	}
	if quantity <= 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "quantity must be positive, got %d", quantity)
	}

	start := time.Now()
	now := requestcontext.Now(ctx)
	res, err = s.store.ExecuteReserve(ctx, productID, func(lots []*models.StockLot) (*models.Reservation, error) {
		allocations, err := models.AllocateFIFO(lots, quantity)
		if err != nil {
			return nil, err
		}
		return &models.Reservation{
			ID:          id.ReservationID(uuid.New()),
			ProductID:   productID,
			Quantity:    quantity,
			Status:      models.ReservationHeld,
			Allocations: allocations,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	s.metrics.ObserveReserve(time.Since(start).Seconds())

	if err != nil {
		var insufficient *models.InsufficientError
		if errors.As(err, &insufficient) || errors.Is(err, sentinel.ErrInsufficient) {
			s.metrics.IncReservation("insufficient", 0)
			s.emit(ctx, audit.EventStockInsufficient, productID.String(), "product", err.Error())
			return nil, dErrors.Wrap(err, dErrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for product %s: %s", productID, insufficientDetail(err)))
		}
		s.metrics.IncReservation("error", 0)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve stock")
	}

	s.metrics.IncReservation("reserved", quantity)
	s.logger.DebugContext(ctx, "stock reserved",
		"reservation_id", res.ID,
		"product_id", productID,
		"quantity", quantity,
		"lots", len(res.Allocations),
	)
	return res, nil
}

// Commit turns a held reservation into a permanent decrement of on-hand
// stock. Committing an already committed reservation is a no-op.
func (s *Service) Commit(ctx context.Context, reservationID id.ReservationID) (res *models.Reservation, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "inventory.Commit",
		attribute.String("reservation_id", reservationID.String()))
	defer func() { tracing.End(span, err) }()

	applied := false
	res, err = s.store.ExecuteReservation(ctx, reservationID,
		func(r *models.Reservation, lots map[id.LotID]*models.StockLot) error {
			plan, err := r.PlanCommit()
			if err != nil || plan == models.Noop {
				return err
			}
			for _, a := range r.Allocations {
				lot, ok := lots[a.LotID]
				if !ok {
					return fmt.Errorf("allocation lot %s: %w", a.LotID, sentinel.ErrNotFound)
				}
				if err := lot.CommitReserved(a.Quantity); err != nil {
					return err
				}
			}
			r.Status = models.ReservationCommitted
			r.UpdatedAt = requestcontext.Now(ctx)
			applied = true
			return nil
		})
	if err != nil {
		return nil, wrapReservationErr(err, "commit")
	}
	if applied {
		s.metrics.IncCommit()
		s.emit(ctx, audit.EventReservationCommitted, reservationID.String(), "reservation", "")
	}
	return res, nil
}

// Release returns a held reservation to available stock. Releasing an
// already released reservation is a no-op.
func (s *Service) Release(ctx context.Context, reservationID id.ReservationID) (res *models.Reservation, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "inventory.Release",
		attribute.String("reservation_id", reservationID.String()))
	defer func() { tracing.End(span, err) }()

	applied := false
	res, err = s.store.ExecuteReservation(ctx, reservationID,
		func(r *models.Reservation, lots map[id.LotID]*models.StockLot) error {
			plan, err := r.PlanRelease()
			if err != nil || plan == models.Noop {
				return err
			}
			for _, a := range r.Allocations {
				lot, ok := lots[a.LotID]
				if !ok {
					return fmt.Errorf("allocation lot %s: %w", a.LotID, sentinel.ErrNotFound)
				}
				if err := lot.ReleaseReserved(a.Quantity); err != nil {
					return err
				}
			}
			r.Status = models.ReservationReleased
			r.UpdatedAt = requestcontext.Now(ctx)
			applied = true
			return nil
		})
	if err != nil {
		return nil, wrapReservationErr(err, "release")
	}
	if applied {
		s.metrics.IncRelease()
		s.emit(ctx, audit.EventReservationReleased, reservationID.String(), "reservation", "")
	}
	return res, nil
}

// GetReservation returns a reservation by ID.
func (s *Service) GetReservation(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error) {
	res, err := s.store.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, wrapReservationErr(err, "find")
	}
	return res, nil
}

// Availability summarizes on-hand, reserved and available stock for a
// product, with lots in FIFO order.
func (s *Service) Availability(ctx context.Context, productID id.ProductID) (*models.Availability, error) {
	lots, err := s.store.ListLots(ctx, productID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list lots")
	}
	models.SortFIFO(lots)

	out := &models.Availability{ProductID: productID, Lots: make([]models.LotAvailability, 0, len(lots))}
	for _, l := range lots {
		out.OnHand += l.OnHand
		out.Reserved += l.Reserved
		out.Available += l.Available()
		out.Lots = append(out.Lots, models.LotAvailability{
			LotID:       l.ID,
			WarehouseID: l.WarehouseID,
			LotCode:     l.LotCode,
			OnHand:      l.OnHand,
			Reserved:    l.Reserved,
			Available:   l.Available(),
			ReceivedAt:  l.ReceivedAt,
		})
	}
	return out, nil
}

// ReceiveLotCommand registers inbound stock.
type ReceiveLotCommand struct {
	ProductID   id.ProductID
	WarehouseID id.WarehouseID
	LotCode     string
	Country     string
	Quantity    int
	ReceivedAt  time.Time
}

// ReceiveLot records a new lot. Inbound logistics live outside this
// service; this is the entry point their events (and seed data) use.
func (s *Service) ReceiveLot(ctx context.Context, cmd ReceiveLotCommand) (*models.StockLot, error) {
	if cmd.ProductID.IsNil() || cmd.WarehouseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "product_id and warehouse_id are required")
	}
	if cmd.LotCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "lot_code is required")
	}
	if cmd.Quantity <= 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "quantity must be positive, got %d", cmd.Quantity)
	}
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = requestcontext.Now(ctx)
	}
	lot := &models.StockLot{
		ID:          id.LotID(uuid.New()),
		ProductID:   cmd.ProductID,
		WarehouseID: cmd.WarehouseID,
		LotCode:     cmd.LotCode,
		Country:     cmd.Country,
		OnHand:      cmd.Quantity,
		ReceivedAt:  receivedAt,
	}
	if err := s.store.SaveLot(ctx, lot); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "lot %s already exists", cmd.LotCode)
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeReferentialIntegrity, "lot references unknown product or warehouse")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save lot")
	}
	s.emit(ctx, audit.EventLotReceived, lot.ID.String(), "lot", "")
	return lot, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subject, subjectType, reason string) {
	s.logger.InfoContext(ctx, string(event),
		subjectType+"_id", subject,
		"reason", reason,
		"event", event,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(event),
		Subject:     subject,
		SubjectType: subjectType,
		Reason:      reason,
		Timestamp:   requestcontext.Now(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}

func insufficientDetail(err error) string {
	var insufficient *models.InsufficientError
	if errors.As(err, &insufficient) {
		return insufficient.Error()
	}
	return "not enough unreserved stock"
}

func wrapReservationErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "reservation not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidTransition, fmt.Sprintf("cannot %s reservation in its current state", op))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to %s reservation", op))
	}
}
