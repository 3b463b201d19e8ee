// Package service runs the order lifecycle: creation with per-line stock
// reservation, single-step advancement, cancellation, and client tracking.
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

	catalogmodels "medisupply/internal/catalog/models"
	invmodels "medisupply/internal/inventory/models"
	"medisupply/internal/orders/metrics"
	"medisupply/internal/orders/models"
	"medisupply/internal/platform/tracing"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/platform/audit"
	"medisupply/pkg/platform/sentinel"
	"medisupply/pkg/requestcontext"
)

// Store persists orders. Execute holds the order's lock (mutex or FOR
// UPDATE) across validate and mutate; validate receives a context that
// carries the store transaction, if any. A non-nil Transition returned by
// mutate is appended to the order's history in the same unit of work.
type Store interface {
	Create(ctx context.Context, order *models.Order, created models.Transition) error
	FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error)
	ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.Order, error)
	ListHistory(ctx context.Context, orderID id.OrderID) ([]models.Transition, error)
	Execute(ctx context.Context, orderID id.OrderID,
		validate func(ctx context.Context, o *models.Order) error,
		mutate func(o *models.Order) *models.Transition,
	) (*models.Order, error)
}

// Inventory is the ledger as seen by the lifecycle engine.
type Inventory interface {
	Reserve(ctx context.Context, productID id.ProductID, quantity int) (*invmodels.Reservation, error)
	Commit(ctx context.Context, reservationID id.ReservationID) (*invmodels.Reservation, error)
	Release(ctx context.Context, reservationID id.ReservationID) (*invmodels.Reservation, error)
	GetReservation(ctx context.Context, reservationID id.ReservationID) (*invmodels.Reservation, error)
}

// Catalog resolves products referenced by order lines.
type Catalog interface {
	FindProduct(ctx context.Context, productID id.ProductID) (*catalogmodels.Product, error)
}

// IdempotencyStore binds a client-supplied key to the first order created
// with it.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string, orderID id.OrderID, ttl time.Duration) (id.OrderID, bool, error)
	Forget(ctx context.Context, key string) error
}

const defaultIdempotencyTTL = 24 * time.Hour

// Service is the order lifecycle engine.
type Service struct {
	store          Store
	inventory      Inventory
	catalog        Catalog
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditor        audit.Emitter
	tracer         trace.Tracer
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

// WithIdempotency enables Create idempotency keys. ttl <= 0 uses 24h.
func WithIdempotency(store IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func New(store Store, inventory Inventory, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		store:          store,
		inventory:      inventory,
		catalog:        catalog,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         slog.Default(),
		tracer:         tracing.Tracer("medisupply/orders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLine is one requested order line.
type CreateLine struct {
	ProductID id.ProductID
	Quantity  int
}

// CreateCommand carries everything needed to place an order.
type CreateCommand struct {
	ClientID          id.ClientID
	SellerID          id.SellerID
	Lines             []CreateLine
	EstimatedDelivery *time.Time
	IdempotencyKey    string
}

// Create validates the lines, reserves stock for each in order and persists
// a Pending order. Any failure releases every reservation already taken.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "orders.Create",
		attribute.String("client_id", cmd.ClientID.String()),
		attribute.Int("lines", len(cmd.Lines)),
	)
	defer func() { tracing.End(span, err) }()

	orderID := id.OrderID(uuid.New())
	if cmd.IdempotencyKey != "" && s.idempotency != nil {
		bound, claimed, claimErr := s.idempotency.Claim(ctx, cmd.IdempotencyKey, orderID, s.idempotencyTTL)
		if claimErr != nil {
			return nil, dErrors.Wrap(claimErr, dErrors.CodeUnavailable, "idempotency store unavailable")
		}
		if !claimed {
			return s.replay(ctx, bound)
		}
		defer func() {
			if err != nil {
				if forgetErr := s.idempotency.Forget(ctx, cmd.IdempotencyKey); forgetErr != nil {
					s.logger.WarnContext(ctx, "failed to forget idempotency key", "error", forgetErr)
				}
			}
		}()
	}

	order, err = s.create(ctx, orderID, cmd)
	if err != nil {
		s.metrics.IncRejected(string(dErrors.GetCode(err)))
		s.emit(ctx, audit.EventOrderRejected, orderID, dErrors.Message(err))
		return nil, err
	}

	total, _ := order.TotalValue.Float64()
	s.metrics.IncCreated(total)
	s.emit(ctx, audit.EventOrderCreated, order.ID, "")
	s.logger.InfoContext(ctx, "order created",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", order.ID,
		"client_id", order.ClientID,
		"lines", len(order.Lines),
		"total_value", order.TotalValue.StringFixed(2),
	)
	return order, nil
}

func (s *Service) create(ctx context.Context, orderID id.OrderID, cmd CreateCommand) (*models.Order, error) {
	if len(cmd.Lines) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "order must have at least one line")
	}
	products := make([]*catalogmodels.Product, len(cmd.Lines))
	for i, l := range cmd.Lines {
		if l.Quantity <= 0 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "line %d: quantity must be positive", i+1)
		}
		p, err := s.catalog.FindProduct(ctx, l.ProductID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeReferentialIntegrity,
				"line %d: product %s does not exist", i+1, l.ProductID)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
		}
		if !p.IsActive() {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"line %d: product %s is %s", i+1, p.Label(), p.Status)
		}
		products[i] = p
	}

	lines := make([]models.OrderLine, 0, len(cmd.Lines))
	var taken []id.ReservationID
	for i, l := range cmd.Lines {
		res, err := s.inventory.Reserve(ctx, l.ProductID, l.Quantity)
		if err != nil {
			s.releaseAll(ctx, taken)
			if dErrors.HasCode(err, dErrors.CodeInsufficientStock) {
				return nil, dErrors.Wrap(err, dErrors.CodeInsufficientStock,
					fmt.Sprintf("insufficient stock for product %s (line %d, quantity %d)", products[i].Label(), i+1, l.Quantity))
			}
			return nil, err
		}
		taken = append(taken, res.ID)
		lines = append(lines, models.OrderLine{
			ProductID:     l.ProductID,
			SKU:           products[i].SKU,
			Quantity:      l.Quantity,
			UnitValue:     products[i].Value,
			ReservationID: res.ID,
		})
	}

	now := requestcontext.Now(ctx)
	order, created, err := models.NewOrder(orderID, cmd.ClientID, cmd.SellerID, lines, now)
	if err != nil {
		s.releaseAll(ctx, taken)
		return nil, err
	}
	if cmd.EstimatedDelivery != nil {
		order.ApplySchedule(*cmd.EstimatedDelivery, now)
	}
	if err := s.store.Create(ctx, order, created); err != nil {
		s.releaseAll(ctx, taken)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "order %s already exists", orderID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist order")
	}
	return order, nil
}

func (s *Service) replay(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is still in progress")
	}
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	s.metrics.IncIdempotentHit()
	return order, nil
}

func (s *Service) releaseAll(ctx context.Context, reservations []id.ReservationID) {
	for _, resID := range reservations {
		if _, err := s.inventory.Release(ctx, resID); err != nil {
			s.logger.ErrorContext(ctx, "failed to release reservation after rejected order",
				"reservation_id", resID,
				"error", err,
			)
		}
	}
}

// Advance moves the order one step forward. Reaching Delivered commits every
// line reservation while the order lock is held, so a concurrent Cancel
// observes the new state and fails with InvalidTransition.
func (s *Service) Advance(ctx context.Context, orderID id.OrderID, target models.State, reason string) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "orders.Advance",
		attribute.String("order_id", orderID.String()),
		attribute.String("target", target.String()),
	)
	defer func() { tracing.End(span, err) }()

	now := requestcontext.Now(ctx)
	order, err = s.store.Execute(ctx, orderID,
		func(txCtx context.Context, o *models.Order) error {
			if err := o.CanAdvance(target); err != nil {
				return err
			}
			if target != models.StateDelivered {
				return nil
			}
			if err := s.checkReservations(txCtx, o, (*invmodels.Reservation).PlanCommit); err != nil {
				return err
			}
			for _, l := range o.Lines {
				if _, err := s.inventory.Commit(txCtx, l.ReservationID); err != nil {
					return fmt.Errorf("commit line %d: %w", l.LineNo, err)
				}
			}
			return nil
		},
		func(o *models.Order) *models.Transition {
			t := o.ApplyTransition(target, now, reason)
			return &t
		},
	)
	if err != nil {
		return nil, wrapOrderErr(err)
	}

	s.metrics.IncTransition(target.String())
	event := audit.EventOrderAdvanced
	if target == models.StateDelivered {
		event = audit.EventOrderDelivered
	}
	s.emit(ctx, event, orderID, target.String())
	return order, nil
}

// Cancel releases every line reservation and moves the order to Cancelled.
func (s *Service) Cancel(ctx context.Context, orderID id.OrderID, reason string) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "orders.Cancel",
		attribute.String("order_id", orderID.String()))
	defer func() { tracing.End(span, err) }()

	now := requestcontext.Now(ctx)
	order, err = s.store.Execute(ctx, orderID,
		func(txCtx context.Context, o *models.Order) error {
			if err := o.CanCancel(); err != nil {
				return err
			}
			if err := s.checkReservations(txCtx, o, (*invmodels.Reservation).PlanRelease); err != nil {
				return err
			}
			for _, l := range o.Lines {
				if _, err := s.inventory.Release(txCtx, l.ReservationID); err != nil {
					return fmt.Errorf("release line %d: %w", l.LineNo, err)
				}
			}
			return nil
		},
		func(o *models.Order) *models.Transition {
			t := o.ApplyTransition(models.StateCancelled, now, reason)
			return &t
		},
	)
	if err != nil {
		return nil, wrapOrderErr(err)
	}

	s.metrics.IncTransition(models.StateCancelled.String())
	s.emit(ctx, audit.EventOrderCancelled, orderID, reason)
	return order, nil
}

// checkReservations fails before any line is touched if one of the order's
// reservations cannot take the step. The in-memory ledger has no
// transaction to roll back a half-applied commit or release.
func (s *Service) checkReservations(ctx context.Context, o *models.Order,
	plan func(*invmodels.Reservation) (invmodels.Transition, error)) error {
	for _, l := range o.Lines {
		res, err := s.inventory.GetReservation(ctx, l.ReservationID)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.LineNo, err)
		}
		if _, err := plan(res); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidTransition,
				fmt.Sprintf("order %s line %d (product %s): reservation is %s", o.ID, l.LineNo, l.ProductID, res.Status))
		}
	}
	return nil
}

// Schedule sets the estimated delivery of a non-terminal order. It is not a
// state transition and adds no history entry.
func (s *Service) Schedule(ctx context.Context, orderID id.OrderID, at time.Time) (*models.Order, error) {
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "estimated_delivery is required")
	}
	now := requestcontext.Now(ctx)
	order, err := s.store.Execute(ctx, orderID,
		func(_ context.Context, o *models.Order) error { return o.CanSchedule() },
		func(o *models.Order) *models.Transition {
			o.ApplySchedule(at, now)
			return nil
		},
	)
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	return order, nil
}

// History returns the order's transitions oldest first.
func (s *Service) History(ctx context.Context, orderID id.OrderID) ([]models.Transition, error) {
	if _, err := s.store.FindByID(ctx, orderID); err != nil {
		return nil, wrapOrderErr(err)
	}
	history, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	return history, nil
}

// TrackByClient returns the client's orders in tracking form, most recently
// updated first. A client with no orders gets an empty list.
func (s *Service) TrackByClient(ctx context.Context, clientID id.ClientID) ([]models.TrackedOrder, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	orders, err := s.store.ListByClient(ctx, clientID)
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	return models.Track(orders), nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, orderID id.OrderID, reason string) {
	s.logger.InfoContext(ctx, string(event),
		"order_id", orderID,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
		"event", event,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(event),
		SubjectType: "order",
		Subject:     orderID.String(),
		Reason:      reason,
		Timestamp:   requestcontext.Now(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}

func wrapOrderErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "order not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "order operation failed")
}
