package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medisupply/internal/orders/models"
	"medisupply/internal/orders/service"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/httputil"
	"medisupply/pkg/requestcontext"
)

const idempotencyHeader = "Idempotency-Key"

// Service defines the order operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Order, error)
	Get(ctx context.Context, orderID id.OrderID) (*models.Order, error)
	History(ctx context.Context, orderID id.OrderID) ([]models.Transition, error)
	Advance(ctx context.Context, orderID id.OrderID, target models.State, reason string) (*models.Order, error)
	Cancel(ctx context.Context, orderID id.OrderID, reason string) (*models.Order, error)
	Schedule(ctx context.Context, orderID id.OrderID, at time.Time) (*models.Order, error)
	TrackByClient(ctx context.Context, clientID id.ClientID) ([]models.TrackedOrder, error)
}

// Handler wires order endpoints to the lifecycle engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts order endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.HandleCreate)
	r.Get("/orders/{orderID}", h.HandleGet)
	r.Get("/orders/{orderID}/history", h.HandleHistory)
	r.Post("/orders/{orderID}/advance", h.HandleAdvance)
	r.Post("/orders/{orderID}/cancel", h.HandleCancel)
	r.Put("/orders/{orderID}/estimated-delivery", h.HandleSchedule)
	r.Get("/clients/{clientID}/orders", h.HandleTrackByClient)
}

// HandleCreate handles POST /orders.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, err := httputil.DecodeJSON[CreateOrderRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))

	order, err := h.service.Create(ctx, cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "order rejected",
			"request_id", requestcontext.RequestID(ctx),
			"client_id", req.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "order accepted",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", order.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, order)
}

// HandleGet handles GET /orders/{orderID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleHistory handles GET /orders/{orderID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{OrderID: orderID, Transitions: history})
}

// HandleAdvance handles POST /orders/{orderID}/advance.
func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[AdvanceRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := models.ParseState(req.Target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	order, err := h.service.Advance(ctx, orderID, target, strings.TrimSpace(req.Reason))
	if err != nil {
		h.logger.WarnContext(ctx, "order advance rejected",
			"request_id", requestcontext.RequestID(ctx),
			"order_id", orderID,
			"target", target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleCancel handles POST /orders/{orderID}/cancel. The body is optional.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var reason string
	if r.ContentLength > 0 {
		req, err := httputil.DecodeJSON[CancelRequest](r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		reason = strings.TrimSpace(req.Reason)
	}
	order, err := h.service.Cancel(ctx, orderID, reason)
	if err != nil {
		h.logger.WarnContext(ctx, "order cancel rejected",
			"request_id", requestcontext.RequestID(ctx),
			"order_id", orderID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleSchedule handles PUT /orders/{orderID}/estimated-delivery.
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[ScheduleRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	order, err := h.service.Schedule(r.Context(), orderID, req.EstimatedDelivery)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleTrackByClient handles GET /clients/{clientID}/orders.
func (h *Handler) HandleTrackByClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tracked, err := h.service.TrackByClient(r.Context(), clientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TrackingResponse{ClientID: clientID, Orders: tracked})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (id.OrderID, bool) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.OrderID{}, false
	}
	return orderID, true
}
