package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medisupply/internal/inventory/models"
	"medisupply/internal/inventory/service"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/httputil"
	"medisupply/pkg/requestcontext"
)

// Service is the slice of the ledger exposed over HTTP.
type Service interface {
	Availability(ctx context.Context, productID id.ProductID) (*models.Availability, error)
	GetReservation(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error)
	ReceiveLot(ctx context.Context, cmd service.ReceiveLotCommand) (*models.StockLot, error)
}

// Handler wires inventory endpoints to the ledger.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts inventory endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/inventory/products/{productID}", h.HandleAvailability)
	r.Get("/inventory/reservations/{reservationID}", h.HandleGetReservation)
	r.Post("/inventory/lots", h.HandleReceiveLot)
}

// HandleAvailability handles GET /inventory/products/{productID}.
func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, err := id.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	availability, err := h.service.Availability(ctx, productID)
	if err != nil {
		h.logger.ErrorContext(ctx, "availability lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"product_id", productID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, availability)
}

// HandleGetReservation handles GET /inventory/reservations/{reservationID}.
func (h *Handler) HandleGetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID, err := id.ParseReservationID(chi.URLParam(r, "reservationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.GetReservation(ctx, reservationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleReceiveLot handles POST /inventory/lots.
func (h *Handler) HandleReceiveLot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[ReceiveLotRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lot, err := h.service.ReceiveLot(ctx, cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "receive lot rejected",
			"request_id", requestcontext.RequestID(ctx),
			"lot_code", req.LotCode,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "lot received",
		"request_id", requestcontext.RequestID(ctx),
		"lot_id", lot.ID,
		"product_id", lot.ProductID,
		"quantity", lot.OnHand,
	)
	httputil.WriteJSON(w, http.StatusCreated, lot)
}
