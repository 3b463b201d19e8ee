package handler

import (
	"medisupply/internal/orders/models"
	id "medisupply/pkg/domain"
)

// HistoryResponse is returned by GET /orders/{orderID}/history.
type HistoryResponse struct {
	OrderID     id.OrderID          `json:"order_id"`
	Transitions []models.Transition `json:"transitions"`
}

// TrackingResponse is returned by GET /clients/{clientID}/orders.
type TrackingResponse struct {
	ClientID id.ClientID           `json:"client_id"`
	Orders   []models.TrackedOrder `json:"orders"`
}
