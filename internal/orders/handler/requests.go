package handler

import (
	"fmt"
	"time"

	"medisupply/internal/orders/service"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	ClientID          string              `json:"client_id"`
	SellerID          string              `json:"seller_id"`
	Lines             []CreateLineRequest `json:"lines"`
	EstimatedDelivery *time.Time          `json:"estimated_delivery,omitempty"`
}

type CreateLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (r *CreateOrderRequest) toCommand() (service.CreateCommand, error) {
	clientID, err := id.ParseClientID(r.ClientID)
	if err != nil {
		return service.CreateCommand{}, err
	}
	sellerID, err := id.ParseSellerID(r.SellerID)
	if err != nil {
		return service.CreateCommand{}, err
	}
	if len(r.Lines) == 0 {
		return service.CreateCommand{}, dErrors.New(dErrors.CodeValidation, "lines are required")
	}
	lines := make([]service.CreateLine, len(r.Lines))
	for i, l := range r.Lines {
		productID, err := id.ParseProductID(l.ProductID)
		if err != nil {
			return service.CreateCommand{}, dErrors.Wrap(err, dErrors.CodeInvalidInput,
				fmt.Sprintf("line %d: %s", i+1, dErrors.Message(err)))
		}
		lines[i] = service.CreateLine{ProductID: productID, Quantity: l.Quantity}
	}
	return service.CreateCommand{
		ClientID:          clientID,
		SellerID:          sellerID,
		Lines:             lines,
		EstimatedDelivery: r.EstimatedDelivery,
	}, nil
}

// AdvanceRequest is the body of POST /orders/{orderID}/advance.
type AdvanceRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// CancelRequest is the optional body of POST /orders/{orderID}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ScheduleRequest is the body of PUT /orders/{orderID}/estimated-delivery.
type ScheduleRequest struct {
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}
