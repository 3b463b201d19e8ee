package handler

import (
	"strings"
	"time"

	"medisupply/internal/inventory/service"
	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

// ReceiveLotRequest is the body of POST /inventory/lots.
type ReceiveLotRequest struct {
	ProductID   string     `json:"product_id"`
	WarehouseID string     `json:"warehouse_id"`
	LotCode     string     `json:"lot_code"`
	Country     string     `json:"country"`
	Quantity    int        `json:"quantity"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
}

func (r *ReceiveLotRequest) toCommand() (service.ReceiveLotCommand, error) {
	productID, err := id.ParseProductID(r.ProductID)
	if err != nil {
		return service.ReceiveLotCommand{}, err
	}
	warehouseID, err := id.ParseWarehouseID(r.WarehouseID)
	if err != nil {
		return service.ReceiveLotCommand{}, err
	}
	lotCode := strings.TrimSpace(r.LotCode)
	if lotCode == "" {
		return service.ReceiveLotCommand{}, dErrors.New(dErrors.CodeValidation, "lot_code is required")
	}
	cmd := service.ReceiveLotCommand{
		ProductID:   productID,
		WarehouseID: warehouseID,
		LotCode:     lotCode,
		Country:     strings.TrimSpace(r.Country),
		Quantity:    r.Quantity,
	}
	if r.ReceivedAt != nil {
		cmd.ReceivedAt = r.ReceivedAt.UTC()
	}
	return cmd, nil
}
