package models

import (
	"sort"
	"time"

	id "medisupply/pkg/domain"
)

// DeliveryPendingScheduling is shown when an order that should carry a
// delivery estimate has none yet.
const DeliveryPendingScheduling = "delivery pending scheduling"

const trackingDeliveryLayout = "2006-01-02 15:04"

// TrackedOrder is the client-facing tracking view of an order.
type TrackedOrder struct {
	OrderID           id.OrderID `json:"order_id"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUpdatedAt     time.Time  `json:"last_updated_at"`
	Status            State      `json:"status"`
	StatusID          int        `json:"status_id"`
	EstimatedDelivery *string    `json:"estimated_delivery"`
	TotalValue        string     `json:"total_value"`
}

// Track renders orders most recently updated first. Only Processing and
// InTransit orders carry an estimated delivery.
func Track(orders []*Order) []TrackedOrder {
	sorted := append([]*Order(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastUpdatedAt.After(sorted[j].LastUpdatedAt)
	})

	out := make([]TrackedOrder, 0, len(sorted))
	for _, o := range sorted {
		t := TrackedOrder{
			OrderID:       o.ID,
			CreatedAt:     o.CreatedAt,
			LastUpdatedAt: o.LastUpdatedAt,
			Status:        o.State,
			StatusID:      o.State.ID(),
			TotalValue:    o.TotalValue.StringFixed(2),
		}
		if o.State.HasDeliveryEstimate() {
			estimate := DeliveryPendingScheduling
			if o.EstimatedDelivery != nil {
				estimate = o.EstimatedDelivery.UTC().Format(trackingDeliveryLayout)
			}
			t.EstimatedDelivery = &estimate
		}
		out = append(out, t)
	}
	return out
}
