package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so stores
// and sinks can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with commercial or regulatory weight:
	// compliance results and their supersession.
	CategoryCompliance EventCategory = "compliance"

	// CategoryFulfillment covers order lifecycle and inventory movements.
	CategoryFulfillment EventCategory = "fulfillment"

	// CategoryOperations covers routine activity such as snapshot ingestion.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory     `json:"category"`
	Timestamp   time.Time         `json:"timestamp"`
	SubjectType string            `json:"subject_type"`
	Subject     string            `json:"subject"`
	Action      string            `json:"action"`
	Decision    string            `json:"decision,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type AuditEvent string

const (
	// Order lifecycle
	EventOrderCreated   AuditEvent = "order_created"
	EventOrderRejected  AuditEvent = "order_rejected"
	EventOrderAdvanced  AuditEvent = "order_advanced"
	EventOrderDelivered AuditEvent = "order_delivered"
	EventOrderCancelled AuditEvent = "order_cancelled"

	// Inventory
	EventStockInsufficient    AuditEvent = "stock_insufficient"
	EventReservationCommitted AuditEvent = "reservation_committed"
	EventReservationReleased  AuditEvent = "reservation_released"
	EventLotReceived          AuditEvent = "lot_received"

	// Compliance
	EventComplianceComputed   AuditEvent = "compliance_computed"
	EventComplianceSuperseded AuditEvent = "compliance_superseded"
	EventComplianceRejected   AuditEvent = "compliance_rejected"
	EventSnapshotIngested     AuditEvent = "snapshot_ingested"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventOrderCreated:         CategoryFulfillment,
	EventOrderRejected:        CategoryFulfillment,
	EventOrderAdvanced:        CategoryFulfillment,
	EventOrderDelivered:       CategoryFulfillment,
	EventOrderCancelled:       CategoryFulfillment,
	EventStockInsufficient:    CategoryFulfillment,
	EventReservationCommitted: CategoryFulfillment,
	EventReservationReleased:  CategoryFulfillment,
	EventLotReceived:          CategoryOperations,

	EventComplianceComputed:   CategoryCompliance,
	EventComplianceSuperseded: CategoryCompliance,
	EventComplianceRejected:   CategoryCompliance,
	EventSnapshotIngested:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on to record audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
