// Package domain holds identifier and value types shared by every bounded
// context. Identifiers are distinct UUID types so a ProductID can never be
// passed where an OrderID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "medisupply/pkg/domain-errors"
)

type (
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	LotID           uuid.UUID
	ReservationID   uuid.UUID
	OrderID         uuid.UUID
	ClientID        uuid.UUID
	SellerID        uuid.UUID
	PlanSnapshotID  uuid.UUID
	SalesSnapshotID uuid.UUID
	ComplianceID    uuid.UUID
)

// VendorID identifies the seller whose sales are measured against a plan.
type VendorID = SellerID

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be nil", kind)
	}
	return u, nil
}

func unmarshalUUID(dst *uuid.UUID, text []byte) error {
	if len(text) == 0 {
		*dst = uuid.Nil
		return nil
	}
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*dst = u
	return nil
}

func ParseProductID(s string) (ProductID, error) {
	u, err := parseUUID("product_id", s)
	return ProductID(u), err
}

func ParseWarehouseID(s string) (WarehouseID, error) {
	u, err := parseUUID("warehouse_id", s)
	return WarehouseID(u), err
}

func ParseLotID(s string) (LotID, error) {
	u, err := parseUUID("lot_id", s)
	return LotID(u), err
}

func ParseReservationID(s string) (ReservationID, error) {
	u, err := parseUUID("reservation_id", s)
	return ReservationID(u), err
}

func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID("order_id", s)
	return OrderID(u), err
}

func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID("client_id", s)
	return ClientID(u), err
}

func ParseSellerID(s string) (SellerID, error) {
	u, err := parseUUID("seller_id", s)
	return SellerID(u), err
}

// ParseVendorID parses a vendor identifier; vendors share the seller id space.
func ParseVendorID(s string) (VendorID, error) {
	u, err := parseUUID("vendor_id", s)
	return VendorID(u), err
}

func ParsePlanSnapshotID(s string) (PlanSnapshotID, error) {
	u, err := parseUUID("plan_snapshot_id", s)
	return PlanSnapshotID(u), err
}

func ParseSalesSnapshotID(s string) (SalesSnapshotID, error) {
	u, err := parseUUID("sales_snapshot_id", s)
	return SalesSnapshotID(u), err
}

func ParseComplianceID(s string) (ComplianceID, error) {
	u, err := parseUUID("compliance_id", s)
	return ComplianceID(u), err
}

func (id ProductID) String() string       { return uuid.UUID(id).String() }
func (id WarehouseID) String() string     { return uuid.UUID(id).String() }
func (id LotID) String() string           { return uuid.UUID(id).String() }
func (id ReservationID) String() string   { return uuid.UUID(id).String() }
func (id OrderID) String() string         { return uuid.UUID(id).String() }
func (id ClientID) String() string        { return uuid.UUID(id).String() }
func (id SellerID) String() string        { return uuid.UUID(id).String() }
func (id PlanSnapshotID) String() string  { return uuid.UUID(id).String() }
func (id SalesSnapshotID) String() string { return uuid.UUID(id).String() }
func (id ComplianceID) String() string    { return uuid.UUID(id).String() }

func (id ProductID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id WarehouseID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id LotID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id ReservationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SellerID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id PlanSnapshotID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SalesSnapshotID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ComplianceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps JSON payloads (HTTP bodies, snapshot feeds) in the
// canonical UUID string form.

func (id ProductID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id WarehouseID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id LotID) MarshalText() ([]byte, error)           { return uuid.UUID(id).MarshalText() }
func (id ReservationID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id OrderID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id ClientID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SellerID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id PlanSnapshotID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id SalesSnapshotID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ComplianceID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *ProductID) UnmarshalText(b []byte) error       { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *WarehouseID) UnmarshalText(b []byte) error     { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *LotID) UnmarshalText(b []byte) error           { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *ReservationID) UnmarshalText(b []byte) error   { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *OrderID) UnmarshalText(b []byte) error         { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *ClientID) UnmarshalText(b []byte) error        { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *SellerID) UnmarshalText(b []byte) error        { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *PlanSnapshotID) UnmarshalText(b []byte) error  { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *SalesSnapshotID) UnmarshalText(b []byte) error { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *ComplianceID) UnmarshalText(b []byte) error    { return unmarshalUUID((*uuid.UUID)(id), b) }
