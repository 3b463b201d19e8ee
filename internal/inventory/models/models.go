// Package models holds the inventory ledger aggregate: stock lots per
// warehouse and the reservations held against them.
package models

import (
	"fmt"
	"time"

	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

// StockLot is one received batch of a product in one warehouse.
// Invariant: 0 <= Reserved <= OnHand.
type StockLot struct {
	ID          id.LotID       `json:"lot_id"`
	ProductID   id.ProductID   `json:"product_id"`
	WarehouseID id.WarehouseID `json:"warehouse_id"`
	LotCode     string         `json:"lot_code"`
	Country     string         `json:"country"`
	OnHand      int            `json:"on_hand"`
	Reserved    int            `json:"reserved"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// Available is the quantity that can still be reserved.
func (l *StockLot) Available() int {
	return l.OnHand - l.Reserved
}

// CheckInvariant verifies 0 <= reserved <= on-hand.
func (l *StockLot) CheckInvariant() error {
	if l.OnHand < 0 || l.Reserved < 0 || l.Reserved > l.OnHand {
		return fmt.Errorf("lot %s on_hand=%d reserved=%d: %w", l.LotCode, l.OnHand, l.Reserved, sentinel.ErrInvalidState)
	}
	return nil
}

// Hold moves q units from available to reserved.
func (l *StockLot) Hold(q int) error {
	if q <= 0 || q > l.Available() {
		return fmt.Errorf("hold %d on lot %s with %d available: %w", q, l.LotCode, l.Available(), sentinel.ErrInsufficient)
	}
	l.Reserved += q
	return nil
}

// CommitReserved removes q reserved units from the lot entirely.
func (l *StockLot) CommitReserved(q int) error {
	if q <= 0 || q > l.Reserved {
		return fmt.Errorf("commit %d on lot %s with %d reserved: %w", q, l.LotCode, l.Reserved, sentinel.ErrInvalidState)
	}
	l.OnHand -= q
	l.Reserved -= q
	return nil
}

// ReleaseReserved returns q reserved units to available.
func (l *StockLot) ReleaseReserved(q int) error {
	if q <= 0 || q > l.Reserved {
		return fmt.Errorf("release %d on lot %s with %d reserved: %w", q, l.LotCode, l.Reserved, sentinel.ErrInvalidState)
	}
	l.Reserved -= q
	return nil
}

// ReservationStatus tracks a reservation through commit or release.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Allocation is the share of a reservation drawn from one lot.
type Allocation struct {
	LotID       id.LotID       `json:"lot_id"`
	WarehouseID id.WarehouseID `json:"warehouse_id"`
	Quantity    int            `json:"quantity"`
}

// Reservation holds stock for one order line until it is committed on
// delivery or released on cancellation.
type Reservation struct {
	ID          id.ReservationID  `json:"reservation_id"`
	ProductID   id.ProductID      `json:"product_id"`
	Quantity    int               `json:"quantity"`
	Status      ReservationStatus `json:"status"`
	Allocations []Allocation      `json:"allocations"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.Allocations = append([]Allocation(nil), r.Allocations...)
	return &c
}

// Transition outcome for idempotent reservation operations.
type Transition int

const (
	// Apply means the lots must be updated.
	Apply Transition = iota
	// Noop means the operation already happened; nothing changes.
	Noop
)

// PlanCommit decides whether a commit applies, is a repeat, or is illegal.
func (r *Reservation) PlanCommit() (Transition, error) {
	switch r.Status {
	case ReservationHeld:
		return Apply, nil
	case ReservationCommitted:
		return Noop, nil
	default:
		return Noop, fmt.Errorf("commit reservation %s in status %s: %w", r.ID, r.Status, sentinel.ErrInvalidState)
	}
}

// PlanRelease decides whether a release applies, is a repeat, or is illegal.
func (r *Reservation) PlanRelease() (Transition, error) {
	switch r.Status {
	case ReservationHeld:
		return Apply, nil
	case ReservationReleased:
		return Noop, nil
	default:
		return Noop, fmt.Errorf("release reservation %s in status %s: %w", r.ID, r.Status, sentinel.ErrInvalidState)
	}
}

// LotAvailability is one lot's line in an availability summary.
type LotAvailability struct {
	LotID       id.LotID       `json:"lot_id"`
	WarehouseID id.WarehouseID `json:"warehouse_id"`
	LotCode     string         `json:"lot_code"`
	OnHand      int            `json:"on_hand"`
	Reserved    int            `json:"reserved"`
	Available   int            `json:"available"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// Availability summarizes a product's stock across warehouses, lots in
// FIFO order.
type Availability struct {
	ProductID id.ProductID      `json:"product_id"`
	OnHand    int               `json:"on_hand"`
	Reserved  int               `json:"reserved"`
	Available int               `json:"available"`
	Lots      []LotAvailability `json:"lots"`
}
