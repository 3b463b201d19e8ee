// Package models holds the order aggregate and its lifecycle state machine.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
)

// OrderLine is immutable once the order is persisted. UnitValue is the
// catalog value captured when the order was created.
type OrderLine struct {
	LineNo        int              `json:"line_no"`
	ProductID     id.ProductID     `json:"product_id"`
	SKU           string           `json:"sku,omitempty"`
	Quantity      int              `json:"quantity"`
	UnitValue     decimal.Decimal  `json:"unit_value"`
	ReservationID id.ReservationID `json:"reservation_id"`
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitValue.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MarshalJSON renders money with exactly two decimals.
func (l OrderLine) MarshalJSON() ([]byte, error) {
	type plain OrderLine
	return json.Marshal(struct {
		plain
		UnitValue string `json:"unit_value"`
	}{plain(l), l.UnitValue.StringFixed(2)})
}

// Order is the order aggregate. TotalValue always equals the sum of the
// line totals.
type Order struct {
	ID                id.OrderID      `json:"order_id"`
	ClientID          id.ClientID     `json:"client_id"`
	SellerID          id.SellerID     `json:"seller_id"`
	State             State           `json:"state"`
	TotalValue        decimal.Decimal `json:"total_value"`
	CreatedAt         time.Time       `json:"created_at"`
	LastUpdatedAt     time.Time       `json:"last_updated_at"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Lines             []OrderLine     `json:"lines"`
}

// MarshalJSON renders the total with exactly two decimals.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		TotalValue string `json:"total_value"`
	}{plain(o), o.TotalValue.StringFixed(2)})
}

// Transition is one append-only history entry. From is nil for the
// creation entry.
type Transition struct {
	OrderID   id.OrderID `json:"order_id"`
	From      *State     `json:"from,omitempty"`
	To        State      `json:"to"`
	ChangedAt time.Time  `json:"changed_at"`
	Reason    string     `json:"reason,omitempty"`
}

// ComputeTotal sums quantity × unit value over lines.
func ComputeTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// NewOrder builds a Pending order and its creation history entry. Line
// numbers are assigned in input order starting at 1.
func NewOrder(orderID id.OrderID, clientID id.ClientID, sellerID id.SellerID, lines []OrderLine, now time.Time) (*Order, Transition, error) {
	if clientID.IsNil() {
		return nil, Transition{}, dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	if sellerID.IsNil() {
		return nil, Transition{}, dErrors.New(dErrors.CodeValidation, "seller_id is required")
	}
	if len(lines) == 0 {
		return nil, Transition{}, dErrors.New(dErrors.CodeValidation, "order must have at least one line")
	}
	numbered := make([]OrderLine, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, Transition{}, dErrors.Newf(dErrors.CodeValidation, "line %d: quantity must be positive", i+1)
		}
		l.LineNo = i + 1
		numbered[i] = l
	}
	o := &Order{
		ID:            orderID,
		ClientID:      clientID,
		SellerID:      sellerID,
		State:         StatePending,
		TotalValue:    ComputeTotal(numbered),
		CreatedAt:     now,
		LastUpdatedAt: now,
		Lines:         numbered,
	}
	return o, Transition{OrderID: orderID, To: StatePending, ChangedAt: now, Reason: "created"}, nil
}

// CanAdvance checks that target is the single forward step from the
// current state.
func (o *Order) CanAdvance(target State) error {
	if o.State.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s is %s and cannot advance", o.ID, o.State)
	}
	if !target.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown target state %d", int(target))
	}
	if !o.State.CanAdvanceTo(target) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s cannot advance from %s to %s", o.ID, o.State, target)
	}
	return nil
}

func (o *Order) CanCancel() error {
	if !o.State.CanCancel() {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s cannot be cancelled from %s", o.ID, o.State)
	}
	return nil
}

// CanSchedule checks that a delivery estimate may be set.
func (o *Order) CanSchedule() error {
	if o.State.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s is %s and cannot be rescheduled", o.ID, o.State)
	}
	return nil
}

// ApplyTransition moves the order to target and returns the history entry.
// Call CanAdvance or CanCancel first.
func (o *Order) ApplyTransition(target State, now time.Time, reason string) Transition {
	from := o.State
	o.State = target
	o.LastUpdatedAt = now
	return Transition{OrderID: o.ID, From: &from, To: target, ChangedAt: now, Reason: reason}
}

func (o *Order) ApplySchedule(at time.Time, now time.Time) {
	at = at.UTC()
	o.EstimatedDelivery = &at
	o.LastUpdatedAt = now
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	if o.EstimatedDelivery != nil {
		t := *o.EstimatedDelivery
		c.EstimatedDelivery = &t
	}
	return &c
}
