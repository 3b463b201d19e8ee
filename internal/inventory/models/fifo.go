package models

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"medisupply/pkg/platform/sentinel"
)

// InsufficientError reports how far a reservation request fell short.
type InsufficientError struct {
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientError) Unwrap() error { return sentinel.ErrInsufficient }

// SortFIFO orders lots oldest first. Ties on received-at fall back to lot
// code, then lot id, so the order is total.
func SortFIFO(lots []*StockLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		if a.LotCode != b.LotCode {
			return a.LotCode < b.LotCode
		}
		ai, bi := uuid.UUID(a.ID), uuid.UUID(b.ID)
		return bytes.Compare(ai[:], bi[:]) < 0
	})
}

// AllocateFIFO places quantity across lots oldest first and applies the
// holds to the given lots. On shortfall it returns *InsufficientError and
// leaves every lot untouched.
func AllocateFIFO(lots []*StockLot, quantity int) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d: %w", quantity, sentinel.ErrInvalidState)
	}

	ordered := append([]*StockLot(nil), lots...)
	SortFIFO(ordered)

	total := 0
	for _, l := range ordered {
		if a := l.Available(); a > 0 {
			total += a
		}
	}
	if total < quantity {
		return nil, &InsufficientError{Requested: quantity, Available: total}
	}

	remaining := quantity
	var allocations []Allocation
	for _, l := range ordered {
		if remaining == 0 {
			break
		}
		take := min(l.Available(), remaining)
		if take <= 0 {
			continue
		}
		if err := l.Hold(take); err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{LotID: l.ID, WarehouseID: l.WarehouseID, Quantity: take})
		remaining -= take
	}
	return allocations, nil
}
