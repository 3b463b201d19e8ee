// Package store persists stock lots and reservations.
package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"medisupply/internal/inventory/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

// InMemory keeps lots and reservations in maps. Every lot has its own
// mutex; an operation locks the lots it touches in lot-id order and holds
// them while it validates and mutates. The map lock is only held for the
// copy in and the write back.
type InMemory struct {
	mu           sync.RWMutex
	lots         map[id.LotID]*models.StockLot
	byProduct    map[id.ProductID][]id.LotID
	reservations map[id.ReservationID]*models.Reservation

	lotLocks sync.Map // id.LotID -> *sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		lots:         make(map[id.LotID]*models.StockLot),
		byProduct:    make(map[id.ProductID][]id.LotID),
		reservations: make(map[id.ReservationID]*models.Reservation),
	}
}

// lockLots acquires the mutex of every lot in ascending id order.
func (s *InMemory) lockLots(lotIDs []id.LotID) func() {
	ordered := append([]id.LotID(nil), lotIDs...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := uuid.UUID(ordered[i]), uuid.UUID(ordered[j])
		return bytes.Compare(a[:], b[:]) < 0
	})
	held := make([]*sync.Mutex, 0, len(ordered))
	for _, lotID := range ordered {
		v, _ := s.lotLocks.LoadOrStore(lotID, &sync.Mutex{})
		m := v.(*sync.Mutex)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *InMemory) SaveLot(_ context.Context, lot *models.StockLot) error {
	if err := lot.CheckInvariant(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[lot.ID]; ok {
		return fmt.Errorf("lot %s: %w", lot.ID, sentinel.ErrConflict)
	}
	for _, lotID := range s.byProduct[lot.ProductID] {
		existing := s.lots[lotID]
		if existing.WarehouseID == lot.WarehouseID && existing.LotCode == lot.LotCode {
			return fmt.Errorf("lot code %s: %w", lot.LotCode, sentinel.ErrConflict)
		}
	}
	c := *lot
	s.lots[lot.ID] = &c
	s.byProduct[lot.ProductID] = append(s.byProduct[lot.ProductID], lot.ID)
	return nil
}

func (s *InMemory) ListLots(_ context.Context, productID id.ProductID) ([]*models.StockLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLots(productID), nil
}

func (s *InMemory) FindReservation(_ context.Context, reservationID id.ReservationID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, sentinel.ErrNotFound)
	}
	return res.Clone(), nil
}

func (s *InMemory) ExecuteReserve(_ context.Context, productID id.ProductID,
	fn func(lots []*models.StockLot) (*models.Reservation, error)) (*models.Reservation, error) {
	s.mu.RLock()
	lotIDs := append([]id.LotID(nil), s.byProduct[productID]...)
	s.mu.RUnlock()

	unlock := s.lockLots(lotIDs)
	defer unlock()

	// Lots received after lotIDs was read are not locked and not offered.
	s.mu.RLock()
	lots := s.copyLotsByID(lotIDs)
	s.mu.RUnlock()

	res, err := fn(lots)
	if err != nil {
		return nil, err
	}
	for _, l := range lots {
		if err := l.CheckInvariant(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lots {
		s.lots[l.ID] = l
	}
	s.reservations[res.ID] = res.Clone()
	return res, nil
}

func (s *InMemory) ExecuteReservation(_ context.Context, reservationID id.ReservationID,
	fn func(res *models.Reservation, lots map[id.LotID]*models.StockLot) error) (*models.Reservation, error) {
	s.mu.RLock()
	current, ok := s.reservations[reservationID]
	var lotIDs []id.LotID
	if ok {
		for _, a := range current.Allocations {
			lotIDs = append(lotIDs, a.LotID)
		}
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, sentinel.ErrNotFound)
	}

	// Allocations never change after reserve, so the reservation's status
	// is only ever mutated while these lot locks are held.
	unlock := s.lockLots(lotIDs)
	defer unlock()

	// Re-read under the lot locks; the status may have moved.
	s.mu.RLock()
	res := s.reservations[reservationID].Clone()
	lots := make(map[id.LotID]*models.StockLot, len(res.Allocations))
	for _, a := range res.Allocations {
		if l, ok := s.lots[a.LotID]; ok {
			c := *l
			lots[a.LotID] = &c
		}
	}
	s.mu.RUnlock()

	if err := fn(res, lots); err != nil {
		return nil, err
	}
	for _, l := range lots {
		if err := l.CheckInvariant(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for lotID, l := range lots {
		s.lots[lotID] = l
	}
	s.reservations[reservationID] = res.Clone()
	return res, nil
}

// copyLots and copyLotsByID must be called with s.mu held.
func (s *InMemory) copyLots(productID id.ProductID) []*models.StockLot {
	return s.copyLotsByID(s.byProduct[productID])
}

func (s *InMemory) copyLotsByID(lotIDs []id.LotID) []*models.StockLot {
	out := make([]*models.StockLot, 0, len(lotIDs))
	for _, lotID := range lotIDs {
		c := *s.lots[lotID]
		out = append(out, &c)
	}
	return out
}
