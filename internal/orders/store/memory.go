// Package store persists orders, their lines and their state history.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"medisupply/internal/orders/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

const lockShards = 64

// InMemory keeps orders in maps. Execute serializes per order through a
// fixed set of sharded mutexes; orders in different shards never contend.
type InMemory struct {
	mu       sync.RWMutex
	orders   map[id.OrderID]*models.Order
	byClient map[id.ClientID][]id.OrderID
	history  map[id.OrderID][]models.Transition

	shards [lockShards]sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		orders:   make(map[id.OrderID]*models.Order),
		byClient: make(map[id.ClientID][]id.OrderID),
		history:  make(map[id.OrderID][]models.Transition),
	}
}

func (s *InMemory) shard(orderID id.OrderID) *sync.Mutex {
	u := uuid.UUID(orderID)
	return &s.shards[int(u[15])%lockShards]
}

func (s *InMemory) Create(_ context.Context, order *models.Order, created models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("order %s: %w", order.ID, sentinel.ErrConflict)
	}
	s.orders[order.ID] = order.Clone()
	s.byClient[order.ClientID] = append(s.byClient[order.ClientID], order.ID)
	s.history[order.ID] = []models.Transition{created}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orderID id.OrderID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, sentinel.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *InMemory) ListByClient(_ context.Context, clientID id.ClientID) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byClient[clientID]
	out := make([]*models.Order, 0, len(ids))
	for _, orderID := range ids {
		out = append(out, s.orders[orderID].Clone())
	}
	return out, nil
}

func (s *InMemory) ListHistory(_ context.Context, orderID id.OrderID) ([]models.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Transition(nil), s.history[orderID]...), nil
}

// ListDelivered returns the seller's Delivered orders whose delivery time
// falls within [from, to].
func (s *InMemory) ListDelivered(_ context.Context, sellerID id.SellerID, from, to time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.SellerID != sellerID || o.State != models.StateDelivered {
			continue
		}
		if o.LastUpdatedAt.Before(from) || o.LastUpdatedAt.After(to) {
			continue
		}
		out = append(out, o.Clone())
	}
	return out, nil
}

func (s *InMemory) Execute(ctx context.Context, orderID id.OrderID,
	validate func(ctx context.Context, o *models.Order) error,
	mutate func(o *models.Order) *models.Transition,
) (*models.Order, error) {
	lock := s.shard(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := s.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := validate(ctx, o); err != nil {
		return nil, err
	}
	t := mutate(o)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID] = o.Clone()
	if t != nil {
		s.history[orderID] = append(s.history[orderID], *t)
	}
	return o, nil
}
