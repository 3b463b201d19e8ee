// Package idempotency records Create idempotency keys so a retried request
// returns the order created by the first attempt.
package idempotency

import (
	"context"
	"sync"
	"time"

	id "medisupply/pkg/domain"
	"medisupply/pkg/requestcontext"
)

type claim struct {
	orderID   id.OrderID
	expiresAt time.Time
}

// InMemory is a process-local claim store.
type InMemory struct {
	mu     sync.Mutex
	claims map[string]claim
}

func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[string]claim)}
}

// Claim binds key to orderID unless a live claim exists, in which case it
// returns the order id already bound and false.
func (s *InMemory) Claim(ctx context.Context, key string, orderID id.OrderID, ttl time.Duration) (id.OrderID, bool, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[key]; ok && now.Before(c.expiresAt) {
		return c.orderID, false, nil
	}
	s.claims[key] = claim{orderID: orderID, expiresAt: now.Add(ttl)}
	return orderID, true, nil
}

// Forget drops a claim so the key can be retried after a failed create.
func (s *InMemory) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}
