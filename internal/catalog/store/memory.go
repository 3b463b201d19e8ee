package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"medisupply/internal/catalog/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

// InMemory is a seedable catalog for tests and the demo server.
type InMemory struct {
	mu         sync.RWMutex
	products   map[id.ProductID]models.Product
	warehouses map[id.WarehouseID]models.Warehouse
}

func NewInMemory() *InMemory {
	return &InMemory{
		products:   make(map[id.ProductID]models.Product),
		warehouses: make(map[id.WarehouseID]models.Warehouse),
	}
}

// PutProduct seeds or replaces a product.
func (s *InMemory) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutWarehouse seeds or replaces a warehouse.
func (s *InMemory) PutWarehouse(w models.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[w.ID] = w
}

func (s *InMemory) FindProduct(_ context.Context, productID id.ProductID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, sentinel.ErrNotFound)
	}
	return &p, nil
}

func (s *InMemory) FindWarehouse(_ context.Context, warehouseID id.WarehouseID) (*models.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[warehouseID]
	if !ok {
		return nil, fmt.Errorf("warehouse %s: %w", warehouseID, sentinel.ErrNotFound)
	}
	return &w, nil
}

func (s *InMemory) ListWarehouses(_ context.Context) ([]models.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
