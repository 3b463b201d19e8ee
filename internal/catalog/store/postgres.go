package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medisupply/internal/catalog/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

// Postgres reads the catalog tables. The core never writes them.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindProduct(ctx context.Context, productID id.ProductID) (*models.Product, error) {
	query := `
		SELECT product_id, sku, name, category, provider, unit, value, status
		FROM products
		WHERE product_id = $1
	`
	var p models.Product
	var rawID uuid.UUID
	var status string
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(productID)).Scan(
		&rawID, &p.SKU, &p.Name, &p.Category, &p.Provider, &p.Unit, &p.Value, &status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	p.ID = id.ProductID(rawID)
	p.Status = models.ProductStatus(status)
	return &p, nil
}

func (s *Postgres) FindWarehouse(ctx context.Context, warehouseID id.WarehouseID) (*models.Warehouse, error) {
	query := `SELECT warehouse_id, name, city, country FROM warehouses WHERE warehouse_id = $1`
	var w models.Warehouse
	var rawID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(warehouseID)).Scan(&rawID, &w.Name, &w.City, &w.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("warehouse %s: %w", warehouseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find warehouse: %w", err)
	}
	w.ID = id.WarehouseID(rawID)
	return &w, nil
}

func (s *Postgres) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT warehouse_id, name, city, country FROM warehouses ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var out []models.Warehouse
	for rows.Next() {
		var w models.Warehouse
		var rawID uuid.UUID
		if err := rows.Scan(&rawID, &w.Name, &w.City, &w.Country); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		w.ID = id.WarehouseID(rawID)
		out = append(out, w)
	}
	return out, rows.Err()
}
