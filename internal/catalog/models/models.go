// Package models holds the reference data the fulfillment core reads but
// never writes: products and the warehouses that stock them.
package models

import (
	"github.com/shopspring/decimal"

	id "medisupply/pkg/domain"
)

// ProductStatus gates whether a product can be ordered.
type ProductStatus string

const (
	ProductActive    ProductStatus = "active"
	ProductInactive  ProductStatus = "inactive"
	ProductSuspended ProductStatus = "suspended"
)

func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductActive, ProductInactive, ProductSuspended:
		return true
	}
	return false
}

// Product is a sellable catalog item. Value is the current unit price;
// orders capture it at creation time.
type Product struct {
	ID       id.ProductID    `json:"product_id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Provider string          `json:"provider"`
	Unit     string          `json:"unit"`
	Value    decimal.Decimal `json:"value"`
	Status   ProductStatus   `json:"status"`
}

// IsActive reports whether the product may appear on new orders.
func (p *Product) IsActive() bool {
	return p.Status == ProductActive
}

// Label names the product in error messages: SKU when present, else the ID.
func (p *Product) Label() string {
	if p.SKU != "" {
		return p.SKU
	}
	return p.ID.String()
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID      id.WarehouseID `json:"warehouse_id"`
	Name    string         `json:"name"`
	City    string         `json:"city"`
	Country string         `json:"country"`
}
