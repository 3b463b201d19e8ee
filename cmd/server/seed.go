package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	catalogmodels "medisupply/internal/catalog/models"
	catalogstore "medisupply/internal/catalog/store"
	compliancemodels "medisupply/internal/compliance/models"
	complianceservice "medisupply/internal/compliance/service"
	compliancestore "medisupply/internal/compliance/store"
	inventoryservice "medisupply/internal/inventory/service"
	id "medisupply/pkg/domain"
)

// Demo identifiers are fixed so a fresh in-memory server can be exercised
// without first listing anything.
var (
	demoWarehouse = id.WarehouseID(uuid.MustParse("7c1f0a52-3d0e-4f61-9a43-0d2b8e7f1a01"))
	demoVendor    = id.VendorID(uuid.MustParse("2b6f3f3e-8c1a-4a7e-b1d5-5e9c0f4a7b10"))
	demoPlan      = id.PlanSnapshotID(uuid.MustParse("e4a9d6c2-1b7f-4c3e-8a25-6f0d9b1c3e20"))
)

var demoProducts = []catalogmodels.Product{
	{
		ID: id.ProductID(uuid.MustParse("0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e01")), SKU: "GZE-001",
		Name: "Gasa estéril 10x10", Category: "Curación", Provider: "Medicor", Unit: "caja",
		Value: decimal.RequireFromString("8.50"), Status: catalogmodels.ProductActive,
	},
	{
		ID: id.ProductID(uuid.MustParse("0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e02")), SKU: "SYR-005",
		Name: "Jeringa 5 ml", Category: "Inyectables", Provider: "Medicor", Unit: "unidad",
		Value: decimal.RequireFromString("0.35"), Status: catalogmodels.ProductActive,
	},
	{
		ID: id.ProductID(uuid.MustParse("0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e03")), SKU: "GLV-100",
		Name: "Guantes de nitrilo", Category: "Protección", Provider: "SafeHands", Unit: "caja",
		Value: decimal.RequireFromString("12.90"), Status: catalogmodels.ProductActive,
	},
}

func seedDemo(ctx context.Context, catalog *catalogstore.InMemory, vendors *compliancestore.InMemory,
	inventory *inventoryservice.Service, compliance *complianceservice.Service) error {
	catalog.PutWarehouse(catalogmodels.Warehouse{ID: demoWarehouse, Name: "Bodega Central", City: "Bogotá", Country: "CO"})

	received := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	for i, p := range demoProducts {
		catalog.PutProduct(p)
		for lot, qty := range []int{200, 500} {
			_, err := inventory.ReceiveLot(ctx, inventoryservice.ReceiveLotCommand{
				ProductID:   p.ID,
				WarehouseID: demoWarehouse,
				LotCode:     p.SKU + "-L" + string(rune('A'+lot)),
				Country:     "CO",
				Quantity:    qty,
				ReceivedAt:  received.AddDate(0, 0, 7*(i+lot)),
			})
			if err != nil {
				return err
			}
		}
	}

	vendors.PutVendor(compliancemodels.Vendor{
		ID: demoVendor, Name: "Ana Torres", Email: "ana.torres@medisupply.co", Region: "Andina", Active: true,
	})
	return compliance.IngestPlan(ctx, &compliancemodels.PlanSnapshot{
		ID:      demoPlan,
		Region:  "Andina",
		Year:    2025,
		Quarter: "Q2",
		Products: []compliancemodels.ProductGoal{
			{ProductID: demoProducts[0].ID, ProductName: demoProducts[0].Name, Goal: decimal.NewFromInt(5000)},
			{ProductID: demoProducts[1].ID, ProductName: demoProducts[1].Name, Goal: decimal.NewFromInt(800)},
			{ProductID: demoProducts[2].ID, ProductName: demoProducts[2].Name, Goal: decimal.NewFromInt(3000)},
		},
		FetchedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	})
}
