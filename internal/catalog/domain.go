package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawMaterial is a purchasable input tracked in smallest units.
// CurrentStockQty is a denormalized cache maintained by the inventory ledger;
// the authoritative quantity is always the sum of item on-hand rows.
type RawMaterial struct {
	ID                int64
	SKU               string
	Name              string
	Unit              string
	ReorderPoint      int64
	CurrentStockQty   int64
	StandardCost      decimal.Decimal
	DefaultLocationID *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product is a sellable output of production.
type Product struct {
	ID               int64
	SKU              string
	Name             string
	Unit             string
	DefaultBatchSize int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Location is a physical storage place. Inactive locations cannot receive stock.
type Location struct {
	ID     int64
	Name   string
	Active bool
}

// BOMItem is one bill-of-materials line. Only one version per
// (product, material) pair is active at a time.
type BOMItem struct {
	ID              int64
	ProductID       int64
	MaterialID      int64
	QuantityPerUnit int64
	Version         int
	Active          bool
	CreatedAt       time.Time
}
