// Package allocation commits finished goods to retail orders. It only ever
// reads availability and moves the reserved counter; on-hand quantities are
// never touched from here.
package allocation

import (
	"context"
	"strings"

	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

// InventoryPort is the slice of the inventory service allocation depends on.
type InventoryPort interface {
	ProductAvailability(ctx context.Context, productID int64) ([]inventory.Item, error)
	Reserve(ctx context.Context, itemID, quantity int64, reference string, actorID int64) (inventory.Item, error)
	Release(ctx context.Context, itemID, quantity int64, reference string, actorID int64) (inventory.Item, error)
}

// Service is the retail allocation facade.
type Service struct {
	stock InventoryPort
}

// NewService builds Service.
func NewService(stock InventoryPort) *Service {
	return &Service{stock: stock}
}

// AvailableStock is one allocatable position for a product.
type AvailableStock struct {
	ItemID     int64  `json:"itemId"`
	BatchID    *int64 `json:"batchId,omitempty"`
	LocationID int64  `json:"locationId"`
	LotNumber  string `json:"lotNumber,omitempty"`
	Available  int64  `json:"available"`
}

// Allocatable lists positions a retail order can draw from.
func (s *Service) Allocatable(ctx context.Context, productID int64) ([]AvailableStock, error) {
	items, err := s.stock.ProductAvailability(ctx, productID)
	if err != nil {
		return nil, err
	}
	stock := make([]AvailableStock, 0, len(items))
	for _, item := range items {
		stock = append(stock, AvailableStock{
			ItemID:     item.ID,
			BatchID:    item.BatchID,
			LocationID: item.LocationID,
			LotNumber:  item.LotNumber,
			Available:  item.Available(),
		})
	}
	return stock, nil
}

// Allocate reserves stock for a retail order.
func (s *Service) Allocate(ctx context.Context, itemID, quantity int64, orderRef string, actorID int64) (inventory.Item, error) {
	if strings.TrimSpace(orderRef) == "" {
		return inventory.Item{}, shared.Errorf(shared.ErrInvalidInput, "allocation: order reference required")
	}
	return s.stock.Reserve(ctx, itemID, quantity, orderRef, actorID)
}

// Deallocate returns a retail order's reservation to the pool.
func (s *Service) Deallocate(ctx context.Context, itemID, quantity int64, orderRef string, actorID int64) (inventory.Item, error) {
	if strings.TrimSpace(orderRef) == "" {
		return inventory.Item{}, shared.Errorf(shared.ErrInvalidInput, "allocation: order reference required")
	}
	return s.stock.Release(ctx, itemID, quantity, orderRef, actorID)
}
