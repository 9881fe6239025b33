// Package receiving books purchase-order deliveries into inventory.
package receiving

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

// CatalogPort is the slice of the catalog service receiving depends on.
type CatalogPort interface {
	GetMaterial(ctx context.Context, id int64) (catalog.RawMaterial, error)
	GetLocation(ctx context.Context, id int64) (catalog.Location, error)
}

// InventoryPort is the slice of the inventory service receiving depends on.
type InventoryPort interface {
	Receive(ctx context.Context, params inventory.ReceiveParams) (inventory.Item, error)
}

// IdempotencyPort guards against double-posted deliveries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service resolves where a delivery lands and posts it through the inventory
// ledger exactly once per (po, material, lot).
type Service struct {
	catalog           CatalogPort
	stock             InventoryPort
	idempotency       IdempotencyPort
	defaultLocationID int64
}

// NewService builds Service. defaultLocationID is the system-wide receiving
// location used when neither the request nor the material names one; zero
// means there is no system default.
func NewService(cat CatalogPort, stock InventoryPort, idempotency IdempotencyPort, defaultLocationID int64) *Service {
	return &Service{catalog: cat, stock: stock, idempotency: idempotency, defaultLocationID: defaultLocationID}
}

// ReceiveParams describes one delivery line.
type ReceiveParams struct {
	PORef      string
	MaterialID int64
	Quantity   int64
	UnitCost   decimal.Decimal
	LotNumber  string
	ExpiryDate *time.Time
	LocationID *int64
	ActorID    int64
}

// ReceiveAgainstPO books one delivery line. The destination resolves through
// the fallback chain: explicit location, then the material's default
// location, then the system default receiving location.
func (s *Service) ReceiveAgainstPO(ctx context.Context, params ReceiveParams) (inventory.Item, error) {
	if strings.TrimSpace(params.PORef) == "" {
		return inventory.Item{}, shared.Errorf(shared.ErrInvalidInput, "receiving: purchase order reference required")
	}
	if params.Quantity <= 0 {
		return inventory.Item{}, shared.Errorf(shared.ErrInvalidInput, "receiving: quantity must be > 0")
	}

	material, err := s.catalog.GetMaterial(ctx, params.MaterialID)
	if err != nil {
		return inventory.Item{}, err
	}

	locationID, err := s.resolveLocation(ctx, params.LocationID, material)
	if err != nil {
		return inventory.Item{}, err
	}

	key := fmt.Sprintf("receiving:%s:%d:%s", params.PORef, params.MaterialID, params.LotNumber)
	if err := s.idempotency.CheckAndInsert(ctx, key, "receiving"); err != nil {
		return inventory.Item{}, err
	}

	item, err := s.stock.Receive(ctx, inventory.ReceiveParams{
		MaterialID: params.MaterialID,
		LocationID: locationID,
		Quantity:   params.Quantity,
		Unit:       material.Unit,
		LotNumber:  params.LotNumber,
		ExpiryDate: params.ExpiryDate,
		UnitCost:   params.UnitCost,
		Source:     inventory.SourcePurchaseOrder,
		Reference:  params.PORef,
		ActorID:    params.ActorID,
	})
	if err != nil {
		// Free the key so the delivery can be re-posted after the fault.
		_ = s.idempotency.Delete(ctx, key)
		return inventory.Item{}, err
	}
	return item, nil
}

func (s *Service) resolveLocation(ctx context.Context, explicit *int64, material catalog.RawMaterial) (int64, error) {
	var locationID int64
	switch {
	case explicit != nil && *explicit != 0:
		locationID = *explicit
	case material.DefaultLocationID != nil && *material.DefaultLocationID != 0:
		locationID = *material.DefaultLocationID
	case s.defaultLocationID != 0:
		locationID = s.defaultLocationID
	default:
		return 0, shared.Errorf(shared.ErrInvalidInput, "receiving: no receiving location for material %s", material.SKU)
	}

	location, err := s.catalog.GetLocation(ctx, locationID)
	if err != nil {
		return 0, err
	}
	if !location.Active {
		return 0, shared.Errorf(shared.ErrInvalidInput, "receiving: location %s is inactive", location.Name)
	}
	return location.ID, nil
}
