package catalog

import (
	"context"
	"strings"

	"github.com/kiln-ops/kiln/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetMaterial(ctx context.Context, id int64) (RawMaterial, error)
	CreateMaterial(ctx context.Context, m RawMaterial) (int64, error)
	ListMaterials(ctx context.Context, limit, offset int) ([]RawMaterial, error)
	ListLowStockMaterials(ctx context.Context) ([]RawMaterial, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (int64, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, l Location) (int64, error)
	ActiveBOM(ctx context.Context, productID int64) ([]BOMItem, error)
	UpsertBOMItem(ctx context.Context, item BOMItem) (BOMItem, error)
}

// Service coordinates catalog masterdata operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetMaterial returns one raw material.
func (s *Service) GetMaterial(ctx context.Context, id int64) (RawMaterial, error) {
	return s.repo.GetMaterial(ctx, id)
}

// CreateMaterial validates and stores a raw material.
func (s *Service) CreateMaterial(ctx context.Context, m RawMaterial) (RawMaterial, error) {
	if strings.TrimSpace(m.SKU) == "" || strings.TrimSpace(m.Name) == "" {
		return RawMaterial{}, shared.Errorf(shared.ErrInvalidInput, "catalog: material sku and name required")
	}
	if m.ReorderPoint < 0 {
		return RawMaterial{}, shared.Errorf(shared.ErrInvalidInput, "catalog: reorder point must be >= 0")
	}
	id, err := s.repo.CreateMaterial(ctx, m)
	if err != nil {
		return RawMaterial{}, err
	}
	return s.repo.GetMaterial(ctx, id)
}

// ListMaterials returns materials for listing pages.
func (s *Service) ListMaterials(ctx context.Context, page shared.Pagination) ([]RawMaterial, error) {
	return s.repo.ListMaterials(ctx, page.PerPage, page.Offset())
}

// LowStockMaterials returns materials under their reorder point.
func (s *Service) LowStockMaterials(ctx context.Context) ([]RawMaterial, error) {
	return s.repo.ListLowStockMaterials(ctx)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct validates and stores a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return Product{}, shared.Errorf(shared.ErrInvalidInput, "catalog: product sku and name required")
	}
	if p.DefaultBatchSize < 0 {
		return Product{}, shared.Errorf(shared.ErrInvalidInput, "catalog: default batch size must be >= 0")
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	return s.repo.GetProduct(ctx, id)
}

// GetLocation returns one location.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// CreateLocation validates and stores a location.
func (s *Service) CreateLocation(ctx context.Context, l Location) (Location, error) {
	if strings.TrimSpace(l.Name) == "" {
		return Location{}, shared.Errorf(shared.ErrInvalidInput, "catalog: location name required")
	}
	id, err := s.repo.CreateLocation(ctx, l)
	if err != nil {
		return Location{}, err
	}
	return s.repo.GetLocation(ctx, id)
}

// ActiveBOM returns the active bill of materials for a product.
func (s *Service) ActiveBOM(ctx context.Context, productID int64) ([]BOMItem, error) {
	return s.repo.ActiveBOM(ctx, productID)
}

// SetBOMItem records a new active BOM line version for (product, material).
func (s *Service) SetBOMItem(ctx context.Context, productID, materialID, quantityPerUnit int64) (BOMItem, error) {
	if quantityPerUnit <= 0 {
		return BOMItem{}, shared.Errorf(shared.ErrInvalidInput, "catalog: quantity per unit must be > 0")
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return BOMItem{}, err
	}
	if _, err := s.repo.GetMaterial(ctx, materialID); err != nil {
		return BOMItem{}, err
	}
	return s.repo.UpsertBOMItem(ctx, BOMItem{ProductID: productID, MaterialID: materialID, QuantityPerUnit: quantityPerUnit})
}
