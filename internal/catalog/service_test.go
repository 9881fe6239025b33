package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ops/kiln/internal/shared"
)

type fakeRepo struct {
	materials map[int64]RawMaterial
	products  map[int64]Product
	locations map[int64]Location
	bom       map[int64][]BOMItem
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		materials: map[int64]RawMaterial{},
		products:  map[int64]Product{},
		locations: map[int64]Location{},
		bom:       map[int64][]BOMItem{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) GetMaterial(_ context.Context, id int64) (RawMaterial, error) {
	m, ok := f.materials[id]
	if !ok {
		return RawMaterial{}, shared.Errorf(shared.ErrNotFound, "catalog: material %d", id)
	}
	return m, nil
}

func (f *fakeRepo) CreateMaterial(_ context.Context, m RawMaterial) (int64, error) {
	m.ID = f.id()
	f.materials[m.ID] = m
	return m.ID, nil
}

func (f *fakeRepo) ListMaterials(_ context.Context, _, _ int) ([]RawMaterial, error) {
	out := []RawMaterial{}
	for _, m := range f.materials {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeRepo) ListLowStockMaterials(_ context.Context) ([]RawMaterial, error) {
	out := []RawMaterial{}
	for _, m := range f.materials {
		if m.CurrentStockQty < m.ReorderPoint {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := f.products[id]
	if !ok {
		return Product{}, shared.Errorf(shared.ErrNotFound, "catalog: product %d", id)
	}
	return p, nil
}

func (f *fakeRepo) CreateProduct(_ context.Context, p Product) (int64, error) {
	p.ID = f.id()
	f.products[p.ID] = p
	return p.ID, nil
}

func (f *fakeRepo) GetLocation(_ context.Context, id int64) (Location, error) {
	l, ok := f.locations[id]
	if !ok {
		return Location{}, shared.Errorf(shared.ErrNotFound, "catalog: location %d", id)
	}
	return l, nil
}

func (f *fakeRepo) CreateLocation(_ context.Context, l Location) (int64, error) {
	l.ID = f.id()
	f.locations[l.ID] = l
	return l.ID, nil
}

func (f *fakeRepo) ActiveBOM(_ context.Context, productID int64) ([]BOMItem, error) {
	active := []BOMItem{}
	for _, b := range f.bom[productID] {
		if b.Active {
			active = append(active, b)
		}
	}
	return active, nil
}

func (f *fakeRepo) UpsertBOMItem(_ context.Context, item BOMItem) (BOMItem, error) {
	version := 0
	lines := f.bom[item.ProductID]
	for i, b := range lines {
		if b.MaterialID != item.MaterialID {
			continue
		}
		if b.Version > version {
			version = b.Version
		}
		lines[i].Active = false
	}
	item.ID = f.id()
	item.Version = version + 1
	item.Active = true
	item.CreatedAt = time.Now()
	f.bom[item.ProductID] = append(lines, item)
	return item, nil
}

func TestCreateMaterialRequiresSKUAndName(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.CreateMaterial(context.Background(), RawMaterial{Name: "Clay"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreateMaterial(context.Background(), RawMaterial{SKU: "CLAY-STD", Name: "Clay", ReorderPoint: -1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	created, err := svc.CreateMaterial(context.Background(), RawMaterial{SKU: "CLAY-STD", Name: "Clay", Unit: "g"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestLowStockMaterialsComparesCacheToReorderPoint(t *testing.T) {
	repo := newFakeRepo()
	repo.materials[1] = RawMaterial{ID: 1, SKU: "CLAY-STD", CurrentStockQty: 100, ReorderPoint: 5000}
	repo.materials[2] = RawMaterial{ID: 2, SKU: "GLAZE-BLU", CurrentStockQty: 9000, ReorderPoint: 5000}
	svc := NewService(repo)

	low, err := svc.LowStockMaterials(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "CLAY-STD", low[0].SKU)
}

func TestSetBOMItemVersionsLines(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	product, err := svc.CreateProduct(context.Background(), Product{SKU: "MUG-GLZ", Name: "Glazed Mug", Unit: "pc", DefaultBatchSize: 24})
	require.NoError(t, err)
	material, err := svc.CreateMaterial(context.Background(), RawMaterial{SKU: "CLAY-STD", Name: "Clay", Unit: "g"})
	require.NoError(t, err)

	first, err := svc.SetBOMItem(context.Background(), product.ID, material.ID, 400)
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)

	second, err := svc.SetBOMItem(context.Background(), product.ID, material.ID, 420)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)

	active, err := svc.ActiveBOM(context.Background(), product.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(420), active[0].QuantityPerUnit)
}

func TestSetBOMItemValidates(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.SetBOMItem(context.Background(), 1, 2, 0)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.SetBOMItem(context.Background(), 1, 2, 400)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
