package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/kiln-ops/kiln/internal/observability"
	"github.com/kiln-ops/kiln/internal/shared"
)

// fakeRepo is an in-memory RepositoryPort plus TxRepository. WithTx runs the
// callback directly; service guards reject invalid writes before any
// mutation, so rollback is not simulated.
type fakeRepo struct {
	items         map[int64]*Item
	adjustments   []Adjustment
	movements     []Movement
	materialStock map[int64]int64
	locations     map[int64]string
	nextID        int64
	clock         time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:         map[int64]*Item{},
		materialStock: map[int64]int64{},
		locations:     map[int64]string{1: "Main Warehouse", 2: "Production Floor", 3: "Retail Shelf"},
		clock:         time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) GetItem(_ context.Context, itemID int64) (Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return Item{}, ErrRowNotFound
	}
	return *item, nil
}

func (f *fakeRepo) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return f.GetItem(ctx, itemID)
}

func (f *fakeRepo) FindItemForUpdate(_ context.Context, key ItemKey) (Item, error) {
	for _, item := range f.items {
		if item.Kind == key.Kind &&
			equalPtr(item.MaterialID, key.MaterialID) &&
			equalPtr(item.ProductID, key.ProductID) &&
			equalPtr(item.BatchID, key.BatchID) &&
			item.LocationID == key.LocationID &&
			item.LotNumber == key.LotNumber {
			return *item, nil
		}
	}
	return Item{}, ErrRowNotFound
}

func equalPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepo) InsertItem(_ context.Context, item Item) (int64, error) {
	f.nextID++
	item.ID = f.nextID
	item.CreatedAt = f.tick()
	item.UpdatedAt = item.CreatedAt
	f.items[item.ID] = &item
	return item.ID, nil
}

func (f *fakeRepo) UpdateItemQuantities(_ context.Context, itemID, onHand, reserved int64) error {
	item, ok := f.items[itemID]
	if !ok {
		return ErrRowNotFound
	}
	item.OnHand = onHand
	item.Reserved = reserved
	item.UpdatedAt = f.tick()
	return nil
}

func (f *fakeRepo) UpdateItemStatus(_ context.Context, itemID int64, status ItemStatus) error {
	item, ok := f.items[itemID]
	if !ok {
		return ErrRowNotFound
	}
	item.Status = status
	item.UpdatedAt = f.tick()
	return nil
}

func (f *fakeRepo) InsertAdjustment(_ context.Context, adj Adjustment) (int64, error) {
	f.nextID++
	adj.ID = f.nextID
	adj.CreatedAt = f.tick()
	f.adjustments = append(f.adjustments, adj)
	return adj.ID, nil
}

func (f *fakeRepo) InsertMovement(_ context.Context, mv Movement) (int64, error) {
	f.nextID++
	mv.ID = f.nextID
	mv.CreatedAt = f.tick()
	f.movements = append(f.movements, mv)
	return mv.ID, nil
}

func (f *fakeRepo) AddMaterialStock(_ context.Context, materialID, delta int64) error {
	f.materialStock[materialID] += delta
	return nil
}

func (f *fakeRepo) LocationName(_ context.Context, locationID int64) (string, error) {
	name, ok := f.locations[locationID]
	if !ok {
		return "", ErrRowNotFound
	}
	return name, nil
}

func (f *fakeRepo) ListConsumableLots(_ context.Context, materialID int64) ([]Item, error) {
	lots := []Item{}
	for _, item := range f.items {
		if item.Kind == KindMaterial && item.MaterialID != nil && *item.MaterialID == materialID &&
			item.Status == StatusAvailable && item.Available() > 0 {
			lots = append(lots, *item)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return lots, nil
}

func (f *fakeRepo) ListItemsByBatch(_ context.Context, batchID int64) ([]Item, error) {
	items := []Item{}
	for _, item := range f.items {
		if item.BatchID != nil && *item.BatchID == batchID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeRepo) AvailableForMaterial(_ context.Context, materialID int64) (int64, error) {
	var total int64
	for _, item := range f.items {
		if item.Kind == KindMaterial && item.MaterialID != nil && *item.MaterialID == materialID &&
			item.Status == StatusAvailable {
			total += item.Available()
		}
	}
	return total, nil
}

func (f *fakeRepo) AvailableByProduct(_ context.Context, productID int64) ([]Item, error) {
	items := []Item{}
	for _, item := range f.items {
		if item.Kind == KindProduct && item.ProductID != nil && *item.ProductID == productID &&
			item.Status == StatusAvailable && item.Available() > 0 {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeRepo) ListItems(_ context.Context, filter ItemFilter, limit, offset int) ([]Item, int, error) {
	items := []Item{}
	for _, item := range f.items {
		if filter.Kind != "" && item.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (f *fakeRepo) ListMovements(_ context.Context, itemID int64, _ int) ([]Movement, error) {
	movements := []Movement{}
	for _, mv := range f.movements {
		if mv.ItemID == itemID {
			movements = append(movements, mv)
		}
	}
	return movements, nil
}

func (f *fakeRepo) ListAdjustments(_ context.Context, itemID int64, _ int) ([]Adjustment, error) {
	adjustments := []Adjustment{}
	for _, adj := range f.adjustments {
		if adj.ItemID == itemID {
			adjustments = append(adjustments, adj)
		}
	}
	return adjustments, nil
}

func (f *fakeRepo) RecentAdjustments(_ context.Context, since time.Time, _ int) ([]Adjustment, error) {
	adjustments := []Adjustment{}
	for _, adj := range f.adjustments {
		if !adj.CreatedAt.Before(since) {
			adjustments = append(adjustments, adj)
		}
	}
	return adjustments, nil
}

func (f *fakeRepo) SumAdjustments(_ context.Context, itemID int64) (int64, error) {
	var sum int64
	for _, adj := range f.adjustments {
		if adj.ItemID == itemID {
			sum += adj.Delta
		}
	}
	return sum, nil
}

// seedMaterialLot inserts a material lot directly, bypassing the service.
func (f *fakeRepo) seedMaterialLot(materialID, locationID, onHand int64, lot string, expiry *time.Time) int64 {
	id, _ := f.InsertItem(context.Background(), Item{
		Kind:       KindMaterial,
		MaterialID: &materialID,
		LocationID: locationID,
		OnHand:     0,
		Unit:       "g",
		Status:     StatusAvailable,
		LotNumber:  lot,
		ExpiryDate: expiry,
		Source:     SourcePurchaseOrder,
	})
	if onHand > 0 {
		_, _ = f.InsertAdjustment(context.Background(), Adjustment{ItemID: id, Delta: onHand, Type: AdjustmentReceiving})
		_ = f.UpdateItemQuantities(context.Background(), id, onHand, 0)
		f.materialStock[materialID] += onHand
	}
	return id
}

type fakeAudit struct {
	entries []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeAudit) {
	repo := newFakeRepo()
	audit := &fakeAudit{}
	svc := NewService(repo, audit, (*observability.Metrics)(nil))
	return svc, repo, audit
}

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
