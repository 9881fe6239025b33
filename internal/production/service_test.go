package production

import (
	"context"
	"sort"
	"time"

	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

type fakeRepo struct {
	orders    map[int64]*Order
	batches   map[int64]*Batch
	materials map[int64]*OrderMaterial
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:    map[int64]*Order{},
		batches:   map[int64]*Batch{},
		materials: map[int64]*OrderMaterial{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) InsertOrder(_ context.Context, o Order) (int64, error) {
	f.nextID++
	o.ID = f.nextID
	o.CreatedAt = time.Now()
	f.orders[o.ID] = &o
	return o.ID, nil
}

func (f *fakeRepo) GetOrder(_ context.Context, orderID int64) (Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrRowNotFound
	}
	return *o, nil
}

func (f *fakeRepo) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	return f.GetOrder(ctx, orderID)
}

func (f *fakeRepo) ListOrders(_ context.Context, includeHidden bool, _, _ int) ([]Order, error) {
	orders := []Order{}
	for _, o := range f.orders {
		if !includeHidden && (o.ArchivedAt != nil || o.DismissedAt != nil) {
			continue
		}
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (f *fakeRepo) UpdateOrderStatus(_ context.Context, orderID int64, status OrderStatus, blockedReason string) error {
	o := f.orders[orderID]
	o.Status = status
	o.BlockedReason = blockedReason
	return nil
}

func (f *fakeRepo) ArchiveOrder(_ context.Context, orderID int64, reason string) error {
	o := f.orders[orderID]
	now := time.Now()
	o.ArchivedAt = &now
	o.ArchiveReason = reason
	return nil
}

func (f *fakeRepo) DismissOrder(_ context.Context, orderID int64) error {
	o := f.orders[orderID]
	now := time.Now()
	o.DismissedAt = &now
	return nil
}

func (f *fakeRepo) UpdateOrderSnapshot(_ context.Context, orderID int64, snapshot []byte) error {
	f.orders[orderID].Snapshot = snapshot
	return nil
}

func (f *fakeRepo) InsertBatch(_ context.Context, b Batch) (int64, error) {
	f.nextID++
	b.ID = f.nextID
	f.batches[b.ID] = &b
	return b.ID, nil
}

func (f *fakeRepo) GetBatch(_ context.Context, batchID int64) (Batch, error) {
	b, ok := f.batches[batchID]
	if !ok {
		return Batch{}, ErrRowNotFound
	}
	return *b, nil
}

func (f *fakeRepo) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	return f.GetBatch(ctx, batchID)
}

func (f *fakeRepo) UpdateBatch(_ context.Context, b Batch) error {
	stored := f.batches[b.ID]
	*stored = b
	return nil
}

func (f *fakeRepo) InsertOrderMaterial(_ context.Context, m OrderMaterial) (int64, error) {
	f.nextID++
	m.ID = f.nextID
	f.materials[m.ID] = &m
	return m.ID, nil
}

func (f *fakeRepo) FindOrderMaterialForUpdate(_ context.Context, orderID, materialID int64) (OrderMaterial, error) {
	for _, m := range f.materials {
		if m.OrderID == orderID && m.MaterialID == materialID {
			return *m, nil
		}
	}
	return OrderMaterial{}, ErrRowNotFound
}

func (f *fakeRepo) AddIssuedQty(_ context.Context, orderMaterialID, delta int64) error {
	f.materials[orderMaterialID].IssuedQty += delta
	return nil
}

func (f *fakeRepo) ListBatchesByOrder(_ context.Context, orderID int64) ([]Batch, error) {
	batches := []Batch{}
	for _, b := range f.batches {
		if b.OrderID == orderID {
			batches = append(batches, *b)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (f *fakeRepo) ListOrderMaterials(_ context.Context, orderID int64) ([]OrderMaterial, error) {
	materials := []OrderMaterial{}
	for _, m := range f.materials {
		if m.OrderID == orderID {
			materials = append(materials, *m)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].MaterialID < materials[j].MaterialID })
	return materials, nil
}

// fakeStock is a small in-memory stand-in for the inventory service.
type fakeStock struct {
	items  map[int64]*inventory.Item
	nextID int64
}

func newFakeStock() *fakeStock {
	return &fakeStock{items: map[int64]*inventory.Item{}}
}

func (f *fakeStock) addLot(materialID, onHand int64) int64 {
	f.nextID++
	id := f.nextID
	f.items[id] = &inventory.Item{
		ID: id, Kind: inventory.KindMaterial, MaterialID: &materialID,
		LocationID: 1, OnHand: onHand, Status: inventory.StatusAvailable,
	}
	return id
}

func (f *fakeStock) Consume(_ context.Context, params inventory.ConsumeParams) (inventory.ConsumptionResult, error) {
	result := inventory.ConsumptionResult{Requested: params.Quantity}
	remaining := params.Quantity
	ids := make([]int64, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		item := f.items[id]
		if remaining == 0 {
			break
		}
		if item.Kind != inventory.KindMaterial || item.MaterialID == nil || *item.MaterialID != params.MaterialID {
			continue
		}
		if item.Status != inventory.StatusAvailable || item.Available() <= 0 {
			continue
		}
		take := remaining
		if item.Available() < take {
			take = item.Available()
		}
		item.OnHand -= take
		remaining -= take
		result.ConsumedTotal += take
		result.Lots = append(result.Lots, inventory.LotConsumption{ItemID: item.ID, Quantity: take})
	}
	if remaining > 0 && params.Strict {
		return result, shared.Errorf(shared.ErrInsufficientInventory, "short %d", remaining)
	}
	return result, nil
}

func (f *fakeStock) Produce(_ context.Context, params inventory.ProduceParams) (inventory.Item, error) {
	f.nextID++
	item := inventory.Item{
		ID: f.nextID, Kind: inventory.KindProduct, ProductID: &params.ProductID,
		BatchID: &params.BatchID, LocationID: params.LocationID,
		OnHand: params.Quantity, Status: inventory.StatusAvailable, LotNumber: params.LotNumber,
	}
	f.items[item.ID] = &item
	return item, nil
}

func (f *fakeStock) ApplyAdjustment(_ context.Context, params inventory.ApplyAdjustmentParams) (inventory.Adjustment, int64, error) {
	item, ok := f.items[params.ItemID]
	if !ok {
		return inventory.Adjustment{}, 0, shared.Errorf(shared.ErrNotFound, "item %d", params.ItemID)
	}
	if item.OnHand+params.Delta < 0 {
		return inventory.Adjustment{}, 0, shared.Errorf(shared.ErrInvalidOperation, "would go negative")
	}
	item.OnHand += params.Delta
	return inventory.Adjustment{ItemID: item.ID, Delta: params.Delta, Type: params.Type}, item.OnHand, nil
}

func (f *fakeStock) SetItemStatus(_ context.Context, itemID int64, status inventory.ItemStatus, _ string, _ int64) (inventory.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return inventory.Item{}, shared.Errorf(shared.ErrNotFound, "item %d", itemID)
	}
	item.Status = status
	return *item, nil
}

func (f *fakeStock) MaterialAvailability(_ context.Context, materialID int64) (int64, error) {
	var total int64
	for _, item := range f.items {
		if item.Kind == inventory.KindMaterial && item.MaterialID != nil && *item.MaterialID == materialID &&
			item.Status == inventory.StatusAvailable {
			total += item.Available()
		}
	}
	return total, nil
}

func (f *fakeStock) ItemsByBatch(_ context.Context, batchID int64) ([]inventory.Item, error) {
	items := []inventory.Item{}
	for _, item := range f.items {
		if item.BatchID != nil && *item.BatchID == batchID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStock) GetItem(_ context.Context, itemID int64) (inventory.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return inventory.Item{}, shared.Errorf(shared.ErrNotFound, "item %d", itemID)
	}
	return *item, nil
}

type fakeCatalog struct {
	products map[int64]catalog.Product
	boms     map[int64][]catalog.BOMItem
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, shared.Errorf(shared.ErrNotFound, "product %d", id)
	}
	return p, nil
}

func (f *fakeCatalog) ActiveBOM(_ context.Context, productID int64) ([]catalog.BOMItem, error) {
	return f.boms[productID], nil
}

type fakeAudit struct {
	entries []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeStock, *fakeCatalog) {
	repo := newFakeRepo()
	stock := newFakeStock()
	cat := &fakeCatalog{
		products: map[int64]catalog.Product{
			1: {ID: 1, SKU: "MUG-12", Name: "Glazed Mug", Unit: "pc", DefaultBatchSize: 24},
		},
		boms: map[int64][]catalog.BOMItem{
			1: {
				{ProductID: 1, MaterialID: 10, QuantityPerUnit: 400},
				{ProductID: 1, MaterialID: 11, QuantityPerUnit: 30},
			},
		},
	}
	return NewService(repo, stock, cat, &fakeAudit{}), repo, stock, cat
}
