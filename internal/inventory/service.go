package inventory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiln-ops/kiln/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListConsumableLots(ctx context.Context, materialID int64) ([]Item, error)
	ListItemsByBatch(ctx context.Context, batchID int64) ([]Item, error)
	AvailableForMaterial(ctx context.Context, materialID int64) (int64, error)
	AvailableByProduct(ctx context.Context, productID int64) ([]Item, error)
	ListItems(ctx context.Context, filter ItemFilter, limit, offset int) ([]Item, int, error)
	ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error)
	ListAdjustments(ctx context.Context, itemID int64, limit int) ([]Adjustment, error)
	RecentAdjustments(ctx context.Context, since time.Time, limit int) ([]Adjustment, error)
	SumAdjustments(ctx context.Context, itemID int64) (int64, error)
}

// AuditPort records audit trail entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts domain events. All implementations must tolerate a nil
// receiver so tests can leave metrics unset.
type MetricsPort interface {
	CountAdjustment(adjustmentType string)
	CountReservationRejected()
	CountLotConsumed()
}

// Service owns every quantity mutation. On-hand changes only happen through
// ledger adjustments posted here; reservations only change the reserved
// counter and never touch the ledger.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	metrics  MetricsPort
	activity *ActivityCache
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// UseActivityCache attaches the recent-activity cache. Optional; without it
// recent-activity reads go straight to the database.
func (s *Service) UseActivityCache(cache *ActivityCache) {
	s.activity = cache
}

// ApplyAdjustmentParams carries one ledger posting.
type ApplyAdjustmentParams struct {
	ItemID      int64
	Delta       int64
	Type        AdjustmentType
	Reason      string
	RelatedType string
	RelatedID   int64
	ActorID     int64
}

// ReceiveParams records stock arriving from outside the system.
type ReceiveParams struct {
	MaterialID int64
	LocationID int64
	Quantity   int64
	Unit       string
	LotNumber  string
	ExpiryDate *time.Time
	UnitCost   decimal.Decimal
	Source     ItemSource
	Reference  string
	ActorID    int64
}

// ProduceParams records finished goods entering stock from a batch.
type ProduceParams struct {
	ProductID  int64
	BatchID    int64
	LocationID int64
	Quantity   int64
	Unit       string
	LotNumber  string
	ExpiryDate *time.Time
	UnitCost   decimal.Decimal
	Reference  string
	ActorID    int64
}

// MoveParams relocates uncommitted stock between locations.
type MoveParams struct {
	ItemID       int64
	ToLocationID int64
	Quantity     int64
	Reason       string
	ActorID      int64
}

func validAdjustmentType(t AdjustmentType) bool {
	switch t {
	case AdjustmentReceiving, AdjustmentProductionComplete, AdjustmentProductionScrap,
		AdjustmentConsumption, AdjustmentManualCorrection:
		return true
	}
	return false
}

func validItemStatus(s ItemStatus) bool {
	switch s {
	case StatusAvailable, StatusQuarantined, StatusDamaged, StatusScrapped:
		return true
	}
	return false
}

// ApplyAdjustment posts one ledger entry against an item and updates its
// on-hand quantity inside a single transaction, recording a paired ADJUST
// movement so the movement history stays complete. The resulting on-hand
// must stay at or above zero and must still cover outstanding reservations.
// Returns the posted adjustment and the item's new on-hand quantity.
func (s *Service) ApplyAdjustment(ctx context.Context, params ApplyAdjustmentParams) (Adjustment, int64, error) {
	if params.Delta == 0 {
		return Adjustment{}, 0, shared.Errorf(shared.ErrInvalidInput, "inventory: adjustment delta must be non-zero")
	}
	if !validAdjustmentType(params.Type) {
		return Adjustment{}, 0, shared.Errorf(shared.ErrInvalidInput, "inventory: unknown adjustment type %q", params.Type)
	}
	if strings.TrimSpace(params.Reason) == "" {
		return Adjustment{}, 0, shared.Errorf(shared.ErrInvalidInput, "inventory: adjustment reason required")
	}

	var (
		adj       Adjustment
		newOnHand int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, params.ItemID)
		if err != nil {
			if err == ErrRowNotFound {
				return errItemNotFound(params.ItemID)
			}
			return err
		}
		adj, newOnHand, err = s.applyLocked(ctx, tx, item, params)
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:   item.ID,
			Type:     MovementAdjust,
			Quantity: params.Delta,
			Reason:   params.Reason,
			ActorID:  params.ActorID,
		})
		return err
	})
	if err != nil {
		return Adjustment{}, 0, err
	}

	s.metrics.CountAdjustment(string(params.Type))
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "inventory.adjust",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(params.ItemID, 10),
		Meta:     map[string]any{"delta": params.Delta, "type": string(params.Type), "reason": params.Reason},
	})
	return adj, newOnHand, nil
}

// applyLocked performs the ledger posting against an already locked item. It
// is the single write path shared by every operation that changes on-hand.
// Returns the posted adjustment and the resulting on-hand quantity.
func (s *Service) applyLocked(ctx context.Context, tx TxRepository, item Item, params ApplyAdjustmentParams) (Adjustment, int64, error) {
	newOnHand := item.OnHand + params.Delta
	if newOnHand < 0 {
		return Adjustment{}, 0, shared.Errorf(shared.ErrInvalidOperation,
			"inventory: item %d has %d on hand, adjustment of %d would go negative", item.ID, item.OnHand, params.Delta)
	}
	if newOnHand < item.Reserved {
		return Adjustment{}, 0, shared.Errorf(shared.ErrInvalidOperation,
			"inventory: item %d has %d reserved, adjustment of %d would break reservations", item.ID, item.Reserved, params.Delta)
	}
	if err := tx.UpdateItemQuantities(ctx, item.ID, newOnHand, item.Reserved); err != nil {
		return Adjustment{}, 0, err
	}
	adj := Adjustment{
		ItemID:      item.ID,
		Delta:       params.Delta,
		Reason:      params.Reason,
		Type:        params.Type,
		RelatedType: params.RelatedType,
		RelatedID:   params.RelatedID,
		CreatedBy:   params.ActorID,
	}
	id, err := tx.InsertAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, 0, err
	}
	adj.ID = id
	if item.Kind == KindMaterial && item.MaterialID != nil {
		if err := tx.AddMaterialStock(ctx, *item.MaterialID, params.Delta); err != nil {
			return Adjustment{}, 0, err
		}
	}
	return adj, newOnHand, nil
}

// Receive books arriving stock onto the matching (material, location, lot)
// item, creating it on first arrival. New lots start AVAILABLE.
func (s *Service) Receive(ctx context.Context, params ReceiveParams) (Item, error) {
	if params.Quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: receive quantity must be > 0")
	}
	if params.Source == "" {
		params.Source = SourcePurchaseOrder
	}

	var itemID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		key := ItemKey{Kind: KindMaterial, MaterialID: &params.MaterialID, LocationID: params.LocationID, LotNumber: params.LotNumber}
		item, err := tx.FindItemForUpdate(ctx, key)
		if err == ErrRowNotFound {
			item = Item{
				Kind:       KindMaterial,
				MaterialID: &params.MaterialID,
				LocationID: params.LocationID,
				Unit:       params.Unit,
				Status:     StatusAvailable,
				LotNumber:  params.LotNumber,
				ExpiryDate: params.ExpiryDate,
				UnitCost:   params.UnitCost,
				Source:     params.Source,
			}
			item.ID, err = tx.InsertItem(ctx, item)
		}
		if err != nil {
			return err
		}
		itemID = item.ID

		if _, _, err := s.applyLocked(ctx, tx, item, ApplyAdjustmentParams{
			ItemID:      item.ID,
			Delta:       params.Quantity,
			Type:        AdjustmentReceiving,
			Reason:      "stock received",
			RelatedType: "receiving",
			ActorID:     params.ActorID,
		}); err != nil {
			return err
		}
		locName, err := tx.LocationName(ctx, params.LocationID)
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:     item.ID,
			Type:       MovementReceive,
			Quantity:   params.Quantity,
			ToLocation: locName,
			Reference:  params.Reference,
			ActorID:    params.ActorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	s.metrics.CountAdjustment(string(AdjustmentReceiving))
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "inventory.receive",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     map[string]any{"material_id": params.MaterialID, "quantity": params.Quantity, "lot": params.LotNumber, "reference": params.Reference},
	})
	return s.repo.GetItem(ctx, itemID)
}

// Produce books finished goods from a production batch into stock. Each batch
// yields its own finished-goods item so the lot can be quarantined or
// released as one unit.
func (s *Service) Produce(ctx context.Context, params ProduceParams) (Item, error) {
	if params.Quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: produce quantity must be > 0")
	}

	var itemID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		key := ItemKey{Kind: KindProduct, ProductID: &params.ProductID, BatchID: &params.BatchID, LocationID: params.LocationID, LotNumber: params.LotNumber}
		item, err := tx.FindItemForUpdate(ctx, key)
		if err == ErrRowNotFound {
			item = Item{
				Kind:       KindProduct,
				ProductID:  &params.ProductID,
				BatchID:    &params.BatchID,
				LocationID: params.LocationID,
				Unit:       params.Unit,
				Status:     StatusAvailable,
				LotNumber:  params.LotNumber,
				ExpiryDate: params.ExpiryDate,
				UnitCost:   params.UnitCost,
				Source:     SourceProduction,
			}
			item.ID, err = tx.InsertItem(ctx, item)
		}
		if err != nil {
			return err
		}
		itemID = item.ID

		if _, _, err := s.applyLocked(ctx, tx, item, ApplyAdjustmentParams{
			ItemID:      item.ID,
			Delta:       params.Quantity,
			Type:        AdjustmentProductionComplete,
			Reason:      "batch output",
			RelatedType: "batch",
			RelatedID:   params.BatchID,
			ActorID:     params.ActorID,
		}); err != nil {
			return err
		}
		locName, err := tx.LocationName(ctx, params.LocationID)
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:     item.ID,
			Type:       MovementProduce,
			Quantity:   params.Quantity,
			ToLocation: locName,
			Reference:  params.Reference,
			ActorID:    params.ActorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	s.metrics.CountAdjustment(string(AdjustmentProductionComplete))
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "inventory.produce",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     map[string]any{"product_id": params.ProductID, "batch_id": params.BatchID, "quantity": params.Quantity},
	})
	return s.repo.GetItem(ctx, itemID)
}

// Move relocates uncommitted stock to another location as two single-item
// transactions: a correction out of the source item, then a correction into
// the destination item for the same lot. Reserved stock never moves.
func (s *Service) Move(ctx context.Context, params MoveParams) (Item, error) {
	if params.Quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: move quantity must be > 0")
	}

	var source Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, params.ItemID)
		if err != nil {
			if err == ErrRowNotFound {
				return errItemNotFound(params.ItemID)
			}
			return err
		}
		if item.LocationID == params.ToLocationID {
			return shared.Errorf(shared.ErrInvalidOperation, "inventory: item %d already at location %d", item.ID, params.ToLocationID)
		}
		if item.Available() < params.Quantity {
			return shared.Errorf(shared.ErrInsufficientInventory,
				"inventory: item %d has %d available, cannot move %d", item.ID, item.Available(), params.Quantity)
		}
		source = item

		if _, _, err := s.applyLocked(ctx, tx, item, ApplyAdjustmentParams{
			ItemID:  item.ID,
			Delta:   -params.Quantity,
			Type:    AdjustmentManualCorrection,
			Reason:  "moved out: " + params.Reason,
			ActorID: params.ActorID,
		}); err != nil {
			return err
		}
		fromName, err := tx.LocationName(ctx, item.LocationID)
		if err != nil {
			return err
		}
		toName, err := tx.LocationName(ctx, params.ToLocationID)
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:       item.ID,
			Type:         MovementMove,
			Quantity:     params.Quantity,
			FromLocation: fromName,
			ToLocation:   toName,
			Reason:       params.Reason,
			ActorID:      params.ActorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	var destID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		key := ItemKey{
			Kind:       source.Kind,
			MaterialID: source.MaterialID,
			ProductID:  source.ProductID,
			BatchID:    source.BatchID,
			LocationID: params.ToLocationID,
			LotNumber:  source.LotNumber,
		}
		dest, err := tx.FindItemForUpdate(ctx, key)
		if err == ErrRowNotFound {
			dest = source
			dest.ID = 0
			dest.LocationID = params.ToLocationID
			dest.OnHand = 0
			dest.Reserved = 0
			dest.ID, err = tx.InsertItem(ctx, dest)
		}
		if err != nil {
			return err
		}
		destID = dest.ID

		if _, _, err := s.applyLocked(ctx, tx, dest, ApplyAdjustmentParams{
			ItemID:  dest.ID,
			Delta:   params.Quantity,
			Type:    AdjustmentManualCorrection,
			Reason:  "moved in: " + params.Reason,
			ActorID: params.ActorID,
		}); err != nil {
			return err
		}
		fromName, err := tx.LocationName(ctx, source.LocationID)
		if err != nil {
			return err
		}
		toName, err := tx.LocationName(ctx, params.ToLocationID)
		if err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:       dest.ID,
			Type:         MovementMove,
			Quantity:     params.Quantity,
			FromLocation: fromName,
			ToLocation:   toName,
			Reason:       params.Reason,
			ActorID:      params.ActorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "inventory.move",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(params.ItemID, 10),
		Meta:     map[string]any{"to_location_id": params.ToLocationID, "quantity": params.Quantity, "destination_item_id": destID},
	})
	return s.repo.GetItem(ctx, destID)
}

// Reserve commits available stock against an order without changing on-hand.
func (s *Service) Reserve(ctx context.Context, itemID, quantity int64, reference string, actorID int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: reserve quantity must be > 0")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			if err == ErrRowNotFound {
				return errItemNotFound(itemID)
			}
			return err
		}
		if item.Status != StatusAvailable {
			return shared.Errorf(shared.ErrInvalidOperation, "inventory: item %d is %s, only AVAILABLE stock can be reserved", item.ID, item.Status)
		}
		if item.Available() < quantity {
			s.metrics.CountReservationRejected()
			return shared.Errorf(shared.ErrInsufficientInventory,
				"inventory: item %d has %d available, cannot reserve %d", item.ID, item.Available(), quantity)
		}
		if err := tx.UpdateItemQuantities(ctx, item.ID, item.OnHand, item.Reserved+quantity); err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:    item.ID,
			Type:      MovementReserve,
			Quantity:  quantity,
			Reference: reference,
			ActorID:   actorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory.reserve",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     map[string]any{"quantity": quantity, "reference": reference},
	})
	return s.repo.GetItem(ctx, itemID)
}

// Release returns reserved stock to the available pool.
func (s *Service) Release(ctx context.Context, itemID, quantity int64, reference string, actorID int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: release quantity must be > 0")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			if err == ErrRowNotFound {
				return errItemNotFound(itemID)
			}
			return err
		}
		if quantity > item.Reserved {
			return shared.Errorf(shared.ErrInvalidOperation,
				"inventory: item %d has %d reserved, cannot release %d", item.ID, item.Reserved, quantity)
		}
		if err := tx.UpdateItemQuantities(ctx, item.ID, item.OnHand, item.Reserved-quantity); err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:    item.ID,
			Type:      MovementRelease,
			Quantity:  quantity,
			Reference: reference,
			ActorID:   actorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory.release",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     map[string]any{"quantity": quantity, "reference": reference},
	})
	return s.repo.GetItem(ctx, itemID)
}

// SetItemStatus flips the quality status of an item. Quantities are untouched;
// non-available statuses simply remove the item from consumption and
// allocation candidate sets.
func (s *Service) SetItemStatus(ctx context.Context, itemID int64, status ItemStatus, reason string, actorID int64) (Item, error) {
	if !validItemStatus(status) {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "inventory: unknown item status %q", status)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			if err == ErrRowNotFound {
				return errItemNotFound(itemID)
			}
			return err
		}
		if item.Status == status {
			return nil
		}
		if status != StatusAvailable && item.Reserved > 0 {
			return shared.Errorf(shared.ErrInvalidOperation,
				"inventory: item %d has %d reserved, release reservations before changing status", item.ID, item.Reserved)
		}
		if err := tx.UpdateItemStatus(ctx, item.ID, status); err != nil {
			return err
		}
		_, err = tx.InsertMovement(ctx, Movement{
			ItemID:  item.ID,
			Type:    MovementAdjust,
			Reason:  "status " + string(item.Status) + " -> " + string(status) + ": " + reason,
			ActorID: actorID,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory.status",
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     map[string]any{"status": string(status), "reason": reason},
	})
	return s.repo.GetItem(ctx, itemID)
}
