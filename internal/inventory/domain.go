package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiln-ops/kiln/internal/shared"
)

// ItemKind separates raw-material stock from finished goods.
type ItemKind string

const (
	// KindMaterial marks raw-material stock positions.
	KindMaterial ItemKind = "MATERIAL"
	// KindProduct marks finished-goods stock positions.
	KindProduct ItemKind = "PRODUCT"
)

// ItemStatus describes whether a stock position may be consumed or sold.
type ItemStatus string

const (
	StatusAvailable   ItemStatus = "AVAILABLE"
	StatusQuarantined ItemStatus = "QUARANTINED"
	StatusDamaged     ItemStatus = "DAMAGED"
	StatusScrapped    ItemStatus = "SCRAPPED"
)

// ItemSource records how stock entered the system.
type ItemSource string

const (
	SourceManual        ItemSource = "MANUAL"
	SourcePurchaseOrder ItemSource = "PURCHASE_ORDER"
	SourceProduction    ItemSource = "PRODUCTION"
)

// AdjustmentType classifies every ledger entry.
type AdjustmentType string

const (
	AdjustmentReceiving          AdjustmentType = "RECEIVING"
	AdjustmentProductionComplete AdjustmentType = "PRODUCTION_COMPLETE"
	AdjustmentProductionScrap    AdjustmentType = "PRODUCTION_SCRAP"
	AdjustmentConsumption        AdjustmentType = "CONSUMPTION"
	AdjustmentManualCorrection   AdjustmentType = "MANUAL_CORRECTION"
)

// MovementType classifies audit-trail rows. Movements are never read for
// quantity math.
type MovementType string

const (
	MovementAdjust  MovementType = "ADJUST"
	MovementMove    MovementType = "MOVE"
	MovementConsume MovementType = "CONSUME"
	MovementProduce MovementType = "PRODUCE"
	MovementReceive MovementType = "RECEIVE"
	MovementReturn  MovementType = "RETURN"
	MovementReserve MovementType = "RESERVE"
	MovementRelease MovementType = "RELEASE"
)

// Item is one stock position: a (material|product, batch, location, lot)
// tuple. Quantity only changes through adjustments; rows are never deleted
// and may sit at zero as history.
type Item struct {
	ID         int64
	Kind       ItemKind
	MaterialID *int64
	ProductID  *int64
	BatchID    *int64
	LocationID int64
	OnHand     int64
	Reserved   int64
	Unit       string
	Status     ItemStatus
	LotNumber  string
	ExpiryDate *time.Time
	UnitCost   decimal.Decimal
	Source     ItemSource
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available is the quantity not committed by reservations. Always computed,
// never stored.
func (i Item) Available() int64 {
	return i.OnHand - i.Reserved
}

// Adjustment is one immutable ledger row. The sum of all adjustment deltas
// for an item always equals the item's current on-hand quantity.
type Adjustment struct {
	ID          int64
	ItemID      int64
	Delta       int64
	Reason      string
	Type        AdjustmentType
	RelatedType string
	RelatedID   int64
	CreatedBy   int64
	CreatedAt   time.Time
}

// Movement is one audit-trail row. Location names are denormalized so the
// history stays readable after masterdata changes.
type Movement struct {
	ID           int64
	ItemID       int64
	Type         MovementType
	Quantity     int64
	FromLocation string
	ToLocation   string
	Reason       string
	Reference    string
	ActorID      int64
	CreatedAt    time.Time
}

// LotConsumption reports one lot drawn down by the consumption engine.
type LotConsumption struct {
	ItemID       int64
	LotNumber    string
	LocationID   int64
	Quantity     int64
	AdjustmentID int64
}

// ConsumptionResult summarises a FIFO consumption run. ConsumedTotal may be
// less than requested when stock runs out; callers decide whether partial
// consumption is acceptable.
type ConsumptionResult struct {
	Requested     int64
	ConsumedTotal int64
	Lots          []LotConsumption
}

// ItemFilter narrows the paginated item listing.
type ItemFilter struct {
	Kind       ItemKind
	MaterialID int64
	ProductID  int64
	BatchID    int64
	LocationID int64
	Status     ItemStatus
}

func errItemNotFound(itemID int64) error {
	return shared.Errorf(shared.ErrNotFound, "inventory: item %d", itemID)
}
