package production

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertOrder(ctx context.Context, o Order) (int64, error)
	GetOrder(ctx context.Context, orderID int64) (Order, error)
	ListOrders(ctx context.Context, includeHidden bool, limit, offset int) ([]Order, error)
	GetBatch(ctx context.Context, batchID int64) (Batch, error)
	ListBatchesByOrder(ctx context.Context, orderID int64) ([]Batch, error)
	ListOrderMaterials(ctx context.Context, orderID int64) ([]OrderMaterial, error)
}

// InventoryPort is the slice of the inventory service production depends on.
type InventoryPort interface {
	Consume(ctx context.Context, params inventory.ConsumeParams) (inventory.ConsumptionResult, error)
	Produce(ctx context.Context, params inventory.ProduceParams) (inventory.Item, error)
	ApplyAdjustment(ctx context.Context, params inventory.ApplyAdjustmentParams) (inventory.Adjustment, int64, error)
	SetItemStatus(ctx context.Context, itemID int64, status inventory.ItemStatus, reason string, actorID int64) (inventory.Item, error)
	MaterialAvailability(ctx context.Context, materialID int64) (int64, error)
	ItemsByBatch(ctx context.Context, batchID int64) ([]inventory.Item, error)
}

// CatalogPort is the slice of the catalog service production depends on.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	ActiveBOM(ctx context.Context, productID int64) ([]catalog.BOMItem, error)
}

// AuditPort records audit trail entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives production orders and batches. All stock effects go through
// the inventory service; this package never writes quantities itself.
type Service struct {
	repo    RepositoryPort
	stock   InventoryPort
	catalog CatalogPort
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock InventoryPort, cat CatalogPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, catalog: cat, audit: audit}
}

// CreateOrderParams describes a new production order.
type CreateOrderParams struct {
	Reference      string
	ProductID      int64
	QuantityToMake int64
	BatchSize      int64
	ActorID        int64
}

// CreateOrder validates and stores a PLANNED order. A zero batch size falls
// back to the product default, and failing that to the full quantity.
func (s *Service) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	if strings.TrimSpace(params.Reference) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "production: order reference required")
	}
	if params.QuantityToMake <= 0 {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "production: quantity to make must be > 0")
	}
	if params.BatchSize < 0 {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "production: batch size must be >= 0")
	}
	product, err := s.catalog.GetProduct(ctx, params.ProductID)
	if err != nil {
		return Order{}, err
	}
	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = product.DefaultBatchSize
	}
	if batchSize == 0 {
		batchSize = params.QuantityToMake
	}

	order := Order{
		Reference:      params.Reference,
		ProductID:      params.ProductID,
		QuantityToMake: params.QuantityToMake,
		BatchSize:      batchSize,
		Status:         OrderPlanned,
		CreatedBy:      params.ActorID,
	}
	order.ID, err = s.repo.InsertOrder(ctx, order)
	if err != nil {
		return Order{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "production.order.create",
		Entity:   "production_order",
		EntityID: strconv.FormatInt(order.ID, 10),
		Meta:     map[string]any{"reference": order.Reference, "product_id": order.ProductID, "quantity": order.QuantityToMake},
	})
	return s.repo.GetOrder(ctx, order.ID)
}

// Start moves a PLANNED order to IN_PROGRESS, sizes its batches and snapshots
// material requirements from the active BOM. The last batch takes the
// remainder.
func (s *Service) Start(ctx context.Context, orderID, actorID int64) (Order, error) {
	bom, err := s.bomForOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status != OrderPlanned {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, only PLANNED orders can start", orderID, order.Status)
		}

		remaining := order.QuantityToMake
		seq := 0
		for remaining > 0 {
			seq++
			qty := order.BatchSize
			if qty > remaining {
				qty = remaining
			}
			remaining -= qty
			if _, err := tx.InsertBatch(ctx, Batch{
				OrderID:       order.ID,
				Code:          fmt.Sprintf("%s-B%02d", order.Reference, seq),
				PlannedQty:    qty,
				Status:        BatchPlanned,
				QCStatus:      QCNotRequired,
				ExpectedYield: qty,
			}); err != nil {
				return err
			}
		}

		snapshot := make([]RequirementSnapshot, 0, len(bom))
		for _, line := range bom {
			required := line.QuantityPerUnit * order.QuantityToMake
			if _, err := tx.InsertOrderMaterial(ctx, OrderMaterial{
				OrderID:     order.ID,
				MaterialID:  line.MaterialID,
				RequiredQty: required,
			}); err != nil {
				return err
			}
			available, err := s.stock.MaterialAvailability(ctx, line.MaterialID)
			if err != nil {
				return err
			}
			shortage := required - available
			if shortage < 0 {
				shortage = 0
			}
			snapshot = append(snapshot, RequirementSnapshot{
				MaterialID:  line.MaterialID,
				RequiredQty: required,
				Shortage:    shortage,
			})
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrderSnapshot(ctx, order.ID, payload); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, order.ID, OrderInProgress, "")
	})
	if err != nil {
		return Order{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "production.order.start",
		Entity:   "production_order",
		EntityID: strconv.FormatInt(orderID, 10),
	})
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) bomForOrder(ctx context.Context, orderID int64) ([]catalog.BOMItem, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == ErrRowNotFound {
			return nil, errOrderNotFound(orderID)
		}
		return nil, err
	}
	bom, err := s.catalog.ActiveBOM(ctx, order.ProductID)
	if err != nil {
		return nil, err
	}
	if len(bom) == 0 {
		return nil, shared.Errorf(shared.ErrInvalidOperation, "production: product %d has no active bill of materials", order.ProductID)
	}
	return bom, nil
}

// Block parks an order with a reason. Legal from any state except the
// terminal ones.
func (s *Service) Block(ctx context.Context, orderID int64, reason string, actorID int64) (Order, error) {
	if strings.TrimSpace(reason) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "production: block reason required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status == OrderCompleted || order.Status == OrderCancelled {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s and cannot be blocked", orderID, order.Status)
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderBlocked, reason)
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.block", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10), Meta: map[string]any{"reason": reason},
	})
	return s.repo.GetOrder(ctx, orderID)
}

// Unblock returns a BLOCKED order to the planning queue. Archived orders stay
// parked.
func (s *Service) Unblock(ctx context.Context, orderID, actorID int64) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status != OrderBlocked {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, only BLOCKED orders can be unblocked", orderID, order.Status)
		}
		if order.ArchivedAt != nil {
			return shared.Errorf(shared.ErrInvalidOperation, "production: order %d is archived", orderID)
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderPlanned, "")
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.unblock", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10),
	})
	return s.repo.GetOrder(ctx, orderID)
}

// Archive hides a BLOCKED order from active views. The status stays BLOCKED;
// archiving is bookkeeping, not a transition.
func (s *Service) Archive(ctx context.Context, orderID int64, reason string, actorID int64) (Order, error) {
	if strings.TrimSpace(reason) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "production: archive reason required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status != OrderBlocked {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, only BLOCKED orders can be archived", orderID, order.Status)
		}
		if order.ArchivedAt != nil {
			return shared.Errorf(shared.ErrInvalidOperation, "production: order %d is already archived", orderID)
		}
		return tx.ArchiveOrder(ctx, orderID, reason)
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.archive", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10), Meta: map[string]any{"reason": reason},
	})
	return s.repo.GetOrder(ctx, orderID)
}

// Dismiss hides a COMPLETED order from the board without changing its status.
func (s *Service) Dismiss(ctx context.Context, orderID, actorID int64) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status != OrderCompleted {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, only COMPLETED orders can be dismissed", orderID, order.Status)
		}
		if order.DismissedAt != nil {
			return shared.Errorf(shared.ErrInvalidOperation, "production: order %d is already dismissed", orderID)
		}
		return tx.DismissOrder(ctx, orderID)
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.dismiss", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10),
	})
	return s.repo.GetOrder(ctx, orderID)
}

// Cancel terminates an order that has not completed.
func (s *Service) Cancel(ctx context.Context, orderID int64, reason string, actorID int64) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status == OrderCompleted || order.Status == OrderCancelled {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s and cannot be cancelled", orderID, order.Status)
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderCancelled, reason)
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.cancel", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10), Meta: map[string]any{"reason": reason},
	})
	return s.repo.GetOrder(ctx, orderID)
}

// Complete closes an order once every non-cancelled batch has been released
// or exhausted.
func (s *Service) Complete(ctx context.Context, orderID, actorID int64) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == ErrRowNotFound {
				return errOrderNotFound(orderID)
			}
			return err
		}
		if order.Status != OrderInProgress {
			return shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, only IN_PROGRESS orders can complete", orderID, order.Status)
		}
		batches, err := tx.ListBatchesByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := allBatchesSettled(orderID, batches); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderCompleted, "")
	})
	if err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.complete", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10),
	})
	return s.repo.GetOrder(ctx, orderID)
}

func allBatchesSettled(orderID int64, batches []Batch) error {
	for _, b := range batches {
		if b.Status == BatchCancelled {
			continue
		}
		if b.Status != BatchReleased && b.Status != BatchExhausted {
			return shared.Errorf(shared.ErrInvalidStatus,
				"production: order %d batch %s is %s, all active batches must be RELEASED or EXHAUSTED", orderID, b.Code, b.Status)
		}
	}
	return nil
}

// IssueMaterials draws stock for an order via FIFO consumption. Materials
// outside the requirement snapshot fail with NotFound; short stock is
// reported through Consumed, never hidden.
func (s *Service) IssueMaterials(ctx context.Context, orderID int64, requests []IssueRequest, actorID int64) ([]IssueResult, error) {
	if len(requests) == 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "production: at least one material required")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == ErrRowNotFound {
			return nil, errOrderNotFound(orderID)
		}
		return nil, err
	}
	if order.Status != OrderInProgress {
		return nil, shared.Errorf(shared.ErrInvalidStatus, "production: order %d is %s, materials can only be issued while IN_PROGRESS", orderID, order.Status)
	}

	results := make([]IssueResult, 0, len(requests))
	for _, req := range requests {
		if req.Quantity <= 0 {
			return results, shared.Errorf(shared.ErrInvalidInput, "production: issue quantity for material %d must be > 0", req.MaterialID)
		}

		// Validate membership under lock before consuming anything.
		var requirement OrderMaterial
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			requirement, err = tx.FindOrderMaterialForUpdate(ctx, orderID, req.MaterialID)
			if err == ErrRowNotFound {
				return shared.Errorf(shared.ErrNotFound, "production: material %d is not part of order %d", req.MaterialID, orderID)
			}
			return err
		})
		if err != nil {
			return results, err
		}

		consumed, err := s.stock.Consume(ctx, inventory.ConsumeParams{
			MaterialID:  req.MaterialID,
			Quantity:    req.Quantity,
			Reason:      "issued to " + order.Reference,
			RelatedType: "production_order",
			RelatedID:   orderID,
			Reference:   order.Reference,
			ActorID:     actorID,
		})
		if err != nil {
			return results, err
		}

		if consumed.ConsumedTotal > 0 {
			err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.AddIssuedQty(ctx, requirement.ID, consumed.ConsumedTotal)
			})
			if err != nil {
				return results, err
			}
		}
		results = append(results, IssueResult{
			MaterialID: req.MaterialID,
			Requested:  req.Quantity,
			Consumed:   consumed.ConsumedTotal,
		})
	}

	if err := s.refreshSnapshot(ctx, orderID); err != nil {
		return results, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.order.issue", Entity: "production_order",
		EntityID: strconv.FormatInt(orderID, 10), Meta: map[string]any{"materials": len(results)},
	})
	return results, nil
}

// refreshSnapshot recomputes the requirements cache from the normalized rows
// and overwrites it wholesale.
func (s *Service) refreshSnapshot(ctx context.Context, orderID int64) error {
	materials, err := s.repo.ListOrderMaterials(ctx, orderID)
	if err != nil {
		return err
	}
	snapshot := make([]RequirementSnapshot, 0, len(materials))
	for _, m := range materials {
		available, err := s.stock.MaterialAvailability(ctx, m.MaterialID)
		if err != nil {
			return err
		}
		outstanding := m.RequiredQty - m.IssuedQty
		shortage := outstanding - available
		if shortage < 0 {
			shortage = 0
		}
		snapshot = append(snapshot, RequirementSnapshot{
			MaterialID:  m.MaterialID,
			RequiredQty: m.RequiredQty,
			IssuedQty:   m.IssuedQty,
			Shortage:    shortage,
		})
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderSnapshot(ctx, orderID, payload)
	})
}

// StartBatch moves a batch from PLANNED to IN_PROGRESS.
func (s *Service) StartBatch(ctx context.Context, batchID, actorID int64) (Batch, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			if err == ErrRowNotFound {
				return errBatchNotFound(batchID)
			}
			return err
		}
		if batch.Status != BatchPlanned {
			return shared.Errorf(shared.ErrInvalidStatus, "production: batch %s is %s, only PLANNED batches can start", batch.Code, batch.Status)
		}
		batch.Status = BatchInProgress
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return Batch{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.batch.start", Entity: "production_batch",
		EntityID: strconv.FormatInt(batchID, 10),
	})
	return s.repo.GetBatch(ctx, batchID)
}

// CompleteBatchParams carries the completion of one batch.
type CompleteBatchParams struct {
	BatchID      int64
	ActualQty    int64
	LocationID   int64
	QCRequired   bool
	LossOverride *int64
	LotNumber    string
	ExpiryDate   *time.Time
	ActorID      int64
}

// CompleteBatch books the batch output into stock and settles the batch
// state. The production adjustment is the durable commit point: if the
// follow-up quarantine fails the produced stock stays booked and the error
// surfaces for a manual QC hold.
func (s *Service) CompleteBatch(ctx context.Context, params CompleteBatchParams) (Batch, error) {
	if params.ActualQty < 0 {
		return Batch{}, shared.Errorf(shared.ErrInvalidInput, "production: actual quantity must be >= 0")
	}

	batch, err := s.repo.GetBatch(ctx, params.BatchID)
	if err != nil {
		if err == ErrRowNotFound {
			return Batch{}, errBatchNotFound(params.BatchID)
		}
		return Batch{}, err
	}
	if batch.terminal() {
		return Batch{}, shared.Errorf(shared.ErrInvalidStatus, "production: batch %s is already %s", batch.Code, batch.Status)
	}
	order, err := s.repo.GetOrder(ctx, batch.OrderID)
	if err != nil {
		return Batch{}, err
	}

	lot := params.LotNumber
	if lot == "" {
		lot = batch.Code
	}
	var producedItemID *int64
	if params.ActualQty > 0 {
		product, err := s.catalog.GetProduct(ctx, order.ProductID)
		if err != nil {
			return Batch{}, err
		}
		item, err := s.stock.Produce(ctx, inventory.ProduceParams{
			ProductID:  order.ProductID,
			BatchID:    batch.ID,
			LocationID: params.LocationID,
			Quantity:   params.ActualQty,
			Unit:       product.Unit,
			LotNumber:  lot,
			ExpiryDate: params.ExpiryDate,
			Reference:  order.Reference,
			ActorID:    params.ActorID,
		})
		if err != nil {
			return Batch{}, err
		}
		producedItemID = &item.ID
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetBatchForUpdate(ctx, params.BatchID)
		if err != nil {
			return err
		}
		locked.ActualQty = params.ActualQty
		locked.ActualYield = params.ActualQty
		locked.LossQty = locked.ExpectedYield - params.ActualQty
		if params.LossOverride != nil {
			locked.LossQty = *params.LossOverride
		}
		if params.QCRequired {
			locked.Status = BatchQCHold
			locked.QCStatus = QCPending
		} else {
			locked.Status = BatchReleased
			locked.QCStatus = QCNotRequired
		}
		locked.InventoryItemID = producedItemID
		return tx.UpdateBatch(ctx, locked)
	})
	if err != nil {
		return Batch{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: params.ActorID, Action: "production.batch.complete", Entity: "production_batch",
		EntityID: strconv.FormatInt(params.BatchID, 10),
		Meta:     map[string]any{"actual_qty": params.ActualQty, "qc_required": params.QCRequired},
	})

	if params.QCRequired && producedItemID != nil {
		// Quarantine after the durable commit point. A failure here leaves
		// the stock booked; the caller reconciles with a QC hold.
		if _, err := s.stock.SetItemStatus(ctx, *producedItemID, inventory.StatusQuarantined, "awaiting qc for "+batch.Code, params.ActorID); err != nil {
			return Batch{}, err
		}
	}

	if err := s.reevaluateOrder(ctx, batch.OrderID); err != nil {
		return Batch{}, err
	}
	return s.repo.GetBatch(ctx, params.BatchID)
}

// reevaluateOrder advances the parent order from the aggregate batch state.
func (s *Service) reevaluateOrder(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPlanned && order.Status != OrderInProgress {
			return nil
		}
		batches, err := tx.ListBatchesByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			return nil
		}
		if allBatchesSettled(orderID, batches) == nil {
			return tx.UpdateOrderStatus(ctx, orderID, OrderCompleted, "")
		}
		if order.Status == OrderPlanned {
			return tx.UpdateOrderStatus(ctx, orderID, OrderInProgress, "")
		}
		return nil
	})
}

// RecordScrap posts a PRODUCTION_SCRAP write-down against a batch's produced
// stock. A released batch that hits zero on hand flips to EXHAUSTED.
func (s *Service) RecordScrap(ctx context.Context, batchID, quantity int64, reason string, actorID int64) (Batch, error) {
	if quantity <= 0 {
		return Batch{}, shared.Errorf(shared.ErrInvalidInput, "production: scrap quantity must be > 0")
	}
	if strings.TrimSpace(reason) == "" {
		return Batch{}, shared.Errorf(shared.ErrInvalidInput, "production: scrap reason required")
	}
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		if err == ErrRowNotFound {
			return Batch{}, errBatchNotFound(batchID)
		}
		return Batch{}, err
	}
	if batch.InventoryItemID == nil {
		return Batch{}, shared.Errorf(shared.ErrInvalidOperation, "production: batch %s has no produced stock", batch.Code)
	}

	_, newOnHand, err := s.stock.ApplyAdjustment(ctx, inventory.ApplyAdjustmentParams{
		ItemID:      *batch.InventoryItemID,
		Delta:       -quantity,
		Type:        inventory.AdjustmentProductionScrap,
		Reason:      reason,
		RelatedType: "batch",
		RelatedID:   batchID,
		ActorID:     actorID,
	})
	if err != nil {
		return Batch{}, err
	}

	if newOnHand == 0 && batch.Status == BatchReleased {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			locked, err := tx.GetBatchForUpdate(ctx, batchID)
			if err != nil {
				return err
			}
			if locked.Status != BatchReleased {
				return nil
			}
			locked.Status = BatchExhausted
			return tx.UpdateBatch(ctx, locked)
		})
		if err != nil {
			return Batch{}, err
		}
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.batch.scrap", Entity: "production_batch",
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     map[string]any{"quantity": quantity, "reason": reason},
	})
	return s.repo.GetBatch(ctx, batchID)
}

// CancelBatch terminates a batch that has not settled.
func (s *Service) CancelBatch(ctx context.Context, batchID int64, reason string, actorID int64) (Batch, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			if err == ErrRowNotFound {
				return errBatchNotFound(batchID)
			}
			return err
		}
		if batch.terminal() {
			return shared.Errorf(shared.ErrInvalidStatus, "production: batch %s is already %s", batch.Code, batch.Status)
		}
		batch.Status = BatchCancelled
		batch.QCNotes = reason
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return Batch{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.batch.cancel", Entity: "production_batch",
		EntityID: strconv.FormatInt(batchID, 10), Meta: map[string]any{"reason": reason},
	})
	return s.repo.GetBatch(ctx, batchID)
}

// Order reads.

// GetOrder returns one order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == ErrRowNotFound {
			return Order{}, errOrderNotFound(orderID)
		}
		return Order{}, err
	}
	return order, nil
}

// ListOrders returns the order board.
func (s *Service) ListOrders(ctx context.Context, includeHidden bool, page shared.Pagination) ([]Order, error) {
	return s.repo.ListOrders(ctx, includeHidden, page.PerPage, page.Offset())
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		if err == ErrRowNotFound {
			return Batch{}, errBatchNotFound(batchID)
		}
		return Batch{}, err
	}
	return batch, nil
}

// OrderBatches lists the batches of one order.
func (s *Service) OrderBatches(ctx context.Context, orderID int64) ([]Batch, error) {
	return s.repo.ListBatchesByOrder(ctx, orderID)
}

// OrderMaterials lists the requirement rows of one order.
func (s *Service) OrderMaterials(ctx context.Context, orderID int64) ([]OrderMaterial, error) {
	return s.repo.ListOrderMaterials(ctx, orderID)
}
