package inventory

import (
	"context"
	"strconv"

	"github.com/kiln-ops/kiln/internal/shared"
)

// ConsumeParams drives one FIFO consumption run against a material.
type ConsumeParams struct {
	MaterialID  int64
	Quantity    int64
	Strict      bool
	Reason      string
	RelatedType string
	RelatedID   int64
	Reference   string
	ActorID     int64
}

// Consume draws down material stock in expiry order: earliest expiry first,
// undated lots last, ties broken by arrival order. The candidate list is read
// without locks; each lot is then drawn in its own single-item transaction
// with the availability rechecked under the row lock, so a lot that shrank
// since planning is simply drawn for what it still has.
//
// By default the run stops when stock runs out and reports what it consumed;
// callers inspect ConsumedTotal against Requested. Strict opts into an
// all-or-nothing posture: a pre-flight availability check rejects the run
// before any lot is touched.
func (s *Service) Consume(ctx context.Context, params ConsumeParams) (ConsumptionResult, error) {
	if params.Quantity <= 0 {
		return ConsumptionResult{}, shared.Errorf(shared.ErrInvalidInput, "inventory: consume quantity must be > 0")
	}

	if params.Strict {
		available, err := s.repo.AvailableForMaterial(ctx, params.MaterialID)
		if err != nil {
			return ConsumptionResult{}, err
		}
		if available < params.Quantity {
			return ConsumptionResult{}, shared.Errorf(shared.ErrInsufficientInventory,
				"inventory: material %d has %d available, need %d", params.MaterialID, available, params.Quantity)
		}
	}

	lots, err := s.repo.ListConsumableLots(ctx, params.MaterialID)
	if err != nil {
		return ConsumptionResult{}, err
	}

	result := ConsumptionResult{Requested: params.Quantity}
	remaining := params.Quantity
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		var consumed LotConsumption
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, lot.ID)
			if err != nil {
				if err == ErrRowNotFound {
					return errItemNotFound(lot.ID)
				}
				return err
			}
			// Recheck under the lock; planning data may be stale.
			if item.Status != StatusAvailable || item.Available() <= 0 {
				return nil
			}
			take := remaining
			if item.Available() < take {
				take = item.Available()
			}
			adj, _, err := s.applyLocked(ctx, tx, item, ApplyAdjustmentParams{
				ItemID:      item.ID,
				Delta:       -take,
				Type:        AdjustmentConsumption,
				Reason:      params.Reason,
				RelatedType: params.RelatedType,
				RelatedID:   params.RelatedID,
				ActorID:     params.ActorID,
			})
			if err != nil {
				return err
			}
			locName, err := tx.LocationName(ctx, item.LocationID)
			if err != nil {
				return err
			}
			if _, err := tx.InsertMovement(ctx, Movement{
				ItemID:       item.ID,
				Type:         MovementConsume,
				Quantity:     take,
				FromLocation: locName,
				Reason:       params.Reason,
				Reference:    params.Reference,
				ActorID:      params.ActorID,
			}); err != nil {
				return err
			}
			consumed = LotConsumption{
				ItemID:       item.ID,
				LotNumber:    item.LotNumber,
				LocationID:   item.LocationID,
				Quantity:     take,
				AdjustmentID: adj.ID,
			}
			return nil
		})
		if err != nil {
			return result, err
		}
		if consumed.Quantity == 0 {
			continue
		}
		remaining -= consumed.Quantity
		result.ConsumedTotal += consumed.Quantity
		result.Lots = append(result.Lots, consumed)
		s.metrics.CountLotConsumed()
		s.metrics.CountAdjustment(string(AdjustmentConsumption))
	}

	if remaining > 0 && params.Strict {
		// Stock shrank between the pre-flight check and the lot draws. The
		// drawn lots stay drawn; the ledger records exactly what happened.
		return result, shared.Errorf(shared.ErrInsufficientInventory,
			"inventory: material %d ran short mid-consumption, consumed %d of %d", params.MaterialID, result.ConsumedTotal, params.Quantity)
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.ActorID,
		Action:   "inventory.consume",
		Entity:   "raw_material",
		EntityID: strconv.FormatInt(params.MaterialID, 10),
		Meta: map[string]any{
			"requested": params.Quantity,
			"consumed":  result.ConsumedTotal,
			"lots":      len(result.Lots),
			"reason":    params.Reason,
		},
	})
	return result, nil
}
