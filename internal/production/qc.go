package production

import (
	"context"
	"strconv"

	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

// SetBatchQCStatus records a quality decision for a batch. HOLD and FAILED
// quarantine every inventory item the batch produced; PASSED returns
// quarantined items to AVAILABLE and advances a QC_HOLD batch to RELEASED.
// This is the only path out of quarantine.
func (s *Service) SetBatchQCStatus(ctx context.Context, batchID int64, status QCStatus, notes string, actorID int64) (Batch, error) {
	switch status {
	case QCPending, QCHold, QCPassed, QCFailed:
	default:
		return Batch{}, shared.Errorf(shared.ErrInvalidInput, "production: %q is not a QC decision", status)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			if err == ErrRowNotFound {
				return errBatchNotFound(batchID)
			}
			return err
		}
		if batch.Status == BatchCancelled {
			return shared.Errorf(shared.ErrInvalidStatus, "production: batch %s is cancelled", batch.Code)
		}
		batch.QCStatus = status
		if notes != "" {
			batch.QCNotes = notes
		}
		if status == QCPassed && batch.Status == BatchQCHold {
			batch.Status = BatchReleased
		}
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return Batch{}, err
	}

	items, err := s.stock.ItemsByBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	switch status {
	case QCHold, QCFailed:
		for _, item := range items {
			if item.Status == inventory.StatusQuarantined {
				continue
			}
			if _, err := s.stock.SetItemStatus(ctx, item.ID, inventory.StatusQuarantined, "qc "+string(status), actorID); err != nil {
				return Batch{}, err
			}
		}
	case QCPassed:
		for _, item := range items {
			if item.Status != inventory.StatusQuarantined {
				continue
			}
			if _, err := s.stock.SetItemStatus(ctx, item.ID, inventory.StatusAvailable, "qc passed", actorID); err != nil {
				return Batch{}, err
			}
		}
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: "production.batch.qc", Entity: "production_batch",
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     map[string]any{"status": string(status), "notes": notes},
	})
	return s.repo.GetBatch(ctx, batchID)
}
