package production

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/shared"
)

func startedOrder(t *testing.T, svc *Service, repo *fakeRepo, stock *fakeStock, qty, batchSize int64) (Order, []Batch) {
	t.Helper()
	ctx := context.Background()
	stock.addLot(10, 1_000_000)
	stock.addLot(11, 1_000_000)
	order := mustCreateOrder(t, svc, qty, batchSize)
	order, err := svc.Start(ctx, order.ID, 7)
	require.NoError(t, err)
	batches, err := repo.ListBatchesByOrder(ctx, order.ID)
	require.NoError(t, err)
	return order, batches
}

func TestCompleteBatchWithoutQCReleases(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{
		BatchID: batches[0].ID, ActualQty: 22, LocationID: 1, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, BatchReleased, batch.Status)
	require.Equal(t, QCNotRequired, batch.QCStatus)
	require.Equal(t, int64(22), batch.ActualYield)
	require.Equal(t, int64(2), batch.LossQty)
	require.NotNil(t, batch.InventoryItemID)

	item, err := stock.GetItem(ctx, *batch.InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusAvailable, item.Status)
	require.Equal(t, int64(22), item.OnHand)
}

func TestCompleteBatchWithQCQuarantines(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{
		BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, QCRequired: true, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, BatchQCHold, batch.Status)
	require.Equal(t, QCPending, batch.QCStatus)

	item, err := stock.GetItem(ctx, *batch.InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusQuarantined, item.Status)
}

func TestCompleteBatchRejectsSettledBatch(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	_, err := svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, ActorID: 7})
	require.NoError(t, err)
	_, err = svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCompleteBatchHonoursLossOverride(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	override := int64(0)
	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{
		BatchID: batches[0].ID, ActualQty: 20, LocationID: 1, LossOverride: &override, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), batch.LossQty)
}

func TestCompleteLastBatchCompletesOrder(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	order, batches := startedOrder(t, svc, repo, stock, 48, 24)

	_, err := svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, ActorID: 7})
	require.NoError(t, err)
	current, _ := svc.GetOrder(ctx, order.ID)
	require.Equal(t, OrderInProgress, current.Status)

	_, err = svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[1].ID, ActualQty: 24, LocationID: 1, ActorID: 7})
	require.NoError(t, err)
	current, _ = svc.GetOrder(ctx, order.ID)
	require.Equal(t, OrderCompleted, current.Status)
}

func TestQCPassedReleasesBatchAndStock(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{
		BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, QCRequired: true, ActorID: 7,
	})
	require.NoError(t, err)

	batch, err = svc.SetBatchQCStatus(ctx, batch.ID, QCPassed, "looks good", 7)
	require.NoError(t, err)
	require.Equal(t, BatchReleased, batch.Status)
	require.Equal(t, QCPassed, batch.QCStatus)

	item, err := stock.GetItem(ctx, *batch.InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusAvailable, item.Status)
}

func TestQCHoldAndFailedQuarantine(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[0].ID, ActualQty: 24, LocationID: 1, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, BatchReleased, batch.Status)

	batch, err = svc.SetBatchQCStatus(ctx, batch.ID, QCFailed, "glaze defects", 7)
	require.NoError(t, err)
	require.Equal(t, QCFailed, batch.QCStatus)

	item, err := stock.GetItem(ctx, *batch.InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusQuarantined, item.Status)
}

func TestQCRejectsUnknownDecision(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)
	_, err := svc.SetBatchQCStatus(context.Background(), batches[0].ID, QCStatus("MAYBE"), "", 7)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecordScrapExhaustsReleasedBatch(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.CompleteBatch(ctx, CompleteBatchParams{BatchID: batches[0].ID, ActualQty: 10, LocationID: 1, ActorID: 7})
	require.NoError(t, err)

	batch, err = svc.RecordScrap(ctx, batch.ID, 4, "cracked in cooling", 7)
	require.NoError(t, err)
	require.Equal(t, BatchReleased, batch.Status)
	item, _ := stock.GetItem(ctx, *batch.InventoryItemID)
	require.Equal(t, int64(6), item.OnHand)

	batch, err = svc.RecordScrap(ctx, batch.ID, 6, "dropped tray", 7)
	require.NoError(t, err)
	require.Equal(t, BatchExhausted, batch.Status)

	_, err = svc.RecordScrap(ctx, batch.ID, 1, "impossible", 7)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
}

func TestCancelBatchGuards(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 48, 24)

	batch, err := svc.CancelBatch(ctx, batches[0].ID, "mold broke", 7)
	require.NoError(t, err)
	require.Equal(t, BatchCancelled, batch.Status)

	_, err = svc.CancelBatch(ctx, batches[0].ID, "again", 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestStartBatchTransition(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	_, batches := startedOrder(t, svc, repo, stock, 24, 24)

	batch, err := svc.StartBatch(ctx, batches[0].ID, 7)
	require.NoError(t, err)
	require.Equal(t, BatchInProgress, batch.Status)

	_, err = svc.StartBatch(ctx, batches[0].ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}
