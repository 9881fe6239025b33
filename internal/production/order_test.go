package production

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ops/kiln/internal/shared"
)

func mustCreateOrder(t *testing.T, svc *Service, qty, batchSize int64) Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderParams{
		Reference: "PO-2026-001", ProductID: 1, QuantityToMake: qty, BatchSize: batchSize, ActorID: 7,
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderDefaultsBatchSize(t *testing.T) {
	svc, _, _, _ := newTestService()
	order := mustCreateOrder(t, svc, 100, 0)
	require.Equal(t, OrderPlanned, order.Status)
	require.Equal(t, int64(24), order.BatchSize)
}

func TestStartSizesBatchesWithRemainder(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	stock.addLot(10, 30000)
	order := mustCreateOrder(t, svc, 100, 30)

	order, err := svc.Start(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderInProgress, order.Status)

	batches, err := repo.ListBatchesByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, batches, 4)
	var planned []int64
	for _, b := range batches {
		require.Equal(t, BatchPlanned, b.Status)
		planned = append(planned, b.PlannedQty)
	}
	require.Equal(t, []int64{30, 30, 30, 10}, planned)
}

func TestStartSnapshotsRequirementsAndShortage(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	stock.addLot(10, 30000)
	order := mustCreateOrder(t, svc, 100, 30)

	order, err := svc.Start(context.Background(), order.ID, 7)
	require.NoError(t, err)

	materials, err := repo.ListOrderMaterials(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, materials, 2)
	require.Equal(t, int64(40000), materials[0].RequiredQty)
	require.Equal(t, int64(3000), materials[1].RequiredQty)

	var snapshot []RequirementSnapshot
	require.NoError(t, json.Unmarshal(order.Snapshot, &snapshot))
	require.Equal(t, int64(10000), snapshot[0].Shortage)
	require.Equal(t, int64(3000), snapshot[1].Shortage)
}

func TestStartOnlyFromPlanned(t *testing.T) {
	svc, _, stock, _ := newTestService()
	stock.addLot(10, 1)
	order := mustCreateOrder(t, svc, 10, 10)

	_, err := svc.Start(context.Background(), order.ID, 7)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), order.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestBlockUnblockArchiveRules(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	order := mustCreateOrder(t, svc, 10, 10)

	_, err := svc.Archive(ctx, order.ID, "stale", 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	order, err = svc.Block(ctx, order.ID, "kiln down", 7)
	require.NoError(t, err)
	require.Equal(t, OrderBlocked, order.Status)
	require.Equal(t, "kiln down", order.BlockedReason)

	order, err = svc.Unblock(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderPlanned, order.Status)

	order, err = svc.Block(ctx, order.ID, "kiln down again", 7)
	require.NoError(t, err)
	order, err = svc.Archive(ctx, order.ID, "abandoned", 7)
	require.NoError(t, err)
	require.Equal(t, OrderBlocked, order.Status)
	require.NotNil(t, order.ArchivedAt)

	_, err = svc.Archive(ctx, order.ID, "again", 7)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
	_, err = svc.Unblock(ctx, order.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
}

func TestDismissRequiresCompleted(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()
	order := mustCreateOrder(t, svc, 10, 10)

	_, err := svc.Dismiss(ctx, order.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	repo.orders[order.ID].Status = OrderCompleted
	order, err = svc.Dismiss(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, order.Status)
	require.NotNil(t, order.DismissedAt)
}

func TestCompleteGuardsOnBatchStates(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	stock.addLot(10, 1)
	order := mustCreateOrder(t, svc, 20, 10)
	_, err := svc.Start(ctx, order.ID, 7)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, order.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	batches, _ := repo.ListBatchesByOrder(ctx, order.ID)
	repo.batches[batches[0].ID].Status = BatchReleased
	repo.batches[batches[1].ID].Status = BatchCancelled

	order, err = svc.Complete(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, order.Status)
}

func TestIssueMaterialsRejectsForeignMaterial(t *testing.T) {
	svc, _, stock, _ := newTestService()
	ctx := context.Background()
	stock.addLot(10, 50000)
	order := mustCreateOrder(t, svc, 10, 10)
	_, err := svc.Start(ctx, order.ID, 7)
	require.NoError(t, err)

	_, err = svc.IssueMaterials(ctx, order.ID, []IssueRequest{{MaterialID: 99, Quantity: 5}}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIssueMaterialsRecordsActualConsumption(t *testing.T) {
	svc, repo, stock, _ := newTestService()
	ctx := context.Background()
	stock.addLot(10, 2500)
	order := mustCreateOrder(t, svc, 10, 10)
	_, err := svc.Start(ctx, order.ID, 7)
	require.NoError(t, err)

	// Requested 4000, only 2500 in stock: the shortage stays visible.
	results, err := svc.IssueMaterials(ctx, order.ID, []IssueRequest{{MaterialID: 10, Quantity: 4000}}, 7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(4000), results[0].Requested)
	require.Equal(t, int64(2500), results[0].Consumed)

	materials, _ := repo.ListOrderMaterials(ctx, order.ID)
	require.Equal(t, int64(2500), materials[0].IssuedQty)

	order, _ = svc.GetOrder(ctx, order.ID)
	var snapshot []RequirementSnapshot
	require.NoError(t, json.Unmarshal(order.Snapshot, &snapshot))
	require.Equal(t, int64(2500), snapshot[0].IssuedQty)
	require.Equal(t, int64(1500), snapshot[0].Shortage)
}

func TestIssueMaterialsRequiresInProgress(t *testing.T) {
	svc, _, _, _ := newTestService()
	order := mustCreateOrder(t, svc, 10, 10)
	_, err := svc.IssueMaterials(context.Background(), order.ID, []IssueRequest{{MaterialID: 10, Quantity: 5}}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}
