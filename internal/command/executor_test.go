package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/production"
	"github.com/kiln-ops/kiln/internal/receiving"
	"github.com/kiln-ops/kiln/internal/shared"
)

type recordedCall struct {
	name string
	args any
}

type fakeServices struct {
	calls []recordedCall
}

func (f *fakeServices) IssueMaterials(_ context.Context, orderID int64, requests []production.IssueRequest, actorID int64) ([]production.IssueResult, error) {
	f.calls = append(f.calls, recordedCall{"IssueMaterials", orderID})
	results := make([]production.IssueResult, 0, len(requests))
	for _, r := range requests {
		results = append(results, production.IssueResult{MaterialID: r.MaterialID, Requested: r.Quantity, Consumed: r.Quantity})
	}
	return results, nil
}

func (f *fakeServices) CompleteBatch(_ context.Context, params production.CompleteBatchParams) (production.Batch, error) {
	f.calls = append(f.calls, recordedCall{"CompleteBatch", params})
	return production.Batch{ID: params.BatchID, Status: production.BatchReleased}, nil
}

func (f *fakeServices) Consume(_ context.Context, params inventory.ConsumeParams) (inventory.ConsumptionResult, error) {
	f.calls = append(f.calls, recordedCall{"Consume", params})
	return inventory.ConsumptionResult{Requested: params.Quantity, ConsumedTotal: params.Quantity}, nil
}

func (f *fakeServices) ApplyAdjustment(_ context.Context, params inventory.ApplyAdjustmentParams) (inventory.Adjustment, int64, error) {
	f.calls = append(f.calls, recordedCall{"ApplyAdjustment", params})
	return inventory.Adjustment{ItemID: params.ItemID, Delta: params.Delta, Type: params.Type}, 10 + params.Delta, nil
}

func (f *fakeServices) ReceiveAgainstPO(_ context.Context, params receiving.ReceiveParams) (inventory.Item, error) {
	f.calls = append(f.calls, recordedCall{"ReceiveAgainstPO", params})
	return inventory.Item{ID: 1, OnHand: params.Quantity}, nil
}

func newTestExecutor() (*Executor, *fakeServices) {
	services := &fakeServices{}
	return NewExecutor(services, services, services), services
}

func mustArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestExecuteDispatchesIssueMaterials(t *testing.T) {
	executor, services := newTestExecutor()
	result, err := executor.Execute(context.Background(), Command{
		Kind:    KindIssueMaterials,
		ActorID: 7,
		Args:    mustArgs(t, map[string]any{"orderId": 5, "materials": []map[string]any{{"materialId": 10, "quantity": 300}}}),
	})
	require.NoError(t, err)
	require.Len(t, services.calls, 1)
	require.Equal(t, "IssueMaterials", services.calls[0].name)
	require.Equal(t, int64(300), result.([]production.IssueResult)[0].Consumed)
}

func TestExecuteDispatchesAdjustAsManualCorrection(t *testing.T) {
	executor, _ := newTestExecutor()
	result, err := executor.Execute(context.Background(), Command{
		Kind:    KindAdjust,
		ActorID: 7,
		Args:    mustArgs(t, map[string]any{"itemId": 3, "delta": -2, "reason": "broken in storage"}),
	})
	require.NoError(t, err)
	adjusted := result.(AdjustResult)
	require.Equal(t, inventory.AdjustmentManualCorrection, adjusted.Adjustment.Type)
	require.Equal(t, int64(-2), adjusted.Adjustment.Delta)
	require.Equal(t, int64(8), adjusted.NewOnHand)
}

func TestExecuteDispatchesConsumeCompleteBatchReceive(t *testing.T) {
	executor, services := newTestExecutor()
	ctx := context.Background()

	_, err := executor.Execute(ctx, Command{Kind: KindConsume, ActorID: 7,
		Args: mustArgs(t, map[string]any{"materialId": 10, "quantity": 50, "reason": "test fire"})})
	require.NoError(t, err)

	_, err = executor.Execute(ctx, Command{Kind: KindCompleteBatch, ActorID: 7,
		Args: mustArgs(t, map[string]any{"batchId": 2, "actualQty": 20, "locationId": 1})})
	require.NoError(t, err)

	_, err = executor.Execute(ctx, Command{Kind: KindReceive, ActorID: 7,
		Args: mustArgs(t, map[string]any{"poRef": "PO-1", "materialId": 10, "quantity": 500})})
	require.NoError(t, err)

	names := []string{services.calls[0].name, services.calls[1].name, services.calls[2].name}
	require.Equal(t, []string{"Consume", "CompleteBatch", "ReceiveAgainstPO"}, names)
}

func TestExecuteRejectsUnknownKind(t *testing.T) {
	executor, _ := newTestExecutor()
	_, err := executor.Execute(context.Background(), Command{Kind: "TELEPORT", ActorID: 7, Args: mustArgs(t, map[string]any{})})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestExecuteRejectsMissingActorAndBadArgs(t *testing.T) {
	executor, _ := newTestExecutor()
	ctx := context.Background()

	_, err := executor.Execute(ctx, Command{Kind: KindConsume,
		Args: mustArgs(t, map[string]any{"materialId": 10, "quantity": 50, "reason": "x"})})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = executor.Execute(ctx, Command{Kind: KindConsume, ActorID: 7,
		Args: mustArgs(t, map[string]any{"materialId": 10, "quantity": 0, "reason": "x"})})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = executor.Execute(ctx, Command{Kind: KindConsume, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
