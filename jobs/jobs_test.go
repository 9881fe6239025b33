package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scheduledTask(t *testing.T, taskType string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: time.Now()})
	require.NoError(t, err)
	return asynq.NewTask(taskType, body)
}

type fakeLowStock struct {
	materials []catalog.RawMaterial
}

func (f *fakeLowStock) LowStockMaterials(_ context.Context) ([]catalog.RawMaterial, error) {
	return f.materials, nil
}

type fakeAudit struct {
	entries []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func TestLowStockScanRecordsAuditWhenMaterialsAreShort(t *testing.T) {
	audit := &fakeAudit{}
	scanner := NewLowStockScanner(&fakeLowStock{materials: []catalog.RawMaterial{
		{ID: 1, SKU: "CLAY-STD", CurrentStockQty: 200, ReorderPoint: 5000},
	}}, audit, nil, discardLogger())

	err := scanner.Handle(context.Background(), scheduledTask(t, TaskLowStockScan))
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "jobs.low_stock_scan", audit.entries[0].Action)
	require.Equal(t, shared.SystemActorID, audit.entries[0].ActorID)
}

func TestLowStockScanStaysQuietWhenStocked(t *testing.T) {
	audit := &fakeAudit{}
	scanner := NewLowStockScanner(&fakeLowStock{}, audit, nil, discardLogger())

	err := scanner.Handle(context.Background(), scheduledTask(t, TaskLowStockScan))
	require.NoError(t, err)
	require.Empty(t, audit.entries)
}

func TestLowStockScanSkipsRetryOnBadPayload(t *testing.T) {
	scanner := NewLowStockScanner(&fakeLowStock{}, &fakeAudit{}, nil, discardLogger())
	err := scanner.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeSums struct {
	sums map[int64]int64
}

func (f *fakeSums) MaterialOnHandSums(_ context.Context) (map[int64]int64, error) {
	return f.sums, nil
}

type fakeCache struct {
	cache  map[int64]int64
	writes map[int64]int64
}

func (f *fakeCache) MaterialStockCache(_ context.Context) (map[int64]int64, error) {
	return f.cache, nil
}

func (f *fakeCache) SetMaterialStock(_ context.Context, materialID, qty int64) error {
	f.writes[materialID] = qty
	return nil
}

func TestStockReconcileRepairsOnlyDriftedMaterials(t *testing.T) {
	cache := &fakeCache{
		cache:  map[int64]int64{1: 500, 2: 300, 3: 100},
		writes: map[int64]int64{},
	}
	reconciler := NewStockReconciler(&fakeSums{sums: map[int64]int64{1: 500, 2: 250}}, cache, nil, discardLogger())

	err := reconciler.Handle(context.Background(), scheduledTask(t, TaskStockReconcile))
	require.NoError(t, err)
	// Material 1 matched; material 2 drifted; material 3 has no items left.
	require.Equal(t, map[int64]int64{2: 250, 3: 0}, cache.writes)
}

type fakeSweeper struct {
	olderThan time.Duration
}

func (f *fakeSweeper) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return nil
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	sweeper := &fakeSweeper{}
	cleaner := NewIdempotencyCleaner(sweeper, 48*time.Hour, nil, discardLogger())

	err := cleaner.Handle(context.Background(), scheduledTask(t, TaskIdempotencyCleanup))
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, sweeper.olderThan)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	sweeper := &fakeSweeper{}
	cleaner := NewIdempotencyCleaner(sweeper, 0, nil, discardLogger())

	err := cleaner.Handle(context.Background(), scheduledTask(t, TaskIdempotencyCleanup))
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, sweeper.olderThan)
}
