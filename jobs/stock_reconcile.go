package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kiln-ops/kiln/internal/jobs"
)

// StockSummer provides the authoritative per-material on-hand totals, summed
// from inventory items.
type StockSummer interface {
	MaterialOnHandSums(ctx context.Context) (map[int64]int64, error)
}

// StockCacheStore reads and repairs the denormalized material stock cache.
type StockCacheStore interface {
	MaterialStockCache(ctx context.Context) (map[int64]int64, error)
	SetMaterialStock(ctx context.Context, materialID, qty int64) error
}

// StockReconciler heals raw_materials.current_stock_qty from the item table.
// The cache can drift only through operator SQL or bugs; the ledger itself is
// never rewritten here.
type StockReconciler struct {
	inventory StockSummer
	catalog   StockCacheStore
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewStockReconciler constructs the reconciler.
func NewStockReconciler(inv StockSummer, cat StockCacheStore, metrics *jobmetrics.Metrics, logger *slog.Logger) *StockReconciler {
	return &StockReconciler{inventory: inv, catalog: cat, metrics: metrics, logger: logger}
}

// Handle processes TaskStockReconcile tasks.
func (s *StockReconciler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("stock_reconcile")

	actual, err := s.inventory.MaterialOnHandSums(ctx)
	if err != nil {
		return tracker.End(err)
	}
	cached, err := s.catalog.MaterialStockCache(ctx)
	if err != nil {
		return tracker.End(err)
	}

	repaired := 0
	for materialID, cachedQty := range cached {
		actualQty := actual[materialID]
		if cachedQty == actualQty {
			continue
		}
		if err := s.catalog.SetMaterialStock(ctx, materialID, actualQty); err != nil {
			return tracker.End(err)
		}
		s.logger.Warn("repaired material stock cache",
			slog.Int64("material_id", materialID),
			slog.Int64("cached", cachedQty),
			slog.Int64("actual", actualQty))
		repaired++
	}
	s.metrics.AddDrift("stock_reconcile", repaired)
	return tracker.End(nil)
}
