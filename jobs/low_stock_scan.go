package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kiln-ops/kiln/internal/catalog"
	jobmetrics "github.com/kiln-ops/kiln/internal/jobs"
	"github.com/kiln-ops/kiln/internal/shared"
)

// LowStockLister provides the materials under their reorder point.
type LowStockLister interface {
	LowStockMaterials(ctx context.Context) ([]catalog.RawMaterial, error)
}

// AuditRecorder records job outcomes in the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockScanner flags materials that need reordering. The scan is a read
// plus an audit entry; purchasing decisions stay with humans.
type LowStockScanner struct {
	catalog LowStockLister
	audit   AuditRecorder
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewLowStockScanner constructs the scanner.
func NewLowStockScanner(cat LowStockLister, audit AuditRecorder, metrics *jobmetrics.Metrics, logger *slog.Logger) *LowStockScanner {
	return &LowStockScanner{catalog: cat, audit: audit, metrics: metrics, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (s *LowStockScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("low_stock_scan")

	materials, err := s.catalog.LowStockMaterials(ctx)
	if err != nil {
		return tracker.End(err)
	}
	s.metrics.SetLowStock(len(materials))

	for _, m := range materials {
		s.logger.Warn("material under reorder point",
			slog.String("sku", m.SKU),
			slog.Int64("on_hand", m.CurrentStockQty),
			slog.Int64("reorder_point", m.ReorderPoint))
	}
	if len(materials) > 0 {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.SystemActorID,
			Action:   "jobs.low_stock_scan",
			Entity:   "raw_material",
			EntityID: "scan",
			Meta:     map[string]any{"under_reorder_point": len(materials)},
		})
	}
	return tracker.End(nil)
}
