package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kiln-ops/kiln/internal/jobs"
)

// KeySweeper removes idempotency keys past their retention window.
type KeySweeper interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleaner sweeps expired idempotency keys on a schedule.
type IdempotencyCleaner struct {
	store     KeySweeper
	retention time.Duration
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs the cleaner. Non-positive retention falls
// back to seven days.
func NewIdempotencyCleaner(store KeySweeper, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *IdempotencyCleaner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &IdempotencyCleaner{store: store, retention: retention, metrics: metrics, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := c.metrics.Track("idempotency_cleanup")
	if err := c.store.Cleanup(ctx, c.retention); err != nil {
		return tracker.End(err)
	}
	c.logger.Info("idempotency keys swept", slog.Duration("retention", c.retention))
	return tracker.End(nil)
}
