package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan scans materials against their reorder points.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskStockReconcile heals the denormalized material stock cache.
	TaskStockReconcile = "inventory:stock_reconcile"
	// TaskIdempotencyCleanup sweeps expired idempotency keys.
	TaskIdempotencyCleanup = "ops:idempotency_cleanup"
)

// ScheduledPayload carries scheduling metadata shared by cron tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewStockReconcileTask constructs the stock reconciliation task.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the idempotency sweep task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
