package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiln-ops/kiln/internal/app"
	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/inventory"
	jobmetrics "github.com/kiln-ops/kiln/internal/jobs"
	"github.com/kiln-ops/kiln/internal/platform/db"
	"github.com/kiln-ops/kiln/internal/shared"
	"github.com/kiln-ops/kiln/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	inventoryRepo := inventory.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	scanner := jobs.NewLowStockScanner(catalogService, auditLogger, metrics, logger)
	reconciler := jobs.NewStockReconciler(inventoryRepo, catalogRepo, metrics, logger)
	cleaner := jobs.NewIdempotencyCleaner(idempotencyStore, cfg.IdempotencyRetention, metrics, logger)

	scanTask, err := jobs.NewLowStockScanTask(time.Now())
	if err != nil {
		logger.Error("build low stock scan task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewStockReconcileTask(time.Now())
	if err != nil {
		logger.Error("build stock reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(time.Now())
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: scanner.Handle},
			{Type: jobs.TaskStockReconcile, Handler: reconciler.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleaner.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.StockReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
