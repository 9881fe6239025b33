package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiln-ops/kiln/cmd/kiln/cli"
	"github.com/kiln-ops/kiln/internal/allocation"
	"github.com/kiln-ops/kiln/internal/app"
	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/command"
	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/observability"
	"github.com/kiln-ops/kiln/internal/platform/cache"
	"github.com/kiln-ops/kiln/internal/platform/db"
	"github.com/kiln-ops/kiln/internal/production"
	"github.com/kiln-ops/kiln/internal/receiving"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		runJobsCommand(ctx, cfg, logger, os.Args[2:])
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(catalogService)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, metrics)
	if redisClient != nil {
		inventoryService.UseActivityCache(inventory.NewActivityCache(redisClient, cfg.ActivityCacheTTL))
	}
	inventoryHandler := inventory.NewHandler(inventoryService)

	productionRepo := production.NewRepository(dbpool)
	productionService := production.NewService(productionRepo, inventoryService, catalogService, auditLogger)
	productionHandler := production.NewHandler(productionService)

	receivingService := receiving.NewService(catalogService, inventoryService, idempotencyStore, cfg.DefaultReceivingLocationID)
	receivingHandler := receiving.NewHandler(receivingService)

	allocationService := allocation.NewService(inventoryService)
	allocationHandler := allocation.NewHandler(allocationService)

	commandHandler := command.NewHandler(command.NewExecutor(productionService, inventoryService, receivingService))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalogHandler,
		InventoryHandler:  inventoryHandler,
		ProductionHandler: productionHandler,
		ReceivingHandler:  receivingHandler,
		AllocationHandler: allocationHandler,
		CommandHandler:    commandHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: kiln jobs <trigger NAME|stats|scheduled>")
		os.Exit(2)
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: kiln jobs trigger NAME")
			os.Exit(2)
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			logger.Error("trigger job", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			logger.Error("list scheduled", slog.Any("error", err))
			os.Exit(1)
		}
		for _, t := range tasks {
			fmt.Printf("%s id=%s next=%s\n", t.Type, t.ID, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		os.Exit(2)
	}
}
