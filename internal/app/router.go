package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kiln-ops/kiln/internal/allocation"
	"github.com/kiln-ops/kiln/internal/catalog"
	"github.com/kiln-ops/kiln/internal/command"
	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/observability"
	"github.com/kiln-ops/kiln/internal/production"
	"github.com/kiln-ops/kiln/internal/receiving"
	"github.com/kiln-ops/kiln/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CatalogHandler    *catalog.Handler
	InventoryHandler  *inventory.Handler
	ProductionHandler *production.Handler
	ReceivingHandler  *receiving.Handler
	AllocationHandler *allocation.Handler
	CommandHandler    *command.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Kiln defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/catalog", params.CatalogHandler.Routes())
		r.Mount("/inventory", params.InventoryHandler.Routes())
		r.Mount("/production", params.ProductionHandler.Routes())
		r.Mount("/receiving", params.ReceivingHandler.Routes())
		r.Mount("/allocations", params.AllocationHandler.Routes())
		r.Mount("/commands", params.CommandHandler.Routes())
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
