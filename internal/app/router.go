package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/inventory"
	"github.com/larderhq/larder/internal/masterdata/suppliers"
	"github.com/larderhq/larder/internal/observability"
	"github.com/larderhq/larder/internal/platform/httpx"
	"github.com/larderhq/larder/internal/procurement"
	"github.com/larderhq/larder/internal/shared"
	"github.com/larderhq/larder/jobs"
)

// RouterDeps carries the infrastructure the router wires the modules onto.
type RouterDeps struct {
	Logger  *slog.Logger
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Jobs    *jobs.Handler
}

// NewRouter assembles repositories, services, and handlers and mounts the
// full API surface.
func NewRouter(d RouterDeps) http.Handler {
	idem := shared.NewIdempotencyStore(d.Pool)

	authRepo := auth.NewRepository(d.Pool)
	authService := auth.NewService(authRepo, d.Redis, d.Config.AuthTokenTTL)
	authHandler := auth.NewHandler(d.Logger, authService)
	authMW := auth.Middleware{Service: authService, Logger: d.Logger}

	invRepo := inventory.NewRepository(d.Pool)
	invService := inventory.NewService(d.Logger, invRepo, idem, d.Metrics, d.Config.LedgerAllowNegative)

	supRepo := suppliers.NewRepository(d.Pool)
	supService := suppliers.NewService(d.Logger, supRepo)
	supHandler := suppliers.NewHandler(d.Logger, supService)

	poRepo := procurement.NewRepository(d.Pool)
	poService := procurement.NewService(d.Logger, poRepo, invService, invService, supService)
	poHandler := procurement.NewHandler(d.Logger, poService)

	// Ledger reads resolve the acting user through the cause collection
	// selected by each entry's reason.
	enricher := inventory.NewEnricher(d.Logger, map[inventory.LogReason]inventory.ActorResolver{
		inventory.ReasonAdjustment:    invRepo.AdjustmentActor,
		inventory.ReasonMovement:      invRepo.MovementActor,
		inventory.ReasonSale:          invRepo.MovementActor,
		inventory.ReasonReturn:        invRepo.MovementActor,
		inventory.ReasonPurchaseOrder: poRepo.OrderActor,
	})
	invHandler := inventory.NewHandler(d.Logger, invService, enricher)

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: d.Logger, Config: d.Config, Metrics: d.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	if d.Jobs != nil {
		r.Route("/jobs", d.Jobs.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", authHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Route("/inventory", func(r chi.Router) {
				invHandler.MountRoutes(r)
				r.Route("/purchase-orders", poHandler.MountRoutes)
			})
			r.Route("/suppliers", supHandler.MountRoutes)
		})
	})

	return r
}
