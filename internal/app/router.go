package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meatflow/meatflow/internal/document"
	"github.com/meatflow/meatflow/internal/identity"
	"github.com/meatflow/meatflow/internal/observability"
	"github.com/meatflow/meatflow/internal/ordersheet"
	"github.com/meatflow/meatflow/internal/recon"
	"github.com/meatflow/meatflow/internal/salesorder"
	"github.com/meatflow/meatflow/internal/shipment"
	"github.com/meatflow/meatflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthMiddleware *identity.Middleware

	AuthHandler       *identity.Handler
	OrderSheetHandler *ordersheet.Handler
	SalesOrderHandler *salesorder.Handler
	DocumentHandler   *document.Handler
	ReconHandler      *recon.Handler
	ShipmentHandler   *shipment.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the fulfillment API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Auth:    params.AuthMiddleware,
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

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api/v1", func(r chi.Router) {
		params.OrderSheetHandler.MountRoutes(r)
		params.SalesOrderHandler.MountRoutes(r)
		params.DocumentHandler.MountRoutes(r)
		params.ReconHandler.MountRoutes(r)
		params.ShipmentHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
