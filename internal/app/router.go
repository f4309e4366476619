package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/branches"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/items"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/suppliers"
	"github.com/meridian-dms/meridian-dms/internal/observability"
	"github.com/meridian-dms/meridian-dms/internal/procurement"
	"github.com/meridian-dms/meridian-dms/internal/sales"
	"github.com/meridian-dms/meridian-dms/jobs"
	"github.com/meridian-dms/meridian-dms/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthMiddleware auth.Middleware

	AuthHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	BranchesHandler    *branches.Handler
	ItemsHandler       *items.Handler
	SuppliersHandler   *suppliers.Handler
	ReportHandler      *report.Handler
	JobsHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Everything below carries a session.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.LoadSession)

		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/masterdata", func(r chi.Router) {
			r.Route("/branches", params.BranchesHandler.MountRoutes)
			r.Route("/items", params.ItemsHandler.MountRoutes)
			r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		})
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
