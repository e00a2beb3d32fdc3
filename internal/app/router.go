package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/velora-crm/velora-pos/internal/bulk"
	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/observability"
	"github.com/velora-crm/velora-pos/internal/receipts"
	"github.com/velora-crm/velora-pos/internal/selection"
	"github.com/velora-crm/velora-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CashFlowHandler  *cashflow.Handler
	ReceiptsHandler  *receipts.Handler
	BulkHandler      *bulk.Handler
	SelectionHandler *selection.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Velora defaults.
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

	r.Route("/cashflows", params.CashFlowHandler.MountRoutes)
	r.Route("/receipts", params.ReceiptsHandler.MountRoutes)
	r.Route("/bulk", params.BulkHandler.MountRoutes)
	if params.SelectionHandler != nil {
		r.Route("/selections", params.SelectionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
