package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tidemark-io/tidemark/internal/cluster"
	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/ingest"
	"github.com/tidemark-io/tidemark/internal/observability"
	"github.com/tidemark-io/tidemark/internal/sales"
	"github.com/tidemark-io/tidemark/internal/statement"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DimensionHandler *dimension.Handler
	ClusterHandler   *cluster.Handler
	SalesHandler     *sales.Handler
	StatementHandler *statement.Handler
	IngestHandler    *ingest.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with warehouse defaults.
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		if params.DimensionHandler != nil {
			params.DimensionHandler.MountRoutes(api)
		}
		if params.ClusterHandler != nil {
			params.ClusterHandler.MountRoutes(api)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(api)
		}
		if params.StatementHandler != nil {
			params.StatementHandler.MountRoutes(api)
		}
		if params.IngestHandler != nil {
			params.IngestHandler.MountRoutes(api)
		}
	})

	return r
}
