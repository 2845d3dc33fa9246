package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lanecrest/lanecrest/internal/conversion"
	"github.com/lanecrest/lanecrest/internal/masterdata/tariffs"
	"github.com/lanecrest/lanecrest/internal/observability"
	"github.com/lanecrest/lanecrest/internal/pricing"
	"github.com/lanecrest/lanecrest/internal/quoting"
	"github.com/lanecrest/lanecrest/internal/sequence"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	QuotingHandler    *quoting.Handler
	PricingHandler    *pricing.Handler
	ConversionHandler *conversion.Handler
	TariffsHandler    *tariffs.Handler
	SequenceHandler   *sequence.Handler
	Pool              *pgxpool.Pool
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with default middleware and mounts
// every module under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(params.Logger))

		quoting.Routes(r, params.QuotingHandler)
		pricing.Routes(r, params.PricingHandler)
		conversion.Routes(r, params.ConversionHandler)
		tariffs.Routes(r, params.TariffsHandler)
		sequence.Routes(r, params.SequenceHandler)
	})

	return r
}
