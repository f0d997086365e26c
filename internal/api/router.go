// Package api serves read-only lineage, quality and integrity views over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/lineage"
)

const requestTimeout = 30 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers serves the lineage read API.
type Handlers struct {
	svc   *lineage.Service
	store Pinger
	log   *zap.Logger
}

// NewHandlers creates handlers over a lineage service.
func NewHandlers(svc *lineage.Service, store Pinger) *Handlers {
	return &Handlers{
		svc:   svc,
		store: store,
		log:   zap.L().With(zap.String("component", "api")),
	}
}

// NewRouter builds the chi router with CORS for the given origins.
func NewRouter(h *Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/records/{table}/{id}", h.RecordProvenance)

		r.Get("/sources", h.ListSources)
		r.Get("/sources/{id}", h.GetSource)
		r.Get("/sources/{id}/impact", h.SourceImpact)
		r.Get("/sources/{id}/lineage", h.SourceLineage)

		r.Get("/impact", h.ImpactRanking)

		r.Route("/quality", func(r chi.Router) {
			r.Get("/overview", h.QualityOverview)
			r.Get("/timeline", h.QualityTimeline)
			r.Get("/coverage/{table}", h.TableCoverage)
			r.Get("/tables", h.TableSummary)
			r.Get("/bands", h.QualityBands)
			r.Get("/low", h.LowConfidence)
		})

		r.Get("/integrity", h.Integrity)
	})

	return r
}
