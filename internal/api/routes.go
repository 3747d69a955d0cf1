package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/cdp-activation/internal/pkg/telemetry"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "cdp-activation")
			next.ServeHTTP(w, req)
		})
	})

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Row-Count"},
		MaxAge:         300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.ListSegments)
			r.Post("/preview", h.PreviewSegment)
			r.Get("/operators", h.ListOperators)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", h.GetSegment)
				r.Get("/explain/{customerID}", h.ExplainCustomer)
				r.Get("/export/{platform}", h.ExportSegment)
				r.Post("/upload", h.UploadSegment)
				r.Get("/history", h.UploadHistory)
			})
		})

		r.Route("/platforms", func(r chi.Router) {
			r.Get("/", h.ListPlatforms)
			// Google audience ids are resource names containing slashes.
			r.Get("/{platform}/audiences/*", h.GetAudienceStatus)
		})

		r.Get("/data", h.DataStatus)
		r.Post("/data/reload", h.ReloadData)
	})

	return r
}
