package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/megabot/resolution-core/internal/api/handlers"
	"github.com/megabot/resolution-core/internal/api/middleware"
	"github.com/megabot/resolution-core/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	auth := middleware.NewAPIKeyAuth()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.NetworkExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(auth.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Network-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Resolution
		r.Post("/resolve", h.Resolve)

		// Normalizer as a service
		r.Route("/actions", func(r chi.Router) {
			r.Post("/normalize", h.NormalizeAction)
			r.Post("/denormalize", h.DenormalizeAction)
		})

		// Templates (network-scoped via X-Network-Id)
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Route("/{templateId}", func(r chi.Router) {
				r.Get("/", h.GetTemplate)
				r.Put("/", h.UpdateTemplate)
				r.Delete("/", h.DeleteTemplate)
			})
		})

		// Global actions (network-scoped via X-Network-Id)
		r.Route("/global-actions", func(r chi.Router) {
			r.Get("/", h.ListGlobalActions)
			r.Post("/", h.CreateGlobalAction)
			r.Route("/{globalActionId}", func(r chi.Router) {
				r.Put("/", h.UpdateGlobalAction)
				r.Delete("/", h.DeleteGlobalAction)
			})
		})

		// Networks (local registry)
		r.Route("/networks", func(r chi.Router) {
			r.Get("/", h.ListNetworks)
			r.Post("/", h.CreateNetwork)
			r.Route("/{networkId}", func(r chi.Router) {
				r.Get("/", h.GetNetwork)
				r.Put("/", h.UpdateNetwork)
				r.Delete("/", h.DeleteNetwork)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "megabot-resolution-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "megabot-resolution-core",
		})
	}
}
