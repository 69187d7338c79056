/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Metrics:       Prometheus request counters by route pattern
  2. RequestID:     Unique ID per request for tracing
  3. RequestLogger: zerolog line per request, logger in context
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Origins from config

ROUTE GROUPS:
  /ping                  Liveness
  /metrics               Prometheus scrape
  /api/events            Chat gateway webhook
  /api/reports/*         Read-only reports
  /api/transactions/*    Record lookup and removal
  /api/admin/*           Backfill, resend, config reload
  /api/schedule/*        Scheduled job history and manual runs

SECURITY NOTE:
  Everything under /api requires the shared secret header when a webhook
  secret is configured. /ping and /metrics are open.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Logging, metrics and secret check
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.Config.Current().HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(Metrics)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SecretHeader},
		AllowCredentials: true,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireSecret(h.Config))

		r.Post("/events", h.ReceiveEvent)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Get("/detail", h.GetDetail)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/backfill", h.StartBackfill)
			r.Get("/backfill", h.GetBackfill)
			r.Post("/resend", h.Resend)
			r.Post("/config/reload", h.ReloadConfig)
		})

		// Schedule routes
		r.Route("/schedule", func(r chi.Router) {
			r.Get("/runs", h.ListScheduleRuns)
			r.Post("/{job}/run", h.RunScheduledJob)
		})
	})

	return r
}
