package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pawwatch/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(s.log, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.log))

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.Token != "" {
			r.Use(middleware.TokenAuth(s.config.Token))
		}
		if s.config.RateLimitPerIP > 0 {
			r.Use(middleware.RateLimitByIP(middleware.NewRateLimiter(s.config.RateLimitPerIP)))
		}

		r.Route("/pets/{petID}", func(r chi.Router) {
			r.Get("/anomalies", s.handleAnomalies)
			r.Post("/evaluate", s.handleEvaluate)
		})
		r.Post("/sweeps", s.handleSweep)
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
