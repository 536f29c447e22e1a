package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/inference-observe/app"
	"github.com/upb/inference-observe/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Observe.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	if cfg.Server.WriteTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Customer-ID", "X-App-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request observation
	r.Use(deps.ObserveMiddleware.Track)

	// Liveness is served regardless of observation state
	r.Get("/healthz", handlers.HealthCheck(deps))

	// Observe endpoints
	if cfg.Observe.Enabled {
		r.Get(cfg.Observe.MetricsPath, handlers.MetricsHandler(deps))
		r.Get(cfg.Observe.HealthPath, handlers.ObserveHealthHandler(deps))
		r.Get(cfg.Observe.ConfigPath, handlers.ConfigHandler(deps))
		r.Get(cfg.Observe.RequestsPath, handlers.RequestsHandler(deps))
	}

	// Everything else goes upstream
	r.NotFound(handlers.ProxyHandler(deps))
	r.MethodNotAllowed(handlers.ProxyHandler(deps))

	return r
}
