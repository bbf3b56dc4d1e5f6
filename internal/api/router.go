package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"riskwatch-lab/internal/api/handlers"
	apimiddleware "riskwatch-lab/internal/api/middleware"
	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	cache    *cache.RedisCache
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg config.Config, h *handlers.Handlers, c *cache.RedisCache, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		cache:    c,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled && r.cache != nil {
		router.Use(apimiddleware.RateLimiter(r.cache, r.config.RateLimit))
	}

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
	})

	// API v1 routes (authenticated)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKey))

		api.Route("/risk", func(risk chi.Router) {
			// Real-time detection
			risk.Post("/detect", r.handlers.Risk.Detect)

			// Aggregate views
			risk.Get("/top", r.handlers.Views.TopRisky)
			risk.Get("/trending", r.handlers.Views.Trending)
			risk.Get("/channels", r.handlers.Views.Channels)

			// Per-message lookup
			risk.Get("/messages/{id}", r.handlers.Risk.GetMessage)

			// Backlog scoring
			risk.Post("/rescore", r.handlers.Risk.Rescore)

			// Live alert feed (authenticated variant of /ws/risk)
			risk.Get("/stream", r.handlers.Streaming.HandleWebSocket)
		})

		api.Get("/streaming/stats", r.handlers.Streaming.GetStats)
	})

	// WebSocket live feed
	router.Get("/ws/risk", r.handlers.Streaming.HandleWebSocket)

	return router
}
