package handlers

import (
	"encoding/json"
	"net/http"

	"riskwatch-lab/internal/domain/services"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/internal/streaming"
	"riskwatch-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Risk      *RiskHandler
	Views     *ViewsHandler
	Streaming *StreamingHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Analyzer  *services.Analyzer
	Batch     *services.BatchScorer
	Store     services.IndicatorStore
	Cache     *cache.RedisCache
	EventBus  *streaming.EventBus
	WSHub     *streaming.WebSocketHub
	Publisher services.EventPublisher
	Logger    *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Cache, deps.Store, deps.Logger),
		Risk:      NewRiskHandler(deps.Analyzer, deps.Batch, deps.Store, deps.Cache, deps.Publisher, deps.Logger),
		Views:     NewViewsHandler(deps.Store, deps.Cache, deps.Logger),
		Streaming: NewStreamingHandler(deps.WSHub, deps.EventBus, deps.Logger),
	}
}

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
