package handlers

import (
	"net/http"

	"riskwatch-lab/internal/streaming"
	"riskwatch-lab/pkg/logger"
)

// StreamingHandler handles the WebSocket live feed
type StreamingHandler struct {
	hub      *streaming.WebSocketHub
	eventBus *streaming.EventBus
	logger   *logger.Logger
}

// NewStreamingHandler creates a new StreamingHandler
func NewStreamingHandler(hub *streaming.WebSocketHub, eventBus *streaming.EventBus, log *logger.Logger) *StreamingHandler {
	return &StreamingHandler{
		hub:      hub,
		eventBus: eventBus,
		logger:   log.WithComponent("streaming"),
	}
}

// HandleWebSocket handles GET /ws/risk
func (h *StreamingHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming not available")
		return
	}
	h.hub.ServeWebSocket(w, r)
}

// GetStats handles GET /api/v1/streaming/stats
func (h *StreamingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"websocket_clients": 0,
		"local_subscribers": 0,
	}
	if h.hub != nil {
		stats["websocket_clients"] = h.hub.ClientCount()
	}
	if h.eventBus != nil {
		stats["local_subscribers"] = h.eventBus.SubscriberCount()
	}
	respondJSON(w, http.StatusOK, stats)
}
