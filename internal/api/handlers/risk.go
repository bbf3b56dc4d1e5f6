package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"riskwatch-lab/internal/domain/services"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/internal/infrastructure/database/repository"
	"riskwatch-lab/pkg/logger"
)

// RiskHandler handles detection and scoring endpoints
type RiskHandler struct {
	analyzer  *services.Analyzer
	batch     *services.BatchScorer
	store     services.IndicatorStore
	cache     *cache.RedisCache
	publisher services.EventPublisher
	logger    *logger.Logger
}

// NewRiskHandler creates a new RiskHandler
func NewRiskHandler(
	analyzer *services.Analyzer,
	batch *services.BatchScorer,
	store services.IndicatorStore,
	c *cache.RedisCache,
	publisher services.EventPublisher,
	log *logger.Logger,
) *RiskHandler {
	return &RiskHandler{
		analyzer:  analyzer,
		batch:     batch,
		store:     store,
		cache:     c,
		publisher: publisher,
		logger:    log.WithComponent("risk"),
	}
}

// DetectRequest is the body for POST /api/v1/risk/detect
type DetectRequest struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Detect handles POST /api/v1/risk/detect. Scores ad-hoc text synchronously
// without persisting anything.
func (h *RiskHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	indicator := h.analyzer.DetectRealtime(r.Context(), req.Text, req.Channel)

	if h.publisher != nil && indicator.IsHighRisk() {
		if err := h.publisher.PublishRiskAlert(r.Context(), indicator); err != nil {
			h.logger.Debug().Err(err).Msg("failed to publish realtime alert")
		}
	}

	respondJSON(w, http.StatusOK, indicator)
}

// GetMessage handles GET /api/v1/risk/messages/{id}
func (h *RiskHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if messageID == "" {
		respondError(w, http.StatusBadRequest, "message id is required")
		return
	}

	indicator, err := h.store.GetByMessageID(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no indicator for message")
			return
		}
		h.logger.Error().Err(err).Str("message_id", messageID).Msg("failed to load indicator")
		respondError(w, http.StatusInternalServerError, "failed to load indicator")
		return
	}

	respondJSON(w, http.StatusOK, indicator)
}

// Rescore handles POST /api/v1/risk/rescore. Runs one batch pass immediately,
// which re-scores messages whose indicators carry an older rule version.
func (h *RiskHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	if h.batch == nil {
		respondError(w, http.StatusServiceUnavailable, "batch scoring not available")
		return
	}

	result, err := h.batch.RunOnce(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("rescore run failed")
		respondError(w, http.StatusInternalServerError, "rescore failed")
		return
	}

	if h.cache != nil && result.Scored > 0 {
		if err := h.cache.InvalidateViews(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("failed to invalidate cached views")
		}
	}

	respondJSON(w, http.StatusOK, result)
}
