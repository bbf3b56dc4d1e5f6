package handlers

import (
	"net/http"
	"strconv"
	"time"

	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/internal/domain/services"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/pkg/logger"
)

// ViewsHandler serves the aggregate views over stored indicators
type ViewsHandler struct {
	store  services.IndicatorStore
	cache  *cache.RedisCache
	logger *logger.Logger
}

// NewViewsHandler creates a new ViewsHandler
func NewViewsHandler(store services.IndicatorStore, c *cache.RedisCache, log *logger.Logger) *ViewsHandler {
	return &ViewsHandler{
		store:  store,
		cache:  c,
		logger: log.WithComponent("views"),
	}
}

// TopRisky handles GET /api/v1/risk/top. Without a window param the view spans
// all stored indicators.
func (h *ViewsHandler) TopRisky(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	window := queryDuration(r, "window", 0)

	var since time.Time
	if window > 0 {
		since = time.Now().Add(-window)
	}

	// Serve the default view from cache when possible
	isDefault := limit == 20 && window == 0
	if h.cache != nil && isDefault {
		var cached []*models.RiskIndicator
		if err := h.cache.GetCachedView(r.Context(), cache.KeyTopRisky, &cached); err == nil {
			respondJSON(w, http.StatusOK, map[string]any{"indicators": cached})
			return
		}
	}

	indicators, err := h.store.TopRisky(r.Context(), since, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load top indicators")
		respondError(w, http.StatusInternalServerError, "failed to load top indicators")
		return
	}

	if h.cache != nil && isDefault {
		_ = h.cache.CacheView(r.Context(), cache.KeyTopRisky, indicators)
	}

	respondJSON(w, http.StatusOK, map[string]any{"indicators": indicators})
}

// Trending handles GET /api/v1/risk/trending
func (h *ViewsHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	window := queryDuration(r, "window", 24*time.Hour)
	since := time.Now().Add(-window)

	isDefault := limit == 20 && window == 24*time.Hour
	if h.cache != nil && isDefault {
		var cached []*models.ProductCount
		if err := h.cache.GetCachedView(r.Context(), cache.KeyTrendingProducts, &cached); err == nil {
			respondJSON(w, http.StatusOK, map[string]any{"window": window.String(), "products": cached})
			return
		}
	}

	counts, err := h.store.TrendingProducts(r.Context(), since, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load trending products")
		respondError(w, http.StatusInternalServerError, "failed to load trending products")
		return
	}

	if h.cache != nil && isDefault {
		_ = h.cache.CacheView(r.Context(), cache.KeyTrendingProducts, counts)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"window":   window.String(),
		"products": counts,
	})
}

// Channels handles GET /api/v1/risk/channels
func (h *ViewsHandler) Channels(w http.ResponseWriter, r *http.Request) {
	window := queryDuration(r, "window", 24*time.Hour)
	since := time.Now().Add(-window)

	isDefault := window == 24*time.Hour
	if h.cache != nil && isDefault {
		var cached []*models.ChannelSummary
		if err := h.cache.GetCachedView(r.Context(), cache.KeyChannelSummaries, &cached); err == nil {
			respondJSON(w, http.StatusOK, map[string]any{"window": window.String(), "channels": cached})
			return
		}
	}

	summaries, err := h.store.ChannelSummaries(r.Context(), since)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load channel summaries")
		respondError(w, http.StatusInternalServerError, "failed to load channel summaries")
		return
	}

	if h.cache != nil && isDefault {
		_ = h.cache.CacheView(r.Context(), cache.KeyChannelSummaries, summaries)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"window":   window.String(),
		"channels": summaries,
	})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func queryDuration(r *http.Request, name string, def time.Duration) time.Duration {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
