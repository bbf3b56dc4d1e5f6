package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

// Client talks to the external object-detection service. Given a stored media
// reference it returns label confidences ("pills" -> 0.92). Failures are the
// caller's problem to degrade around; the client never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new detection service client
func NewClient(cfg config.VisionConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("vision-client"),
	}
}

type detectResponse struct {
	Labels map[string]float64 `json:"labels"`
}

// DetectLabels fetches object-detection labels for a stored image
func (c *Client) DetectLabels(ctx context.Context, imageRef string) (models.ImageDetection, error) {
	reqURL := fmt.Sprintf("%s/v1/detect?ref=%s", c.baseURL, url.QueryEscape(imageRef))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("image not found: %s", imageRef)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug().
		Str("image_ref", imageRef).
		Int("labels", len(dr.Labels)).
		Msg("detection completed")

	return models.ImageDetection(dr.Labels), nil
}
