package streaming

import (
	"time"

	"github.com/google/uuid"

	"riskwatch-lab/internal/domain/models"
)

// EventType represents the type of risk event
type EventType string

const (
	EventTypeRiskAlert   EventType = "risk_alert"
	EventTypeRescored    EventType = "rescored"
	EventTypeBatchResult EventType = "batch_completed"
)

// RiskEvent is a real-time notification about a scored message
type RiskEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	MessageID   string           `json:"message_id,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	Score       float64          `json:"score,omitempty"`
	RiskLevel   models.RiskLevel `json:"risk_level,omitempty"`
	Flags       []string         `json:"flags,omitempty"`
	Mentions    []string         `json:"mentions,omitempty"`
	RuleVersion string           `json:"rule_version,omitempty"`
}

// NewRiskEvent creates a risk event from an indicator
func NewRiskEvent(eventType EventType, indicator *models.RiskIndicator) *RiskEvent {
	return &RiskEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now(),
		MessageID:   indicator.MessageID,
		Channel:     indicator.Channel,
		Score:       indicator.Score,
		RiskLevel:   indicator.RiskLevel,
		Flags:       indicator.Flags,
		Mentions:    indicator.Mentions,
		RuleVersion: indicator.RuleVersion,
	}
}

// BatchEvent reports a completed batch scoring run
type BatchEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	RuleVersion string        `json:"rule_version"`
	Scored      int           `json:"scored"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration_ms"`
}

// Subscription holds a client's event filters
type Subscription struct {
	// Minimum risk level (empty = all)
	MinLevel models.RiskLevel `json:"min_level,omitempty"`

	// Filter by channels (empty = all)
	Channels []string `json:"channels,omitempty"`

	// Filter by flags (empty = all)
	Flags []string `json:"flags,omitempty"`
}

// Matches checks if an event passes the subscription filters
func (s *Subscription) Matches(event *RiskEvent) bool {
	if s.MinLevel != "" {
		levelOrder := map[models.RiskLevel]int{
			models.RiskLevelLow:    1,
			models.RiskLevelMedium: 2,
			models.RiskLevelHigh:   3,
		}
		if levelOrder[event.RiskLevel] < levelOrder[s.MinLevel] {
			return false
		}
	}

	if len(s.Channels) > 0 {
		found := false
		for _, c := range s.Channels {
			if c == event.Channel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(s.Flags) > 0 {
		found := false
		for _, f := range s.Flags {
			for _, ef := range event.Flags {
				if f == ef {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	return true
}
