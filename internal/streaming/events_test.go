package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riskwatch-lab/internal/domain/models"
)

func TestNewRiskEvent(t *testing.T) {
	indicator := &models.RiskIndicator{
		MessageID:   "msg-1",
		Channel:     "deals",
		Score:       0.9,
		RiskLevel:   models.RiskLevelHigh,
		Flags:       []string{"has_unverified_claims"},
		Mentions:    []string{"paracetamol"},
		RuleVersion: "test-v1",
	}

	event := NewRiskEvent(EventTypeRiskAlert, indicator)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventTypeRiskAlert, event.Type)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "msg-1", event.MessageID)
	assert.Equal(t, "deals", event.Channel)
	assert.InDelta(t, 0.9, event.Score, 1e-9)
	assert.Equal(t, models.RiskLevelHigh, event.RiskLevel)
	assert.Equal(t, []string{"has_unverified_claims"}, event.Flags)
	assert.Equal(t, []string{"paracetamol"}, event.Mentions)
	assert.Equal(t, "test-v1", event.RuleVersion)
}

func TestSubscription_Matches(t *testing.T) {
	event := &RiskEvent{
		Type:      EventTypeRiskAlert,
		Channel:   "deals",
		RiskLevel: models.RiskLevelMedium,
		Flags:     []string{"contains_urgent_language", "pills_detected"},
	}

	tests := []struct {
		name     string
		sub      Subscription
		expected bool
	}{
		{
			name:     "empty subscription matches everything",
			sub:      Subscription{},
			expected: true,
		},
		{
			name:     "min level at the event level",
			sub:      Subscription{MinLevel: models.RiskLevelMedium},
			expected: true,
		},
		{
			name:     "min level below the event level",
			sub:      Subscription{MinLevel: models.RiskLevelLow},
			expected: true,
		},
		{
			name:     "min level above the event level",
			sub:      Subscription{MinLevel: models.RiskLevelHigh},
			expected: false,
		},
		{
			name:     "channel filter matches",
			sub:      Subscription{Channels: []string{"other", "deals"}},
			expected: true,
		},
		{
			name:     "channel filter does not match",
			sub:      Subscription{Channels: []string{"other"}},
			expected: false,
		},
		{
			name:     "flag filter matches any event flag",
			sub:      Subscription{Flags: []string{"pills_detected"}},
			expected: true,
		},
		{
			name:     "flag filter does not match",
			sub:      Subscription{Flags: []string{"insider_term"}},
			expected: false,
		},
		{
			name: "all filters must pass",
			sub: Subscription{
				MinLevel: models.RiskLevelMedium,
				Channels: []string{"deals"},
				Flags:    []string{"insider_term"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.sub.Matches(event))
		})
	}
}
