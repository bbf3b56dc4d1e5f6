package streaming

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

func alertEvent(messageID string) *RiskEvent {
	return NewRiskEvent(EventTypeRiskAlert, &models.RiskIndicator{
		MessageID: messageID,
		Channel:   "deals",
		Score:     0.9,
		RiskLevel: models.RiskLevelHigh,
	})
}

func TestEventBus_PublishFansOut(t *testing.T) {
	ctx := context.Background()
	eb := NewEventBus(nil, testLogger())

	ch1, unsub1 := eb.Subscribe(ctx, nil)
	ch2, unsub2 := eb.Subscribe(ctx, nil)
	defer unsub1()
	defer unsub2()
	assert.Equal(t, 2, eb.SubscriberCount())

	require.NoError(t, eb.Publish(ctx, alertEvent("m1")))

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, "m1", got1.MessageID)
	assert.Equal(t, "m1", got2.MessageID)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	ctx := context.Background()
	eb := NewEventBus(nil, testLogger())

	ch, unsub := eb.Subscribe(ctx, nil)
	unsub()
	assert.Equal(t, 0, eb.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice must not panic
	assert.NotPanics(t, unsub)
}

func TestEventBus_DeliverAfterUnsubscribe(t *testing.T) {
	ctx := context.Background()
	eb := NewEventBus(nil, testLogger())

	ch, unsub := eb.Subscribe(ctx, nil)
	unsub()

	// A late delivery from a forwarder must be dropped, not sent on the
	// closed channel
	assert.NotPanics(t, func() {
		eb.deliver("1", alertEvent("m1"))
	})

	_, open := <-ch
	assert.False(t, open)
}

func TestEventBus_PublishAfterUnsubscribeSkipsRemoved(t *testing.T) {
	ctx := context.Background()
	eb := NewEventBus(nil, testLogger())

	_, unsub := eb.Subscribe(ctx, nil)
	ch2, unsub2 := eb.Subscribe(ctx, nil)
	defer unsub2()
	unsub()

	require.NoError(t, eb.Publish(ctx, alertEvent("m2")))

	got := <-ch2
	assert.Equal(t, "m2", got.MessageID)
	assert.Equal(t, 1, eb.SubscriberCount())
}
