package streaming

import (
	"context"
	"strconv"
	"sync"

	"riskwatch-lab/pkg/logger"
)

// EventBus distributes risk events to local subscribers and NATS
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]chan *RiskEvent
	nextID      int
}

// NewEventBus creates a new event bus. nats may be nil for local-only fanout.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]chan *RiskEvent),
	}
}

// Publish publishes a risk event to NATS and all local subscribers
func (eb *EventBus) Publish(ctx context.Context, event *RiskEvent) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishRiskEvent(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}

	return nil
}

// PublishBatchEvent publishes a batch completion event
func (eb *EventBus) PublishBatchEvent(ctx context.Context, event *BatchEvent) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishBatchEvent(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish batch event to NATS")
		}
	}
	return nil
}

// Subscribe creates a new subscription and returns a channel for events
func (eb *EventBus) Subscribe(ctx context.Context, sub *Subscription) (<-chan *RiskEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.Itoa(eb.nextID)
	ch := make(chan *RiskEvent, 100)
	eb.subscribers[id] = ch
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	// Forward distributed events from NATS as well
	if eb.nats != nil && eb.nats.IsConnected() {
		natsCh, err := eb.nats.Subscribe(ctx, sub)
		if err == nil {
			go func() {
				for {
					select {
					case event, ok := <-natsCh:
						if !ok {
							return
						}
						eb.deliver(id, event)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	return ch, unsubscribe
}

// deliver sends an event to a subscriber if it is still registered. Holding
// the lock excludes unsubscribe, so the send can never race the close.
func (eb *EventBus) deliver(id string, event *RiskEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	ch, ok := eb.subscribers[id]
	if !ok {
		return
	}

	select {
	case ch <- event:
	default:
		eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
	}
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.subscribers {
		close(ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
