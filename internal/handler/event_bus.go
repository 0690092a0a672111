// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gnss-configurator/internal/model"
)

// EventBus fans run events out to subscribers. Publishing never blocks the
// provisioning loop; events are dropped when a buffer is full.
type EventBus struct {
	subscribers map[string]chan model.RunEvent
	events      chan model.RunEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan model.RunEvent),
		events:      make(chan model.RunEvent, 1000),
		logger:      logger,
	}
}

// Start distributes events until the context is cancelled
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event for distribution
func (eb *EventBus) Publish(event model.RunEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("run_id", event.RunID.String()),
		)
	}
}

// Subscribe registers a subscriber under the given id
func (eb *EventBus) Subscribe(id string) <-chan model.RunEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.RunEvent, 100)
	eb.subscribers[id] = subscriber
	return subscriber
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(id string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	delete(eb.subscribers, id)
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.RunEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for id, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			eb.logger.Debug("Slow subscriber, skipping event", zap.String("subscriber", id))
		}
	}
}
