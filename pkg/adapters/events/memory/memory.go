package memory

import (
	"context"
	"sync"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/ports"
	"go.uber.org/zap"
)

// subscriptionBuffer is the number of events a slow subscriber may lag behind
const subscriptionBuffer = 64

// InMemoryEventBus implements EventBus with per-subscriber delivery goroutines.
// Events reach each subscriber in publish order; a subscriber that falls more
// than subscriptionBuffer events behind loses events instead of blocking publishers.
type InMemoryEventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[string]map[uint64]chan domain.Event
	closed      bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		logger:      logger,
		subscribers: make(map[string]map[uint64]chan domain.Event),
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subscribers[topic] {
		select {
		case ch <- event:
		default:
			e.logger.Warn("subscriber channel full, dropping event",
				zap.String("topic", topic),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
	}

	return nil
}

// Subscribe delivers events on topic to handler until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	ch := make(chan domain.Event, subscriptionBuffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return context.Canceled
	}
	id := e.nextID
	e.nextID++
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]chan domain.Event)
	}
	e.subscribers[topic][id] = ch
	e.mu.Unlock()

	go func() {
		defer e.unsubscribe(topic, id)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, event); err != nil {
					e.logger.Debug("event handler error",
						zap.String("topic", topic),
						zap.String("event_id", event.ID),
						zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// Close closes the event bus and ends all subscriptions
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	for topic, subs := range e.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(e.subscribers, topic)
	}
	return nil
}

// unsubscribe removes a subscription from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if subs, ok := e.subscribers[topic]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(e.subscribers, topic)
		}
	}
}

// SubscriberCount reports the number of live subscriptions on topic
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}
