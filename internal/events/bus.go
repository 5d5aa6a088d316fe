package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalUpdate     EventType = "SIGNAL_UPDATE"
	EventQuoteFetched     EventType = "QUOTE_FETCHED"
	EventMarketRefresh    EventType = "MARKET_REFRESH"
	EventChatCompleted    EventType = "CHAT_COMPLETED"
	EventProviderDegraded EventType = "PROVIDER_DEGRADED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalUpdate publishes a refreshed signal batch
func (eb *EventBus) PublishSignalUpdate(signals interface{}, cached bool) {
	eb.Publish(Event{
		Type: EventSignalUpdate,
		Data: map[string]interface{}{
			"signals": signals,
			"cached":  cached,
		},
	})
}

// PublishQuoteFetched publishes a quote fetched event
func (eb *EventBus) PublishQuoteFetched(ticker string, price, changePercent float64) {
	eb.Publish(Event{
		Type: EventQuoteFetched,
		Data: map[string]interface{}{
			"ticker":         ticker,
			"price":          price,
			"change_percent": changePercent,
		},
	})
}

// PublishMarketRefresh publishes a market indices refresh event
func (eb *EventBus) PublishMarketRefresh(count int) {
	eb.Publish(Event{
		Type: EventMarketRefresh,
		Data: map[string]interface{}{
			"indices": count,
		},
	})
}

// PublishChatCompleted publishes a chat turn completed event
func (eb *EventBus) PublishChatCompleted(reason string) {
	eb.Publish(Event{
		Type: EventChatCompleted,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishProviderDegraded publishes a provider degradation event
func (eb *EventBus) PublishProviderDegraded(provider, detail string) {
	eb.Publish(Event{
		Type: EventProviderDegraded,
		Data: map[string]interface{}{
			"provider": provider,
			"detail":   detail,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
