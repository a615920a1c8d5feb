package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the dashboard
type EventType string

const (
	EventViewStateChanged     EventType = "VIEW_STATE_CHANGED"
	EventConnectionChanged    EventType = "CONNECTION_CHANGED"
	EventSelectionChanged     EventType = "SELECTION_CHANGED"
	EventRequestFailed        EventType = "REQUEST_FAILED"
	EventCircuitBreakerUpdate EventType = "CIRCUIT_BREAKER_UPDATE"
	EventBacktestRecorded     EventType = "BACKTEST_RECORDED"
	EventError                EventType = "ERROR"
)

// Event represents a dashboard event
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

// Publish sends an event to all subscribers. Subscribers run on their own
// goroutines so a slow one never blocks the publisher. A nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishViewStateChanged announces a committed view-state version and the groups it touched
func (eb *EventBus) PublishViewStateChanged(version uint64, groups []string) {
	eb.Publish(Event{
		Type: EventViewStateChanged,
		Data: map[string]interface{}{
			"version": version,
			"groups":  groups,
		},
	})
}

// PublishSelectionChanged publishes the newly active symbol and timeframe
func (eb *EventBus) PublishSelectionChanged(symbol, timeframe string) {
	eb.Publish(Event{
		Type: EventSelectionChanged,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
		},
	})
}

// PublishConnection publishes a push channel status change
func (eb *EventBus) PublishConnection(status string) {
	eb.Publish(Event{
		Type: EventConnectionChanged,
		Data: map[string]interface{}{
			"status": status,
		},
	})
}

// PublishRequestFailed publishes a request that ended in the error state
func (eb *EventBus) PublishRequestFailed(kind string, seq uint64, err error) {
	data := map[string]interface{}{
		"request": kind,
		"seq":     seq,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventRequestFailed,
		Data: data,
	})
}

// PublishCircuitBreaker publishes a breaker state transition
func (eb *EventBus) PublishCircuitBreaker(state, reason string) {
	eb.Publish(Event{
		Type: EventCircuitBreakerUpdate,
		Data: map[string]interface{}{
			"state":  state,
			"reason": reason,
		},
	})
}

// PublishBacktestRecorded publishes a backtest result persisted to history
func (eb *EventBus) PublishBacktestRecorded(symbol, strategy string, totalReturn float64) {
	eb.Publish(Event{
		Type: EventBacktestRecorded,
		Data: map[string]interface{}{
			"symbol":       symbol,
			"strategy":     strategy,
			"total_return": totalReturn,
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
