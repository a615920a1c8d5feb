package subscription

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/market"
)

// Subscriber is the push channel side of a subscription.
type Subscriber interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

// ChangeHook runs after the selection switched. It clears stale view data and
// triggers a refresh.
type ChangeHook func(prev, next market.Selection)

// Stats tracks subscription statistics
type Stats struct {
	Topic                string    `json:"topic"`
	Subscribed           bool      `json:"subscribed"`
	Subscribes           int64     `json:"subscribes"`
	Unsubscribes         int64     `json:"unsubscribes"`
	SubscriptionFailures int64     `json:"subscription_failures"`
	SelectionChanges     int64     `json:"selection_changes"`
	LastChange           time.Time `json:"last_change"`
}

// Manager owns the current selection and the single push subscription that
// serves it. The topic is the symbol, so a timeframe-only change keeps the
// subscription and only the change hook runs.
type Manager struct {
	mu sync.RWMutex

	selection market.Selection
	handle    string // subscribed topic, empty when none

	subscriber Subscriber
	onChange   ChangeHook
	log        zerolog.Logger

	subscribes       int64
	unsubscribes     int64
	failures         int64
	selectionChanges int64
	lastChange       time.Time
}

// NewManager creates a manager for the initial selection. Nothing is
// subscribed until Start.
func NewManager(initial market.Selection, subscriber Subscriber, onChange ChangeHook, logger zerolog.Logger) *Manager {
	return &Manager{
		selection:  initial,
		subscriber: subscriber,
		onChange:   onChange,
		log:        logger.With().Str("component", "subscription").Logger(),
	}
}

// Start subscribes to the initial selection's topic. A failure leaves no
// handle; Resubscribe repairs it once the channel connects.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeLocked(m.selection.Topic())
}

// Select switches to sel. An identical selection is a no-op and reports false.
// Otherwise the old topic is released when the topic changes, the selection
// is replaced, the new topic is subscribed, and the change hook runs even if
// the subscribe failed. The returned error is informational.
func (m *Manager) Select(sel market.Selection) (bool, error) {
	m.mu.Lock()
	if sel == m.selection {
		m.mu.Unlock()
		return false, nil
	}

	prev := m.selection
	topic := sel.Topic()

	if m.handle != "" && m.handle != topic {
		old := m.handle
		if err := m.subscriber.Unsubscribe(old); err != nil {
			m.log.Warn().Err(err).Str("topic", old).Msg("Unsubscribe failed")
		} else {
			m.unsubscribes++
		}
		// Stray events for the old topic are filtered by the merger.
		m.handle = ""
	}

	m.selection = sel
	m.selectionChanges++
	m.lastChange = time.Now()

	var subErr error
	if m.handle != topic {
		subErr = m.subscribeLocked(topic)
	}
	hook := m.onChange
	m.mu.Unlock()

	m.log.Info().Str("from", prev.String()).Str("to", sel.String()).Msg("Selection switched")
	if hook != nil {
		hook(prev, sel)
	}
	return true, subErr
}

// Resubscribe subscribes the current topic again. It runs after the push
// channel reconnects, since the server forgets subscriptions on disconnect.
func (m *Manager) Resubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = ""
	return m.subscribeLocked(m.selection.Topic())
}

func (m *Manager) subscribeLocked(topic string) error {
	if err := m.subscriber.Subscribe(topic); err != nil {
		m.failures++
		m.handle = ""
		m.log.Warn().Err(err).Str("topic", topic).Msg("Subscribe failed")
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.subscribes++
	m.handle = topic
	m.log.Debug().Str("topic", topic).Msg("Subscribed")
	return nil
}

// Current returns the current selection
func (m *Manager) Current() market.Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selection
}

// Handle returns the subscribed topic, if any
func (m *Manager) Handle() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle, m.handle != ""
}

// Stats returns subscription statistics
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Topic:                m.handle,
		Subscribed:           m.handle != "",
		Subscribes:           m.subscribes,
		Unsubscribes:         m.unsubscribes,
		SubscriptionFailures: m.failures,
		SelectionChanges:     m.selectionChanges,
		LastChange:           m.lastChange,
	}
}
