package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-dashboard/internal/events"
	"trading-dashboard/internal/metrics"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Requests rejected
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

var ErrOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before tripping
	Cooldown         time.Duration `json:"cooldown"`          // Time spent open before a probe
}

// DefaultCircuitBreakerConfig returns safe defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker guards the upstream transport. It opens after a run of
// consecutive failures and lets a single probe through once the cooldown
// has passed.
type CircuitBreaker struct {
	config              *CircuitBreakerConfig
	state               BreakerState
	consecutiveFailures int
	totalFailures       int
	trips               int
	probing             bool
	lastTripTime        time.Time
	tripReason          string
	mu                  sync.RWMutex
	onTrip              func(reason string)
	onReset             func()
	bus                 *events.EventBus
	now                 func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, bus *events.EventBus) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		bus:    bus,
		now:    time.Now,
	}
}

// OnTrip sets callback for when breaker trips
func (cb *CircuitBreaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets callback for when breaker resets
func (cb *CircuitBreaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// Allow reports whether a request may go out. While open it returns an error
// wrapping ErrOpen with the remaining cooldown.
func (cb *CircuitBreaker) Allow() error {
	if !cb.config.Enabled {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastTripTime)
		if elapsed < cb.config.Cooldown {
			remaining := cb.config.Cooldown - elapsed
			return fmt.Errorf("%w, cooldown remaining: %v (reason: %s)",
				ErrOpen, remaining.Round(time.Second), cb.tripReason)
		}

		// Cooldown passed, try half-open
		cb.state = StateHalfOpen
		cb.probing = true
		cb.publish(StateHalfOpen, "cooldown elapsed")
		return nil

	case StateHalfOpen:
		if cb.probing {
			return fmt.Errorf("%w, probe in flight", ErrOpen)
		}
		cb.probing = true
		return nil
	}

	return nil
}

// RecordSuccess closes the breaker and clears the failure run
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.probing = false
	if cb.state == StateClosed {
		return
	}

	cb.state = StateClosed
	cb.tripReason = ""
	if cb.onReset != nil {
		go cb.onReset()
	}
	cb.publish(StateClosed, "probe succeeded")
}

// RecordFailure counts a failed request and trips when the threshold is reached.
// A failed probe reopens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.totalFailures++

	switch {
	case cb.state == StateHalfOpen:
		cb.trip(fmt.Sprintf("probe failed: %v", err))
	case cb.state == StateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold:
		cb.trip(fmt.Sprintf("%d consecutive failures, last: %v", cb.consecutiveFailures, err))
	}
}

// trip opens the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.probing = false
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.trips++
	metrics.CircuitTrips.Inc()

	if cb.onTrip != nil {
		go cb.onTrip(reason)
	}
	cb.publish(StateOpen, reason)
}

func (cb *CircuitBreaker) publish(state BreakerState, reason string) {
	cb.bus.PublishCircuitBreaker(string(state), reason)
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.probing = false
	cb.tripReason = ""
	onReset := cb.onReset
	cb.publish(StateClosed, "manual reset")
	cb.mu.Unlock()

	if onReset != nil {
		go onReset()
	}
}

// GetState returns current breaker state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"enabled":              cb.config.Enabled,
		"state":                string(cb.state),
		"consecutive_failures": cb.consecutiveFailures,
		"total_failures":       cb.totalFailures,
		"trips":                cb.trips,
		"trip_reason":          cb.tripReason,
		"last_trip_time":       cb.lastTripTime,
	}
}

// IsEnabled returns if circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	return cb.config.Enabled
}
