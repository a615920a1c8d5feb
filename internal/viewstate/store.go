package viewstate

import (
	"sync/atomic"
	"time"

	"trading-dashboard/internal/events"
	"trading-dashboard/internal/market"
)

// Store holds the current ViewState. Reads are lock-free and safe from any
// goroutine.
type Store struct {
	current atomic.Pointer[ViewState]
	bus     *events.EventBus
}

// Writer is the only way to change a Store. It is handed out once by New and
// is not safe for concurrent use.
type Writer struct {
	store *Store
}

// New creates a store seeded with sel and returns its single write capability.
// bus may be nil.
func New(sel market.Selection, bus *events.EventBus) (*Store, *Writer) {
	s := &Store{bus: bus}
	s.current.Store(initialState(sel))
	return s, &Writer{store: s}
}

// Snapshot returns the current immutable state. Callers must not modify it.
func (s *Store) Snapshot() *ViewState {
	return s.current.Load()
}

// Version returns the version of the current state.
func (s *Store) Version() uint64 {
	return s.current.Load().Version
}

// Commit applies mutate to a copy of the current state and publishes it
// atomically. groups names what mutate touched. Readers see either the old or
// the new state, never a mix.
func (w *Writer) Commit(groups []FieldGroup, mutate func(*ViewState)) *ViewState {
	next := w.store.current.Load().clone()
	mutate(next)

	next.Version++
	next.UpdatedAt = time.Now()
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		next.GroupVersions[g] = next.Version
		names = append(names, string(g))
	}

	w.store.current.Store(next)
	w.store.bus.PublishViewStateChanged(next.Version, names)
	return next
}

// Snapshot is a convenience for the writer's owner.
func (w *Writer) Snapshot() *ViewState {
	return w.store.Snapshot()
}
