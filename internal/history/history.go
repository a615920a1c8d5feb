// Package history keeps the backtest results the dashboard has shown.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/database"
	"trading-dashboard/internal/events"
	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
)

const (
	DefaultLimit    = 20
	defaultCapacity = 100
	writeTimeout    = 5 * time.Second
)

// Entry is one recorded backtest
type Entry struct {
	ID         int64                 `json:"id"`
	Symbol     string                `json:"symbol"`
	Timeframe  market.Timeframe      `json:"timeframe"`
	Result     market.BacktestResult `json:"result"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// Store persists entries. Recent returns newest first.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryStore is a fixed-size ring used when no database is configured
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	lastID  int64
	now     func() time.Time
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStore{entries: make([]Entry, capacity), now: time.Now}
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	e.ID = s.lastID
	e.Result.ID = e.ID
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}

	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return e, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}

// PostgresStore writes entries to backtest_history
type PostgresStore struct {
	repo *database.Repository
}

func NewPostgresStore(repo *database.Repository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) (Entry, error) {
	rec := &database.BacktestRecord{
		Symbol:    e.Symbol,
		Timeframe: string(e.Timeframe),
		Result:    e.Result,
	}
	if _, err := s.repo.SaveBacktestResult(ctx, rec); err != nil {
		return Entry{}, err
	}
	e.ID = rec.ID
	e.Result.ID = rec.ID
	e.RecordedAt = rec.CreatedAt
	return e, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	records, err := s.repo.GetRecentBacktestResults(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		out = append(out, Entry{
			ID:         rec.ID,
			Symbol:     rec.Symbol,
			Timeframe:  market.Timeframe(rec.Timeframe),
			Result:     rec.Result,
			RecordedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// Recorder appends accepted backtests off the event loop. Failures are
// logged and never reach the view.
type Recorder struct {
	store Store
	bus   *events.EventBus
	wg    sync.WaitGroup
	log   zerolog.Logger
}

// NewRecorder wraps store. bus may be nil.
func NewRecorder(store Store, bus *events.EventBus) *Recorder {
	return &Recorder{
		store: store,
		bus:   bus,
		log:   logging.WithComponent("history"),
	}
}

// Record schedules one append and returns immediately
func (r *Recorder) Record(sel market.Selection, res *market.BacktestResult) {
	if res == nil {
		return
	}
	e := Entry{Symbol: sel.Symbol, Timeframe: sel.Timeframe, Result: *res}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		saved, err := r.store.Append(ctx, e)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", e.Symbol).Msg("Failed to record backtest")
			return
		}

		r.log.Debug().Int64("id", saved.ID).Str("symbol", saved.Symbol).Msg("Backtest recorded")
		r.bus.PublishBacktestRecorded(saved.Symbol, saved.Result.Strategy, saved.Result.TotalReturn.Or(0))
	}()
}

// Recent lists recorded backtests, newest first
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return r.store.Recent(ctx, limit)
}

// Wait blocks until pending appends finish
func (r *Recorder) Wait() {
	r.wg.Wait()
}
