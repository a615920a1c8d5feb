// Package dashboard runs the event loop that serializes every view-state
// mutation and wires the pull client, push channel and subscription together.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/coordinator"
	"trading-dashboard/internal/events"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/merger"
	"trading-dashboard/internal/subscription"
	"trading-dashboard/internal/viewstate"
)

var (
	ErrAlreadyRunning = errors.New("dashboard already running")
	ErrStopped        = errors.New("dashboard stopped")
)

const (
	defaultRefreshInterval = 60 * time.Second
	defaultQueueSize       = 256
)

// PushChannel is the streaming connection to the analysis server.
type PushChannel interface {
	subscription.Subscriber
	coordinator.Narrator
	SetAnalysisHandler(fn func(market.AnalysisUpdate))
	SetNarrationHandler(fn func(market.Narration))
	SetStatusHandler(fn func(connected bool))
	Start(ctx context.Context) error
	Stop()
}

// Config holds the loop settings
type Config struct {
	Initial         market.Selection
	RefreshInterval time.Duration
	QueueSize       int
	Requests        coordinator.Config
}

// Dashboard owns the view state. All merger, coordinator and subscription
// calls happen on the goroutine running Run.
type Dashboard struct {
	cfg   Config
	store *viewstate.Store
	merge *merger.Merger
	coord *coordinator.Coordinator
	subs  *subscription.Manager
	push  PushChannel
	bus   *events.EventBus

	tasks    chan func()
	stopChan chan struct{}
	running  atomic.Bool
	runCtx   context.Context

	log zerolog.Logger
}

// New wires a dashboard. bus may be nil.
func New(cfg Config, fetcher coordinator.Fetcher, push PushChannel, bus *events.EventBus, logger zerolog.Logger) *Dashboard {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	d := &Dashboard{
		cfg:      cfg,
		push:     push,
		bus:      bus,
		tasks:    make(chan func(), cfg.QueueSize),
		stopChan: make(chan struct{}),
		runCtx:   context.Background(),
		log:      logger.With().Str("component", "dashboard").Logger(),
	}

	store, w := viewstate.New(cfg.Initial, bus)
	d.store = store
	d.merge = merger.New(w, bus, logger)
	d.coord = coordinator.New(cfg.Requests, d.merge, fetcher, push, loopDispatcher{d}, loopScheduler{d}, logger)
	d.subs = subscription.NewManager(cfg.Initial, push, d.selectionChanged, logger)

	push.SetAnalysisHandler(func(u market.AnalysisUpdate) {
		d.post(func() { d.merge.ApplyPush(merger.AnalysisPush(u)) })
	})
	push.SetNarrationHandler(func(n market.Narration) {
		d.post(func() { d.merge.ApplyPush(merger.NarrationPush(n)) })
	})
	push.SetStatusHandler(func(connected bool) {
		d.post(func() { d.connectionChanged(connected) })
	})

	return d
}

// OnBacktestAccepted registers a hook for every backtest that reaches the
// view. Call before Run.
func (d *Dashboard) OnBacktestAccepted(h merger.BacktestHook) {
	d.merge.OnBacktestAccepted(h)
}

// Run starts the push channel, issues the initial refresh and processes
// tasks until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.runCtx = ctx

	if err := d.push.Start(ctx); err != nil {
		d.log.Warn().Err(err).Msg("Push channel failed to start")
	}

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	d.safeRun("start", func() {
		if err := d.subs.Start(); err != nil {
			d.log.Debug().Err(err).Msg("Initial subscribe deferred until connected")
		}
		d.coord.ForceRefresh()
	})

	d.log.Info().
		Str("selection", d.cfg.Initial.String()).
		Dur("refresh_interval", d.cfg.RefreshInterval).
		Msg("Dashboard started")

	for {
		select {
		case <-ctx.Done():
			close(d.stopChan)
			d.push.Stop()
			d.log.Info().Msg("Dashboard stopped")
			return nil

		case fn := <-d.tasks:
			d.safeRun("task", fn)

		case <-ticker.C:
			d.safeRun("refresh_tick", func() { d.coord.TriggerRefresh() })
		}
	}
}

// Snapshot returns the latest committed view state. Safe from any goroutine.
func (d *Dashboard) Snapshot() *viewstate.ViewState {
	return d.store.Snapshot()
}

// Select validates the new selection and queues the switch
func (d *Dashboard) Select(symbol, timeframe string) error {
	sel, err := market.NewSelection(symbol, timeframe)
	if err != nil {
		return err
	}
	return d.post(func() {
		if _, err := d.subs.Select(sel); err != nil {
			d.log.Warn().Err(err).Str("selection", sel.String()).Msg("Subscribe after select failed")
		}
	})
}

func (d *Dashboard) TriggerRefresh() error {
	return d.post(func() { d.coord.TriggerRefresh() })
}

func (d *Dashboard) TriggerAnalyze() error {
	return d.post(d.coord.TriggerAnalyze)
}

// TriggerBacktest queues a backtest. Zero values take the configured defaults.
func (d *Dashboard) TriggerBacktest(params market.BacktestParams) error {
	return d.post(func() { d.coord.TriggerBacktest(params) })
}

func (d *Dashboard) TriggerNarration() error {
	return d.post(d.coord.TriggerNarration)
}

// Flush waits until every task queued before the call has run
func (d *Dashboard) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := d.post(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopChan:
		return ErrStopped
	}
}

// SubscriptionStats reports the push subscription counters
func (d *Dashboard) SubscriptionStats() subscription.Stats {
	return d.subs.Stats()
}

// selectionChanged runs on the loop from inside subs.Select
func (d *Dashboard) selectionChanged(prev, next market.Selection) {
	d.merge.SelectionChanged(next)
	d.coord.ForceRefresh()
}

func (d *Dashboard) connectionChanged(connected bool) {
	if !connected {
		d.merge.SetConnection(viewstate.ConnectionDisconnected)
		return
	}
	if err := d.subs.Resubscribe(); err != nil {
		d.log.Warn().Err(err).Msg("Resubscribe after reconnect failed")
	}
	d.merge.SetConnection(viewstate.ConnectionConnected)
}

// post queues fn for the loop. It fails once the loop has stopped.
func (d *Dashboard) post(fn func()) error {
	select {
	case <-d.stopChan:
		return ErrStopped
	default:
	}
	select {
	case d.tasks <- fn:
		return nil
	case <-d.stopChan:
		return ErrStopped
	}
}

// safeRun keeps a panicking task from taking the loop down
func (d *Dashboard) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s panicked: %v", name, r)
			d.log.Error().Err(err).Msg("Recovered in event loop")
			d.bus.PublishError("dashboard", "event loop task panicked", err)
		}
	}()
	fn()
}

// loopDispatcher runs jobs on their own goroutine and hands results back to the loop
type loopDispatcher struct {
	d *Dashboard
}

func (l loopDispatcher) Go(job coordinator.Job, done func(merger.PullResult)) {
	ctx := l.d.runCtx
	go func() {
		res := job(ctx)
		l.d.post(func() { done(res) })
	}()
}

// loopScheduler fires callbacks on the loop
type loopScheduler struct {
	d *Dashboard
}

func (l loopScheduler) After(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() {
		l.d.post(fn)
	})
}
