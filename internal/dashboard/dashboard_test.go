package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/coordinator"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/viewstate"
)

var errOffline = errors.New("offline")

type fakePush struct {
	mu          sync.Mutex
	connected   bool
	subscribed  []string
	released    []string
	narrations  []market.Selection
	started     bool
	stopped     bool
	onAnalysis  func(market.AnalysisUpdate)
	onNarration func(market.Narration)
	onStatus    func(bool)
}

func (p *fakePush) Subscribe(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return errOffline
	}
	p.subscribed = append(p.subscribed, topic)
	return nil
}

func (p *fakePush) Unsubscribe(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, topic)
	return nil
}

func (p *fakePush) RequestLiveNarration(sel market.Selection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return errOffline
	}
	p.narrations = append(p.narrations, sel)
	return nil
}

func (p *fakePush) SetAnalysisHandler(fn func(market.AnalysisUpdate)) { p.onAnalysis = fn }
func (p *fakePush) SetNarrationHandler(fn func(market.Narration))     { p.onNarration = fn }
func (p *fakePush) SetStatusHandler(fn func(bool))                    { p.onStatus = fn }

func (p *fakePush) Start(ctx context.Context) error {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return nil
}

func (p *fakePush) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// setConnected flips the link and reports it like the stream client would
func (p *fakePush) setConnected(ok bool) {
	p.mu.Lock()
	p.connected = ok
	p.mu.Unlock()
	p.onStatus(ok)
}

func (p *fakePush) subscribedTopics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subscribed...)
}

type fakeFetcher struct {
	mu            sync.Mutex
	selections    []market.Selection
	panicAnalysis bool
}

func (f *fakeFetcher) MarketData(ctx context.Context, sel market.Selection, limit int) ([]market.Bar, error) {
	f.mu.Lock()
	f.selections = append(f.selections, sel)
	f.mu.Unlock()
	return []market.Bar{{Close: market.Num(1.2000)}, {Close: market.Num(1.2010)}}, nil
}

func (f *fakeFetcher) Analysis(ctx context.Context, sel market.Selection) (*market.AnalysisSnapshot, error) {
	if f.panicAnalysis {
		panic("analysis exploded")
	}
	return &market.AnalysisSnapshot{Symbol: sel.Symbol, Timeframe: sel.Timeframe, CurrentPrice: market.Num(1.2)}, nil
}

func (f *fakeFetcher) Backtest(ctx context.Context, symbol string, params market.BacktestParams) (*market.BacktestResult, error) {
	return &market.BacktestResult{Symbol: symbol, Strategy: params.Strategy, InitialCapital: market.Num(params.InitialCapital)}, nil
}

func (f *fakeFetcher) fetchedFor(sel market.Selection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.selections {
		if s == sel {
			return true
		}
	}
	return false
}

type harness struct {
	d      *Dashboard
	push   *fakePush
	fetch  *fakeFetcher
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func start(t *testing.T, configure func(*Dashboard)) *harness {
	t.Helper()
	initial, _ := market.NewSelection("EUR/USD", "1h")
	h := &harness{push: &fakePush{}, fetch: &fakeFetcher{}, done: make(chan error, 1)}
	h.d = New(Config{
		Initial:         initial,
		RefreshInterval: time.Hour,
		Requests:        coordinator.Config{NarrationTimeout: time.Hour},
	}, h.fetch, h.push, nil, zerolog.Nop())
	if configure != nil {
		configure(h.d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.d.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.d.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

// TestRunLoadsInitialBars verifies startup issues a refresh for the default selection
func TestRunLoadsInitialBars(t *testing.T) {
	h := start(t, nil)

	waitFor(t, "initial bars", func() bool { return h.d.Snapshot().Bars != nil })

	v := h.d.Snapshot()
	if len(v.Bars.Bars) != 2 {
		t.Errorf("Expected 2 bars, got %d", len(v.Bars.Bars))
	}
	if v.Connection != viewstate.ConnectionConnecting {
		t.Errorf("Expected connecting before the channel reports, got %s", v.Connection)
	}
	if _, ok := h.d.subs.Handle(); ok {
		t.Error("Expected no subscription while offline")
	}
}

// TestReconnectResubscribes verifies connect and disconnect reach the view and
// a reconnect restores the subscription
func TestReconnectResubscribes(t *testing.T) {
	h := start(t, nil)
	h.flush(t)

	h.push.setConnected(true)
	waitFor(t, "connected", func() bool { return h.d.Snapshot().Connection == viewstate.ConnectionConnected })
	if topics := h.push.subscribedTopics(); len(topics) != 1 || topics[0] != "EUR/USD" {
		t.Fatalf("Expected one EUR/USD subscription, got %v", topics)
	}

	h.push.setConnected(false)
	waitFor(t, "disconnected", func() bool { return h.d.Snapshot().Connection == viewstate.ConnectionDisconnected })

	h.push.setConnected(true)
	waitFor(t, "reconnected", func() bool { return h.d.Snapshot().Connection == viewstate.ConnectionConnected })
	if topics := h.push.subscribedTopics(); len(topics) != 2 {
		t.Errorf("Expected a second subscribe after reconnect, got %v", topics)
	}
}

// TestSelectSwitchesAndRefetches verifies a selection change resets the view
// and pulls bars for the new selection
func TestSelectSwitchesAndRefetches(t *testing.T) {
	h := start(t, nil)
	h.push.setConnected(true)
	waitFor(t, "initial bars", func() bool { return h.d.Snapshot().Bars != nil })

	if err := h.d.Select("gbp-usd", "4h"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	want, _ := market.NewSelection("GBP/USD", "4h")

	waitFor(t, "new selection bars", func() bool {
		v := h.d.Snapshot()
		return v.Selection == want && v.Bars != nil
	})
	if !h.fetch.fetchedFor(want) {
		t.Error("Expected market data fetched for GBP/USD@4h")
	}
	if h.d.SubscriptionStats().Topic != "GBP/USD" {
		t.Errorf("Expected GBP/USD topic, got %s", h.d.SubscriptionStats().Topic)
	}
}

func TestSelectRejectsInvalidInput(t *testing.T) {
	h := start(t, nil)

	if err := h.d.Select("", "1h"); !errors.Is(err, market.ErrEmptySymbol) {
		t.Errorf("Expected ErrEmptySymbol, got %v", err)
	}
	if err := h.d.Select("EUR/USD", "2h"); !errors.Is(err, market.ErrInvalidTimeframe) {
		t.Errorf("Expected ErrInvalidTimeframe, got %v", err)
	}
}

// TestPushAnalysisFilteredBySelection verifies pushes for other symbols are dropped
func TestPushAnalysisFilteredBySelection(t *testing.T) {
	h := start(t, nil)
	h.flush(t)

	h.push.onAnalysis(market.AnalysisUpdate{Symbol: "GBP/USD", Analysis: &market.AnalysisSnapshot{Symbol: "GBP/USD"}})
	h.flush(t)
	if h.d.Snapshot().Analysis != nil {
		t.Fatal("Expected push for another symbol to be dropped")
	}

	h.push.onAnalysis(market.AnalysisUpdate{Symbol: "EUR/USD", Analysis: &market.AnalysisSnapshot{Symbol: "EUR/USD"}})
	waitFor(t, "push analysis", func() bool { return h.d.Snapshot().Analysis != nil })
	if h.d.Snapshot().Analysis.Source != viewstate.SourcePush {
		t.Errorf("Expected push source, got %s", h.d.Snapshot().Analysis.Source)
	}
}

// TestNarrationRoundTrip verifies a narrate trigger is answered by the push event
func TestNarrationRoundTrip(t *testing.T) {
	h := start(t, nil)
	h.push.setConnected(true)
	h.flush(t)

	if err := h.d.TriggerNarration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "narrate pending", func() bool {
		return h.d.Snapshot().Request(viewstate.RequestNarrate).Status == viewstate.StatusPending
	})

	h.push.onNarration(market.Narration{Symbol: "EUR/USD", Text: "Buyers defend the 1.20 handle."})
	waitFor(t, "narration", func() bool {
		v := h.d.Snapshot()
		return v.Narration != nil && v.Request(viewstate.RequestNarrate).Status == viewstate.StatusIdle
	})
	if got := h.d.Snapshot().Narration.Text; got != "Buyers defend the 1.20 handle." {
		t.Errorf("Unexpected narration text %q", got)
	}
}

// TestBacktestHookReceivesAcceptedResult verifies accepted backtests reach the hook with defaults applied
func TestBacktestHookReceivesAcceptedResult(t *testing.T) {
	got := make(chan *market.BacktestResult, 1)
	h := start(t, func(d *Dashboard) {
		d.OnBacktestAccepted(func(sel market.Selection, res *market.BacktestResult) { got <- res })
	})

	if err := h.d.TriggerBacktest(market.BacktestParams{}); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-got:
		if res.Strategy != "smc_ict" {
			t.Errorf("Expected default strategy smc_ict, got %s", res.Strategy)
		}
		if res.InitialCapital.Value != 10000 {
			t.Errorf("Expected default capital 10000, got %v", res.InitialCapital.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for backtest hook")
	}
}

// TestPanicInRequestKeepsLoopAlive verifies a crashing fetch ends in error and the loop keeps serving
func TestPanicInRequestKeepsLoopAlive(t *testing.T) {
	h := start(t, nil)
	h.fetch.panicAnalysis = true
	h.flush(t)

	h.d.TriggerAnalyze()
	waitFor(t, "analyze error", func() bool {
		return h.d.Snapshot().Request(viewstate.RequestAnalyze).Status == viewstate.StatusError
	})
	h.flush(t)
}

func TestPostAfterStop(t *testing.T) {
	h := start(t, nil)
	h.flush(t)
	h.stop()

	if err := h.d.TriggerRefresh(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
	h.push.mu.Lock()
	stopped := h.push.stopped
	h.push.mu.Unlock()
	if !stopped {
		t.Error("Expected push channel to be stopped")
	}
}
