package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-dashboard/internal/events"
	"trading-dashboard/internal/market"
)

func result(strategy string, ret float64) market.BacktestResult {
	return market.BacktestResult{Strategy: strategy, TotalReturn: market.Num(ret), TotalTrades: 10}
}

// TestMemoryStoreNewestFirst verifies ordering and id assignment
func TestMemoryStoreNewestFirst(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()
	for _, strat := range []string{"smc_ict", "momentum", "order_block"} {
		if _, err := s.Append(ctx, Entry{Symbol: "EUR/USD", Result: result(strat, 1)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].Result.Strategy != "order_block" || got[1].Result.Strategy != "momentum" {
		t.Errorf("Expected newest first, got %s, %s", got[0].Result.Strategy, got[1].Result.Strategy)
	}
	if got[0].ID != 3 || got[0].Result.ID != 3 {
		t.Errorf("Expected id 3, got %d/%d", got[0].ID, got[0].Result.ID)
	}
	if got[0].RecordedAt.IsZero() {
		t.Error("Expected recorded time to be set")
	}
}

// TestMemoryStoreWraps verifies the ring drops the oldest entries
func TestMemoryStoreWraps(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, Entry{Symbol: "EUR/USD", Result: result("smc_ict", float64(i))})
	}

	got, _ := s.Recent(ctx, 0)
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	want := []int64{5, 4, 3}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("Entry %d: expected id %d, got %d", i, want[i], e.ID)
		}
	}
}

func TestMemoryStoreEmpty(t *testing.T) {
	got, err := NewMemoryStore(5).Recent(context.Background(), 10)
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty history, got %v, %v", got, err)
	}
}

// TestRecorderAppendsAndPublishes verifies Record stores the entry and announces it
func TestRecorderAppendsAndPublishes(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventBacktestRecorded, func(e events.Event) { got <- e })

	rec := NewRecorder(NewMemoryStore(5), bus)
	sel, _ := market.NewSelection("GBP/USD", "4h")
	res := result("fvg_strategy", 4.5)
	rec.Record(sel, &res)
	rec.Wait()

	entries, err := rec.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Symbol != "GBP/USD" || entries[0].Timeframe != market.Timeframe4h {
		t.Fatalf("Unexpected entries %+v", entries)
	}

	select {
	case e := <-got:
		if e.Data["strategy"] != "fvg_strategy" {
			t.Errorf("Expected strategy fvg_strategy, got %v", e.Data["strategy"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for recorded event")
	}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, e Entry) (Entry, error) {
	return Entry{}, errors.New("db down")
}

func (failingStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return nil, nil
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	rec := NewRecorder(failingStore{}, nil)
	res := result("smc_ict", 1)
	rec.Record(market.Selection{Symbol: "EUR/USD", Timeframe: market.Timeframe1h}, &res)
	rec.Record(market.Selection{}, nil)
	rec.Wait()
}
