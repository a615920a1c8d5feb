// Package coordinator issues refresh, analyze, backtest and narrate requests
// and enforces the duplicate-trigger policy of each kind.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/merger"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/viewstate"
)

var (
	ErrNarrationTimeout = errors.New("narration timed out")
	ErrRequestPanicked  = errors.New("request panicked")
)

// Fetcher performs the pull requests against the analysis server.
type Fetcher interface {
	MarketData(ctx context.Context, sel market.Selection, limit int) ([]market.Bar, error)
	Analysis(ctx context.Context, sel market.Selection) (*market.AnalysisSnapshot, error)
	Backtest(ctx context.Context, symbol string, params market.BacktestParams) (*market.BacktestResult, error)
}

// Narrator asks the push channel for a live narration.
type Narrator interface {
	RequestLiveNarration(sel market.Selection) error
}

// Job is the network half of a request. It runs off the event loop.
type Job func(ctx context.Context) merger.PullResult

// Dispatcher runs a job and hands its result to done on the event loop.
type Dispatcher interface {
	Go(job Job, done func(merger.PullResult))
}

// Scheduler runs fn on the event loop after d.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Config holds request defaults.
type Config struct {
	BarLimit         int
	NarrationTimeout time.Duration
	DefaultStrategy  string
	DefaultCapital   float64
}

func (c *Config) applyDefaults() {
	if c.BarLimit <= 0 {
		c.BarLimit = 100
	}
	if c.NarrationTimeout <= 0 {
		c.NarrationTimeout = 30 * time.Second
	}
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = "smc_ict"
	}
	if c.DefaultCapital <= 0 {
		c.DefaultCapital = 10000
	}
}

// Coordinator owns the per-kind sequence counters. Like the merger it is
// confined to the event loop.
type Coordinator struct {
	cfg        Config
	merger     *merger.Merger
	fetcher    Fetcher
	narrator   Narrator
	dispatcher Dispatcher
	scheduler  Scheduler
	log        zerolog.Logger

	seq map[viewstate.RequestKind]uint64
}

func New(cfg Config, m *merger.Merger, f Fetcher, n Narrator, d Dispatcher, s Scheduler, logger zerolog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:        cfg,
		merger:     m,
		fetcher:    f,
		narrator:   n,
		dispatcher: d,
		scheduler:  s,
		log:        logger.With().Str("component", "coordinator").Logger(),
		seq:        make(map[viewstate.RequestKind]uint64),
	}
}

// TriggerRefresh pulls bars unless a refresh is already pending. It reports
// whether a request was issued.
func (c *Coordinator) TriggerRefresh() bool {
	if c.merger.Request(viewstate.RequestRefresh).Status == viewstate.StatusPending {
		metrics.RequestsSuppressed.WithLabelValues(string(viewstate.RequestRefresh)).Inc()
		c.log.Debug().Msg("Refresh already pending, trigger suppressed")
		return false
	}
	c.ForceRefresh()
	return true
}

// ForceRefresh pulls bars regardless of a pending refresh. A selection change
// uses it after the reset.
func (c *Coordinator) ForceRefresh() {
	limit := c.cfg.BarLimit
	c.issue(viewstate.RequestRefresh, func(ctx context.Context, sel market.Selection, res *merger.PullResult) {
		res.Bars, res.Err = c.fetcher.MarketData(ctx, sel, limit)
	})
}

// TriggerAnalyze pulls a fresh analysis. A new trigger supersedes one in flight.
func (c *Coordinator) TriggerAnalyze() {
	c.issue(viewstate.RequestAnalyze, func(ctx context.Context, sel market.Selection, res *merger.PullResult) {
		res.Analysis, res.Err = c.fetcher.Analysis(ctx, sel)
	})
}

// TriggerBacktest runs a backtest for the current symbol. A missing strategy
// or a non-positive capital falls back to the defaults.
func (c *Coordinator) TriggerBacktest(params market.BacktestParams) {
	params = c.BacktestParams(params)
	c.issue(viewstate.RequestBacktest, func(ctx context.Context, sel market.Selection, res *merger.PullResult) {
		res.Backtest, res.Err = c.fetcher.Backtest(ctx, sel.Symbol, params)
	})
}

// BacktestParams fills in defaults.
func (c *Coordinator) BacktestParams(p market.BacktestParams) market.BacktestParams {
	if p.Strategy == "" {
		p.Strategy = c.cfg.DefaultStrategy
	}
	if p.InitialCapital <= 0 {
		p.InitialCapital = c.cfg.DefaultCapital
	}
	return p
}

// TriggerNarration asks the push channel for a narration. The answer arrives
// as a push event. An emit failure or the timeout puts the request in error.
func (c *Coordinator) TriggerNarration() {
	sel := c.merger.Selection()
	seq := c.next(viewstate.RequestNarrate)
	if !c.merger.MarkPending(viewstate.RequestNarrate, sel, seq) {
		return
	}

	log := logging.RequestContext(c.log, string(viewstate.RequestNarrate), seq)
	if err := c.narrator.RequestLiveNarration(sel); err != nil {
		log.Warn().Err(err).Msg("Narration request not sent")
		c.merger.MarkFailed(viewstate.RequestNarrate, sel, seq, err)
		return
	}

	c.scheduler.After(c.cfg.NarrationTimeout, func() {
		c.merger.MarkFailed(viewstate.RequestNarrate, sel, seq, ErrNarrationTimeout)
	})
}

// Seq returns the last sequence number issued for kind.
func (c *Coordinator) Seq(kind viewstate.RequestKind) uint64 {
	return c.seq[kind]
}

func (c *Coordinator) next(kind viewstate.RequestKind) uint64 {
	c.seq[kind]++
	return c.seq[kind]
}

type fetchFunc func(ctx context.Context, sel market.Selection, res *merger.PullResult)

func (c *Coordinator) issue(kind viewstate.RequestKind, fetch fetchFunc) {
	sel := c.merger.Selection()
	seq := c.next(kind)
	if !c.merger.MarkPending(kind, sel, seq) {
		return
	}

	base := logging.SelectionContext(logging.RequestContext(c.log, string(kind), seq), sel.Symbol, string(sel.Timeframe))
	started := time.Now()

	c.dispatcher.Go(func(ctx context.Context) (res merger.PullResult) {
		ctx, log := logging.WithTraceContext(logging.NewContext(ctx, base))
		res = merger.PullResult{Kind: kind, Selection: sel, Seq: seq}
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Request panicked")
				res = merger.PullResult{Kind: kind, Selection: sel, Seq: seq, Err: fmt.Errorf("%w: %v", ErrRequestPanicked, r)}
			}
		}()
		fetch(ctx, sel, &res)
		if res.Err != nil {
			log.Debug().Err(res.Err).Dur("elapsed", time.Since(started)).Msg("Request failed")
		} else {
			log.Debug().Dur("elapsed", time.Since(started)).Msg("Request completed")
		}
		return res
	}, func(res merger.PullResult) {
		c.merger.ApplyPull(res)
	})
}
