// Package merger is the single writer of the dashboard view state. It decides
// whether each arriving payload is current enough to apply.
package merger

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/derived"
	"trading-dashboard/internal/events"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/viewstate"
)

// Outcome is what the merger did with a payload.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeFailed         Outcome = "failed"
	OutcomeStaleSelection Outcome = "stale_selection"
	OutcomeSuperseded     Outcome = "superseded"
	OutcomeIgnored        Outcome = "ignored"
)

var ErrEmptyPayload = errors.New("empty payload")

// PullResult is the completion of one issued pull request. Exactly one of the
// payload fields is meaningful for Kind unless Err is set.
type PullResult struct {
	Kind      viewstate.RequestKind
	Selection market.Selection
	Seq       uint64
	Bars      []market.Bar
	Analysis  *market.AnalysisSnapshot
	Backtest  *market.BacktestResult
	Err       error
}

type PushKind string

const (
	PushAnalysis  PushKind = "analysis_update"
	PushNarration PushKind = "live_narration"
)

// PushEvent is an unsolicited update from the push channel.
type PushEvent struct {
	Kind      PushKind
	Symbol    string
	Timeframe market.Timeframe
	Analysis  *market.AnalysisSnapshot
	Narration *market.Narration
}

func AnalysisPush(u market.AnalysisUpdate) PushEvent {
	tf := u.Timeframe
	if tf == "" && u.Analysis != nil {
		tf = u.Analysis.Timeframe
	}
	return PushEvent{Kind: PushAnalysis, Symbol: u.Symbol, Timeframe: tf, Analysis: u.Analysis}
}

func NarrationPush(n market.Narration) PushEvent {
	return PushEvent{Kind: PushNarration, Symbol: n.Symbol, Timeframe: n.Timeframe, Narration: &n}
}

// BacktestHook observes every backtest result that reached the view.
type BacktestHook func(sel market.Selection, res *market.BacktestResult)

// Merger applies pull completions and push events to the view state.
// It must only be used from the event loop goroutine.
type Merger struct {
	w     *viewstate.Writer
	bus   *events.EventBus
	log   zerolog.Logger
	clock func() time.Time

	current      market.Selection
	latestIssued map[viewstate.RequestKind]uint64
	lastApplied  map[viewstate.RequestKind]uint64
	// issuedBefore holds the latest seq issued before the last selection
	// change. Nothing at or below it may touch the view.
	issuedBefore map[viewstate.RequestKind]uint64
	onBacktest   BacktestHook
}

// New takes the store's write capability. bus may be nil.
func New(w *viewstate.Writer, bus *events.EventBus, logger zerolog.Logger) *Merger {
	return &Merger{
		w:            w,
		bus:          bus,
		log:          logger.With().Str("component", "merger").Logger(),
		clock:        time.Now,
		current:      w.Snapshot().Selection,
		latestIssued: make(map[viewstate.RequestKind]uint64),
		lastApplied:  make(map[viewstate.RequestKind]uint64),
		issuedBefore: make(map[viewstate.RequestKind]uint64),
	}
}

// OnBacktestAccepted registers the hook called after a backtest is applied.
func (m *Merger) OnBacktestAccepted(h BacktestHook) {
	m.onBacktest = h
}

// Selection is the selection payloads are checked against.
func (m *Merger) Selection() market.Selection {
	return m.current
}

func (m *Merger) Request(kind viewstate.RequestKind) viewstate.RequestState {
	return m.w.Snapshot().Request(kind)
}

// SelectionChanged switches the current selection. Every data group is
// cleared and every request state returns to idle. Requests still in flight
// before the change are discarded when they arrive, even if the selection
// later switches back.
func (m *Merger) SelectionChanged(sel market.Selection) {
	m.current = sel
	for kind, seq := range m.latestIssued {
		m.issuedBefore[kind] = seq
	}

	groups := append([]viewstate.FieldGroup{viewstate.GroupSelection, viewstate.GroupRequests}, viewstate.DataGroups...)
	now := m.clock()
	m.w.Commit(groups, func(v *viewstate.ViewState) {
		v.Selection = sel
		v.Bars = nil
		v.Analysis = nil
		v.Backtest = nil
		v.Narration = nil
		for _, k := range viewstate.AllRequestKinds {
			v.Requests[k] = viewstate.RequestState{Status: viewstate.StatusIdle, UpdatedAt: now}
		}
	})

	m.log.Info().Str("symbol", sel.Symbol).Str("timeframe", string(sel.Timeframe)).Msg("Selection changed, view reset")
	m.bus.PublishSelectionChanged(sel.Symbol, string(sel.Timeframe))
}

// MarkPending records seq as the latest issued request of kind and shows it
// as pending. It refuses requests issued for a selection that is not current.
func (m *Merger) MarkPending(kind viewstate.RequestKind, sel market.Selection, seq uint64) bool {
	if sel != m.current {
		return false
	}
	if seq > m.latestIssued[kind] {
		m.latestIssued[kind] = seq
	}

	now := m.clock()
	m.w.Commit([]viewstate.FieldGroup{viewstate.GroupRequests}, func(v *viewstate.ViewState) {
		v.Requests[kind] = viewstate.RequestState{Status: viewstate.StatusPending, Seq: seq, UpdatedAt: now}
	})
	metrics.RequestsIssued.WithLabelValues(string(kind)).Inc()
	return true
}

// ApplyPull merges a pull completion.
//
// A result for another selection is dropped. Data is applied only when seq is
// newer than the last applied seq of the kind, so an older response can never
// overwrite a newer one. The request state changes only for the latest issued
// seq. A failure keeps the previously displayed data.
func (m *Merger) ApplyPull(res PullResult) Outcome {
	log := m.log.With().Str("request", string(res.Kind)).Uint64("seq", res.Seq).Logger()

	if res.Selection != m.current || m.predatesSelection(res.Kind, res.Seq) {
		log.Debug().Str("for", res.Selection.String()).Str("current", m.current.String()).Msg("Dropped result for previous selection")
		return m.record(res.Kind, OutcomeStaleSelection)
	}

	if res.Err == nil {
		res.Err = emptyPayload(res)
	}

	if res.Err != nil {
		return m.fail(res.Kind, res.Seq, res.Err, log)
	}

	if res.Seq <= m.lastApplied[res.Kind] {
		log.Debug().Uint64("last_applied", m.lastApplied[res.Kind]).Msg("Dropped out-of-order result")
		return m.record(res.Kind, OutcomeSuperseded)
	}
	m.lastApplied[res.Kind] = res.Seq

	resolves := res.Seq >= m.latestIssued[res.Kind]
	groups := []viewstate.FieldGroup{res.Kind.Group()}
	if resolves {
		groups = append(groups, viewstate.GroupRequests)
	}

	now := m.clock()
	m.w.Commit(groups, func(v *viewstate.ViewState) {
		switch res.Kind {
		case viewstate.RequestRefresh:
			v.Bars = &viewstate.BarsSlice{
				Bars:      res.Bars,
				Summary:   derived.SummarizeBars(res.Bars),
				Seq:       res.Seq,
				UpdatedAt: now,
			}
		case viewstate.RequestAnalyze:
			v.Analysis = &viewstate.AnalysisSlice{
				Snapshot:  res.Analysis,
				Summary:   derived.Summarize(res.Analysis),
				Source:    viewstate.SourcePull,
				Seq:       res.Seq,
				UpdatedAt: now,
			}
		case viewstate.RequestBacktest:
			v.Backtest = &viewstate.BacktestSlice{
				Result:    res.Backtest,
				Summary:   derived.SummarizeBacktest(res.Backtest),
				Seq:       res.Seq,
				UpdatedAt: now,
			}
		}
		if resolves {
			v.Requests[res.Kind] = viewstate.RequestState{Status: viewstate.StatusIdle, Seq: res.Seq, UpdatedAt: now}
		}
	})

	log.Info().Bool("resolved", resolves).Msg("Applied pull result")
	if res.Kind == viewstate.RequestBacktest && m.onBacktest != nil {
		m.onBacktest(m.current, res.Backtest)
	}
	return m.record(res.Kind, OutcomeApplied)
}

// MarkFailed puts a still pending request into the error state. Narration
// uses it for emit failures and timeouts since its result arrives by push.
func (m *Merger) MarkFailed(kind viewstate.RequestKind, sel market.Selection, seq uint64, err error) Outcome {
	log := m.log.With().Str("request", string(kind)).Uint64("seq", seq).Logger()

	if sel != m.current || m.predatesSelection(kind, seq) {
		return m.record(kind, OutcomeStaleSelection)
	}
	rs := m.Request(kind)
	if rs.Status != viewstate.StatusPending || rs.Seq != seq {
		log.Debug().Str("status", string(rs.Status)).Msg("Request already resolved")
		return m.record(kind, OutcomeIgnored)
	}
	return m.fail(kind, seq, err, log)
}

func (m *Merger) predatesSelection(kind viewstate.RequestKind, seq uint64) bool {
	return seq <= m.issuedBefore[kind]
}

func (m *Merger) fail(kind viewstate.RequestKind, seq uint64, err error, log zerolog.Logger) Outcome {
	if seq != m.latestIssued[kind] {
		log.Debug().Err(err).Msg("Dropped failure of superseded request")
		return m.record(kind, OutcomeSuperseded)
	}

	now := m.clock()
	m.w.Commit([]viewstate.FieldGroup{viewstate.GroupRequests}, func(v *viewstate.ViewState) {
		v.Requests[kind] = viewstate.RequestState{
			Status:    viewstate.StatusError,
			Seq:       seq,
			Error:     err.Error(),
			UpdatedAt: now,
		}
	})

	log.Warn().Err(err).Msg("Request failed")
	m.bus.PublishRequestFailed(string(kind), seq, err)
	return m.record(kind, OutcomeFailed)
}

// ApplyPush merges a push event. Events for other instruments are dropped;
// a timeframe, when the event carries one, must match too. Accepted events
// replace their field group wholesale.
func (m *Merger) ApplyPush(ev PushEvent) Outcome {
	kind := string(ev.Kind)

	if (ev.Kind == PushAnalysis && ev.Analysis == nil) || (ev.Kind == PushNarration && ev.Narration == nil) {
		return m.record(viewstate.RequestKind(kind), OutcomeIgnored)
	}
	if !m.matches(ev.Symbol, ev.Timeframe) {
		m.log.Debug().Str("event", kind).Str("symbol", ev.Symbol).Str("current", m.current.String()).Msg("Dropped push for other selection")
		return m.record(viewstate.RequestKind(kind), OutcomeStaleSelection)
	}

	now := m.clock()
	switch ev.Kind {
	case PushAnalysis:
		m.w.Commit([]viewstate.FieldGroup{viewstate.GroupAnalysis}, func(v *viewstate.ViewState) {
			v.Analysis = &viewstate.AnalysisSlice{
				Snapshot:  ev.Analysis,
				Summary:   derived.Summarize(ev.Analysis),
				Source:    viewstate.SourcePush,
				UpdatedAt: now,
			}
		})

	case PushNarration:
		pending := m.Request(viewstate.RequestNarrate)
		resolves := pending.Status == viewstate.StatusPending
		groups := []viewstate.FieldGroup{viewstate.GroupNarration}
		if resolves {
			groups = append(groups, viewstate.GroupRequests)
		}
		m.w.Commit(groups, func(v *viewstate.ViewState) {
			v.Narration = &viewstate.NarrationSlice{
				Narration: ev.Narration,
				Text:      derived.NarrationText(ev.Narration),
				UpdatedAt: now,
			}
			if resolves {
				v.Requests[viewstate.RequestNarrate] = viewstate.RequestState{Status: viewstate.StatusIdle, Seq: pending.Seq, UpdatedAt: now}
			}
		})

	default:
		return m.record(viewstate.RequestKind(kind), OutcomeIgnored)
	}

	m.log.Debug().Str("event", kind).Msg("Applied push event")
	return m.record(viewstate.RequestKind(kind), OutcomeApplied)
}

// SetConnection records the push channel status.
func (m *Merger) SetConnection(status viewstate.ConnectionStatus) {
	if m.w.Snapshot().Connection == status {
		return
	}
	m.w.Commit([]viewstate.FieldGroup{viewstate.GroupConnection}, func(v *viewstate.ViewState) {
		v.Connection = status
	})
	m.log.Info().Str("status", string(status)).Msg("Push channel status")
	m.bus.PublishConnection(string(status))
}

func (m *Merger) matches(symbol string, tf market.Timeframe) bool {
	if market.NormalizeSymbol(symbol) != m.current.Symbol {
		return false
	}
	return tf == "" || tf == m.current.Timeframe
}

func (m *Merger) record(kind viewstate.RequestKind, o Outcome) Outcome {
	metrics.PayloadsTotal.WithLabelValues(string(kind), string(o)).Inc()
	return o
}

func emptyPayload(res PullResult) error {
	switch {
	case res.Kind == viewstate.RequestAnalyze && res.Analysis == nil,
		res.Kind == viewstate.RequestBacktest && res.Backtest == nil:
		return ErrEmptyPayload
	}
	return nil
}
