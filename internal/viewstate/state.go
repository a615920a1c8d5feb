package viewstate

import (
	"time"

	"trading-dashboard/internal/derived"
	"trading-dashboard/internal/market"
)

// FieldGroup is a unit of the ViewState that one commit replaces as a whole.
type FieldGroup string

const (
	GroupSelection  FieldGroup = "selection"
	GroupBars       FieldGroup = "bars"
	GroupAnalysis   FieldGroup = "analysis"
	GroupBacktest   FieldGroup = "backtest"
	GroupNarration  FieldGroup = "narration"
	GroupRequests   FieldGroup = "requests"
	GroupConnection FieldGroup = "connection"
)

// DataGroups are the groups cleared when the selection changes.
var DataGroups = []FieldGroup{GroupBars, GroupAnalysis, GroupBacktest, GroupNarration}

// RequestKind identifies one class of pull work.
type RequestKind string

const (
	RequestRefresh  RequestKind = "refresh"
	RequestAnalyze  RequestKind = "analyze"
	RequestBacktest RequestKind = "backtest"
	RequestNarrate  RequestKind = "narrate"
)

var AllRequestKinds = []RequestKind{RequestRefresh, RequestAnalyze, RequestBacktest, RequestNarrate}

// Group is the data group a request kind writes.
func (k RequestKind) Group() FieldGroup {
	switch k {
	case RequestRefresh:
		return GroupBars
	case RequestAnalyze:
		return GroupAnalysis
	case RequestBacktest:
		return GroupBacktest
	default:
		return GroupNarration
	}
}

type RequestStatus string

const (
	StatusIdle    RequestStatus = "idle"
	StatusPending RequestStatus = "pending"
	StatusError   RequestStatus = "error"
)

// RequestState tracks the latest issued request of one kind.
type RequestState struct {
	Status    RequestStatus `json:"status"`
	Seq       uint64        `json:"seq"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Source tells where an analysis snapshot came from.
type Source string

const (
	SourcePull Source = "pull"
	SourcePush Source = "push"
)

type BarsSlice struct {
	Bars      []market.Bar         `json:"bars"`
	Summary   derived.PriceSummary `json:"summary"`
	Seq       uint64               `json:"seq"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type AnalysisSlice struct {
	Snapshot  *market.AnalysisSnapshot `json:"snapshot"`
	Summary   derived.AnalysisSummary  `json:"summary"`
	Source    Source                   `json:"source"`
	Seq       uint64                   `json:"seq,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

type BacktestSlice struct {
	Result    *market.BacktestResult  `json:"result"`
	Summary   derived.BacktestSummary `json:"summary"`
	Seq       uint64                  `json:"seq"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type NarrationSlice struct {
	Narration *market.Narration `json:"narration"`
	Text      string            `json:"text"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ViewState is one immutable snapshot of everything the dashboard displays.
// A nil slice means no data has arrived for the current selection.
type ViewState struct {
	Version       uint64                       `json:"version"`
	Selection     market.Selection             `json:"selection"`
	Bars          *BarsSlice                   `json:"bars"`
	Analysis      *AnalysisSlice               `json:"analysis"`
	Backtest      *BacktestSlice               `json:"backtest"`
	Narration     *NarrationSlice              `json:"narration"`
	Requests      map[RequestKind]RequestState `json:"requests"`
	Connection    ConnectionStatus             `json:"connection"`
	GroupVersions map[FieldGroup]uint64        `json:"group_versions"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

func initialState(sel market.Selection) *ViewState {
	v := &ViewState{
		Selection:     sel,
		Requests:      make(map[RequestKind]RequestState, len(AllRequestKinds)),
		Connection:    ConnectionConnecting,
		GroupVersions: make(map[FieldGroup]uint64),
		UpdatedAt:     time.Now(),
	}
	for _, k := range AllRequestKinds {
		v.Requests[k] = RequestState{Status: StatusIdle}
	}
	return v
}

// Request returns the state of kind, idle when never issued.
func (v *ViewState) Request(kind RequestKind) RequestState {
	if rs, ok := v.Requests[kind]; ok {
		return rs
	}
	return RequestState{Status: StatusIdle}
}

// Enabled reports whether the affordance for kind can be used, which is
// whenever the kind is not pending.
func (v *ViewState) Enabled(kind RequestKind) bool {
	return v.Request(kind).Status != StatusPending
}

// clone copies the maps so the source snapshot stays untouched. Slice structs
// are shared because commits replace them rather than edit them.
func (v *ViewState) clone() *ViewState {
	next := *v
	next.Requests = make(map[RequestKind]RequestState, len(v.Requests))
	for k, rs := range v.Requests {
		next.Requests[k] = rs
	}
	next.GroupVersions = make(map[FieldGroup]uint64, len(v.GroupVersions))
	for g, ver := range v.GroupVersions {
		next.GroupVersions[g] = ver
	}
	return &next
}
