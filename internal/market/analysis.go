package market

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Trend is the market structure bias reported by the analysis server.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendRanging Trend = "ranging"
	TrendNeutral Trend = "neutral"
)

// Direction is the side of a trade signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Grade is the signal quality letter, S best and E worst.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// AllGrades lists the grades from best to worst.
var AllGrades = []Grade{GradeS, GradeA, GradeB, GradeC, GradeD, GradeE}

var gradeRank = map[Grade]int{
	GradeS: 6,
	GradeA: 5,
	GradeB: 4,
	GradeC: 3,
	GradeD: 2,
	GradeE: 1,
}

// ParseGrade upper-cases s. The result may still be unknown.
func ParseGrade(s string) Grade {
	return Grade(strings.ToUpper(strings.TrimSpace(s)))
}

// Rank orders grades S > A > B > C > D > E. Unknown grades rank 0.
func (g Grade) Rank() int {
	return gradeRank[g]
}

func (g Grade) Valid() bool {
	return g.Rank() > 0
}

type SwingPoint struct {
	Index     int    `json:"index"`
	Price     Number `json:"price"`
	Timestamp string `json:"timestamp,omitempty"`
}

type MarketStructure struct {
	Trend         Trend        `json:"trend"`
	Structure     string       `json:"structure"`
	Strength      Number       `json:"strength"`
	BOSDetected   bool         `json:"bos_detected"`
	CHOCHDetected bool         `json:"choch_detected"`
	SwingHighs    []SwingPoint `json:"swing_highs,omitempty"`
	SwingLows     []SwingPoint `json:"swing_lows,omitempty"`
}

type RSI struct {
	Value      Number `json:"value"`
	PrevValue  Number `json:"prev_value"`
	Signal     string `json:"signal"`
	Divergence string `json:"divergence,omitempty"`
}

type MACD struct {
	Value      Number `json:"value"`
	SignalLine Number `json:"signal_line"`
	Histogram  Number `json:"histogram"`
	Signal     string `json:"signal"`
	Crossover  string `json:"crossover,omitempty"`
}

type ADX struct {
	Value         Number `json:"value"`
	PlusDI        Number `json:"plus_di"`
	MinusDI       Number `json:"minus_di"`
	TrendStrength string `json:"trend_strength"`
}

type ATR struct {
	Value   Number `json:"value"`
	Percent Number `json:"percent"`
}

// Each indicator accepts either its object form or a bare reading such as
// "rsi": 55, which fills Value. Malformed input decodes to the zero value.

func (r *RSI) UnmarshalJSON(b []byte) error {
	type plain RSI
	*r = RSI(decodeIndicator(b, func(p *plain) *Number { return &p.Value }))
	return nil
}

func (m *MACD) UnmarshalJSON(b []byte) error {
	type plain MACD
	*m = MACD(decodeIndicator(b, func(p *plain) *Number { return &p.Value }))
	return nil
}

func (a *ADX) UnmarshalJSON(b []byte) error {
	type plain ADX
	*a = ADX(decodeIndicator(b, func(p *plain) *Number { return &p.Value }))
	return nil
}

func (a *ATR) UnmarshalJSON(b []byte) error {
	type plain ATR
	*a = ATR(decodeIndicator(b, func(p *plain) *Number { return &p.Value }))
	return nil
}

func decodeIndicator[T any](b []byte, value func(*T) *Number) T {
	var out T
	raw := bytes.TrimSpace(b)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			var zero T
			return zero
		}
		return out
	}
	_ = value(&out).UnmarshalJSON(raw)
	return out
}

// Technical holds the indicator readings. Each indicator may be absent.
type Technical struct {
	RSI  *RSI  `json:"rsi,omitempty"`
	MACD *MACD `json:"macd,omitempty"`
	ADX  *ADX  `json:"adx,omitempty"`
	ATR  *ATR  `json:"atr,omitempty"`
}

type OrderBlock struct {
	Type        string `json:"type"`
	Price       Number `json:"price"`
	High        Number `json:"high"`
	Low         Number `json:"low"`
	Strength    string `json:"strength"`
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type FairValueGap struct {
	Type        string `json:"type"`
	GapTop      Number `json:"gap_top"`
	GapBottom   Number `json:"gap_bottom"`
	GapSize     Number `json:"gap_size"`
	Filled      bool   `json:"filled"`
	Description string `json:"description,omitempty"`
}

type LiquidityZone struct {
	Type        string `json:"type"`
	Level       Number `json:"level"`
	Description string `json:"description,omitempty"`
}

// SMC holds the smart-money structure findings.
type SMC struct {
	OrderBlocks    []OrderBlock    `json:"order_blocks,omitempty"`
	FVGs           []FairValueGap  `json:"fvgs,omitempty"`
	LiquidityZones []LiquidityZone `json:"liquidity_zones,omitempty"`
}

type Pattern struct {
	Type        string `json:"type"`
	Direction   string `json:"direction"`
	Strength    string `json:"strength"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type Regime struct {
	Type        string `json:"type"`
	Volatility  string `json:"volatility"`
	Description string `json:"description,omitempty"`
}

// Signal is a graded trade idea. RiskReward is taken as reported.
type Signal struct {
	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Direction  Direction `json:"direction"`
	Grade      Grade     `json:"grade"`
	Confidence Number    `json:"confidence"`
	Score      Number    `json:"score"`
	EntryPrice Number    `json:"entry_price"`
	StopLoss   Number    `json:"stop_loss"`
	TakeProfit Number    `json:"take_profit"`
	RiskReward Number    `json:"risk_reward"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
}

// Scenario is one predicted outcome. Probability is a percentage.
type Scenario struct {
	Probability Number `json:"probability"`
	Target      Number `json:"target"`
	Description string `json:"description,omitempty"`
}

type Scenarios struct {
	Bullish *Scenario `json:"bullish,omitempty"`
	Neutral *Scenario `json:"neutral,omitempty"`
	Bearish *Scenario `json:"bearish,omitempty"`
}

type Prediction struct {
	MedianTarget Number    `json:"median_target"`
	UpperBound   Number    `json:"upper_bound"`
	LowerBound   Number    `json:"lower_bound"`
	Scenarios    Scenarios `json:"scenarios"`
	Timeframe    string    `json:"timeframe,omitempty"`
	Confidence   Number    `json:"confidence"`
}

// AnalysisSnapshot is one complete analysis of an instrument. Snapshots are
// replaced wholesale and never mutated after decoding.
type AnalysisSnapshot struct {
	Symbol          string          `json:"symbol"`
	Timeframe       Timeframe       `json:"timeframe,omitempty"`
	CurrentPrice    Number          `json:"current_price"`
	PriceChange     Number          `json:"price_change"`
	PriceChangePct  Number          `json:"price_change_pct"`
	Technical       Technical       `json:"technical"`
	SMC             SMC             `json:"smc"`
	Patterns        []Pattern       `json:"patterns,omitempty"`
	MarketStructure MarketStructure `json:"market_structure"`
	Regime          Regime          `json:"regime"`
	Signals         []Signal        `json:"signals,omitempty"`
	Prediction      Prediction      `json:"prediction"`
	Timestamp       Timestamp       `json:"timestamp"`
}

// AnalysisUpdate is the analysis_update push payload.
type AnalysisUpdate struct {
	Symbol    string            `json:"symbol"`
	Timeframe Timeframe         `json:"timeframe,omitempty"`
	Analysis  *AnalysisSnapshot `json:"analysis"`
	Timestamp Timestamp         `json:"timestamp"`
}
