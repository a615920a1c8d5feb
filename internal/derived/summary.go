package derived

import (
	"fmt"
	"strings"

	"trading-dashboard/internal/market"
)

const (
	maxSignalRows  = 5
	maxZoneRows    = 5
	maxPatternRows = 6
)

// PriceSummary is the display form of a bar series.
type PriceSummary struct {
	Delta          Delta     `json:"delta"`
	ChartDirection Direction `json:"chart_direction"`
	LastClose      string    `json:"last_close"`
	Change         string    `json:"change"`
	BarCount       int       `json:"bar_count"`
}

// SummarizeBars derives the header price and change from bars.
func SummarizeBars(bars []market.Bar) PriceSummary {
	s := PriceSummary{
		Delta:          PriceDelta(bars),
		ChartDirection: ChartDirection(bars),
		LastClose:      Unavailable,
		Change:         Unavailable,
		BarCount:       len(bars),
	}
	if len(bars) > 0 {
		s.LastClose = FormatNumber(bars[len(bars)-1].Close, 5)
	}
	if s.Delta.Available {
		sign := ""
		if s.Delta.Change >= 0 {
			sign = "+"
		}
		s.Change = fmt.Sprintf("%s%.5f (%s%.4f%%)", sign, s.Delta.Change, sign, s.Delta.ChangePercent)
	}
	return s
}

type SignalRow struct {
	Grade      market.Grade     `json:"grade"`
	GradeColor string           `json:"grade_color"`
	Direction  market.Direction `json:"direction"`
	Entry      string           `json:"entry"`
	StopLoss   string           `json:"stop_loss"`
	TakeProfit string           `json:"take_profit"`
	RiskReward string           `json:"risk_reward"`
	Confidence string           `json:"confidence"`
	Reasoning  string           `json:"reasoning,omitempty"`
}

type ScenarioRow struct {
	Probability string `json:"probability"`
	Target      string `json:"target"`
	Description string `json:"description,omitempty"`
}

// AnalysisSummary is the display form of an analysis snapshot.
type AnalysisSummary struct {
	Trend       market.Trend `json:"trend"`
	TrendLabel  string       `json:"trend_label"`
	TrendColor  string       `json:"trend_color"`
	Structure   string       `json:"structure"`
	Strength    string       `json:"strength"`
	BOSDetected bool         `json:"bos_detected"`
	CHOCH       bool         `json:"choch_detected"`

	RSI         string  `json:"rsi"`
	RSIZone     RSIZone `json:"rsi_zone"`
	MACD        string  `json:"macd"`
	MACDSignal  string  `json:"macd_signal"`
	ADX         string  `json:"adx"`
	ADXStrength string  `json:"adx_strength"`
	ATR         string  `json:"atr"`
	Volatility  string  `json:"volatility"`

	TopGrade      market.Grade `json:"top_grade,omitempty"`
	TopGradeColor string       `json:"top_grade_color"`
	Signals       []SignalRow  `json:"signals"`

	OrderBlocks    []string `json:"order_blocks"`
	FVGs           []string `json:"fvgs"`
	LiquidityZones []string `json:"liquidity_zones"`
	Patterns       []string `json:"patterns"`

	Bullish *ScenarioRow `json:"bullish,omitempty"`
	Neutral *ScenarioRow `json:"neutral,omitempty"`
	Bearish *ScenarioRow `json:"bearish,omitempty"`
}

// Summarize derives every display value of a snapshot. A nil snapshot yields
// an all-unavailable summary.
func Summarize(a *market.AnalysisSnapshot) AnalysisSummary {
	s := AnalysisSummary{
		TrendLabel:    Unavailable,
		TrendColor:    TrendColor(""),
		Structure:     Unavailable,
		Strength:      Unavailable,
		RSI:           Unavailable,
		RSIZone:       RSIUnavailable,
		MACD:          Unavailable,
		MACDSignal:    "Neutral",
		ADX:           Unavailable,
		ADXStrength:   "Weak",
		ATR:           Unavailable,
		Volatility:    Unavailable,
		TopGradeColor: NeutralColor,
	}
	if a == nil {
		return s
	}

	ms := a.MarketStructure
	s.Trend = ms.Trend
	s.TrendLabel = TrendLabel(ms.Trend)
	s.TrendColor = TrendColor(ms.Trend)
	s.Structure = orDefault(ms.Structure, Unavailable)
	s.Strength = StrengthPercent(ms.Strength)
	s.BOSDetected = ms.BOSDetected
	s.CHOCH = ms.CHOCHDetected

	if rsi := a.Technical.RSI; rsi != nil {
		s.RSI = FormatNumber(rsi.Value, 1)
		s.RSIZone = ClassifyRSI(rsi.Value)
	}
	if macd := a.Technical.MACD; macd != nil {
		s.MACD = FormatNumber(macd.Histogram, 6)
		s.MACDSignal = orDefault(macd.Signal, s.MACDSignal)
	}
	if adx := a.Technical.ADX; adx != nil {
		s.ADX = FormatNumber(adx.Value, 1)
		s.ADXStrength = orDefault(adx.TrendStrength, s.ADXStrength)
	}
	if atr := a.Technical.ATR; atr != nil {
		s.ATR = FormatNumber(atr.Value, 6)
		s.Volatility = ClassifyVolatility(atr.Percent)
	}

	s.Signals = signalRows(a.Signals)
	if len(a.Signals) > 0 {
		s.TopGrade = market.ParseGrade(string(a.Signals[0].Grade))
		s.TopGradeColor = GradeColor(s.TopGrade)
	}

	for _, ob := range lastN(a.SMC.OrderBlocks, maxZoneRows) {
		s.OrderBlocks = append(s.OrderBlocks, fmt.Sprintf("%s @ %s", strings.ToUpper(ob.Type), FormatNumber(ob.Price, 5)))
	}
	for _, fvg := range lastN(a.SMC.FVGs, maxZoneRows) {
		s.FVGs = append(s.FVGs, fmt.Sprintf("%s %s-%s", strings.ToUpper(fvg.Type), FormatNumber(fvg.GapBottom, 5), FormatNumber(fvg.GapTop, 5)))
	}
	for _, z := range lastN(a.SMC.LiquidityZones, maxZoneRows) {
		s.LiquidityZones = append(s.LiquidityZones, fmt.Sprintf("%s: %s", z.Type, FormatNumber(z.Level, 5)))
	}
	for _, p := range lastN(a.Patterns, maxPatternRows) {
		s.Patterns = append(s.Patterns, FormatPatternLabel(p.Type))
	}

	s.Bullish = scenarioRow(a.Prediction.Scenarios.Bullish)
	s.Neutral = scenarioRow(a.Prediction.Scenarios.Neutral)
	s.Bearish = scenarioRow(a.Prediction.Scenarios.Bearish)
	return s
}

// signalRows keeps the upstream order, which is most significant first.
func signalRows(signals []market.Signal) []SignalRow {
	n := len(signals)
	if n > maxSignalRows {
		n = maxSignalRows
	}
	rows := make([]SignalRow, 0, n)
	for _, sig := range signals[:n] {
		grade := market.ParseGrade(string(sig.Grade))
		rows = append(rows, SignalRow{
			Grade:      grade,
			GradeColor: GradeColor(grade),
			Direction:  sig.Direction,
			Entry:      FormatNumber(sig.EntryPrice, 5),
			StopLoss:   FormatNumber(sig.StopLoss, 5),
			TakeProfit: FormatNumber(sig.TakeProfit, 5),
			RiskReward: FormatNumber(sig.RiskReward, 2),
			Confidence: ConfidencePercent(sig.Confidence),
			Reasoning:  sig.Reasoning,
		})
	}
	return rows
}

func scenarioRow(sc *market.Scenario) *ScenarioRow {
	if sc == nil {
		return nil
	}
	prob := Unavailable
	if v, ok := sc.Probability.Float(); ok {
		prob = fmt.Sprintf("%.1f%%", v)
	}
	return &ScenarioRow{
		Probability: prob,
		Target:      FormatNumber(sc.Target, 5),
		Description: sc.Description,
	}
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// BacktestSummary is the display form of a backtest result.
type BacktestSummary struct {
	TotalReturn  string `json:"total_return"`
	Positive     bool   `json:"positive"`
	WinRate      string `json:"win_rate"`
	SharpeRatio  string `json:"sharpe_ratio"`
	MaxDrawdown  string `json:"max_drawdown"`
	TotalPips    string `json:"total_pips"`
	ProfitFactor string `json:"profit_factor"`
	FinalCapital string `json:"final_capital"`
	TotalTrades  int    `json:"total_trades"`
}

func SummarizeBacktest(r *market.BacktestResult) BacktestSummary {
	if r == nil {
		return BacktestSummary{
			TotalReturn: Unavailable, WinRate: Unavailable, SharpeRatio: Unavailable,
			MaxDrawdown: Unavailable, TotalPips: Unavailable, ProfitFactor: Unavailable,
			FinalCapital: Unavailable,
		}
	}
	s := BacktestSummary{
		TotalReturn:  Unavailable,
		WinRate:      percentOrUnavailable(r.WinRate, 1),
		SharpeRatio:  FormatNumber(r.SharpeRatio, 2),
		MaxDrawdown:  percentOrUnavailable(r.MaxDrawdown, 2),
		TotalPips:    FormatNumber(r.TotalPips, 1),
		ProfitFactor: FormatNumber(r.ProfitFactor, 2),
		FinalCapital: FormatNumber(r.FinalCapital, 2),
		TotalTrades:  r.TotalTrades,
	}
	if v, ok := r.TotalReturn.Float(); ok {
		s.Positive = v >= 0
		sign := ""
		if s.Positive {
			sign = "+"
		}
		s.TotalReturn = fmt.Sprintf("%s%.2f%%", sign, v)
	}
	return s
}

func percentOrUnavailable(n market.Number, decimals int) string {
	v := FormatNumber(n, decimals)
	if v == Unavailable {
		return v
	}
	return v + "%"
}

// NoNarration is shown when a narration carries no text.
const NoNarration = "No narration available"

func NarrationText(n *market.Narration) string {
	if n == nil {
		return NoNarration
	}
	return orDefault(n.Text, NoNarration)
}
