package derived

import (
	"testing"

	"trading-dashboard/internal/market"
)

func TestSummarizeNil(t *testing.T) {
	s := Summarize(nil)
	if s.RSI != Unavailable || s.RSIZone != RSIUnavailable {
		t.Errorf("Expected unavailable rsi, got %s %s", s.RSI, s.RSIZone)
	}
	if s.TopGradeColor != NeutralColor {
		t.Errorf("Expected neutral grade color, got %s", s.TopGradeColor)
	}
	if s.MACDSignal != "Neutral" || s.ADXStrength != "Weak" {
		t.Errorf("Expected display defaults, got %s %s", s.MACDSignal, s.ADXStrength)
	}
}

// TestSummarizeSnapshot verifies display values are derived from each analysis section
func TestSummarizeSnapshot(t *testing.T) {
	snap := &market.AnalysisSnapshot{
		Symbol: "EUR/USD",
		MarketStructure: market.MarketStructure{
			Trend:     market.TrendBearish,
			Structure: "LH/LL",
			Strength:  market.Num(64.4),
		},
		Technical: market.Technical{
			RSI: &market.RSI{Value: market.Num(28.26)},
			ATR: &market.ATR{Value: market.Num(0.00123), Percent: market.Num(0.8)},
		},
		Signals: []market.Signal{
			{Grade: "b", Direction: market.DirectionShort, EntryPrice: market.Num(1.08), RiskReward: market.Num(2), Confidence: market.Num(0.72)},
			{Grade: "S", Direction: market.DirectionLong},
		},
		Patterns: []market.Pattern{{Type: "bearish_engulfing"}},
		SMC: market.SMC{
			OrderBlocks: []market.OrderBlock{{Type: "bearish", Price: market.Num(1.0852)}},
		},
		Prediction: market.Prediction{
			Scenarios: market.Scenarios{Bearish: &market.Scenario{Probability: market.Num(61.2), Target: market.Num(1.079)}},
		},
	}

	s := Summarize(snap)
	if s.TrendLabel != "BEARISH" || s.TrendColor != "#ef4444" {
		t.Errorf("Unexpected trend display %s %s", s.TrendLabel, s.TrendColor)
	}
	if s.Strength != "64%" {
		t.Errorf("Expected strength 64%%, got %s", s.Strength)
	}
	if s.RSI != "28.3" || s.RSIZone != RSIOversold {
		t.Errorf("Expected oversold 28.3, got %s %s", s.RSI, s.RSIZone)
	}
	if s.MACD != Unavailable {
		t.Errorf("Expected missing macd to be unavailable, got %s", s.MACD)
	}
	if s.Volatility != VolatilityNormal {
		t.Errorf("Expected normal volatility, got %s", s.Volatility)
	}
	if s.TopGrade != market.GradeB || s.TopGradeColor != "#3b82f6" {
		t.Errorf("Expected first signal grade B to lead, got %s %s", s.TopGrade, s.TopGradeColor)
	}
	if len(s.Signals) != 2 || s.Signals[0].Confidence != "72%" || s.Signals[0].RiskReward != "2.00" {
		t.Errorf("Unexpected signal rows %+v", s.Signals)
	}
	if s.Signals[1].Entry != Unavailable {
		t.Errorf("Expected missing entry to be unavailable, got %s", s.Signals[1].Entry)
	}
	if len(s.Patterns) != 1 || s.Patterns[0] != "Bearish Engulfing" {
		t.Errorf("Unexpected patterns %v", s.Patterns)
	}
	if len(s.OrderBlocks) != 1 || s.OrderBlocks[0] != "BEARISH @ 1.08520" {
		t.Errorf("Unexpected order blocks %v", s.OrderBlocks)
	}
	if s.Bearish == nil || s.Bearish.Probability != "61.2%" {
		t.Errorf("Unexpected bearish scenario %+v", s.Bearish)
	}
	if s.Bullish != nil {
		t.Errorf("Expected no bullish scenario, got %+v", s.Bullish)
	}
}

func TestSummarizeBars(t *testing.T) {
	s := SummarizeBars(bars(1.2000, 1.2010))
	if s.LastClose != "1.20100" {
		t.Errorf("Expected last close 1.20100, got %s", s.LastClose)
	}
	if s.Change != "+0.00100 (+0.0833%)" {
		t.Errorf("Unexpected change string %q", s.Change)
	}

	one := SummarizeBars(bars(1.2))
	if one.Change != Unavailable || one.Delta.Available {
		t.Errorf("Expected unavailable change for one bar, got %+v", one)
	}
}

func TestSummarizeBacktest(t *testing.T) {
	s := SummarizeBacktest(&market.BacktestResult{
		TotalReturn: market.Num(-3.456),
		WinRate:     market.Num(41.2),
		TotalTrades: 17,
	})
	if s.TotalReturn != "-3.46%" || s.Positive {
		t.Errorf("Unexpected total return %s positive=%v", s.TotalReturn, s.Positive)
	}
	if s.WinRate != "41.2%" {
		t.Errorf("Expected 41.2%%, got %s", s.WinRate)
	}
	if s.SharpeRatio != Unavailable {
		t.Errorf("Expected missing sharpe to be unavailable, got %s", s.SharpeRatio)
	}
}

func TestNarrationText(t *testing.T) {
	if NarrationText(nil) != NoNarration {
		t.Error("Expected fallback for nil narration")
	}
	if NarrationText(&market.Narration{Text: "  "}) != NoNarration {
		t.Error("Expected fallback for blank narration")
	}
	if NarrationText(&market.Narration{Text: "hello"}) != "hello" {
		t.Error("Expected narration text")
	}
}
