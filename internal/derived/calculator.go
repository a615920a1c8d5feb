// Package derived computes display-ready metrics from market payloads. Every
// function is pure and total: absent or malformed input yields Unavailable.
package derived

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"trading-dashboard/internal/market"
)

// Unavailable is rendered wherever a value cannot be derived.
const Unavailable = "--"

// Direction of a price move.
type Direction string

const (
	DirectionUp          Direction = "up"
	DirectionDown        Direction = "down"
	DirectionUnavailable Direction = "unavailable"
)

// Delta is the move between the last two closes.
type Delta struct {
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Direction     Direction `json:"direction"`
	Available     bool      `json:"available"`
}

var unavailableDelta = Delta{Direction: DirectionUnavailable}

// PriceDelta compares the last close with the one before it. A flat move
// counts as up.
func PriceDelta(bars []market.Bar) Delta {
	if len(bars) < 2 {
		return unavailableDelta
	}
	last, ok := bars[len(bars)-1].Close.Float()
	if !ok {
		return unavailableDelta
	}
	prev, ok := bars[len(bars)-2].Close.Float()
	if !ok || prev == 0 {
		return unavailableDelta
	}

	change := last - prev
	dir := DirectionUp
	if change < 0 {
		dir = DirectionDown
	}
	return Delta{
		Change:        change,
		ChangePercent: change / prev * 100,
		Direction:     dir,
		Available:     true,
	}
}

// ChartDirection compares the first and last close of the series. It picks the
// chart line color.
func ChartDirection(bars []market.Bar) Direction {
	if len(bars) < 2 {
		return DirectionUnavailable
	}
	first, ok := bars[0].Close.Float()
	if !ok {
		return DirectionUnavailable
	}
	last, ok := bars[len(bars)-1].Close.Float()
	if !ok {
		return DirectionUnavailable
	}
	if last >= first {
		return DirectionUp
	}
	return DirectionDown
}

// RSIZone classifies an RSI reading.
type RSIZone string

const (
	RSIOverbought  RSIZone = "overbought"
	RSIOversold    RSIZone = "oversold"
	RSINeutral     RSIZone = "neutral"
	RSIUnavailable RSIZone = "unavailable"
)

const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

func ClassifyRSI(rsi market.Number) RSIZone {
	v, ok := rsi.Float()
	switch {
	case !ok:
		return RSIUnavailable
	case v > rsiOverbought:
		return RSIOverbought
	case v < rsiOversold:
		return RSIOversold
	default:
		return RSINeutral
	}
}

// NeutralColor is used for unknown grades and missing values.
const NeutralColor = "#9ca3af"

var gradeColors = map[market.Grade]string{
	market.GradeS: "#8b5cf6",
	market.GradeA: "#10b981",
	market.GradeB: "#3b82f6",
	market.GradeC: "#f59e0b",
	market.GradeD: "#6b7280",
	market.GradeE: "#ef4444",
}

// GradeColor maps a grade to its color token.
func GradeColor(g market.Grade) string {
	if c, ok := gradeColors[market.ParseGrade(string(g))]; ok {
		return c
	}
	return NeutralColor
}

const (
	colorBullish = "#10b981"
	colorBearish = "#ef4444"
	colorRanging = "#f59e0b"
)

func TrendColor(t market.Trend) string {
	switch market.Trend(strings.ToLower(string(t))) {
	case market.TrendBullish:
		return colorBullish
	case market.TrendBearish:
		return colorBearish
	default:
		return colorRanging
	}
}

// TrendLabel upper-cases the trend for display.
func TrendLabel(t market.Trend) string {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return Unavailable
	}
	return strings.ToUpper(s)
}

// FormatPatternLabel turns "bullish_engulfing" into "Bullish Engulfing".
func FormatPatternLabel(patternType string) string {
	words := strings.Split(patternType, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Volatility bands for atr.percent.
const (
	VolatilityHigh   = "High"
	VolatilityNormal = "Normal"
	VolatilityLow    = "Low"
)

func ClassifyVolatility(atrPercent market.Number) string {
	v, ok := atrPercent.Float()
	switch {
	case !ok:
		return Unavailable
	case v > 1.5:
		return VolatilityHigh
	case v > 0.5:
		return VolatilityNormal
	default:
		return VolatilityLow
	}
}

// FormatNumber renders n with the given decimals, or Unavailable.
func FormatNumber(n market.Number, decimals int) string {
	v, ok := n.Float()
	if !ok {
		return Unavailable
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

// StrengthPercent renders a 0-100 strength as "NN%".
func StrengthPercent(n market.Number) string {
	v, ok := n.Float()
	if !ok {
		return Unavailable
	}
	return fmt.Sprintf("%.0f%%", v)
}

// ConfidencePercent renders a 0-1 confidence as "NN%".
func ConfidencePercent(n market.Number) string {
	v, ok := n.Float()
	if !ok {
		return Unavailable
	}
	return fmt.Sprintf("%.0f%%", v*100)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
