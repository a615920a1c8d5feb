package market

import (
	"errors"
	"fmt"
	"strings"
)

// Timeframe is a chart interval understood by the analysis server.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// AllTimeframes lists the supported intervals, shortest first.
var AllTimeframes = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d,
}

var (
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrEmptySymbol      = errors.New("empty symbol")
)

// ParseTimeframe validates s against the supported intervals.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTimeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
}

// NormalizeSymbol upper-cases a pair and restores the '/' separator that URL
// paths carry as '-'.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "/")
}

// Selection is the instrument and interval the dashboard currently displays.
type Selection struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// NewSelection validates and normalizes a symbol/timeframe pair.
func NewSelection(symbol, timeframe string) (Selection, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return Selection{}, ErrEmptySymbol
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Symbol: sym, Timeframe: tf}, nil
}

// Topic is the push subscription key. Updates are keyed by symbol only.
func (s Selection) Topic() string {
	return s.Symbol
}

func (s Selection) IsZero() bool {
	return s.Symbol == "" && s.Timeframe == ""
}

func (s Selection) String() string {
	return s.Symbol + "@" + string(s.Timeframe)
}
