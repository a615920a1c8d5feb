package market

// Bar is one OHLCV candle. Bars arrive ordered oldest first.
type Bar struct {
	Timestamp Timestamp `json:"timestamp"`
	Open      Number    `json:"open"`
	High      Number    `json:"high"`
	Low       Number    `json:"low"`
	Close     Number    `json:"close"`
	Volume    Number    `json:"volume"`
}
