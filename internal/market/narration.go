package market

import (
	"bytes"
	"encoding/json"
)

// Narration is the text commentary delivered by a live_narration push.
type Narration struct {
	Symbol       string    `json:"symbol"`
	Timeframe    Timeframe `json:"timeframe,omitempty"`
	Text         string    `json:"text"`
	CurrentPrice Number    `json:"current_price"`
	PriceChange  Number    `json:"price_change"`
	Timestamp    Timestamp `json:"timestamp"`
}

type narrationWire struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Narration json.RawMessage `json:"narration"`
	Timestamp Timestamp       `json:"timestamp"`
}

type narrationBody struct {
	Symbol       string    `json:"symbol"`
	Narration    string    `json:"narration"`
	CurrentPrice Number    `json:"current_price"`
	PriceChange  Number    `json:"price_change"`
	Timestamp    Timestamp `json:"timestamp"`
}

// UnmarshalJSON decodes the push envelope. The inner narration field is either
// an object carrying the text and prices or the bare text.
func (n *Narration) UnmarshalJSON(b []byte) error {
	var wire narrationWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*n = Narration{
		Symbol:    wire.Symbol,
		Timeframe: wire.Timeframe,
		Timestamp: wire.Timestamp,
	}

	raw := bytes.TrimSpace(wire.Narration)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &n.Text)
	case '{':
		var body narrationBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil
		}
		n.Text = body.Narration
		n.CurrentPrice = body.CurrentPrice
		n.PriceChange = body.PriceChange
		if n.Symbol == "" {
			n.Symbol = body.Symbol
		}
		if n.Timestamp.IsZero() {
			n.Timestamp = body.Timestamp
		}
	}
	return nil
}

// MarshalJSON writes the flattened form used by the rendering surface.
func (n Narration) MarshalJSON() ([]byte, error) {
	type flat Narration
	return json.Marshal(flat(n))
}
