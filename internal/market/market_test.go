package market

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in      string
		want    Timeframe
		wantErr bool
	}{
		{"1h", Timeframe1h, false},
		{" 4H ", Timeframe4h, false},
		{"15m", Timeframe15m, false},
		{"1d", Timeframe1d, false},
		{"2h", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeframe(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimeframe) {
					t.Fatalf("Expected ErrInvalidTimeframe, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewSelectionNormalizes(t *testing.T) {
	sel, err := NewSelection(" eur-usd ", "1H")
	if err != nil {
		t.Fatalf("NewSelection failed: %v", err)
	}
	if sel.Symbol != "EUR/USD" {
		t.Errorf("Expected EUR/USD, got %s", sel.Symbol)
	}
	if sel.Topic() != "EUR/USD" {
		t.Errorf("Expected topic to be the symbol, got %s", sel.Topic())
	}
	if sel.String() != "EUR/USD@1h" {
		t.Errorf("Expected EUR/USD@1h, got %s", sel.String())
	}

	if _, err := NewSelection("  ", "1h"); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("Expected ErrEmptySymbol, got %v", err)
	}
}

// TestNumberTolerantDecoding verifies malformed numeric fields never fail decoding
func TestNumberTolerantDecoding(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValid bool
		wantValue float64
	}{
		{"number", `1.2345`, true, 1.2345},
		{"numeric string", `"65.5"`, true, 65.5},
		{"null", `null`, false, 0},
		{"garbage string", `"n/a"`, false, 0},
		{"NaN string", `"NaN"`, false, 0},
		{"Inf string", `"Infinity"`, false, 0},
		{"object", `{"x": 1}`, false, 0},
		{"bool", `true`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var holder struct {
				V Number `json:"v"`
			}
			if err := json.Unmarshal([]byte(`{"v": `+tt.raw+`}`), &holder); err != nil {
				t.Fatalf("Expected no decode error, got %v", err)
			}
			if holder.V.Valid != tt.wantValid {
				t.Fatalf("Expected valid=%v, got %v", tt.wantValid, holder.V.Valid)
			}
			if tt.wantValid && holder.V.Value != tt.wantValue {
				t.Errorf("Expected %f, got %f", tt.wantValue, holder.V.Value)
			}
		})
	}
}

func TestNumberMarshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}{A: Num(1.5), B: Number{}})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":1.5,"b":null}` {
		t.Errorf("Unexpected encoding: %s", out)
	}
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
	}{
		{"rfc3339", `"2024-03-01T12:30:00Z"`},
		{"iso without zone", `"2024-03-01T12:30:00"`},
		{"iso with fraction", `"2024-03-01T12:30:00.000000"`},
		{"space separated", `"2024-03-01 12:30:00"`},
		{"epoch millis", `1709296200000`},
		{"epoch millis string", `"1709296200000"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.raw), &ts); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !ts.Equal(want) {
				t.Errorf("Expected %v, got %v", want, ts.Time)
			}
		})
	}

	var bad Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &bad); err != nil {
		t.Fatalf("Expected tolerant decoding, got %v", err)
	}
	if !bad.IsZero() {
		t.Errorf("Expected zero time for garbage, got %v", bad.Time)
	}
}

func TestGradeRank(t *testing.T) {
	for i := 1; i < len(AllGrades); i++ {
		if AllGrades[i-1].Rank() <= AllGrades[i].Rank() {
			t.Errorf("Expected %s to outrank %s", AllGrades[i-1], AllGrades[i])
		}
	}
	if ParseGrade("a") != GradeA {
		t.Errorf("Expected ParseGrade to upper-case")
	}
	if Grade("Z").Valid() {
		t.Error("Expected Z to be invalid")
	}
}

// TestDecodeAnalysisPartialPayload verifies missing optional fields decode cleanly
func TestDecodeAnalysisPartialPayload(t *testing.T) {
	raw := `{
		"symbol": "EUR/USD",
		"current_price": "1.0850",
		"technical": {"rsi": {"value": 72.4, "signal": "overbought"}},
		"market_structure": {"trend": "bullish", "strength": null, "bos_detected": true},
		"signals": [{"grade": "A", "direction": "long", "entry_price": 1.085, "risk_reward": 2.5}],
		"timestamp": "2024-03-01T12:30:00"
	}`

	var snap AnalysisSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v, ok := snap.CurrentPrice.Float(); !ok || v != 1.085 {
		t.Errorf("Expected current price 1.085, got %v %v", v, ok)
	}
	if snap.Technical.RSI == nil || snap.Technical.RSI.Value.Or(0) != 72.4 {
		t.Errorf("Expected rsi 72.4, got %+v", snap.Technical.RSI)
	}
	if snap.Technical.MACD != nil {
		t.Errorf("Expected absent macd, got %+v", snap.Technical.MACD)
	}
	if snap.MarketStructure.Strength.Valid {
		t.Error("Expected null strength to be invalid")
	}
	if len(snap.Signals) != 1 || snap.Signals[0].Grade != GradeA {
		t.Fatalf("Expected one grade A signal, got %+v", snap.Signals)
	}
	if snap.Signals[0].RiskReward.Or(0) != 2.5 {
		t.Errorf("Expected risk reward 2.5, got %v", snap.Signals[0].RiskReward)
	}
}

// TestIndicatorsDecodeBareReadings verifies scalar indicators fill Value
// and malformed ones do not fail the snapshot
func TestIndicatorsDecodeBareReadings(t *testing.T) {
	raw := `{
		"symbol": "EUR/USD",
		"technical": {"rsi": 55, "macd": "0.0012", "adx": [1, 2], "atr": {"value": "oops", "percent": 0.4}}
	}`

	var snap AnalysisSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	tech := snap.Technical
	if tech.RSI == nil || tech.RSI.Value.Or(0) != 55 {
		t.Errorf("Expected rsi 55, got %+v", tech.RSI)
	}
	if tech.MACD == nil || tech.MACD.Value.Or(0) != 0.0012 {
		t.Errorf("Expected macd 0.0012, got %+v", tech.MACD)
	}
	if tech.ADX == nil || tech.ADX.Value.Valid {
		t.Errorf("Expected empty adx for an array, got %+v", tech.ADX)
	}
	if tech.ATR == nil || tech.ATR.Value.Valid || tech.ATR.Percent.Or(0) != 0.4 {
		t.Errorf("Expected atr percent 0.4 with invalid value, got %+v", tech.ATR)
	}
}

func TestNarrationDecodesObjectAndString(t *testing.T) {
	obj := `{"symbol": "EUR/USD", "narration": {"narration": "Price is ranging", "current_price": 1.08, "price_change": -0.0002}, "timestamp": "2024-03-01T12:30:00"}`
	var n Narration
	if err := json.Unmarshal([]byte(obj), &n); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n.Text != "Price is ranging" {
		t.Errorf("Expected narration text, got %q", n.Text)
	}
	if n.CurrentPrice.Or(0) != 1.08 {
		t.Errorf("Expected current price 1.08, got %v", n.CurrentPrice)
	}

	str := `{"symbol": "GBP/USD", "narration": "plain text"}`
	var s Narration
	if err := json.Unmarshal([]byte(str), &s); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.Text != "plain text" || s.Symbol != "GBP/USD" {
		t.Errorf("Unexpected narration %+v", s)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var flat map[string]interface{}
	if err := json.Unmarshal(out, &flat); err != nil {
		t.Fatal(err)
	}
	if flat["text"] != "plain text" {
		t.Errorf("Expected flattened text field, got %s", out)
	}
}
