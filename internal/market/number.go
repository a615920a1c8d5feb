package market

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric field that tolerates whatever the analysis server emits.
// A JSON number or numeric string decodes to a valid value. null, malformed
// input, NaN and Inf decode to an invalid Number and never to an error.
type Number struct {
	Value float64
	Valid bool
}

// Num wraps v, marking NaN and Inf invalid.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// Float returns the value and whether it is usable.
func (n Number) Float() (float64, bool) {
	return n.Value, n.Valid
}

// Or returns the value, or def when invalid.
func (n Number) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}

	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	s := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = Num(v)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Value, 'f', -1, 64), nil
}
