package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decimal is an optional number that decodes from a JSON number, a numeric
// string ("5.00") or null. Valid is false for null, "" and absent values.
type Decimal struct {
	Value float64
	Valid bool
}

// NewDecimal returns a valid Decimal
func NewDecimal(v float64) Decimal {
	return Decimal{Value: v, Valid: true}
}

// Present reports whether the value is set and non-zero
func (d Decimal) Present() bool {
	return d.Valid && d.Value != 0
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Decimal{}
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*d = Decimal{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %s: %w", string(data), err)
	}
	*d = Decimal{Value: v, Valid: true}
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(d.Value, 'f', -1, 64)), nil
}
