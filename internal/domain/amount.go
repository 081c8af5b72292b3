package domain

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value decoded leniently from the backend.
//
// JSON numbers and numeric strings parse into Decimal. Anything else
// (null, a missing field, booleans, non-numeric text) degrades to zero with
// Valid=false; decoding never fails on an amount.
type Amount struct {
	decimal.Decimal
	Valid bool
}

// NewAmount returns a valid amount from a float.
func NewAmount(f float64) Amount {
	return Amount{Decimal: decimal.NewFromFloat(f), Valid: true}
}

// AmountOf wraps an existing decimal as a valid amount.
func AmountOf(d decimal.Decimal) Amount {
	return Amount{Decimal: d, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}

	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
		if text == "" {
			// Blank text counts as zero, the same as Number("").
			a.Valid = true
			return nil
		}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	a.Decimal = d
	a.Valid = true
	return nil
}

// MarshalJSON writes the amount as a bare JSON number, or null when invalid.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Decimal.String()), nil
}
