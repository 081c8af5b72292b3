package domain

import (
	"encoding/json"
	"fmt"
)

// TypedMessage is one row of the message-type drill-down table: the raw
// message text and the fields extracted from it.
//
// The backend names the detail object extracted_data for transaction types
// and important_points for promotional messages. Promotional rows sometimes
// carry a list of strings instead of an object; those land in Points and
// contribute no table columns.
type TypedMessage struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Points  []string       `json:"points,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *TypedMessage) UnmarshalJSON(data []byte) error {
	var aux struct {
		Message         *string         `json:"message"`
		ExtractedData   json.RawMessage `json:"extracted_data"`
		ImportantPoints json.RawMessage `json:"important_points"`
		Details         json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*m = TypedMessage{}
	if aux.Message != nil {
		m.Message = *aux.Message
	}

	for _, raw := range []json.RawMessage{aux.ExtractedData, aux.ImportantPoints, aux.Details} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		switch raw[0] {
		case '{':
			if err := json.Unmarshal(raw, &m.Details); err != nil {
				return fmt.Errorf("decode message details: %w", err)
			}
		case '[':
			var items []any
			if err := json.Unmarshal(raw, &items); err != nil {
				return fmt.Errorf("decode message points: %w", err)
			}
			for _, item := range items {
				m.Points = append(m.Points, fmt.Sprint(item))
			}
		}
		break
	}
	return nil
}

// Field returns the detail value for a column, and whether it is present
// and non-null.
func (m TypedMessage) Field(name string) (any, bool) {
	v, ok := m.Details[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
