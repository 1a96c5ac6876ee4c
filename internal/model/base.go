package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RawJSON is a JSON document stored in a jsonb column.
type RawJSON []byte

// MarshalJSON returns m as the JSON encoding of m.
func (m RawJSON) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON sets *m to a copy of data.
func (m *RawJSON) UnmarshalJSON(data []byte) error {
	if m == nil {
		return errors.New("model.RawJSON: UnmarshalJSON on nil pointer")
	}
	*m = append((*m)[0:0], data...)
	return nil
}

// Value implements driver.Valuer so RawJSON can be written to jsonb columns.
func (m RawJSON) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return string(m), nil
}

// Scan implements sql.Scanner. The driver buffer is copied.
func (m *RawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append(RawJSON(nil), v...)
	case string:
		*m = RawJSON(v)
	default:
		return errors.New("unsupported type for RawJSON")
	}
	return nil
}

// MarshalRaw encodes v as RawJSON; a nil v becomes an empty object.
func MarshalRaw(v interface{}) (RawJSON, error) {
	if v == nil {
		return RawJSON("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawJSON(data), nil
}
