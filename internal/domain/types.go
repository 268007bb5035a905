package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TextArray is a []string stored as a jsonb column.
type TextArray []string

// Value implements driver.Valuer.
func (a TextArray) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(a))
}

// Scan implements sql.Scanner.
func (a *TextArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into TextArray", src)
	}
}

// Metadata is a free-form JSON object stored as a jsonb column.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(map[string]any(m))
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
}

// Snapshot is an opaque JSON document stored as a jsonb column. It is kept
// raw because the control plane never interprets spec item contents.
type Snapshot json.RawMessage

// Value implements driver.Valuer.
func (s Snapshot) Value() (driver.Value, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return []byte(s), nil
}

// Scan implements sql.Scanner.
func (s *Snapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		*s = append((*s)[:0], v...)
		return nil
	case string:
		*s = Snapshot(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Snapshot", src)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return s, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}
