package sqlutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// ToNullRawMessage marshals v into a nullable JSONB value. A nil v is NULL.
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal json column: %w", err)
	}
	if string(data) == "null" {
		return pqtype.NullRawMessage{}, nil
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage unmarshals a nullable JSONB value into dst. It reports
// whether the column held a value.
func FromNullRawMessage(val pqtype.NullRawMessage, dst any) (bool, error) {
	if !val.Valid || len(val.RawMessage) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return false, fmt.Errorf("unmarshal json column: %w", err)
	}
	return true, nil
}

// UTC normalises an optional timestamp for storage.
func UTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
