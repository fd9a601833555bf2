package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB is a nullable JSON document stored in a Postgres json/jsonb column.
// The zero value (nil) means "no value". Decoding is fail-soft: bytes that
// are not valid JSON degrade to nil instead of failing the read, so one
// corrupt stored payload cannot break a whole response. The wire boundary
// never emits anything but valid JSON or the literal null.
type JSONB json.RawMessage

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte or string, got %T", value)
	}
	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	// The jsonb binary format may carry a leading version byte (0x01) or a
	// stray null byte. Strip anything that cannot start a JSON document.
	for len(bytes) > 0 && bytes[0] != '{' && bytes[0] != '[' && bytes[0] != '"' && bytes[0] != 't' && bytes[0] != 'f' && bytes[0] != 'n' && !(bytes[0] >= '0' && bytes[0] <= '9') && bytes[0] != '-' {
		bytes = bytes[1:]
	}
	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	if !json.Valid(bytes) {
		*j = nil
		return nil
	}
	*j = JSONB(bytes)
	return nil
}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid([]byte(j)) {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = JSONB(data)
	return nil
}
