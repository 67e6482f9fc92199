package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NullString is a nullable column that encodes as a JSON string or null
type NullString struct {
	sql.NullString
}

// NewNullString treats "" as NULL
func NewNullString(s string) NullString {
	return NullString{sql.NullString{String: s, Valid: s != ""}}
}

func (ns NullString) MarshalJSON() ([]byte, error) {
	return marshalNullable(ns.String, ns.Valid)
}

func (ns *NullString) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, &ns.String, &ns.Valid)
}

// NullTime is a nullable timestamp that encodes as RFC 3339 or null
type NullTime struct {
	sql.NullTime
}

// NewNullTime wraps a set timestamp
func NewNullTime(t time.Time) NullTime {
	return NullTime{sql.NullTime{Time: t, Valid: true}}
}

func (nt NullTime) MarshalJSON() ([]byte, error) {
	return marshalNullable(nt.Time, nt.Valid)
}

func (nt *NullTime) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, &nt.Time, &nt.Valid)
}

func marshalNullable[T any](v T, valid bool) ([]byte, error) {
	if !valid {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](data []byte, dst *T, valid *bool) error {
	var v *T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*valid = v != nil
	if v != nil {
		*dst = *v
	}
	return nil
}

// JSONB maps a jsonb column to a free-form object
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("jsonb: cannot scan %T", src)
	}
}
