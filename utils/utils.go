// Package utils converts between typed records and the schema.Document form
// that filters, projections and storage operate on.
package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-specs/core/schema"
)

// ToDocument converts any record into a fully decoded Document: nested
// objects become maps and arrays become []any, so paths can reach into them.
// Documents and plain maps are returned as they are.
func ToDocument(record any) (schema.Document, error) {
	switch v := record.(type) {
	case schema.Document:
		return v, nil
	case map[string]any:
		return schema.Document(v), nil
	case nil:
		return nil, fmt.Errorf("ToDocument: record cannot be nil")
	}
	m, err := decodeJSON(record)
	if err != nil {
		return nil, fmt.Errorf("ToDocument: %w", err)
	}
	return schema.Document(m), nil
}

func decodeJSON(record any) (map[string]any, error) {
	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record to JSON: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to map[string]any: %w", err)
	}
	return m, nil
}

// Decode converts v into T. A value that already is a T is returned directly;
// anything else goes through JSON, so Documents produced by projections decode
// into the caller's result type.
func Decode[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var result T
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return result, fmt.Errorf("Decode: failed to marshal %T: %w", v, err)
	}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return result, fmt.Errorf("Decode: failed to unmarshal into %T: %w", result, err)
	}
	return result, nil
}

// Lookup resolves a dotted path inside doc. Intermediate values may be maps,
// Documents or raw JSON.
func Lookup(doc schema.Document, path string) (any, bool) {
	var current any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch v := current.(type) {
		case map[string]any:
			m = v
		case schema.Document:
			m = v
		case json.RawMessage:
			if err := json.Unmarshal(v, &m); err != nil {
				return nil, false
			}
		default:
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}
