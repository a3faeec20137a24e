// Package schema describes the shape of stored collections: their fields,
// indexes and the relations that eager-loading follows.
package schema

import (
	"encoding/json"
	"fmt"
)

// LogicalOperator for combining conditions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and" // All conditions must be true
	LogicalOr  LogicalOperator = "or"  // At least one condition must be true
	LogicalNot LogicalOperator = "not" // Negates a condition or group of conditions
	LogicalNor LogicalOperator = "nor" // None of the conditions must be true
)

// FieldType represents the basic field types supported by the schema system.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Numeric data
	FieldTypeInteger FieldType = "integer" // Whole numbers
	FieldTypeDecimal FieldType = "decimal" // Numeric data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeEnum    FieldType = "enum"    // One out of a set of pre-defined items
	FieldTypeObject  FieldType = "object"  // Structured data, stored as JSON
	FieldTypeRecord  FieldType = "record"  // Unorganized key-value object, resolves to map[string]any
)

// IndexType represents index types for optimizing different query patterns.
type IndexType string

const (
	IndexTypeNormal  IndexType = "normal"  // General-purpose index
	IndexTypeUnique  IndexType = "unique"  // Unique index
	IndexTypePrimary IndexType = "primary" // Primary key index (implies unique)
)

// FieldDefinition defines a field within a schema.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Required indicates if the field is mandatory.
	Required *bool `json:"required,omitempty"`
	// Default provides a default value for the field.
	Default any `json:"default,omitempty"`
	// Values specifies the allowed values for an 'enum' type field.
	Values []any `json:"values,omitempty"`
	// ItemsType specifies the type of items in 'array' fields.
	ItemsType   *FieldType `json:"itemsType,omitempty"`
	Description *string    `json:"description,omitempty"`
	// Unique indicates if the field must have unique values.
	Unique *bool `json:"unique,omitempty"`
}

// IndexDefinition defines an index for optimizing queries or enforcing uniqueness.
type IndexDefinition struct {
	Fields      []string  `json:"fields"`
	Type        IndexType `json:"type"`
	Unique      *bool     `json:"unique,omitempty"`
	Description *string   `json:"description,omitempty"`
	Name        string    `json:"name"`
}

// RelationDefinition links a field of this schema to rows of another one.
// Eager-loading fills the field named Name with the Target rows whose
// ForeignField equals this row's LocalField.
type RelationDefinition struct {
	Name         string `json:"name"`
	Target       string `json:"target"`
	LocalField   string `json:"localField"`
	ForeignField string `json:"foreignField"`
	// Many marks a collection-valued relation; otherwise at most one row is loaded.
	Many bool `json:"many,omitempty"`
}

// SchemaDefinition defines a complete schema, the unit a backend registers a
// collection with.
type SchemaDefinition struct {
	Name        string                      `json:"name"`
	Version     string                      `json:"version"`
	Description *string                     `json:"description,omitempty"`
	Fields      map[string]*FieldDefinition `json:"fields"`
	Indexes     []IndexDefinition           `json:"indexes,omitempty"`
	Relations   []RelationDefinition        `json:"relations,omitempty"`
	Metadata    map[string]any              `json:"metadata,omitempty"`
}

// Issue represents a validation or operational issue.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"` // e.g., "error", "warning"
}

type Document map[string]any

// Parse decodes a JSON schema document and checks that every relation names
// its fields.
func Parse(data []byte) (*SchemaDefinition, error) {
	var sc SchemaDefinition
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("schema has no name")
	}
	for name, field := range sc.Fields {
		if field.Name == "" {
			field.Name = name
		}
	}
	for _, rel := range sc.Relations {
		if rel.Name == "" || rel.Target == "" || rel.LocalField == "" || rel.ForeignField == "" {
			return nil, fmt.Errorf("schema %s: incomplete relation %+v", sc.Name, rel)
		}
	}
	return &sc, nil
}
