package schema

import (
	"fmt"
	"reflect"
	"slices"
)

// Validator checks documents against a schema before they are stored. Relation
// fields are not stored columns and are skipped.
type Validator struct {
	schema *SchemaDefinition
	issues []Issue
}

// NewValidator creates a new Validator instance for a given schema.
func NewValidator(schema *SchemaDefinition) *Validator {
	return &Validator{schema: schema}
}

// Validate checks if a given document conforms to the validator's schema.
// The `loose` parameter ignores missing required fields.
func (v *Validator) Validate(data Document, loose bool) (bool, []Issue) {
	v.issues = make([]Issue, 0)

	for fieldName, fieldDef := range v.schema.Fields {
		value, exists := data[fieldName]
		if !exists || value == nil {
			if fieldDef.IsRequired() && !loose {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", fieldName), fieldName)
			}
			continue
		}
		v.validateFieldValue(value, fieldDef, fieldName)
	}

	for key := range data {
		if _, ok := v.schema.Fields[key]; ok {
			continue
		}
		if v.schema.FindRelation(key) != nil {
			continue
		}
		v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in schema", key), key)
	}

	return len(v.issues) == 0, v.issues
}

func (v *Validator) validateFieldValue(value any, fieldDef *FieldDefinition, path string) {
	kind := reflect.ValueOf(value).Kind()
	switch fieldDef.Type {
	case FieldTypeString:
		if kind != reflect.String {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected string, got %T", value), path)
		}
	case FieldTypeNumber, FieldTypeDecimal:
		if !isNumeric(kind) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected number, got %T", value), path)
		}
	case FieldTypeInteger:
		if !isInteger(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected integer, got %T", value), path)
		}
	case FieldTypeBoolean:
		if kind != reflect.Bool {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected boolean, got %T", value), path)
		}
	case FieldTypeArray:
		if kind != reflect.Slice && kind != reflect.Array {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected array, got %T", value), path)
		}
	case FieldTypeObject, FieldTypeRecord:
		if kind != reflect.Map && kind != reflect.Struct {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected object, got %T", value), path)
		}
	case FieldTypeEnum:
		if len(fieldDef.Values) > 0 && !slices.Contains(fieldDef.Values, value) {
			v.addIssue("INVALID_ENUM_VALUE", fmt.Sprintf("Value %v is not one of %v", value, fieldDef.Values), path)
		}
	}
}

func isNumeric(kind reflect.Kind) bool {
	return isIntegerKind(kind) || kind == reflect.Float32 || kind == reflect.Float64
}

func isIntegerKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// isInteger accepts whole floats, which is what JSON decoding yields.
func isInteger(value any) bool {
	rv := reflect.ValueOf(value)
	if isIntegerKind(rv.Kind()) {
		return true
	}
	if rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64 {
		f := rv.Float()
		return f == float64(int64(f))
	}
	return false
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}
