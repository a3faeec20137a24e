// Package query defines the declarative filter, sort and pagination language
// shared by every backend. Predicates written with it are plain data, so a
// backend that cannot run Go code can still translate them.
package query

import (
	"github.com/asaidimu/go-specs/core/schema"
)

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd schema.LogicalOperator = "and"
	LogicalOperatorOr  schema.LogicalOperator = "or"
	LogicalOperatorNot schema.LogicalOperator = "not"
	LogicalOperatorNor schema.LogicalOperator = "nor"
)

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq          ComparisonOperator = "eq"
	ComparisonOperatorNeq         ComparisonOperator = "neq"
	ComparisonOperatorLt          ComparisonOperator = "lt"
	ComparisonOperatorLte         ComparisonOperator = "lte"
	ComparisonOperatorGt          ComparisonOperator = "gt"
	ComparisonOperatorGte         ComparisonOperator = "gte"
	ComparisonOperatorIn          ComparisonOperator = "in"
	ComparisonOperatorNin         ComparisonOperator = "nin"
	ComparisonOperatorContains    ComparisonOperator = "contains"
	ComparisonOperatorNotContains ComparisonOperator = "ncontains"
	ComparisonOperatorStartsWith  ComparisonOperator = "startswith"
	ComparisonOperatorEndsWith    ComparisonOperator = "endswith"
	ComparisonOperatorExists      ComparisonOperator = "exists"
	ComparisonOperatorNotExists   ComparisonOperator = "nexists"
)

// FilterValue represents the value used in a filter condition.
type FilterValue any

// FilterCondition defines a single condition for filtering the results of a query.
type FilterCondition struct {
	Field    string             // The field to apply the filter on; dots address nested fields.
	Operator ComparisonOperator // The comparison operator to use.
	Value    FilterValue        // The value to compare against.
}

// FilterGroup combines multiple filter conditions using a logical operator.
type FilterGroup struct {
	Operator   schema.LogicalOperator
	Conditions []QueryFilter
}

// QueryFilter is a union type that can represent either a single filter condition
// or a group of conditions.
type QueryFilter struct {
	Condition *FilterCondition `json:",omitempty"`
	Group     *FilterGroup     `json:",omitempty"`
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string
	Direction SortDirection
}

// PaginationOptions defines an offset window over the results. A nil Limit
// means unbounded.
type PaginationOptions struct {
	Limit  *int `json:",omitempty"`
	Offset *int `json:",omitempty"`
}

// ProjectionField names a field to be included or excluded in the query result.
type ProjectionField struct {
	Name string
}

// ProjectionConfiguration defines which fields should be returned in the query result.
type ProjectionConfiguration struct {
	Include []ProjectionField `json:",omitempty"`
	Exclude []ProjectionField `json:",omitempty"`
}

// QueryDSL is one flat select: filter, then sort, then paginate, then project.
type QueryDSL struct {
	Filters    *QueryFilter             `json:",omitempty"`
	Sort       []SortConfiguration      `json:",omitempty"`
	Pagination *PaginationOptions       `json:",omitempty"`
	Projection *ProjectionConfiguration `json:",omitempty"`
}

// standardComparisonOperators is a set of all the standard, built-in comparison operators.
var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:          {},
	ComparisonOperatorNeq:         {},
	ComparisonOperatorLt:          {},
	ComparisonOperatorLte:         {},
	ComparisonOperatorGt:          {},
	ComparisonOperatorGte:         {},
	ComparisonOperatorIn:          {},
	ComparisonOperatorNin:         {},
	ComparisonOperatorContains:    {},
	ComparisonOperatorNotContains: {},
	ComparisonOperatorStartsWith:  {},
	ComparisonOperatorEndsWith:    {},
	ComparisonOperatorExists:      {},
	ComparisonOperatorNotExists:   {},
}

// IsStandard checks if a comparison operator is one of the standard, built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}

// GetStandardComparisonOperators returns a map of all standard comparison operators.
func GetStandardComparisonOperators() map[ComparisonOperator]struct{} {
	return standardComparisonOperators
}
