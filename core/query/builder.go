package query

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/asaidimu/go-specs/core/schema"
)

// QueryBuilder accumulates one flat QueryDSL. Translating backends use it to
// fold a run of chain operations into a single select.
type QueryBuilder struct {
	query QueryDSL
	// primary is the number of leading sort keys added since the last Reorder.
	primary int
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		query: QueryDSL{},
	}
}

// Build returns the constructed QueryDSL object.
func (qb *QueryBuilder) Build() QueryDSL {
	return qb.query
}

// HasPagination reports whether a limit or offset has been set.
func (qb *QueryBuilder) HasPagination() bool {
	return qb.query.Pagination != nil
}

// HasProjection reports whether the select already narrows its fields.
func (qb *QueryBuilder) HasProjection() bool {
	return qb.query.Projection != nil
}

// Where ANDs filter with whatever filters the builder already holds.
func (qb *QueryBuilder) Where(filter QueryFilter) *QueryBuilder {
	if qb.query.Filters == nil {
		qb.query.Filters = &filter
		return qb
	}
	combined := And(*qb.query.Filters, filter)
	qb.query.Filters = &combined
	return qb
}

// OrderBy adds a sorting configuration to the query.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	sort := SortConfiguration{
		Field:     field,
		Direction: direction,
	}
	qb.query.Sort = append(qb.query.Sort, sort)
	return qb
}

// Reorder makes field the primary sort key. Keys added earlier only break
// ties left by the new ordering.
func (qb *QueryBuilder) Reorder(field string, direction SortDirection) *QueryBuilder {
	sort := SortConfiguration{Field: field, Direction: direction}
	qb.query.Sort = slices.Insert(qb.query.Sort, 0, sort)
	qb.primary = 1
	return qb
}

// ThenBy adds a key right after those of the last Reorder, ahead of the keys
// it displaced.
func (qb *QueryBuilder) ThenBy(field string, direction SortDirection) *QueryBuilder {
	if qb.primary == 0 {
		return qb.OrderBy(field, direction)
	}
	sort := SortConfiguration{Field: field, Direction: direction}
	qb.query.Sort = slices.Insert(qb.query.Sort, qb.primary, sort)
	qb.primary++
	return qb
}

// Limit caps the number of records. A second call keeps the smaller cap,
// which is what two consecutive takes mean.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{}
	}
	if current := qb.query.Pagination.Limit; current != nil && *current < limit {
		return qb
	}
	qb.query.Pagination.Limit = &limit
	return qb
}

// Offset skips records. Offsets accumulate, saturating at math.MaxInt, and
// an offset applied after a limit shrinks that limit.
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{}
	}
	p := qb.query.Pagination
	if p.Limit != nil {
		*p.Limit = max(*p.Limit-offset, 0)
	}
	if p.Offset != nil {
		if offset > math.MaxInt-*p.Offset {
			offset = math.MaxInt
		} else {
			offset += *p.Offset
		}
	}
	p.Offset = &offset
	return qb
}

// Count converts an unsigned amount for Limit and Offset, saturating at
// math.MaxInt.
func Count(n uint) int {
	return int(min(n, uint(math.MaxInt)))
}

// Select restricts the result to the given fields.
func (qb *QueryBuilder) Select(fields ...string) *QueryBuilder {
	if qb.query.Projection == nil {
		qb.query.Projection = &ProjectionConfiguration{}
	}
	qb.query.Projection.AddIncludeFields(fields...)
	return qb
}

// QueryValidationError represents an error found during query validation.
type QueryValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a QueryValidationError.
func (ve QueryValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// QueryValidationResult contains the results of a query validation.
type QueryValidationResult struct {
	IsValid bool
	Errors  []QueryValidationError
}

// Validate checks the built query for malformed filters, negative pagination
// and conflicting projections.
func (qb *QueryBuilder) Validate() QueryValidationResult {
	var errors []QueryValidationError

	if qb.query.Filters != nil {
		errors = append(errors, validateFilter(qb.query.Filters, "filters")...)
	}

	for i, sort := range qb.query.Sort {
		if sort.Field == "" {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("sort[%d].field", i),
				Message: "sort field cannot be empty",
			})
		}
	}

	if p := qb.query.Pagination; p != nil {
		if p.Limit != nil && *p.Limit < 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.limit",
				Message: "limit cannot be negative",
			})
		}
		if p.Offset != nil && *p.Offset < 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.offset",
				Message: "offset cannot be negative",
			})
		}
	}

	if qb.query.Projection != nil {
		if len(qb.query.Projection.Include) > 0 && len(qb.query.Projection.Exclude) > 0 {
			errors = append(errors, QueryValidationError{
				Field:   "projection",
				Message: "cannot have both include and exclude fields",
			})
		}
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// ValidateFilter checks a standalone filter and returns its first problem.
func ValidateFilter(filter QueryFilter) error {
	if errs := validateFilter(&filter, "filter"); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func validateFilter(filter *QueryFilter, path string) []QueryValidationError {
	switch {
	case filter.Condition != nil && filter.Group != nil:
		return []QueryValidationError{{Field: path, Message: "filter cannot be both a condition and a group"}}
	case filter.Condition != nil:
		if filter.Condition.Field == "" {
			return []QueryValidationError{{Field: path + ".field", Message: "condition field cannot be empty"}}
		}
		if filter.Condition.Operator == "" {
			return []QueryValidationError{{Field: path + ".operator", Message: "condition operator cannot be empty"}}
		}
		return nil
	case filter.Group != nil:
		var errors []QueryValidationError
		switch filter.Group.Operator {
		case LogicalOperatorAnd, LogicalOperatorOr, LogicalOperatorNor:
		case LogicalOperatorNot:
			if len(filter.Group.Conditions) != 1 {
				errors = append(errors, QueryValidationError{Field: path, Message: "not takes exactly one condition"})
			}
		default:
			errors = append(errors, QueryValidationError{Field: path + ".operator", Message: fmt.Sprintf("unsupported logical operator %q", filter.Group.Operator)})
		}
		for i := range filter.Group.Conditions {
			errors = append(errors, validateFilter(&filter.Group.Conditions[i], fmt.Sprintf("%s.conditions[%d]", path, i))...)
		}
		return errors
	default:
		return []QueryValidationError{{Field: path, Message: "filter is empty"}}
	}
}

// String returns a human-readable representation of the built query.
func (qb *QueryBuilder) String() string {
	var parts []string

	if qb.query.Filters != nil {
		parts = append(parts, fmt.Sprintf("FILTERS: %s", DescribeFilter(*qb.query.Filters)))
	}

	if len(qb.query.Sort) > 0 {
		sortFields := make([]string, len(qb.query.Sort))
		for i, sort := range qb.query.Sort {
			sortFields[i] = fmt.Sprintf("%s %s", sort.Field, sort.Direction)
		}
		parts = append(parts, fmt.Sprintf("ORDER BY: %s", strings.Join(sortFields, ", ")))
	}

	if p := qb.query.Pagination; p != nil {
		if p.Limit != nil {
			parts = append(parts, fmt.Sprintf("LIMIT: %d", *p.Limit))
		}
		if p.Offset != nil {
			parts = append(parts, fmt.Sprintf("OFFSET: %d", *p.Offset))
		}
	}

	if qb.query.Projection != nil && len(qb.query.Projection.Include) > 0 {
		fields := make([]string, len(qb.query.Projection.Include))
		for i, field := range qb.query.Projection.Include {
			fields[i] = field.Name
		}
		parts = append(parts, fmt.Sprintf("SELECT: %s", strings.Join(fields, ", ")))
	}

	if len(parts) == 0 {
		return "EMPTY QUERY"
	}

	return strings.Join(parts, " | ")
}

// DescribeFilter renders a filter as "field op value" terms.
func DescribeFilter(f QueryFilter) string {
	if f.Condition != nil {
		return fmt.Sprintf("%s %s %v", f.Condition.Field, f.Condition.Operator, f.Condition.Value)
	}
	if f.Group != nil {
		parts := make([]string, 0, len(f.Group.Conditions))
		for _, c := range f.Group.Conditions {
			parts = append(parts, DescribeFilter(c))
		}
		if f.Group.Operator == LogicalOperatorNot {
			return "not " + strings.Join(parts, "")
		}
		return "(" + strings.Join(parts, " "+string(f.Group.Operator)+" ") + ")"
	}
	return "?"
}

// CreateSimpleFilter is a helper function to create a simple filter condition.
func CreateSimpleFilter(field string, operator ComparisonOperator, value FilterValue) QueryFilter {
	return QueryFilter{
		Condition: &FilterCondition{
			Field:    field,
			Operator: operator,
			Value:    value,
		},
	}
}

// CreateFilterGroup is a helper function to create a filter group.
func CreateFilterGroup(operator schema.LogicalOperator, conditions ...QueryFilter) QueryFilter {
	return QueryFilter{
		Group: &FilterGroup{
			Operator:   operator,
			Conditions: conditions,
		},
	}
}

// AddIncludeFields adds fields to be included in a projection configuration.
func (pc *ProjectionConfiguration) AddIncludeFields(fields ...string) *ProjectionConfiguration {
	for _, field := range fields {
		pc.Include = append(pc.Include, ProjectionField{Name: field})
	}
	return pc
}

// CreateProjectionConfig is a helper function to create a projection configuration.
func CreateProjectionConfig() *ProjectionConfiguration {
	return &ProjectionConfiguration{}
}
