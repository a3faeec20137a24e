package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryBuilder(t *testing.T) {
	qb := NewQueryBuilder()
	assert.NotNil(t, qb)
	assert.Equal(t, QueryDSL{}, qb.Build())
	assert.Equal(t, "EMPTY QUERY", qb.String())
}

func TestQueryBuilder_Where(t *testing.T) {
	qb := NewQueryBuilder().Where(Field("age").Gt(18))
	dsl := qb.Build()
	require.NotNil(t, dsl.Filters)
	require.NotNil(t, dsl.Filters.Condition)

	qb.Where(Field("name").Eq("ada"))
	dsl = qb.Build()
	require.NotNil(t, dsl.Filters.Group)
	assert.Equal(t, LogicalOperatorAnd, dsl.Filters.Group.Operator)
	assert.Len(t, dsl.Filters.Group.Conditions, 2)
}

func TestQueryBuilder_Pagination(t *testing.T) {
	tests := []struct {
		name   string
		build  func(*QueryBuilder)
		limit  *int
		offset *int
	}{
		{"take", func(qb *QueryBuilder) { qb.Limit(5) }, IntPtr(5), nil},
		{"skip", func(qb *QueryBuilder) { qb.Offset(3) }, nil, IntPtr(3)},
		{"skip then take", func(qb *QueryBuilder) { qb.Offset(2).Limit(5) }, IntPtr(5), IntPtr(2)},
		{"take then skip", func(qb *QueryBuilder) { qb.Limit(5).Offset(2) }, IntPtr(3), IntPtr(2)},
		{"take then skip past end", func(qb *QueryBuilder) { qb.Limit(2).Offset(5) }, IntPtr(0), IntPtr(5)},
		{"two takes keep smaller", func(qb *QueryBuilder) { qb.Limit(3).Limit(7) }, IntPtr(3), nil},
		{"two skips add up", func(qb *QueryBuilder) { qb.Offset(3).Offset(4) }, nil, IntPtr(7)},
		{"skips saturate", func(qb *QueryBuilder) { qb.Offset(math.MaxInt).Offset(4) }, nil, IntPtr(math.MaxInt)},
		{"huge skip empties a take", func(qb *QueryBuilder) { qb.Limit(5).Offset(Count(^uint(0))) }, IntPtr(0), IntPtr(math.MaxInt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder()
			tt.build(qb)
			assert.True(t, qb.HasPagination())
			p := qb.Build().Pagination
			assert.Equal(t, tt.limit, p.Limit)
			assert.Equal(t, tt.offset, p.Offset)
		})
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(0))
	assert.Equal(t, 42, Count(42))
	assert.Equal(t, math.MaxInt, Count(uint(math.MaxInt)))
	assert.Equal(t, math.MaxInt, Count(uint(math.MaxInt)+1))
	assert.Equal(t, math.MaxInt, Count(^uint(0)))
}

func TestQueryBuilder_OrderBy(t *testing.T) {
	sort := func(field string, dir SortDirection) SortConfiguration {
		return SortConfiguration{Field: field, Direction: dir}
	}

	tests := []struct {
		name  string
		build func(*QueryBuilder)
		want  []SortConfiguration
	}{
		{"append", func(qb *QueryBuilder) {
			qb.OrderBy("name", SortDirectionAsc).OrderBy("age", SortDirectionDesc)
		}, []SortConfiguration{sort("name", SortDirectionAsc), sort("age", SortDirectionDesc)}},
		{"then by without reorder appends", func(qb *QueryBuilder) {
			qb.OrderBy("name", SortDirectionAsc).ThenBy("age", SortDirectionAsc)
		}, []SortConfiguration{sort("name", SortDirectionAsc), sort("age", SortDirectionAsc)}},
		{"reorder keeps earlier keys last", func(qb *QueryBuilder) {
			qb.Reorder("region", SortDirectionDesc).Reorder("value", SortDirectionAsc)
		}, []SortConfiguration{sort("value", SortDirectionAsc), sort("region", SortDirectionDesc)}},
		{"then by lands before displaced keys", func(qb *QueryBuilder) {
			qb.Reorder("region", SortDirectionDesc).
				Reorder("value", SortDirectionAsc).
				ThenBy("id", SortDirectionDesc).
				ThenBy("name", SortDirectionAsc)
		}, []SortConfiguration{
			sort("value", SortDirectionAsc),
			sort("id", SortDirectionDesc),
			sort("name", SortDirectionAsc),
			sort("region", SortDirectionDesc),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder()
			tt.build(qb)
			assert.Equal(t, tt.want, qb.Build().Sort)
		})
	}
}

func TestQueryBuilder_Validate(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *QueryBuilder
		valid  bool
		fields []string
	}{
		{"valid", func() *QueryBuilder { return NewQueryBuilder().Where(Field("a").Eq(1)).Limit(1) }, true, nil},
		{"empty condition field", func() *QueryBuilder { return NewQueryBuilder().Where(Field("").Eq(1)) }, false, []string{"filters.field"}},
		{"not with two conditions", func() *QueryBuilder {
			return NewQueryBuilder().Where(CreateFilterGroup(LogicalOperatorNot, Field("a").Eq(1), Field("b").Eq(2)))
		}, false, []string{"filters"}},
		{"unknown logical operator", func() *QueryBuilder {
			return NewQueryBuilder().Where(CreateFilterGroup("xor", Field("a").Eq(1)))
		}, false, []string{"filters.operator"}},
		{"empty filter", func() *QueryBuilder { return NewQueryBuilder().Where(QueryFilter{}) }, false, []string{"filters"}},
		{"empty sort field", func() *QueryBuilder { return NewQueryBuilder().OrderBy("", SortDirectionAsc) }, false, []string{"sort[0].field"}},
		{"negative limit", func() *QueryBuilder { return NewQueryBuilder().Limit(-1) }, false, []string{"pagination.limit"}},
		{"include and exclude", func() *QueryBuilder {
			qb := NewQueryBuilder().Select("a")
			qb.query.Projection.Exclude = []ProjectionField{{Name: "b"}}
			return qb
		}, false, []string{"projection"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.build().Validate()
			assert.Equal(t, tt.valid, result.IsValid)
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(And(Field("a").Eq(1), Not(Field("b").Exists()))))

	err := ValidateFilter(QueryFilter{})
	require.Error(t, err)
	var ve QueryValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "filter", ve.Field)
	assert.Equal(t, "validation error in filter: filter is empty", err.Error())
}

func TestQueryBuilder_String(t *testing.T) {
	qb := NewQueryBuilder().
		Where(Field("age").Gt(18)).
		OrderBy("age", SortDirectionDesc).
		Offset(5).
		Limit(10).
		Select("name", "age")

	assert.Equal(t, "FILTERS: age gt 18 | ORDER BY: age desc | LIMIT: 10 | OFFSET: 5 | SELECT: name, age", qb.String())
}

func TestDescribeFilter(t *testing.T) {
	f := Or(Field("a").Eq(1), Not(Field("b").Lt(2)))
	assert.Equal(t, "(a eq 1 or not b lt 2)", DescribeFilter(f))
	assert.Equal(t, "?", DescribeFilter(QueryFilter{}))
}
