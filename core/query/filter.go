package query

// FieldRef starts a condition on a field. Dots address nested fields.
//
//	query.Field("status").Eq("open")
//	query.And(query.Field("total").Gte(10), query.Field("tags").Contains("vip"))
type FieldRef string

// Field returns a FieldRef for name.
func Field(name string) FieldRef {
	return FieldRef(name)
}

func (f FieldRef) Eq(value FilterValue) QueryFilter  { return f.Custom(ComparisonOperatorEq, value) }
func (f FieldRef) Neq(value FilterValue) QueryFilter { return f.Custom(ComparisonOperatorNeq, value) }
func (f FieldRef) Lt(value FilterValue) QueryFilter  { return f.Custom(ComparisonOperatorLt, value) }
func (f FieldRef) Lte(value FilterValue) QueryFilter { return f.Custom(ComparisonOperatorLte, value) }
func (f FieldRef) Gt(value FilterValue) QueryFilter  { return f.Custom(ComparisonOperatorGt, value) }
func (f FieldRef) Gte(value FilterValue) QueryFilter { return f.Custom(ComparisonOperatorGte, value) }

// In matches when the field equals one of values.
func (f FieldRef) In(values ...FilterValue) QueryFilter {
	return f.Custom(ComparisonOperatorIn, values)
}

// Nin matches when the field equals none of values.
func (f FieldRef) Nin(values ...FilterValue) QueryFilter {
	return f.Custom(ComparisonOperatorNin, values)
}

// Contains matches a substring of a string field or an element of an array field.
func (f FieldRef) Contains(value FilterValue) QueryFilter {
	return f.Custom(ComparisonOperatorContains, value)
}

func (f FieldRef) NotContains(value FilterValue) QueryFilter {
	return f.Custom(ComparisonOperatorNotContains, value)
}

func (f FieldRef) StartsWith(value string) QueryFilter {
	return f.Custom(ComparisonOperatorStartsWith, value)
}

func (f FieldRef) EndsWith(value string) QueryFilter {
	return f.Custom(ComparisonOperatorEndsWith, value)
}

// Exists matches when the field is present and not null.
func (f FieldRef) Exists() QueryFilter {
	return f.Custom(ComparisonOperatorExists, nil)
}

func (f FieldRef) NotExists() QueryFilter {
	return f.Custom(ComparisonOperatorNotExists, nil)
}

// Custom builds a condition with an operator registered on a DataProcessor.
func (f FieldRef) Custom(operator ComparisonOperator, value FilterValue) QueryFilter {
	return CreateSimpleFilter(string(f), operator, value)
}

// And matches when every filter matches.
func And(filters ...QueryFilter) QueryFilter {
	return CreateFilterGroup(LogicalOperatorAnd, filters...)
}

// Or matches when at least one filter matches.
func Or(filters ...QueryFilter) QueryFilter {
	return CreateFilterGroup(LogicalOperatorOr, filters...)
}

// Nor matches when no filter matches.
func Nor(filters ...QueryFilter) QueryFilter {
	return CreateFilterGroup(LogicalOperatorNor, filters...)
}

// Not negates filter.
func Not(filter QueryFilter) QueryFilter {
	return CreateFilterGroup(LogicalOperatorNot, filter)
}
