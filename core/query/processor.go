package query

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-specs/core/schema"
	"github.com/asaidimu/go-specs/utils"
	"go.uber.org/zap"
)

// PredicateFunction performs custom filtering logic on a document. It backs
// non-standard comparison operators.
type PredicateFunction func(doc schema.Document, field string, args FilterValue) (bool, error)

// DataProcessor evaluates filters and projections against documents in
// process. Backends that execute in memory use it for every predicate;
// translating backends use it for operators they cannot express natively.
type DataProcessor struct {
	goFilterFunctions map[ComparisonOperator]PredicateFunction
	mu                sync.RWMutex
	logger            *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		goFilterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:            logger,
	}
}

// RegisterFilterFunction registers a Go function for custom filtering.
func (p *DataProcessor) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goFilterFunctions[operator] = fn
	p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
}

// CustomOperators returns the non-standard operators used anywhere in filter.
func CustomOperators(filter *QueryFilter) []ComparisonOperator {
	var ops []ComparisonOperator
	collectCustomOperators(filter, &ops)
	return ops
}

// Unregistered returns the custom operators in filter that p has no
// function for.
func (p *DataProcessor) Unregistered(filter *QueryFilter) []ComparisonOperator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var missing []ComparisonOperator
	for _, op := range CustomOperators(filter) {
		if _, ok := p.goFilterFunctions[op]; !ok {
			missing = append(missing, op)
		}
	}
	return missing
}

func collectCustomOperators(filter *QueryFilter, ops *[]ComparisonOperator) {
	if filter == nil {
		return
	}
	if filter.Condition != nil && !filter.Condition.Operator.IsStandard() {
		*ops = append(*ops, filter.Condition.Operator)
	}
	if filter.Group != nil {
		for i := range filter.Group.Conditions {
			collectCustomOperators(&filter.Group.Conditions[i], ops)
		}
	}
}

// Match evaluates a given document against a filter.
func (p *DataProcessor) Match(ctx context.Context, filters *QueryFilter, data schema.Document) (bool, error) {
	if filters == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evaluateGoFilter(data, filters)
}

// evaluateGoFilter recursively evaluates a QueryFilter, applying Go functions where necessary.
func (p *DataProcessor) evaluateGoFilter(row schema.Document, filter *QueryFilter) (bool, error) {
	if filter.Condition != nil {
		if !filter.Condition.Operator.IsStandard() {
			fn, ok := p.goFilterFunctions[filter.Condition.Operator]
			if !ok {
				return false, fmt.Errorf("unregistered Go filter function for operator: %s", filter.Condition.Operator)
			}
			return fn(row, filter.Condition.Field, filter.Condition.Value)
		}
		return p.evaluateStandardCondition(row, filter.Condition)
	}
	if filter.Group != nil {
		switch filter.Group.Operator {
		case schema.LogicalAnd:
			for i := range filter.Group.Conditions {
				passes, err := p.evaluateGoFilter(row, &filter.Group.Conditions[i])
				if err != nil || !passes {
					return false, err
				}
			}
			return true, nil
		case schema.LogicalOr, schema.LogicalNor:
			matched := false
			for i := range filter.Group.Conditions {
				passes, err := p.evaluateGoFilter(row, &filter.Group.Conditions[i])
				if err != nil {
					return false, err
				}
				if passes {
					matched = true
					break
				}
			}
			return matched == (filter.Group.Operator == schema.LogicalOr), nil
		case schema.LogicalNot:
			if len(filter.Group.Conditions) != 1 {
				return false, fmt.Errorf("not takes exactly one condition, got %d", len(filter.Group.Conditions))
			}
			passes, err := p.evaluateGoFilter(row, &filter.Group.Conditions[0])
			return !passes, err
		default:
			return false, fmt.Errorf("unsupported logical operator for Go evaluation: %s", filter.Group.Operator)
		}
	}
	return false, fmt.Errorf("empty or invalid filter structure for Go evaluation")
}

// evaluateStandardCondition performs the in-memory evaluation for standard comparison operators.
// A missing field only satisfies the negative operators.
func (p *DataProcessor) evaluateStandardCondition(row schema.Document, condition *FilterCondition) (bool, error) {
	fieldValue, ok := utils.Lookup(row, condition.Field)
	if !ok || fieldValue == nil {
		switch condition.Operator {
		case ComparisonOperatorNotExists:
			return true, nil
		case ComparisonOperatorNeq, ComparisonOperatorNin, ComparisonOperatorNotContains:
			return condition.Value != nil, nil
		case ComparisonOperatorEq:
			return condition.Value == nil, nil
		}
		return false, nil
	}

	switch condition.Operator {
	case ComparisonOperatorEq:
		return ValuesEqual(fieldValue, condition.Value), nil
	case ComparisonOperatorNeq:
		return !ValuesEqual(fieldValue, condition.Value), nil
	case ComparisonOperatorGt, ComparisonOperatorGte, ComparisonOperatorLt, ComparisonOperatorLte:
		c, err := compareOrdered(fieldValue, condition.Value)
		if err != nil {
			return false, fmt.Errorf("unsupported type for %s comparison: %w", condition.Operator, err)
		}
		switch condition.Operator {
		case ComparisonOperatorGt:
			return c > 0, nil
		case ComparisonOperatorGte:
			return c >= 0, nil
		case ComparisonOperatorLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case ComparisonOperatorIn, ComparisonOperatorNin:
		values, ok := toSlice(condition.Value)
		if !ok {
			return false, fmt.Errorf("%s expects a list, got %T", condition.Operator, condition.Value)
		}
		found := containsValue(values, fieldValue)
		return found == (condition.Operator == ComparisonOperatorIn), nil
	case ComparisonOperatorContains, ComparisonOperatorNotContains:
		found, err := contains(fieldValue, condition.Value)
		if err != nil {
			return false, err
		}
		return found == (condition.Operator == ComparisonOperatorContains), nil
	case ComparisonOperatorStartsWith, ComparisonOperatorEndsWith:
		s, okS := fieldValue.(string)
		prefix, okP := condition.Value.(string)
		if !okS || !okP {
			return false, fmt.Errorf("%s requires strings, got %T and %T", condition.Operator, fieldValue, condition.Value)
		}
		if condition.Operator == ComparisonOperatorStartsWith {
			return strings.HasPrefix(s, prefix), nil
		}
		return strings.HasSuffix(s, prefix), nil
	case ComparisonOperatorExists:
		return true, nil
	case ComparisonOperatorNotExists:
		return false, nil
	default:
		return false, fmt.Errorf("unsupported standard comparison operator for Go evaluation: %s", condition.Operator)
	}
}

// Project applies a projection to a document. Included paths keep their
// dotted name as the key.
func (p *DataProcessor) Project(row schema.Document, projection *ProjectionConfiguration) schema.Document {
	if projection == nil || (len(projection.Include) == 0 && len(projection.Exclude) == 0) {
		return row
	}

	newRow := make(schema.Document)
	if len(projection.Include) == 0 {
		maps.Copy(newRow, row)
	} else {
		for _, field := range projection.Include {
			if value, ok := utils.Lookup(row, field.Name); ok {
				newRow[field.Name] = value
			}
		}
	}
	for _, field := range projection.Exclude {
		delete(newRow, field.Name)
	}
	return newRow
}

// ValuesEqual compares two values, treating all numeric types as numbers.
func ValuesEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		fa, _ := ToFloat64(a)
		fb, _ := ToFloat64(b)
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values for sorting. Nil sorts first, numbers compare
// numerically, and values of unrelated types fall back to their type names so
// the order stays total.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, err := compareOrdered(a, b); err == nil {
		return c
	}
	return cmp.Compare(fmt.Sprintf("%T:%v", a, a), fmt.Sprintf("%T:%v", b, b))
}

func compareOrdered(a, b any) (int, error) {
	if isNumber(a) && isNumber(b) {
		fa, _ := ToFloat64(a)
		fb, _ := ToFloat64(b)
		return cmp.Compare(fa, fb), nil
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func contains(container, value any) (bool, error) {
	if s, ok := container.(string); ok {
		sub, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("contains on a string requires a string, got %T", value)
		}
		return strings.Contains(s, sub), nil
	}
	if items, ok := toSlice(container); ok {
		return containsValue(items, value), nil
	}
	return false, fmt.Errorf("contains requires a string or a list, got %T", container)
}

func containsValue(items []any, value any) bool {
	for _, item := range items {
		if ValuesEqual(item, value) {
			return true
		}
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
