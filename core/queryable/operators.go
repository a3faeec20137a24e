package queryable

import (
	"fmt"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/utils"
)

func method(name string, form expr.Form) expr.Method {
	return expr.Method{Scope: MarkerScope, Name: name, Form: form}
}

var (
	whereMethod             = method("Where", expr.FormSequence)
	orderByMethod           = method("OrderBy", expr.FormSequence)
	orderByDescendingMethod = method("OrderByDescending", expr.FormSequence)
	thenByMethod            = method("ThenBy", expr.FormOrdered)
	thenByDescendingMethod  = method("ThenByDescending", expr.FormOrdered)
	selectMethod            = method("Select", expr.FormSequence)
	selectManyMethod        = method("SelectMany", expr.FormSequence)
	skipMethod              = method("Skip", expr.FormSequence)
	takeMethod              = method("Take", expr.FormSequence)
	groupByMethod           = method("GroupBy", expr.FormSequence)
	includeMethod           = method("Include", expr.FormSequence)
	thenIncludeAfterRef     = method("ThenInclude", expr.FormIncludedReference)
	thenIncludeAfterMany    = method("ThenInclude", expr.FormIncludedCollection)
)

func call(m expr.Method, typeArgs []string, args ...expr.Expr) *expr.Call {
	return &expr.Call{Method: m, TypeArgs: typeArgs, Args: args}
}

func types(names ...string) []string { return names }

// Where keeps the elements matching p, in order.
func Where[T any](q Queryable[T], p Predicate[T]) Queryable[T] {
	return extend[T](q, call(whereMethod, types(expr.TypeOf[T]()), q.Expression(), p.lambda))
}

// OrderBy sorts by key, ascending. Equal keys keep their relative order on
// backends that sort stably.
func OrderBy[T any](q Queryable[T], key Key[T]) Ordered[T] {
	return ordered[T]{extend[T](q, call(orderByMethod, types(expr.TypeOf[T]()), q.Expression(), key.lambda))}
}

func OrderByDescending[T any](q Queryable[T], key Key[T]) Ordered[T] {
	return ordered[T]{extend[T](q, call(orderByDescendingMethod, types(expr.TypeOf[T]()), q.Expression(), key.lambda))}
}

// ThenBy breaks ties left by the previous ordering keys.
func ThenBy[T any](q Ordered[T], key Key[T]) Ordered[T] {
	return ordered[T]{extend[T](q, call(thenByMethod, types(expr.TypeOf[T]()), q.Expression(), key.lambda))}
}

func ThenByDescending[T any](q Ordered[T], key Key[T]) Ordered[T] {
	return ordered[T]{extend[T](q, call(thenByDescendingMethod, types(expr.TypeOf[T]()), q.Expression(), key.lambda))}
}

// Select maps every element to R.
func Select[T, R any](q Queryable[T], p Projection[T, R]) Queryable[R] {
	return extend[R](q, call(selectMethod, types(expr.TypeOf[T](), expr.TypeOf[R]()), q.Expression(), p.lambda))
}

// SelectMany concatenates the sequences f yields, in source order.
func SelectMany[T, R any](q Queryable[T], f Flattening[T, R]) Queryable[R] {
	return extend[R](q, call(selectManyMethod, types(expr.TypeOf[T](), expr.TypeOf[R]()), q.Expression(), f.lambda))
}

// Skip drops the first n elements.
func Skip[T any](q Queryable[T], n uint) Queryable[T] {
	return extend[T](q, call(skipMethod, types(expr.TypeOf[T]()), q.Expression(), &expr.Constant{Value: n}))
}

// Take yields at most n elements.
func Take[T any](q Queryable[T], n uint) Queryable[T] {
	return extend[T](q, call(takeMethod, types(expr.TypeOf[T]()), q.Expression(), &expr.Constant{Value: n}))
}

// Grouping is one group produced by GroupBy.
type Grouping[K, E any] struct {
	Key   K   `json:"key"`
	Items []E `json:"items"`
}

// GroupBy partitions elements by key. Groups come out in first-seen key order
// and keep their members in source order.
func GroupBy[T, K any](q Queryable[T], key GroupKey[T, K]) Queryable[Grouping[K, T]] {
	return groupBy[T, K, T, Grouping[K, T]](q, key, nil, groupingResult[K, T]())
}

// GroupByElement groups the projection of each element.
func GroupByElement[T, K, E any](q Queryable[T], key GroupKey[T, K], elem Projection[T, E]) Queryable[Grouping[K, E]] {
	return groupBy[T, K, E, Grouping[K, E]](q, key, elem.lambda, groupingResult[K, E]())
}

// GroupByResult turns every group into one R.
func GroupByResult[T, K, R any](q Queryable[T], key GroupKey[T, K], result func(K, []T) R) Queryable[R] {
	return groupBy[T, K, T, R](q, key, nil, resultSelector(result))
}

// GroupByElementResult projects members with elem, then turns every group into one R.
func GroupByElementResult[T, K, E, R any](q Queryable[T], key GroupKey[T, K], elem Projection[T, E], result func(K, []E) R) Queryable[R] {
	return groupBy[T, K, E, R](q, key, elem.lambda, resultSelector(result))
}

func groupBy[T, K, E, R any](q Queryable[T], key GroupKey[T, K], elem *expr.Lambda, result *expr.Lambda) Queryable[R] {
	element := &expr.Lambda{Kind: expr.LambdaGroupElement, In: expr.TypeOf[T](), Out: expr.TypeOf[E]()}
	if elem != nil {
		clone := *elem
		clone.Kind = expr.LambdaGroupElement
		element = &clone
	}
	typeArgs := types(expr.TypeOf[T](), expr.TypeOf[K](), expr.TypeOf[E](), expr.TypeOf[R]())
	return extend[R](q, call(groupByMethod, typeArgs, q.Expression(), key.lambda, element, result))
}

func groupingResult[K, E any]() *expr.Lambda {
	return resultSelector(func(key K, items []E) Grouping[K, E] {
		return Grouping[K, E]{Key: key, Items: items}
	})
}

func resultSelector[K, E, R any](fn func(K, []E) R) *expr.Lambda {
	return &expr.Lambda{
		Kind: expr.LambdaGroupResult,
		In:   expr.TypeOf[K](),
		Out:  expr.TypeOf[R](),
		Fn: func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("group result takes a key and members, got %d arguments", len(args))
			}
			key, err := utils.Decode[K](args[0])
			if err != nil {
				return nil, fmt.Errorf("decoding group key: %w", err)
			}
			members, ok := args[1].([]any)
			if !ok {
				return nil, fmt.Errorf("group members have type %T", args[1])
			}
			items := make([]E, 0, len(members))
			for _, m := range members {
				item, err := utils.Decode[E](m)
				if err != nil {
					return nil, fmt.Errorf("decoding group member: %w", err)
				}
				items = append(items, item)
			}
			return fn(key, items), nil
		},
	}
}

// Include records that the related P behind nav should be loaded with each
// element. It does not change which elements are produced.
func Include[T, P any](q Queryable[T], nav Ref[T, P]) Included[T, P] {
	return included[T, P]{extend[T](q, call(includeMethod, types(expr.TypeOf[T](), expr.TypeOf[P]()), q.Expression(), nav.lambda))}
}

// IncludeMany records that the related collection behind nav should be loaded.
func IncludeMany[T, P any](q Queryable[T], nav Many[T, P]) IncludedMany[T, P] {
	return includedMany[T, P]{extend[T](q, call(includeMethod, types(expr.TypeOf[T](), expr.TypeOf[[]P]()), q.Expression(), nav.lambda))}
}

// ThenInclude continues from a single included P to its related N.
func ThenInclude[T, P, N any](q Included[T, P], nav Ref[P, N]) Included[T, N] {
	return included[T, N]{extend[T](q, call(thenIncludeAfterRef, types(expr.TypeOf[T](), expr.TypeOf[P](), expr.TypeOf[N]()), q.Expression(), nav.lambda))}
}

// ThenIncludeMany continues from a single included P to its related collection.
func ThenIncludeMany[T, P, N any](q Included[T, P], nav Many[P, N]) IncludedMany[T, N] {
	return includedMany[T, N]{extend[T](q, call(thenIncludeAfterRef, types(expr.TypeOf[T](), expr.TypeOf[P](), expr.TypeOf[[]N]()), q.Expression(), nav.lambda))}
}

// ThenIncludeEach continues from every member of an included collection to its related N.
func ThenIncludeEach[T, P, N any](q IncludedMany[T, P], nav Ref[P, N]) Included[T, N] {
	return included[T, N]{extend[T](q, call(thenIncludeAfterMany, types(expr.TypeOf[T](), expr.TypeOf[P](), expr.TypeOf[N]()), q.Expression(), nav.lambda))}
}

// ThenIncludeEachMany continues from every member of an included collection to its related collection.
func ThenIncludeEachMany[T, P, N any](q IncludedMany[T, P], nav Many[P, N]) IncludedMany[T, N] {
	return includedMany[T, N]{extend[T](q, call(thenIncludeAfterMany, types(expr.TypeOf[T](), expr.TypeOf[P](), expr.TypeOf[[]N]()), q.Expression(), nav.lambda))}
}
