package spec

import (
	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
)

// GroupBy partitions elements by key, in first-seen key order.
func GroupBy[B, R, K any](q Query[B, R], key queryable.GroupKey[R, K]) Query[B, queryable.Grouping[K, R]] {
	return chain(q, KindGroup, expr.Format(key.Lambda()), func(src queryable.Queryable[R]) queryable.Queryable[queryable.Grouping[K, R]] {
		return queryable.GroupBy(src, key)
	})
}

// GroupByElement groups a projection of every element.
func GroupByElement[B, R, K, E any](q Query[B, R], key queryable.GroupKey[R, K], elem queryable.Projection[R, E]) Query[B, queryable.Grouping[K, E]] {
	return chain(q, KindGroup, expr.Format(key.Lambda()), func(src queryable.Queryable[R]) queryable.Queryable[queryable.Grouping[K, E]] {
		return queryable.GroupByElement(src, key, elem)
	})
}

// GroupByResult reduces every group to one S.
func GroupByResult[B, R, K, S any](q Query[B, R], key queryable.GroupKey[R, K], result func(K, []R) S) Query[B, S] {
	return chain(q, KindGroup, expr.Format(key.Lambda()), func(src queryable.Queryable[R]) queryable.Queryable[S] {
		return queryable.GroupByResult(src, key, result)
	})
}

// GroupByElementResult projects members with elem, then reduces every group to one S.
func GroupByElementResult[B, R, K, E, S any](q Query[B, R], key queryable.GroupKey[R, K], elem queryable.Projection[R, E], result func(K, []E) S) Query[B, S] {
	return chain(q, KindGroup, expr.Format(key.Lambda()), func(src queryable.Queryable[R]) queryable.Queryable[S] {
		return queryable.GroupByElementResult(src, key, elem, result)
	})
}
