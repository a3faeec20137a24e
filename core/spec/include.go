package spec

import (
	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
)

// Include records that the related P behind nav is loaded with every element.
// The elements themselves, their count and their order are unaffected.
func Include[B, R, P any](q Query[B, R], nav queryable.Ref[R, P]) IncludedQuery[B, R, P] {
	return &includedNode[B, R, P]{
		node: node[B, R]{kind: KindInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncluded: func(source queryable.Queryable[B]) queryable.Included[R, P] {
			return queryable.Include(q.Apply(source), nav)
		},
	}
}

// IncludeMany records that the related collection behind nav is loaded.
func IncludeMany[B, R, P any](q Query[B, R], nav queryable.Many[R, P]) IncludedManyQuery[B, R, P] {
	return &includedManyNode[B, R, P]{
		node: node[B, R]{kind: KindInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncludedMany: func(source queryable.Queryable[B]) queryable.IncludedMany[R, P] {
			return queryable.IncludeMany(q.Apply(source), nav)
		},
	}
}

// ThenInclude continues from an included reference to its related N.
func ThenInclude[B, R, P, N any](q IncludedQuery[B, R, P], nav queryable.Ref[P, N]) IncludedQuery[B, R, N] {
	return &includedNode[B, R, N]{
		node: node[B, R]{kind: KindThenInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncluded: func(source queryable.Queryable[B]) queryable.Included[R, N] {
			return queryable.ThenInclude(q.ApplyIncluded(source), nav)
		},
	}
}

// ThenIncludeMany continues from an included reference to its related collection.
func ThenIncludeMany[B, R, P, N any](q IncludedQuery[B, R, P], nav queryable.Many[P, N]) IncludedManyQuery[B, R, N] {
	return &includedManyNode[B, R, N]{
		node: node[B, R]{kind: KindThenInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncludedMany: func(source queryable.Queryable[B]) queryable.IncludedMany[R, N] {
			return queryable.ThenIncludeMany(q.ApplyIncluded(source), nav)
		},
	}
}

// ThenIncludeEach continues from every member of an included collection to its related N.
func ThenIncludeEach[B, R, P, N any](q IncludedManyQuery[B, R, P], nav queryable.Ref[P, N]) IncludedQuery[B, R, N] {
	return &includedNode[B, R, N]{
		node: node[B, R]{kind: KindThenInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncluded: func(source queryable.Queryable[B]) queryable.Included[R, N] {
			return queryable.ThenIncludeEach(q.ApplyIncludedMany(source), nav)
		},
	}
}

// ThenIncludeEachMany continues from every member of an included collection to its related collection.
func ThenIncludeEachMany[B, R, P, N any](q IncludedManyQuery[B, R, P], nav queryable.Many[P, N]) IncludedManyQuery[B, R, N] {
	return &includedManyNode[B, R, N]{
		node: node[B, R]{kind: KindThenInclude, predecessor: q, describe: expr.Format(nav.Lambda())},
		applyIncludedMany: func(source queryable.Queryable[B]) queryable.IncludedMany[R, N] {
			return queryable.ThenIncludeEachMany(q.ApplyIncludedMany(source), nav)
		},
	}
}
