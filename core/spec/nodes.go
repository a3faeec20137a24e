// Package spec builds immutable query specifications: chains of operation
// nodes, newest first, that apply themselves oldest first to any queryable
// source.
package spec

import (
	"fmt"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
)

// Kind is the operation a node performs.
type Kind uint8

const (
	KindBase Kind = iota
	KindFilter
	KindSort
	KindThenSort
	KindProject
	KindFlatten
	KindSkip
	KindTake
	KindGroup
	KindInclude
	KindThenInclude
	KindFunc
)

var kindNames = [...]string{
	KindBase:        "Base",
	KindFilter:      "Filter",
	KindSort:        "Sort",
	KindThenSort:    "ThenSort",
	KindProject:     "Project",
	KindFlatten:     "Flatten",
	KindSkip:        "Skip",
	KindTake:        "Take",
	KindGroup:       "Group",
	KindInclude:     "Include",
	KindThenInclude: "ThenInclude",
	KindFunc:        "Func",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Node is one link of a chain.
type Node interface {
	Kind() Kind
	// Predecessor is the node applied before this one; nil for the base.
	Predecessor() Node
	// Describe names the node's payload for display.
	Describe() string
}

// Query is a chain that turns a source of B into a query over R.
type Query[B, R any] interface {
	Node
	Apply(source queryable.Queryable[B]) queryable.Queryable[R]
}

// OrderedQuery ends in a sort and therefore accepts ThenBy.
type OrderedQuery[B, R any] interface {
	Query[B, R]
	ApplyOrdered(source queryable.Queryable[B]) queryable.Ordered[R]
}

// IncludedQuery ends in an include of a single P.
type IncludedQuery[B, R, P any] interface {
	Query[B, R]
	ApplyIncluded(source queryable.Queryable[B]) queryable.Included[R, P]
}

// IncludedManyQuery ends in an include of a collection of P.
type IncludedManyQuery[B, R, P any] interface {
	Query[B, R]
	ApplyIncludedMany(source queryable.Queryable[B]) queryable.IncludedMany[R, P]
}

type node[B, R any] struct {
	kind        Kind
	predecessor Node
	describe    string
	apply       func(queryable.Queryable[B]) queryable.Queryable[R]
}

func (n *node[B, R]) Kind() Kind        { return n.kind }
func (n *node[B, R]) Predecessor() Node { return n.predecessor }
func (n *node[B, R]) Describe() string  { return n.describe }

func (n *node[B, R]) Apply(source queryable.Queryable[B]) queryable.Queryable[R] {
	return n.apply(source)
}

type orderedNode[B, R any] struct {
	node[B, R]
	applyOrdered func(queryable.Queryable[B]) queryable.Ordered[R]
}

func (n *orderedNode[B, R]) Apply(source queryable.Queryable[B]) queryable.Queryable[R] {
	return n.applyOrdered(source)
}

func (n *orderedNode[B, R]) ApplyOrdered(source queryable.Queryable[B]) queryable.Ordered[R] {
	return n.applyOrdered(source)
}

type includedNode[B, R, P any] struct {
	node[B, R]
	applyIncluded func(queryable.Queryable[B]) queryable.Included[R, P]
}

func (n *includedNode[B, R, P]) Apply(source queryable.Queryable[B]) queryable.Queryable[R] {
	return n.applyIncluded(source)
}

func (n *includedNode[B, R, P]) ApplyIncluded(source queryable.Queryable[B]) queryable.Included[R, P] {
	return n.applyIncluded(source)
}

type includedManyNode[B, R, P any] struct {
	node[B, R]
	applyIncludedMany func(queryable.Queryable[B]) queryable.IncludedMany[R, P]
}

func (n *includedManyNode[B, R, P]) Apply(source queryable.Queryable[B]) queryable.Queryable[R] {
	return n.applyIncludedMany(source)
}

func (n *includedManyNode[B, R, P]) ApplyIncludedMany(source queryable.Queryable[B]) queryable.IncludedMany[R, P] {
	return n.applyIncludedMany(source)
}

// Base is the empty chain: it returns its source unchanged.
func Base[T any]() Query[T, T] {
	return &node[T, T]{
		kind:     KindBase,
		describe: expr.TypeOf[T](),
		apply:    func(source queryable.Queryable[T]) queryable.Queryable[T] { return source },
	}
}

func chain[B, R, S any](q Query[B, R], kind Kind, describe string, step func(queryable.Queryable[R]) queryable.Queryable[S]) Query[B, S] {
	return &node[B, S]{
		kind:        kind,
		predecessor: q,
		describe:    describe,
		apply: func(source queryable.Queryable[B]) queryable.Queryable[S] {
			return step(q.Apply(source))
		},
	}
}

// Where keeps the elements matching p.
func Where[B, R any](q Query[B, R], p queryable.Predicate[R]) Query[B, R] {
	return chain(q, KindFilter, describePredicate(p), func(src queryable.Queryable[R]) queryable.Queryable[R] {
		return queryable.Where(src, p)
	})
}

func sorted[B, R any](q Query[B, R], kind Kind, describe string, step func(queryable.Queryable[B]) queryable.Ordered[R]) OrderedQuery[B, R] {
	return &orderedNode[B, R]{
		node:         node[B, R]{kind: kind, predecessor: q, describe: describe},
		applyOrdered: step,
	}
}

// OrderBy sorts by key, ascending.
func OrderBy[B, R any](q Query[B, R], key queryable.Key[R]) OrderedQuery[B, R] {
	return sorted(q, KindSort, describeKey(key, false), func(source queryable.Queryable[B]) queryable.Ordered[R] {
		return queryable.OrderBy(q.Apply(source), key)
	})
}

// OrderByDescending sorts by key, descending.
func OrderByDescending[B, R any](q Query[B, R], key queryable.Key[R]) OrderedQuery[B, R] {
	return sorted(q, KindSort, describeKey(key, true), func(source queryable.Queryable[B]) queryable.Ordered[R] {
		return queryable.OrderByDescending(q.Apply(source), key)
	})
}

// ThenBy breaks ties of the preceding sort keys, ascending.
func ThenBy[B, R any](q OrderedQuery[B, R], key queryable.Key[R]) OrderedQuery[B, R] {
	return sorted(q, KindThenSort, describeKey(key, false), func(source queryable.Queryable[B]) queryable.Ordered[R] {
		return queryable.ThenBy(q.ApplyOrdered(source), key)
	})
}

// ThenByDescending breaks ties of the preceding sort keys, descending.
func ThenByDescending[B, R any](q OrderedQuery[B, R], key queryable.Key[R]) OrderedQuery[B, R] {
	return sorted(q, KindThenSort, describeKey(key, true), func(source queryable.Queryable[B]) queryable.Ordered[R] {
		return queryable.ThenByDescending(q.ApplyOrdered(source), key)
	})
}

// Select maps every element to S.
func Select[B, R, S any](q Query[B, R], p queryable.Projection[R, S]) Query[B, S] {
	return chain(q, KindProject, expr.TypeOf[S](), func(src queryable.Queryable[R]) queryable.Queryable[S] {
		return queryable.Select(src, p)
	})
}

// SelectMany concatenates the sequences f yields, in source order.
func SelectMany[B, R, S any](q Query[B, R], f queryable.Flattening[R, S]) Query[B, S] {
	return chain(q, KindFlatten, expr.TypeOf[S](), func(src queryable.Queryable[R]) queryable.Queryable[S] {
		return queryable.SelectMany(src, f)
	})
}

// Skip drops the first n elements.
func Skip[B, R any](q Query[B, R], n uint) Query[B, R] {
	return chain(q, KindSkip, fmt.Sprint(n), func(src queryable.Queryable[R]) queryable.Queryable[R] {
		return queryable.Skip(src, n)
	})
}

// Take yields at most n elements.
func Take[B, R any](q Query[B, R], n uint) Query[B, R] {
	return chain(q, KindTake, fmt.Sprint(n), func(src queryable.Queryable[R]) queryable.Queryable[R] {
		return queryable.Take(src, n)
	})
}

// FromFunc appends an arbitrary queryable transformation. The step is opaque:
// it shows up in the built query only through the calls it makes.
func FromFunc[B, R, S any](q Query[B, R], fn func(queryable.Queryable[R]) queryable.Queryable[S]) Query[B, S] {
	return chain(q, KindFunc, "func", fn)
}

func describePredicate[T any](p queryable.Predicate[T]) string {
	return expr.Format(p.Lambda())
}

func describeKey[T any](k queryable.Key[T], desc bool) string {
	s := expr.Format(k.Lambda())
	if desc {
		s += " desc"
	}
	return s
}
