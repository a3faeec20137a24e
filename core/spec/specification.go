package spec

import (
	"strings"

	"github.com/asaidimu/go-specs/core/queryable"
)

// Specification is an immutable handle on a query chain from B to R. The zero
// value is not usable; start from New or Of.
type Specification[B, R any] struct {
	query Query[B, R]
}

// New returns the empty specification over T.
func New[T any]() Specification[T, T] {
	return Specification[T, T]{query: Base[T]()}
}

// Of wraps an existing chain.
func Of[B, R any](q Query[B, R]) Specification[B, R] {
	return Specification[B, R]{query: q}
}

// Query returns the chain's newest node.
func (s Specification[B, R]) Query() Query[B, R] {
	return s.query
}

// Apply runs the chain against source and returns the resulting query. It
// does no I/O.
func (s Specification[B, R]) Apply(source queryable.Queryable[B]) queryable.Queryable[R] {
	return s.query.Apply(source)
}

// With returns a new specification whose chain is op applied to this one's.
// s itself is never modified.
func (s Specification[B, R]) With(op func(Query[B, R]) Query[B, R]) Specification[B, R] {
	return Specification[B, R]{query: op(s.query)}
}

// With extends s with an operation that changes the result type, such as a
// projection or a grouping.
func With[B, R, S any](s Specification[B, R], op func(Query[B, R]) Query[B, S]) Specification[B, S] {
	return Specification[B, S]{query: op(s.query)}
}

// Nodes returns the chain oldest first, base included.
func (s Specification[B, R]) Nodes() []Node {
	var nodes []Node
	for n := Node(s.query); n != nil; n = n.Predecessor() {
		nodes = append(nodes, n)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}

// String describes the chain, e.g. "Base(Order) -> Filter(value gt 1) -> Take(2)".
func (s Specification[B, R]) String() string {
	nodes := s.Nodes()
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.Kind().String() + "(" + n.Describe() + ")"
	}
	return strings.Join(parts, " -> ")
}
