// Package queryable is the lazy, composable sequence surface that
// specifications apply to. Every operator records a call in an inspectable
// expression tree instead of running; a Provider executes the finished tree.
package queryable

import (
	"context"
	"errors"
	"fmt"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/utils"
)

// ErrUnhandledMarker is returned by providers that receive an include marker
// nobody rewrote into a native operation.
var ErrUnhandledMarker = errors.New("unhandled include marker")

// Provider executes a built expression and returns its elements.
type Provider interface {
	Execute(ctx context.Context, e expr.Expr) ([]any, error)
}

// Rewriter transforms a built expression before it reaches a provider.
type Rewriter interface {
	Rewrite(e expr.Expr) (expr.Expr, error)
}

// Queryable is a pending query producing elements of type T.
type Queryable[T any] interface {
	Expression() expr.Expr
	Provider() Provider
	// element carries T in the method set so it can be inferred from any
	// query value. It is never called.
	element() T
}

// Ordered is a Queryable with a primary ordering; only it accepts ThenBy.
type Ordered[T any] interface {
	Queryable[T]
	ordered()
}

// Included is a Queryable whose last include targeted a single value of type P.
type Included[T, P any] interface {
	Queryable[T]
	includedReference(P)
}

// IncludedMany is a Queryable whose last include targeted a collection of P.
type IncludedMany[T, P any] interface {
	Queryable[T]
	includedCollection(P)
}

type queryable[T any] struct {
	expression expr.Expr
	provider   Provider
}

func (q *queryable[T]) Expression() expr.Expr { return q.expression }
func (q *queryable[T]) Provider() Provider    { return q.provider }
func (q *queryable[T]) element() (zero T)     { return }

type ordered[T any] struct{ *queryable[T] }

func (ordered[T]) ordered() {}

type included[T, P any] struct{ *queryable[T] }

func (included[T, P]) includedReference(P) {}

type includedMany[T, P any] struct{ *queryable[T] }

func (includedMany[T, P]) includedCollection(P) {}

// New starts a query over source, executed by provider.
func New[T any](source *expr.Source, provider Provider) Queryable[T] {
	src := *source
	if src.Elem == "" {
		src.Elem = expr.TypeOf[T]()
	}
	return &queryable[T]{expression: &src, provider: provider}
}

func extend[T any](q interface{ Provider() Provider }, call *expr.Call) *queryable[T] {
	return &queryable[T]{expression: call, provider: q.Provider()}
}

type interceptor struct {
	inner    Provider
	rewriter Rewriter
}

func (i *interceptor) Execute(ctx context.Context, e expr.Expr) ([]any, error) {
	rewritten, err := i.rewriter.Rewrite(e)
	if err != nil {
		return nil, fmt.Errorf("rewriting query: %w", err)
	}
	return i.inner.Execute(ctx, rewritten)
}

// InterceptWith returns q bound to a provider that rewrites every expression
// before delegating to q's provider. Operators chained onto the result keep
// the interception, and the rewrite runs once per execution.
func InterceptWith[T any](q Queryable[T], r Rewriter) Queryable[T] {
	return &queryable[T]{
		expression: q.Expression(),
		provider:   &interceptor{inner: q.Provider(), rewriter: r},
	}
}

// ToSlice executes q and decodes every element into T.
func ToSlice[T any](ctx context.Context, q Queryable[T]) ([]T, error) {
	items, err := q.Provider().Execute(ctx, q.Expression())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		v, err := utils.Decode[T](item)
		if err != nil {
			return nil, fmt.Errorf("decoding element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// First executes q limited to one element. The boolean is false when q is empty.
func First[T any](ctx context.Context, q Queryable[T]) (T, bool, error) {
	var zero T
	items, err := ToSlice(ctx, Take(q, 1))
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// Count executes q and returns the number of elements.
func Count[T any](ctx context.Context, q Queryable[T]) (int, error) {
	items, err := q.Provider().Execute(ctx, q.Expression())
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
