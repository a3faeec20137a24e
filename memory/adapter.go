package memory

import (
	"fmt"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/spec"
)

// nested lists the calls an include may carry on its related collection.
var nested = map[string]bool{
	"Where":             true,
	"OrderBy":           true,
	"OrderByDescending": true,
	"ThenBy":            true,
	"ThenByDescending":  true,
}

// From returns a query over items backed by a fresh Provider.
func From[T any](items []T, opts ...Option) queryable.Queryable[T] {
	return Source(NewProvider(opts...), items)
}

// Rewriter validates include markers and drops them. In memory the related
// data is already part of each element, so an include only has to be
// well formed.
func Rewriter() queryable.MarkerRewriter {
	return queryable.MarkerRewriter{
		Include:                    unwrap,
		ThenIncludeAfterCollection: unwrap,
		ThenIncludeAfterReference:  unwrap,
	}
}

// Apply applies s to items and returns the transformed query. Includes are
// accepted and have no effect on the results.
func Apply[B, R any](items []B, s spec.Specification[B, R], opts ...Option) queryable.Queryable[R] {
	return queryable.InterceptWith(s.Apply(From(items, opts...)), Rewriter())
}

func unwrap(c *expr.Call) (expr.Expr, error) {
	if err := validateNavigation(c); err != nil {
		return nil, err
	}
	return c.Args[0], nil
}

func validateNavigation(c *expr.Call) error {
	nav, err := expr.LambdaArg(c, 1)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidNavigation, c.Method, err)
	}
	if nav.Kind != expr.LambdaNavigation {
		return fmt.Errorf("%w: %s takes a navigation, got %s", ErrInvalidNavigation, c.Method, nav.Kind)
	}
	if nav.Path == "" {
		return fmt.Errorf("%w: %s has an empty path", ErrInvalidNavigation, c.Method)
	}
	if nav.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidNavigation, c.Method, nav.Err)
	}
	if nav.Body == nil {
		return nil
	}
	if _, ok := expr.Root(nav.Body).(*expr.Parameter); !ok {
		return fmt.Errorf("%w: %s does not start at the related collection", ErrInvalidNavigation, expr.Format(nav.Body))
	}
	for _, step := range expr.Chain(nav.Body) {
		if step.Method.Scope != queryable.MarkerScope || !nested[step.Method.Name] {
			return fmt.Errorf("%w: %s cannot be applied to an included collection", ErrInvalidNavigation, step.Method)
		}
		for _, arg := range step.Args[1:] {
			if l, ok := arg.(*expr.Lambda); ok && l.Err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidNavigation, step.Method, l.Err)
			}
		}
	}
	return nil
}
