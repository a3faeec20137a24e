package sqlite

import (
	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/spec"
)

// Table returns a query over the rows of the registered schema name, decoded
// as T.
func Table[T any](p *Provider, name string) queryable.Queryable[T] {
	return queryable.New[T](&expr.Source{Name: name}, p)
}

// Apply applies s to table. Includes in s are rewritten into Preload calls
// every time the result is executed.
func Apply[B, R any](table queryable.Queryable[B], s spec.Specification[B, R]) queryable.Queryable[R] {
	return queryable.InterceptWith(s.Apply(table), Rewriter())
}
