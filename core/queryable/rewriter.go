package queryable

import (
	"github.com/asaidimu/go-specs/core/expr"
)

// MarkerHook replaces one marker call with a backend's native call. The call's
// arguments have already been rewritten.
type MarkerHook func(call *expr.Call) (expr.Expr, error)

// MarkerRewriter swaps include markers for a backend's own operations. Calls
// that are not markers are rebuilt around their rewritten arguments and
// otherwise left alone, so ordering calls nested in a navigation survive.
// A nil hook leaves its marker in place.
type MarkerRewriter struct {
	Include                    MarkerHook
	ThenIncludeAfterCollection MarkerHook
	ThenIncludeAfterReference  MarkerHook
}

// Rewrite walks e post-order and applies the hooks. A marker with an unknown
// form panics with a *MarkerShapeError.
func (r MarkerRewriter) Rewrite(e expr.Expr) (expr.Expr, error) {
	return expr.Rewrite(e, r.visit)
}

func (r MarkerRewriter) visit(e expr.Expr) (expr.Expr, error) {
	c, ok := e.(*expr.Call)
	if !ok {
		return e, nil
	}
	marker, err := Classify(c.Method)
	if err != nil {
		panic(err)
	}

	var hook MarkerHook
	switch marker {
	case MarkerInclude:
		hook = r.Include
	case MarkerThenIncludeAfterCollection:
		hook = r.ThenIncludeAfterCollection
	case MarkerThenIncludeAfterReference:
		hook = r.ThenIncludeAfterReference
	}
	if hook == nil {
		return e, nil
	}
	return hook(c)
}

// Retarget returns a copy of c invoking m instead, with the same type
// arguments and arguments.
func Retarget(c *expr.Call, m expr.Method) *expr.Call {
	return &expr.Call{
		Method:   m,
		TypeArgs: append([]string(nil), c.TypeArgs...),
		Args:     append([]expr.Expr(nil), c.Args...),
	}
}
