package expr

import (
	"errors"
	"testing"

	"github.com/asaidimu/go-specs/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(name string, form Form, args ...Expr) *Call {
	return &Call{Method: Method{Scope: "test", Name: name, Form: form}, TypeArgs: []string{"T"}, Args: args}
}

func TestFormat(t *testing.T) {
	filter := query.CreateSimpleFilter("value", query.ComparisonOperatorGt, 1)
	tree := call("Take",
		FormSequence,
		call("Where", FormSequence, &Source{Name: "orders"}, &Lambda{Kind: LambdaPredicate, Filter: &filter}),
		&Constant{Value: uint(2)},
	)
	assert.Equal(t, "test.Take(test.Where(orders, value gt 1), 2)", Format(tree))

	nav := &Lambda{
		Kind: LambdaNavigation,
		Path: "items",
		Many: true,
		Body: call("OrderBy", FormSequence, &Parameter{Name: "items"}, &Lambda{Kind: LambdaKey, Path: "key"}),
	}
	assert.Equal(t, "items => test.OrderBy($items, key)", Format(nav))
}

func TestForm_String(t *testing.T) {
	assert.Equal(t, "included-collection", FormIncludedCollection.String())
	assert.Equal(t, "form(9)", Form(9).String())
	assert.Equal(t, "navigation", LambdaNavigation.String())
}

func TestLambda_Translatable(t *testing.T) {
	filter := query.CreateSimpleFilter("a", query.ComparisonOperatorEq, 1)
	fn := func(args ...any) (any, error) { return nil, nil }

	tests := []struct {
		name     string
		lambda   Lambda
		expected bool
	}{
		{"filter predicate", Lambda{Kind: LambdaPredicate, Filter: &filter}, true},
		{"closure predicate", Lambda{Kind: LambdaPredicate, Fn: fn}, false},
		{"field projection", Lambda{Kind: LambdaProjection, Fields: []string{"a"}}, true},
		{"closure projection", Lambda{Kind: LambdaProjection, Fn: fn}, false},
		{"path key", Lambda{Kind: LambdaKey, Path: "a"}, true},
		{"closure key", Lambda{Kind: LambdaKey, Fn: fn}, false},
		{"group result", Lambda{Kind: LambdaGroupResult, Fn: fn}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.lambda.Translatable())
		})
	}
}

func TestRewrite_PostOrder(t *testing.T) {
	inner := call("Inner", FormSequence, &Source{Name: "src"})
	outer := call("Outer", FormSequence, inner, &Lambda{
		Kind: LambdaNavigation,
		Path: "items",
		Body: call("Nested", FormSequence, &Parameter{Name: "items"}),
	})

	var visited []string
	_, err := Rewrite(outer, func(e Expr) (Expr, error) {
		if c, ok := e.(*Call); ok {
			visited = append(visited, c.Method.Name)
		}
		return e, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Inner", "Nested", "Outer"}, visited)
}

func TestRewrite_ReplacesAndPreserves(t *testing.T) {
	src := &Source{Name: "src"}
	tree := call("Outer", FormOrdered, call("Marker", FormSequence, src), &Constant{Value: 3})

	out, err := Rewrite(tree, func(e Expr) (Expr, error) {
		if c, ok := e.(*Call); ok && c.Method.Name == "Marker" {
			return c.Args[0], nil
		}
		return e, nil
	})
	require.NoError(t, err)

	rewritten, ok := out.(*Call)
	require.True(t, ok)
	assert.NotSame(t, tree, rewritten)
	assert.Same(t, src, rewritten.Args[0])
	assert.Equal(t, []string{"T"}, rewritten.TypeArgs)
	assert.Equal(t, FormOrdered, rewritten.Method.Form)

	// original untouched
	assert.Equal(t, "Marker", tree.Args[0].(*Call).Method.Name)
}

func TestRewrite_UnchangedKeepsIdentity(t *testing.T) {
	tree := call("Outer", FormSequence, call("Inner", FormSequence, &Source{Name: "src"}))
	out, err := Rewrite(tree, func(e Expr) (Expr, error) { return e, nil })
	require.NoError(t, err)
	assert.Same(t, tree, out)
}

func TestRewrite_RewritesLambdaBody(t *testing.T) {
	nav := &Lambda{Kind: LambdaNavigation, Path: "items", Body: call("Marker", FormSequence, &Parameter{Name: "items"})}
	tree := call("Include", FormSequence, &Source{Name: "src"}, nav)

	out, err := Rewrite(tree, func(e Expr) (Expr, error) {
		if c, ok := e.(*Call); ok && c.Method.Name == "Marker" {
			return call("Native", c.Method.Form, c.Args...), nil
		}
		return e, nil
	})
	require.NoError(t, err)
	body := out.(*Call).Args[1].(*Lambda).Body.(*Call)
	assert.Equal(t, "Native", body.Method.Name)
	assert.Equal(t, "Marker", nav.Body.(*Call).Method.Name)
}

func TestRewrite_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	tree := call("Outer", FormSequence, call("Inner", FormSequence, &Source{Name: "src"}))
	_, err := Rewrite(tree, func(e Expr) (Expr, error) {
		if c, ok := e.(*Call); ok && c.Method.Name == "Inner" {
			return nil, boom
		}
		return e, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestChainAndRoot(t *testing.T) {
	src := &Source{Name: "src"}
	a := call("A", FormSequence, src)
	b := call("B", FormSequence, a)
	c := call("C", FormSequence, b)

	assert.Same(t, src, Root(c))
	chain := Chain(c)
	require.Len(t, chain, 3)
	assert.Equal(t, "A", chain[0].Method.Name)
	assert.Equal(t, "C", chain[2].Method.Name)
	assert.Empty(t, Chain(src))
}

func TestArgHelpers(t *testing.T) {
	c := call("Take", FormSequence, &Source{Name: "src"}, &Constant{Value: uint(5)})

	n, err := ConstantArg[uint](c, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(5), n)

	_, err = ConstantArg[int](c, 1)
	assert.Error(t, err)
	_, err = ConstantArg[uint](c, 2)
	assert.Error(t, err)
	_, err = LambdaArg(c, 1)
	assert.Error(t, err)
}

func TestTypeOf(t *testing.T) {
	type order struct{}
	assert.Equal(t, "int", TypeOf[int]())
	assert.Equal(t, "[]string", TypeOf[[]string]())
	assert.Contains(t, TypeOf[order](), "order")
}
