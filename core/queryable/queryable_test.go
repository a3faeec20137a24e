package queryable

import (
	"context"
	"errors"
	"testing"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type item struct {
	ID    int       `json:"id"`
	Value int       `json:"value"`
	Owner *customer `json:"owner,omitempty"`
}

type order struct {
	ID       int       `json:"id"`
	Value    int       `json:"value"`
	Customer *customer `json:"customer,omitempty"`
	Items    []item    `json:"items,omitempty"`
}

type tag struct {
	Label string `json:"label"`
}

type tagged struct {
	Tags []tag `json:"tags"`
	Tag  *tag  `json:"tag"`
}

type shipment struct {
	Owner  tagged   `json:"owner"`
	Owners []tagged `json:"owners"`
}

type recordingProvider struct {
	seen  []expr.Expr
	items []any
	err   error
}

func (p *recordingProvider) Execute(ctx context.Context, e expr.Expr) ([]any, error) {
	p.seen = append(p.seen, e)
	return p.items, p.err
}

func source[T any](p Provider) Queryable[T] {
	return New[T](&expr.Source{Name: "src"}, p)
}

func TestOperators_RecordCalls(t *testing.T) {
	p := &recordingProvider{}
	q := Take(
		Skip(
			ThenByDescending(
				OrderBy(
					Where(source[order](p), Filter[order](query.Field("value").Gt(1))),
					Field[order]("value"),
				),
				Field[order]("id"),
			),
			1,
		),
		2,
	)

	chain := expr.Chain(q.Expression())
	require.Len(t, chain, 5)
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Method.Name
		assert.Equal(t, MarkerScope, c.Method.Scope)
	}
	assert.Equal(t, []string{"Where", "OrderBy", "ThenByDescending", "Skip", "Take"}, names)
	assert.Equal(t, expr.FormOrdered, chain[2].Method.Form)
	assert.Equal(t, expr.FormSequence, chain[1].Method.Form)

	root, ok := expr.Root(q.Expression()).(*expr.Source)
	require.True(t, ok)
	assert.Equal(t, expr.TypeOf[order](), root.Elem)
	assert.Same(t, p, q.Provider())
}

func TestInclude_Forms(t *testing.T) {
	p := &recordingProvider{}
	q := source[order](p)

	ref := Include(q, Reference[order, customer]("customer"))
	many := IncludeMany(q, Collection[order, item]("items"))

	assert.Equal(t, includeMethod, ref.Expression().(*expr.Call).Method)
	assert.Equal(t, includeMethod, many.Expression().(*expr.Call).Method)

	afterRef := ThenInclude(Include(source[shipment](p), Reference[shipment, tagged]("owner")), Reference[tagged, tag]("tag"))
	assert.Equal(t, expr.FormIncludedReference, afterRef.Expression().(*expr.Call).Method.Form)

	afterMany := ThenIncludeEach(IncludeMany(source[shipment](p), Collection[shipment, tagged]("owners")), Reference[tagged, tag]("tag"))
	assert.Equal(t, expr.FormIncludedCollection, afterMany.Expression().(*expr.Call).Method.Form)
	assert.Len(t, afterMany.Expression().(*expr.Call).TypeArgs, 3)

	eachMany := ThenIncludeEachMany(IncludeMany(source[shipment](p), Collection[shipment, tagged]("owners")), Collection[tagged, tag]("tags"))
	assert.Equal(t, expr.FormIncludedCollection, eachMany.Expression().(*expr.Call).Method.Form)

	refMany := ThenIncludeMany(Include(source[shipment](p), Reference[shipment, tagged]("owner")), Collection[tagged, tag]("tags"))
	assert.Equal(t, expr.FormIncludedReference, refMany.Expression().(*expr.Call).Method.Form)
}

func TestInclude_ContinuationTypesAreDistinct(t *testing.T) {
	p := &recordingProvider{}
	ref := Include(source[order](p), Reference[order, customer]("customer"))
	many := IncludeMany(source[order](p), Collection[order, item]("items"))

	var _ Included[order, customer] = ref
	var _ IncludedMany[order, item] = many

	_, isMany := any(ref).(IncludedMany[order, customer])
	assert.False(t, isMany, "a reference include must not accept collection continuations")
	_, isRef := any(many).(Included[order, item])
	assert.False(t, isRef, "a collection include must not accept reference continuations")
	_, isOrdered := any(ref).(Ordered[order])
	assert.False(t, isOrdered)
}

func TestSelectors_Validation(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		valid bool
	}{
		{"reference", Reference[order, customer]("customer").lambda.Err, true},
		{"collection", Collection[order, item]("items").lambda.Err, true},
		{"reference to collection", Reference[order, item]("items").lambda.Err, false},
		{"collection to reference", Collection[order, customer]("customer").lambda.Err, false},
		{"unknown field", Reference[order, customer]("buyer").lambda.Err, false},
		{"empty path", Collection[order, item]("").lambda.Err, false},
		{"nested key", Field[order]("customer.name").lambda.Err, true},
		{"bad key", Field[order]("nope").lambda.Err, false},
		{"document key", Field[schema.Document]("anything").lambda.Err, true},
		{"bad filter", Filter[order](query.QueryFilter{}).lambda.Err, false},
		{"fields", Fields[order, customer]("id").lambda.Err, true},
		{"bad fields", Fields[order, customer]("id", "zzz").lambda.Err, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.valid {
				assert.NoError(t, tt.err)
			} else {
				assert.ErrorIs(t, tt.err, ErrInvalidSelector)
			}
		})
	}
}

func TestMany_NestedOrdering(t *testing.T) {
	nav := Collection[order, item]("items").
		Where(Filter[item](query.Field("value").Gt(0))).
		ThenBy(Field[item]("value")).
		ThenByDescending(Field[item]("id"))

	assert.Equal(t, "items => queryable.ThenByDescending(queryable.OrderBy(queryable.Where($items, value gt 0), value), id)", expr.Format(nav.lambda))

	plain := Collection[order, item]("items")
	assert.Nil(t, plain.lambda.Body, "ordering builds a new navigation")
}

func TestFuncSelectors(t *testing.T) {
	pred := Func(func(o order) bool { return o.Value > 2 })
	ok, err := pred.lambda.Fn(schema.Document{"value": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	key := KeyFunc(func(o order) string { return o.Customer.Name })
	v, err := key.lambda.Fn(order{Customer: &customer{Name: "ada"}})
	require.NoError(t, err)
	assert.Equal(t, "ada", v)

	flat := EachFunc(func(o order) []item { return o.Items })
	items, err := flat.lambda.Fn(order{Items: []item{{ID: 1}, {ID: 2}}})
	require.NoError(t, err)
	assert.Equal(t, []any{item{ID: 1}, item{ID: 2}}, items)

	_, err = pred.lambda.Fn("not an order")
	assert.Error(t, err)
}

func TestGroupBy_ResultSelectors(t *testing.T) {
	p := &recordingProvider{}
	grouped := GroupBy(source[order](p), GroupField[order, int]("value"))
	c := grouped.Expression().(*expr.Call)
	require.Len(t, c.Args, 4)

	result := c.Args[3].(*expr.Lambda)
	g, err := result.Fn(float64(1), []any{order{ID: 1}, schema.Document{"id": float64(2)}})
	require.NoError(t, err)
	assert.Equal(t, Grouping[int, order]{Key: 1, Items: []order{{ID: 1}, {ID: 2}}}, g)

	_, err = result.Fn(1)
	assert.Error(t, err)

	counts := GroupByResult(source[order](p), GroupFunc(func(o order) int { return o.Value }), func(k int, members []order) int {
		return k * len(members)
	})
	out, err := counts.Expression().(*expr.Call).Args[3].(*expr.Lambda).Fn(3, []any{order{}, order{}})
	require.NoError(t, err)
	assert.Equal(t, 6, out)

	elem := c.Args[2].(*expr.Lambda)
	assert.Equal(t, expr.LambdaGroupElement, elem.Kind)
	assert.Nil(t, elem.Fn)
}

func TestToSlice(t *testing.T) {
	p := &recordingProvider{items: []any{schema.Document{"id": float64(1), "value": float64(3)}, order{ID: 2}}}
	out, err := ToSlice(context.Background(), source[order](p))
	require.NoError(t, err)
	assert.Equal(t, []order{{ID: 1, Value: 3}, {ID: 2}}, out)

	first, ok, err := First(context.Background(), source[order](p))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, first.ID)
	last := p.seen[len(p.seen)-1].(*expr.Call)
	assert.Equal(t, "Take", last.Method.Name)

	n, err := Count(context.Background(), source[order](p))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty := &recordingProvider{}
	_, ok, err = First(context.Background(), source[order](empty))
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	_, err = ToSlice(context.Background(), source[order](&recordingProvider{err: boom}))
	assert.ErrorIs(t, err, boom)

	_, err = ToSlice(context.Background(), source[order](&recordingProvider{items: []any{"bad"}}))
	assert.Error(t, err)
}

type countingRewriter struct {
	calls int
}

func (r *countingRewriter) Rewrite(e expr.Expr) (expr.Expr, error) {
	r.calls++
	return &expr.Call{Method: expr.Method{Scope: "test", Name: "Rewritten"}, Args: []expr.Expr{e}}, nil
}

func TestInterceptWith(t *testing.T) {
	p := &recordingProvider{}
	r := &countingRewriter{}
	q := InterceptWith(source[order](p), r)
	q = Take(Where(q, Filter[order](query.Field("id").Eq(1))), 1)

	_, err := ToSlice(context.Background(), q)
	require.NoError(t, err)
	_, err = ToSlice(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, 2, r.calls, "rewrite runs once per execution")
	require.Len(t, p.seen, 2)
	rewritten := p.seen[0].(*expr.Call)
	assert.Equal(t, "Rewritten", rewritten.Method.Name)
	assert.Equal(t, "Take", rewritten.Args[0].(*expr.Call).Method.Name)
}

type failingRewriter struct{}

func (failingRewriter) Rewrite(expr.Expr) (expr.Expr, error) { return nil, errors.New("nope") }

func TestInterceptWith_Error(t *testing.T) {
	p := &recordingProvider{}
	_, err := ToSlice(context.Background(), InterceptWith(source[order](p), failingRewriter{}))
	assert.ErrorContains(t, err, "rewriting query")
	assert.Empty(t, p.seen)
}
