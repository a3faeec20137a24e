package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/schema"
	"github.com/asaidimu/go-specs/core/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type item struct {
	SKU   string `json:"sku"`
	Price int    `json:"price"`
}

type order struct {
	ID       int       `json:"id"`
	Region   string    `json:"region"`
	Value    int       `json:"value"`
	Customer *customer `json:"customer,omitempty"`
	Items    []item    `json:"items,omitempty"`
}

type summary struct {
	ID    int `json:"id"`
	Value int `json:"value"`
}

func fixtures() []order {
	alice := &customer{ID: 1, Name: "alice"}
	bob := &customer{ID: 2, Name: "bob"}
	return []order{
		{ID: 1, Region: "north", Value: 30, Customer: alice, Items: []item{{SKU: "c", Price: 9}, {SKU: "a", Price: 2}, {SKU: "b", Price: 7}}},
		{ID: 2, Region: "south", Value: 10, Customer: bob},
		{ID: 3, Region: "north", Value: 20, Customer: bob, Items: []item{{SKU: "d", Price: 4}}},
		{ID: 4, Region: "east", Value: 20, Customer: alice},
	}
}

func ids(orders []order) []int {
	out := make([]int, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestApply_Integers(t *testing.T) {
	ctx := context.Background()
	data := []int{3, 1, 4, 1, 5}

	s := spec.Of(spec.Take(
		spec.OrderBy(
			spec.Where(spec.Base[int](), queryable.Func(func(n int) bool { return n > 1 })),
			queryable.KeyFunc(func(n int) int { return n }),
		), 2))

	got, err := queryable.ToSlice(ctx, Apply(data, s))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)

	paged := spec.Of(spec.Take(spec.Skip(spec.Base[int](), 10), 5))
	got, err = queryable.ToSlice(ctx, Apply(data, paged))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApply_Operators(t *testing.T) {
	ctx := context.Background()
	base := spec.Base[order]()

	tests := []struct {
		name string
		spec spec.Specification[order, order]
		want []int
	}{
		{"empty", spec.New[order](), []int{1, 2, 3, 4}},
		{"filter", spec.Of(spec.Where(base, queryable.Filter[order](query.Field("value").Gte(20)))), []int{1, 3, 4}},
		{"nested filter", spec.Of(spec.Where(base, queryable.Filter[order](query.Field("customer.name").Eq("bob")))), []int{2, 3}},
		{"or filter", spec.Of(spec.Where(base, queryable.Filter[order](query.Or(
			query.Field("region").Eq("east"),
			query.Field("value").Lt(15),
		)))), []int{2, 4}},
		{"order by", spec.Of(spec.OrderBy(base, queryable.Field[order]("value"))), []int{2, 3, 4, 1}},
		{"order by descending then by", spec.Of(spec.ThenByDescending(
			spec.OrderByDescending(base, queryable.Field[order]("value")),
			queryable.Field[order]("id"),
		)), []int{1, 4, 3, 2}},
		{"then by breaks ties", spec.Of(spec.ThenBy(
			spec.OrderBy(base, queryable.Field[order]("region")),
			queryable.Field[order]("value"),
		)), []int{4, 3, 1, 2}},
		{"skip and take", spec.Of(spec.Take(spec.Skip(base, 1), 2)), []int{2, 3}},
		{"take more than available", spec.Of(spec.Take(base, 99)), []int{1, 2, 3, 4}},
		{"filter after take", spec.Of(spec.Where(spec.Take(base, 2), queryable.Filter[order](query.Field("value").Gt(15)))), []int{1}},
		{"reorder then by", spec.Of(spec.ThenByDescending(
			spec.OrderBy(spec.OrderByDescending(base, queryable.Field[order]("region")), queryable.Field[order]("value")),
			queryable.Field[order]("id"),
		)), []int{2, 4, 3, 1}},
		{"skip everything", spec.Of(spec.Skip(base, ^uint(0))), []int{}},
		{"skip past max int", spec.Of(spec.Skip(base, 1<<63)), []int{}},
		{"take everything", spec.Of(spec.Take(base, ^uint(0))), []int{1, 2, 3, 4}},
		{"take after huge skip", spec.Of(spec.Take(spec.Skip(base, 1<<63), ^uint(0))), []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := queryable.ToSlice(ctx, Apply(fixtures(), tt.spec))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestApply_SortIsStable(t *testing.T) {
	s := spec.Of(spec.OrderBy(spec.Base[order](), queryable.Field[order]("customer.name")))
	got, err := queryable.ToSlice(context.Background(), Apply(fixtures(), s))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2, 3}, ids(got))
}

func TestApply_Projection(t *testing.T) {
	ctx := context.Background()

	fields := spec.Of(spec.Select(
		spec.Where(spec.Base[order](), queryable.Filter[order](query.Field("region").Eq("north"))),
		queryable.Fields[order, summary]("id", "value"),
	))
	got, err := queryable.ToSlice(ctx, Apply(fixtures(), fields))
	require.NoError(t, err)
	assert.Equal(t, []summary{{ID: 1, Value: 30}, {ID: 3, Value: 20}}, got)

	mapped := spec.Of(spec.Select(spec.Base[order](), queryable.Map(func(o order) string { return o.Region })))
	regions, err := queryable.ToSlice(ctx, Apply(fixtures(), mapped))
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south", "north", "east"}, regions)
}

func TestApply_FilterAfterProjection(t *testing.T) {
	ctx := context.Background()

	s := spec.Of(spec.Where(
		spec.Select(spec.Base[order](), queryable.Fields[order, summary]("id", "value")),
		queryable.Filter[summary](query.Field("value").Gte(20)),
	))
	got, err := queryable.ToSlice(ctx, Apply(fixtures(), s))
	require.NoError(t, err)

	var want []summary
	for _, o := range fixtures() {
		if projected := (summary{ID: o.ID, Value: o.Value}); projected.Value >= 20 {
			want = append(want, projected)
		}
	}
	assert.Equal(t, want, got)
}

func TestApply_CustomOperator(t *testing.T) {
	processor := query.NewDataProcessor(nil)
	processor.RegisterFilterFunction("prefix", func(doc schema.Document, field string, args query.FilterValue) (bool, error) {
		s, _ := doc[field].(string)
		prefix, _ := args.(string)
		return strings.HasPrefix(s, prefix), nil
	})

	s := spec.Of(spec.Where(spec.Base[order](), queryable.Filter[order](query.Field("region").Custom("prefix", "no"))))
	got, err := queryable.ToSlice(context.Background(), Apply(fixtures(), s, WithProcessor(processor)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids(got))
}

func TestProvider_ExecuteReturnsFreshSlice(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()
	source := Source(p, []int{1, 2, 3})

	for name, q := range map[string]queryable.Queryable[int]{
		"source": source,
		"skip":   queryable.Skip(source, 1),
		"take":   queryable.Take(source, 2),
	} {
		t.Run(name, func(t *testing.T) {
			first, err := p.Execute(ctx, q.Expression())
			require.NoError(t, err)
			want := append([]any(nil), first...)
			first[0] = 99

			again, err := p.Execute(ctx, q.Expression())
			require.NoError(t, err)
			assert.Equal(t, want, again)
		})
	}
}

func TestApply_SelectMany(t *testing.T) {
	ctx := context.Background()

	byPath := spec.Of(spec.SelectMany(spec.Base[order](), queryable.Each[order, item]("items")))
	got, err := queryable.ToSlice(ctx, Apply(fixtures(), byPath))
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, "c", got[0].SKU)

	byFunc := spec.Of(spec.SelectMany(spec.Base[order](), queryable.EachFunc(func(o order) []item { return o.Items })))
	again, err := queryable.ToSlice(ctx, Apply(fixtures(), byFunc))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestApply_GroupBy(t *testing.T) {
	ctx := context.Background()

	groups, err := queryable.ToSlice(ctx, Apply(fixtures(),
		spec.Of(spec.GroupBy(spec.Base[order](), queryable.GroupField[order, string]("region")))))
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"north", "south", "east"}, []string{groups[0].Key, groups[1].Key, groups[2].Key})
	assert.Equal(t, []int{1, 3}, ids(groups[0].Items))

	totals, err := queryable.ToSlice(ctx, Apply(fixtures(),
		spec.Of(spec.GroupByElementResult(
			spec.Base[order](),
			queryable.GroupFunc(func(o order) int { return o.Value }),
			queryable.Map(func(o order) int { return o.ID }),
			func(value int, members []int) summary { return summary{ID: len(members), Value: value} },
		))))
	require.NoError(t, err)
	assert.Equal(t, []summary{{ID: 1, Value: 30}, {ID: 1, Value: 10}, {ID: 2, Value: 20}}, totals)
}

func TestApply_IncludesDoNotChangeResults(t *testing.T) {
	ctx := context.Background()
	plain := spec.Of(spec.OrderBy(spec.Base[order](), queryable.Field[order]("value")))

	withCustomer := spec.Of(spec.Include(plain.Query(), queryable.Reference[order, customer]("customer")))
	withItems := spec.Of(spec.IncludeMany(plain.Query(),
		queryable.Collection[order, item]("items").
			Where(queryable.Filter[item](query.Field("price").Gt(3))).
			OrderBy(queryable.Field[item]("price"))))

	want, err := queryable.ToSlice(ctx, Apply(fixtures(), plain))
	require.NoError(t, err)

	for name, s := range map[string]spec.Specification[order, order]{
		"reference":  withCustomer,
		"collection": withItems,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := queryable.ToSlice(ctx, Apply(fixtures(), s))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestApply_ErrorCases(t *testing.T) {
	ctx := context.Background()

	t.Run("markers without the adapter", func(t *testing.T) {
		s := spec.Of(spec.Include(spec.Base[order](), queryable.Reference[order, customer]("customer")))
		_, err := queryable.ToSlice(ctx, s.Apply(From(fixtures())))
		assert.ErrorIs(t, err, queryable.ErrUnhandledMarker)
	})

	t.Run("unknown navigation", func(t *testing.T) {
		s := spec.Of(spec.Include(spec.Base[order](), queryable.Reference[order, customer]("buyer")))
		_, err := queryable.ToSlice(ctx, Apply(fixtures(), s))
		assert.ErrorIs(t, err, ErrInvalidNavigation)
	})

	t.Run("invalid filter", func(t *testing.T) {
		s := spec.Of(spec.Where(spec.Base[order](), queryable.Filter[order](query.QueryFilter{})))
		_, err := queryable.ToSlice(ctx, Apply(fixtures(), s))
		assert.ErrorIs(t, err, queryable.ErrInvalidSelector)
	})

	t.Run("unregistered operator", func(t *testing.T) {
		s := spec.Of(spec.Where(spec.Base[order](), queryable.Filter[order](query.Field("region").Custom("soundex", "nort"))))
		_, err := queryable.ToSlice(ctx, Apply(nil, s))
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := queryable.ToSlice(cancelled, Apply(fixtures(), spec.New[order]()))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestApply_SharedSpecification(t *testing.T) {
	ctx := context.Background()
	base := spec.Of(spec.Where(spec.Base[order](), queryable.Filter[order](query.Field("value").Gte(20))))
	narrowed := base.With(func(q spec.Query[order, order]) spec.Query[order, order] { return spec.Take(q, 1) })

	all, err := queryable.ToSlice(ctx, Apply(fixtures(), base))
	require.NoError(t, err)
	one, err := queryable.ToSlice(ctx, Apply(fixtures(), narrowed))
	require.NoError(t, err)
	again, err := queryable.ToSlice(ctx, Apply(fixtures(), base))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4}, ids(all))
	assert.Equal(t, []int{1}, ids(one))
	assert.Equal(t, all, again)
}
