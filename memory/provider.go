// Package memory executes queries over in-process slices. Include markers are
// checked and then dropped: everything is already loaded.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/utils"
	"go.uber.org/zap"
)

var (
	// ErrInvalidNavigation is returned when an include names a navigation the
	// element type does not have or nests anything but filtering and ordering.
	ErrInvalidNavigation = errors.New("invalid navigation")
	// ErrUnsupportedOperation is returned for calls this provider does not know.
	ErrUnsupportedOperation = errors.New("unsupported in-memory operation")
)

// Provider evaluates expression trees against slices.
type Provider struct {
	processor *query.DataProcessor
	logger    *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessor evaluates filters with processor, which may carry custom
// operators.
func WithProcessor(processor *query.DataProcessor) Option {
	return func(p *Provider) {
		if processor != nil {
			p.processor = processor
		}
	}
}

// NewProvider creates a Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.processor == nil {
		p.processor = query.NewDataProcessor(p.logger)
	}
	return p
}

// Source returns a query over items executed by p.
func Source[T any](p *Provider, items []T) queryable.Queryable[T] {
	values := make([]any, len(items))
	for i := range items {
		values[i] = items[i]
	}
	return queryable.New[T](&expr.Source{Name: "memory", Value: values}, p)
}

// Execute evaluates e. Include markers must have been rewritten away.
func (p *Provider) Execute(ctx context.Context, e expr.Expr) ([]any, error) {
	if err := queryable.CheckNoMarkers(e); err != nil {
		return nil, err
	}
	p.logger.Debug("Executing in-memory query", zap.String("expression", expr.Format(e)))
	items, err := p.eval(ctx, e)
	if err != nil {
		p.logger.Error("In-memory query failed", zap.Error(err))
		return nil, err
	}
	// Sources, skips and takes reslice their input.
	return slices.Clone(items), nil
}

func (p *Provider) eval(ctx context.Context, e expr.Expr) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := e.(type) {
	case *expr.Source:
		items, ok := n.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: source %s holds %T", ErrUnsupportedOperation, n.Name, n.Value)
		}
		return items, nil
	case *expr.Call:
		return p.evalCall(ctx, n)
	default:
		return nil, fmt.Errorf("%w: cannot evaluate %T", ErrUnsupportedOperation, e)
	}
}

func (p *Provider) evalCall(ctx context.Context, c *expr.Call) ([]any, error) {
	if c.Method.Scope != queryable.MarkerScope || len(c.Args) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.Method)
	}
	for _, arg := range c.Args[1:] {
		if l, ok := arg.(*expr.Lambda); ok && l.Err != nil {
			return nil, fmt.Errorf("%s: %w", c.Method, l.Err)
		}
	}

	switch c.Method.Name {
	case "OrderBy", "OrderByDescending", "ThenBy", "ThenByDescending":
		return p.evalSort(ctx, c)
	}

	input, err := p.eval(ctx, c.Args[0])
	if err != nil {
		return nil, err
	}

	switch c.Method.Name {
	case "Where":
		l, err := expr.LambdaArg(c, 1)
		if err != nil {
			return nil, err
		}
		return p.filter(ctx, input, l)
	case "Select":
		l, err := expr.LambdaArg(c, 1)
		if err != nil {
			return nil, err
		}
		return p.project(input, l)
	case "SelectMany":
		l, err := expr.LambdaArg(c, 1)
		if err != nil {
			return nil, err
		}
		return p.flatten(input, l)
	case "Skip":
		n, err := expr.ConstantArg[uint](c, 1)
		if err != nil {
			return nil, err
		}
		return input[int(min(n, uint(len(input)))):], nil
	case "Take":
		n, err := expr.ConstantArg[uint](c, 1)
		if err != nil {
			return nil, err
		}
		return input[:int(min(n, uint(len(input))))], nil
	case "GroupBy":
		return p.group(input, c)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.Method)
	}
}

func (p *Provider) filter(ctx context.Context, input []any, l *expr.Lambda) ([]any, error) {
	if l.Filter != nil {
		if ops := p.processor.Unregistered(l.Filter); len(ops) > 0 {
			return nil, fmt.Errorf("%w: no filter function for operator %s", ErrUnsupportedOperation, ops[0])
		}
	}
	out := make([]any, 0, len(input))
	for _, item := range input {
		var keep bool
		switch {
		case l.Fn != nil:
			v, err := l.Fn(item)
			if err != nil {
				return nil, fmt.Errorf("evaluating predicate: %w", err)
			}
			keep, _ = v.(bool)
		case l.Filter != nil:
			doc, err := utils.ToDocument(item)
			if err != nil {
				return nil, err
			}
			keep, err = p.processor.Match(ctx, l.Filter, doc)
			if err != nil {
				return nil, fmt.Errorf("evaluating filter: %w", err)
			}
		default:
			return nil, fmt.Errorf("predicate has neither a filter nor a function")
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

type sortKey struct {
	lambda *expr.Lambda
	desc   bool
}

// evalSort evaluates a run of OrderBy/ThenBy calls as one stable sort.
func (p *Provider) evalSort(ctx context.Context, c *expr.Call) ([]any, error) {
	var keys []sortKey
	current := c
	for {
		l, err := expr.LambdaArg(current, 1)
		if err != nil {
			return nil, err
		}
		name := current.Method.Name
		keys = append(keys, sortKey{lambda: l, desc: name == "OrderByDescending" || name == "ThenByDescending"})
		if name == "OrderBy" || name == "OrderByDescending" {
			break
		}
		prev, ok := current.Args[0].(*expr.Call)
		if !ok {
			return nil, fmt.Errorf("%s without a preceding OrderBy", name)
		}
		current = prev
	}
	slices.Reverse(keys)

	input, err := p.eval(ctx, current.Args[0])
	if err != nil {
		return nil, err
	}
	return sortItems(input, keys)
}

func sortItems(input []any, keys []sortKey) ([]any, error) {
	type row struct {
		item   any
		values []any
	}
	rows := make([]row, len(input))
	for i, item := range input {
		values := make([]any, len(keys))
		for k, key := range keys {
			v, err := selectValue(item, key.lambda)
			if err != nil {
				return nil, fmt.Errorf("evaluating sort key: %w", err)
			}
			values[k] = v
		}
		rows[i] = row{item: item, values: values}
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		for k, key := range keys {
			c := query.Compare(a.values[k], b.values[k])
			if key.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out, nil
}

// selectValue applies a key-like lambda to item: its function if it has one,
// otherwise its path.
func selectValue(item any, l *expr.Lambda) (any, error) {
	if l.Fn != nil {
		return l.Fn(item)
	}
	if l.Path == "" {
		return item, nil
	}
	doc, err := utils.ToDocument(item)
	if err != nil {
		return nil, err
	}
	v, _ := utils.Lookup(doc, l.Path)
	return v, nil
}

func (p *Provider) project(input []any, l *expr.Lambda) ([]any, error) {
	out := make([]any, 0, len(input))
	for _, item := range input {
		v, err := p.projectOne(item, l)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Provider) projectOne(item any, l *expr.Lambda) (any, error) {
	switch {
	case l.Fn != nil:
		v, err := l.Fn(item)
		if err != nil {
			return nil, fmt.Errorf("evaluating projection: %w", err)
		}
		return v, nil
	case len(l.Fields) > 0:
		doc, err := utils.ToDocument(item)
		if err != nil {
			return nil, err
		}
		return p.processor.Project(doc, query.CreateProjectionConfig().AddIncludeFields(l.Fields...)), nil
	default:
		return item, nil
	}
}

func (p *Provider) flatten(input []any, l *expr.Lambda) ([]any, error) {
	var out []any
	for _, item := range input {
		v, err := selectValue(item, l)
		if err != nil {
			return nil, fmt.Errorf("evaluating flatten selector: %w", err)
		}
		if v == nil {
			continue
		}
		members, ok := asSlice(v)
		if !ok {
			return nil, fmt.Errorf("flatten selector produced %T, not a sequence", v)
		}
		out = append(out, members...)
	}
	return out, nil
}

func (p *Provider) group(input []any, c *expr.Call) ([]any, error) {
	if len(c.Args) != 4 {
		return nil, fmt.Errorf("%s: expected key, element and result selectors", c.Method)
	}
	keyLambda, err := expr.LambdaArg(c, 1)
	if err != nil {
		return nil, err
	}
	elemLambda, err := expr.LambdaArg(c, 2)
	if err != nil {
		return nil, err
	}
	resultLambda, err := expr.LambdaArg(c, 3)
	if err != nil {
		return nil, err
	}
	if resultLambda.Fn == nil {
		return nil, fmt.Errorf("%s: result selector has no function", c.Method)
	}

	type bucket struct {
		key     any
		members []any
	}
	var order []*bucket
	index := make(map[string]*bucket)
	for _, item := range input {
		key, err := selectValue(item, keyLambda)
		if err != nil {
			return nil, fmt.Errorf("evaluating group key: %w", err)
		}
		id, err := groupID(key)
		if err != nil {
			return nil, err
		}
		member, err := p.projectOne(item, elemLambda)
		if err != nil {
			return nil, err
		}
		b, ok := index[id]
		if !ok {
			b = &bucket{key: key}
			index[id] = b
			order = append(order, b)
		}
		b.members = append(b.members, member)
	}

	out := make([]any, 0, len(order))
	for _, b := range order {
		v, err := resultLambda.Fn(b.key, b.members)
		if err != nil {
			return nil, fmt.Errorf("evaluating group result: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// groupID gives equal keys the same identity regardless of their Go numeric
// type.
func groupID(key any) (string, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("group key %v cannot be compared: %w", key, err)
	}
	return string(b), nil
}

func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
