package sqlite

import (
	"context"
	"fmt"
	"strconv"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/schema"
	"go.uber.org/zap"
)

// NativeScope is the method scope of the calls include markers become.
const NativeScope = "sqlite"

var (
	preloadMethod         = expr.Method{Scope: NativeScope, Name: "Preload", Form: expr.FormSequence}
	preloadThenMethod     = expr.Method{Scope: NativeScope, Name: "PreloadThen", Form: expr.FormIncludedReference}
	preloadThenEachMethod = expr.Method{Scope: NativeScope, Name: "PreloadThenEach", Form: expr.FormIncludedCollection}
)

// Rewriter maps include markers onto the provider's Preload calls.
func Rewriter() queryable.MarkerRewriter {
	return queryable.MarkerRewriter{
		Include:                    retarget(preloadMethod),
		ThenIncludeAfterReference:  retarget(preloadThenMethod),
		ThenIncludeAfterCollection: retarget(preloadThenEachMethod),
	}
}

func retarget(m expr.Method) queryable.MarkerHook {
	return func(c *expr.Call) (expr.Expr, error) {
		return queryable.Retarget(c, m), nil
	}
}

// include is one relation to load, with the relations to load below it.
type include struct {
	relation schema.RelationDefinition
	target   *schema.SchemaDefinition
	// body restricts and orders the related rows; it is rooted at a Parameter.
	body     expr.Expr
	depth    int
	children []*include
}

// addInclude adds the relation named by a Preload call to the tree. Preload
// starts at the queried table; the Then forms continue from the relation
// added last.
func (p *Provider) addInclude(root *schema.SchemaDefinition, call *expr.Call, last *include, roots []*include) (*include, []*include, error) {
	nav, err := expr.LambdaArg(call, 1)
	if err != nil {
		return nil, nil, err
	}
	if nav.Err != nil {
		return nil, nil, fmt.Errorf("%s: %w", call.Method, nav.Err)
	}
	if nav.Kind != expr.LambdaNavigation || nav.Path == "" {
		return nil, nil, fmt.Errorf("%w: %s needs a navigation path", ErrNotTranslatable, call.Method)
	}

	switch call.Method.Name {
	case preloadMethod.Name:
		node, err := p.child(root, nav, &roots, 1)
		return node, roots, err
	case preloadThenMethod.Name, preloadThenEachMethod.Name:
		if last == nil {
			return nil, nil, fmt.Errorf("%s without a preceding %s", call.Method, preloadMethod)
		}
		if limit := p.options.MaxIncludeDepth; limit > 0 && last.depth >= limit {
			return nil, nil, fmt.Errorf("include chain %s exceeds the maximum depth of %d", nav.Path, limit)
		}
		node, err := p.child(last.target, nav, &last.children, last.depth+1)
		return node, roots, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrNotTranslatable, call.Method)
	}
}

func (p *Provider) child(owner *schema.SchemaDefinition, nav *expr.Lambda, siblings *[]*include, depth int) (*include, error) {
	rel := owner.FindRelation(nav.Path)
	if rel == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, owner.Name, nav.Path)
	}
	if rel.Many != nav.Many {
		return nil, fmt.Errorf("%w: %s.%s collection mismatch", ErrUnknownRelation, owner.Name, nav.Path)
	}
	target, err := p.schemaFor(rel.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %s.%s: %w", owner.Name, rel.Name, err)
	}

	for _, existing := range *siblings {
		if existing.relation.Name == rel.Name {
			if nav.Body != nil {
				existing.body = nav.Body
			}
			return existing, nil
		}
	}
	node := &include{relation: *rel, target: target, body: nav.Body, depth: depth}
	*siblings = append(*siblings, node)
	return node, nil
}

// preload loads inc's related rows for docs in one query and attaches them
// under the relation name, then descends into inc's children.
func (p *Provider) preload(ctx context.Context, docs []schema.Document, inc *include) error {
	rel := inc.relation

	var keys []query.FilterValue
	seen := make(map[string]bool)
	for _, doc := range docs {
		v := doc[rel.LocalField]
		if v == nil {
			continue
		}
		if k := relationKey(v); !seen[k] {
			seen[k] = true
			keys = append(keys, v)
		}
	}

	var related []schema.Document
	if len(keys) > 0 {
		sqlQuery, params, err := p.relationSQL(inc, keys)
		if err != nil {
			return fmt.Errorf("relation %s: %w", rel.Name, err)
		}
		related, err = p.selectDocuments(ctx, inc.target, false, sqlQuery, params)
		if err != nil {
			return fmt.Errorf("relation %s: %w", rel.Name, err)
		}
		p.logger.Debug("Loaded relation", zap.String("relation", rel.Name), zap.Int("rows", len(related)))
	}

	for _, child := range inc.children {
		if err := p.preload(ctx, related, child); err != nil {
			return err
		}
	}

	buckets := make(map[string][]any)
	for _, r := range related {
		k := relationKey(r[rel.ForeignField])
		buckets[k] = append(buckets[k], r)
	}
	for _, doc := range docs {
		var matches []any
		if v := doc[rel.LocalField]; v != nil {
			matches = buckets[relationKey(v)]
		}
		switch {
		case rel.Many && matches == nil:
			doc[rel.Name] = []any{}
		case rel.Many:
			doc[rel.Name] = matches
		case len(matches) > 0:
			doc[rel.Name] = matches[0]
		default:
			doc[rel.Name] = nil
		}
	}
	return nil
}

func (p *Provider) relationSQL(inc *include, keys []query.FilterValue) (string, []any, error) {
	gen, err := p.generator(inc.target)
	if err != nil {
		return "", nil, err
	}
	st := newStage(gen, p.logger)

	if inc.body != nil {
		if _, ok := expr.Root(inc.body).(*expr.Parameter); !ok {
			return "", nil, fmt.Errorf("%w: include body %s", ErrNotTranslatable, expr.Format(inc.body))
		}
		for _, call := range expr.Chain(inc.body) {
			if call.Method.Scope != queryable.MarkerScope {
				return "", nil, fmt.Errorf("%w: %s", ErrNotTranslatable, call.Method)
			}
			switch call.Method.Name {
			case "Where", "OrderBy", "OrderByDescending", "ThenBy", "ThenByDescending":
			default:
				return "", nil, fmt.Errorf("%w: %s cannot be applied to an included collection", ErrNotTranslatable, call.Method)
			}
			if err := st.apply(call); err != nil {
				return "", nil, err
			}
		}
	}

	st.builder.Where(query.Field(inc.relation.ForeignField).In(keys...))
	return st.sql()
}

// relationKey identifies a key value so that 3, int64(3) and 3.0 match.
func relationKey(v any) string {
	if f, ok := query.ToFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}
