package sqlite

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/schema"
	"go.uber.org/zap"
)

// plan is a translated query: one SELECT plus the relations to load into
// its rows.
type plan struct {
	schema   *schema.SchemaDefinition
	sql      string
	params   []any
	aliases  bool
	includes []*include
}

// stage folds consecutive chain operations into one SELECT. An operation that
// SQL would apply before the ones already folded (a filter after a limit, for
// instance) closes the stage and opens a new one reading from it.
type stage struct {
	gen     *SqliteQuery
	logger  *zap.Logger
	from    string
	params  []any
	builder *query.QueryBuilder
	aliased bool
}

func newStage(gen *SqliteQuery, logger *zap.Logger) *stage {
	return &stage{gen: gen, logger: logger, from: gen.Table(), builder: query.NewQueryBuilder()}
}

// build checks the folded query before it becomes SQL.
func (s *stage) build() (query.QueryDSL, error) {
	if result := s.builder.Validate(); !result.IsValid {
		return query.QueryDSL{}, fmt.Errorf("%w: %w", ErrNotTranslatable, result.Errors[0])
	}
	s.logger.Debug("Folded query stage", zap.String("from", s.gen.Table()), zap.Stringer("query", s.builder))
	return s.builder.Build(), nil
}

func (s *stage) nest() error {
	dsl, err := s.build()
	if err != nil {
		return err
	}
	inner, params, err := s.gen.selectSQL(s.from, s.params, &dsl)
	if err != nil {
		return err
	}
	next := query.NewQueryBuilder()
	if dsl.Projection != nil {
		s.gen = s.gen.WithAliases(dsl.Projection.Include)
		s.aliased = true
	} else {
		for _, sort := range dsl.Sort {
			next.OrderBy(sort.Field, sort.Direction)
		}
	}
	s.from = "(" + inner + ")"
	s.params = params
	s.builder = next
	return nil
}

// sql renders the final SELECT of the stage.
func (s *stage) sql() (string, []any, error) {
	dsl, err := s.build()
	if err != nil {
		return "", nil, err
	}
	return s.gen.GenerateSelectSQL(s.from, s.params, &dsl)
}

func (s *stage) nestIf(cond bool) error {
	if cond {
		return s.nest()
	}
	return nil
}

func (p *Provider) translate(e expr.Expr) (*plan, error) {
	source, ok := expr.Root(e).(*expr.Source)
	if !ok {
		return nil, fmt.Errorf("%w: query does not start at a table", ErrNotTranslatable)
	}
	sc, err := p.schemaFor(source.Name)
	if err != nil {
		return nil, err
	}
	gen, err := p.generator(sc)
	if err != nil {
		return nil, err
	}

	st := newStage(gen, p.logger)
	var includes []*include
	var last *include

	for _, call := range expr.Chain(e) {
		if call.Method.Scope == NativeScope {
			last, includes, err = p.addInclude(sc, call, last, includes)
			if err != nil {
				return nil, err
			}
			continue
		}
		if call.Method.Scope != queryable.MarkerScope {
			return nil, fmt.Errorf("%w: %s", ErrNotTranslatable, call.Method)
		}
		if err := st.apply(call); err != nil {
			return nil, err
		}
	}

	aliases := st.aliased || st.builder.HasProjection()
	sqlQuery, params, err := st.sql()
	if err != nil {
		return nil, err
	}
	return &plan{
		schema:   sc,
		sql:      sqlQuery,
		params:   params,
		aliases:  aliases,
		includes: includes,
	}, nil
}

func (s *stage) apply(call *expr.Call) error {
	switch call.Method.Name {
	case "Where":
		l, err := translatable(call, 1)
		if err != nil {
			return err
		}
		if l.Filter == nil {
			return fmt.Errorf("%w: %s without a filter", ErrNotTranslatable, call.Method)
		}
		if ops := query.CustomOperators(l.Filter); len(ops) > 0 {
			return fmt.Errorf("%w: operator %s has no SQL form", ErrNotTranslatable, ops[0])
		}
		if err := s.nestIf(s.builder.HasPagination() || s.builder.HasProjection()); err != nil {
			return err
		}
		s.builder.Where(*l.Filter)

	case "OrderBy", "OrderByDescending":
		l, err := translatable(call, 1)
		if err != nil {
			return err
		}
		if err := s.nestIf(s.builder.HasPagination() || s.builder.HasProjection()); err != nil {
			return err
		}
		// Earlier keys stay behind the new ones as tiebreakers.
		s.builder.Reorder(l.Path, direction(call.Method.Name))

	case "ThenBy", "ThenByDescending":
		l, err := translatable(call, 1)
		if err != nil {
			return err
		}
		s.builder.ThenBy(l.Path, direction(call.Method.Name))

	case "Select":
		l, err := translatable(call, 1)
		if err != nil {
			return err
		}
		if err := s.nestIf(s.builder.HasProjection()); err != nil {
			return err
		}
		s.builder.Select(l.Fields...)

	case "Skip":
		n, err := expr.ConstantArg[uint](call, 1)
		if err != nil {
			return err
		}
		s.builder.Offset(query.Count(n))

	case "Take":
		n, err := expr.ConstantArg[uint](call, 1)
		if err != nil {
			return err
		}
		s.builder.Limit(query.Count(n))

	default:
		return fmt.Errorf("%w: %s", ErrNotTranslatable, call.Method)
	}
	return nil
}

// translatable returns the lambda at position i, refusing closures.
func translatable(call *expr.Call, i int) (*expr.Lambda, error) {
	l, err := expr.LambdaArg(call, i)
	if err != nil {
		return nil, err
	}
	if l.Err != nil {
		return nil, fmt.Errorf("%s: %w", call.Method, l.Err)
	}
	if !l.Translatable() {
		return nil, fmt.Errorf("%w: %s takes a function", ErrNotTranslatable, call.Method)
	}
	return l, nil
}

func direction(method string) query.SortDirection {
	if strings.HasSuffix(method, "Descending") {
		return query.SortDirectionDesc
	}
	return query.SortDirectionAsc
}
