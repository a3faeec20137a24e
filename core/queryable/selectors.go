package queryable

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/utils"
)

// ErrInvalidSelector marks a selector that does not fit its element type.
var ErrInvalidSelector = errors.New("invalid selector")

// Predicate selects elements of T. Build one from a filter (translatable) or a
// function (in-process only).
type Predicate[T any] struct{ lambda *expr.Lambda }

func (p Predicate[T]) Lambda() *expr.Lambda { return p.lambda }

// Filter returns a predicate described by a query filter.
func Filter[T any](f query.QueryFilter) Predicate[T] {
	l := &expr.Lambda{Kind: expr.LambdaPredicate, In: expr.TypeOf[T](), Out: "bool", Filter: &f}
	if err := query.ValidateFilter(f); err != nil {
		l.Err = fmt.Errorf("%w: %w", ErrInvalidSelector, err)
	}
	return Predicate[T]{lambda: l}
}

// Func returns a predicate that runs fn in process.
func Func[T any](fn func(T) bool) Predicate[T] {
	return Predicate[T]{lambda: &expr.Lambda{
		Kind: expr.LambdaPredicate,
		In:   expr.TypeOf[T](),
		Out:  "bool",
		Fn: func(args ...any) (any, error) {
			v, err := utils.Decode[T](args[0])
			if err != nil {
				return nil, err
			}
			return fn(v), nil
		},
	}}
}

// Key extracts an ordering key from T.
type Key[T any] struct{ lambda *expr.Lambda }

func (k Key[T]) Lambda() *expr.Lambda { return k.lambda }

// Field orders by the value at path.
func Field[T any](path string) Key[T] {
	return Key[T]{lambda: &expr.Lambda{Kind: expr.LambdaKey, In: expr.TypeOf[T](), Path: path, Err: checkPath[T](path)}}
}

// KeyFunc orders by the value fn returns.
func KeyFunc[T, K any](fn func(T) K) Key[T] {
	return Key[T]{lambda: &expr.Lambda{
		Kind: expr.LambdaKey,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[K](),
		Fn:   unary(fn),
	}}
}

// Projection maps T to R.
type Projection[T, R any] struct{ lambda *expr.Lambda }

func (p Projection[T, R]) Lambda() *expr.Lambda { return p.lambda }

// Fields projects onto the named fields; the result decodes into R by those
// names.
func Fields[T, R any](fields ...string) Projection[T, R] {
	l := &expr.Lambda{Kind: expr.LambdaProjection, In: expr.TypeOf[T](), Out: expr.TypeOf[R](), Fields: fields}
	for _, f := range fields {
		if err := checkPath[T](f); err != nil {
			l.Err = err
			break
		}
	}
	return Projection[T, R]{lambda: l}
}

// Map projects each element with fn.
func Map[T, R any](fn func(T) R) Projection[T, R] {
	return Projection[T, R]{lambda: &expr.Lambda{
		Kind: expr.LambdaProjection,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[R](),
		Fn:   unary(fn),
	}}
}

// Flattening maps T to a sequence of R.
type Flattening[T, R any] struct{ lambda *expr.Lambda }

func (f Flattening[T, R]) Lambda() *expr.Lambda { return f.lambda }

// Each flattens the collection stored at path.
func Each[T, R any](path string) Flattening[T, R] {
	return Flattening[T, R]{lambda: &expr.Lambda{
		Kind: expr.LambdaFlatten,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[[]R](),
		Path: path,
		Many: true,
		Err:  checkPath[T](path),
	}}
}

// EachFunc flattens the slices fn returns.
func EachFunc[T, R any](fn func(T) []R) Flattening[T, R] {
	return Flattening[T, R]{lambda: &expr.Lambda{
		Kind: expr.LambdaFlatten,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[[]R](),
		Many: true,
		Fn: func(args ...any) (any, error) {
			v, err := utils.Decode[T](args[0])
			if err != nil {
				return nil, err
			}
			items := fn(v)
			out := make([]any, len(items))
			for i := range items {
				out[i] = items[i]
			}
			return out, nil
		},
	}}
}

// GroupKey extracts a grouping key of type K from T.
type GroupKey[T, K any] struct{ lambda *expr.Lambda }

func (g GroupKey[T, K]) Lambda() *expr.Lambda { return g.lambda }

// GroupField groups by the value at path.
func GroupField[T, K any](path string) GroupKey[T, K] {
	return GroupKey[T, K]{lambda: &expr.Lambda{
		Kind: expr.LambdaGroupKey,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[K](),
		Path: path,
		Err:  checkPath[T](path),
	}}
}

// GroupFunc groups by the key fn returns.
func GroupFunc[T, K any](fn func(T) K) GroupKey[T, K] {
	return GroupKey[T, K]{lambda: &expr.Lambda{
		Kind: expr.LambdaGroupKey,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[K](),
		Fn:   unary(fn),
	}}
}

// Ref navigates from T to a single related P.
type Ref[T, P any] struct{ lambda *expr.Lambda }

func (r Ref[T, P]) Lambda() *expr.Lambda { return r.lambda }

// Reference names the field of T holding one P.
func Reference[T, P any](path string) Ref[T, P] {
	return Ref[T, P]{lambda: &expr.Lambda{
		Kind: expr.LambdaNavigation,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[P](),
		Path: path,
		Err:  checkNavigation[T, P](path, false),
	}}
}

// Many navigates from T to a collection of related P.
type Many[T, P any] struct{ lambda *expr.Lambda }

func (m Many[T, P]) Lambda() *expr.Lambda { return m.lambda }

// Collection names the field of T holding a slice of P.
func Collection[T, P any](path string) Many[T, P] {
	return Many[T, P]{lambda: &expr.Lambda{
		Kind: expr.LambdaNavigation,
		In:   expr.TypeOf[T](),
		Out:  expr.TypeOf[[]P](),
		Path: path,
		Many: true,
		Err:  checkNavigation[T, P](path, true),
	}}
}

// Where restricts the loaded collection to members matching p.
func (m Many[T, P]) Where(p Predicate[P]) Many[T, P] {
	return m.nest(whereMethod, p.lambda)
}

// OrderBy orders the loaded collection by key, replacing any earlier order.
func (m Many[T, P]) OrderBy(key Key[P]) Many[T, P] {
	return m.nest(orderByMethod, key.lambda)
}

func (m Many[T, P]) OrderByDescending(key Key[P]) Many[T, P] {
	return m.nest(orderByDescendingMethod, key.lambda)
}

// ThenBy adds a tie-break key. Without an earlier OrderBy it starts the
// ordering instead.
func (m Many[T, P]) ThenBy(key Key[P]) Many[T, P] {
	if !m.isOrdered() {
		return m.OrderBy(key)
	}
	return m.nest(thenByMethod, key.lambda)
}

func (m Many[T, P]) ThenByDescending(key Key[P]) Many[T, P] {
	if !m.isOrdered() {
		return m.OrderByDescending(key)
	}
	return m.nest(thenByDescendingMethod, key.lambda)
}

func (m Many[T, P]) isOrdered() bool {
	call, ok := m.lambda.Body.(*expr.Call)
	if !ok {
		return false
	}
	switch call.Method.Name {
	case orderByMethod.Name, orderByDescendingMethod.Name, thenByMethod.Name, thenByDescendingMethod.Name:
		return true
	}
	return false
}

func (m Many[T, P]) nest(method expr.Method, arg *expr.Lambda) Many[T, P] {
	body := m.lambda.Body
	if body == nil {
		body = &expr.Parameter{Name: m.lambda.Path, Elem: expr.TypeOf[P]()}
	}
	clone := *m.lambda
	clone.Body = &expr.Call{Method: method, TypeArgs: []string{expr.TypeOf[P]()}, Args: []expr.Expr{body, arg}}
	if clone.Err == nil && arg.Err != nil {
		clone.Err = arg.Err
	}
	return Many[T, P]{lambda: &clone}
}

func unary[T, R any](fn func(T) R) expr.Func {
	return func(args ...any) (any, error) {
		v, err := utils.Decode[T](args[0])
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

// checkPath verifies that path names a field of T. Types that are not structs
// (documents, maps) cannot be checked and always pass.
func checkPath[T any](path string) error {
	_, err := resolvePath(reflect.TypeFor[T](), path)
	return err
}

func checkNavigation[T, P any](path string, many bool) error {
	target, err := resolvePath(reflect.TypeFor[T](), path)
	if err != nil || target == nil {
		return err
	}
	want := reflect.TypeFor[P]()
	if many {
		if target.Kind() != reflect.Slice {
			return fmt.Errorf("%w: %s.%s is %s, not a collection", ErrInvalidSelector, expr.TypeOf[T](), path, target)
		}
		target = target.Elem()
	}
	if target.Kind() == reflect.Ptr && want.Kind() != reflect.Ptr {
		target = target.Elem()
	}
	if target != want {
		return fmt.Errorf("%w: %s.%s is %s, not %s", ErrInvalidSelector, expr.TypeOf[T](), path, target, want)
	}
	return nil
}

// resolvePath walks path through struct fields by their JSON names and
// returns the final field type, or nil when a non-struct is reached first.
func resolvePath(t reflect.Type, path string) (reflect.Type, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidSelector)
	}
	for _, part := range strings.Split(path, ".") {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return nil, nil
		}
		field, ok := jsonField(t, part)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidSelector, t, part)
		}
		t = field.Type
	}
	return t, nil
}

func jsonField(t reflect.Type, name string) (reflect.StructField, bool) {
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch {
		case tag == "-":
			continue
		case tag == name:
			return f, true
		case tag == "" && strings.EqualFold(f.Name, name):
			return f, true
		}
	}
	return reflect.StructField{}, false
}
