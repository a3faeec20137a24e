// Package expr defines the inspectable call representation that queryable
// operators build. A query is a tree of Calls rooted at a Source; backends walk
// and rewrite the tree before they execute it, which is what lets a backend
// recognise placeholder operations it has never heard of.
package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-specs/core/query"
)

// Expr is a node of a built query. It is a sealed interface: only the node
// types declared in this package implement it, so backends can switch on it
// exhaustively.
type Expr interface {
	exprNode()
}

// Form is the shape of a call's first argument. Two calls with the same scope
// and name but different forms are different operations.
type Form uint8

const (
	FormSequence           Form = iota // a plain queryable sequence
	FormOrdered                        // a sequence that already has a primary ordering
	FormIncludedReference              // a sequence whose last include targeted a single value
	FormIncludedCollection             // a sequence whose last include targeted a collection
)

var formNames = map[Form]string{
	FormSequence:           "sequence",
	FormOrdered:            "ordered",
	FormIncludedReference:  "included-reference",
	FormIncludedCollection: "included-collection",
}

func (f Form) String() string {
	if name, ok := formNames[f]; ok {
		return name
	}
	return fmt.Sprintf("form(%d)", uint8(f))
}

// Method identifies an operation by declaring scope, name and parameter form.
type Method struct {
	Scope string
	Name  string
	Form  Form
}

func (m Method) String() string {
	return m.Scope + "." + m.Name
}

// Source is the root of a query: the collection or table the chain starts from.
type Source struct {
	Name  string // table or collection name
	Elem  string // element type name
	Value any    // backend handle, e.g. the backing slice for in-memory sources
}

// Parameter is the root of a nested chain inside a navigation lambda. It stands
// for the navigated value (or collection) of each element.
type Parameter struct {
	Name string
	Elem string
}

// Constant wraps a literal argument such as a count or a direction flag.
type Constant struct {
	Value any
}

// Call applies Method to Args. Args[0] is always the receiving sequence.
type Call struct {
	Method   Method
	TypeArgs []string
	Args     []Expr
}

// LambdaKind tags what a Lambda describes.
type LambdaKind uint8

const (
	LambdaPredicate LambdaKind = iota
	LambdaKey
	LambdaProjection
	LambdaFlatten
	LambdaNavigation
	LambdaGroupKey
	LambdaGroupElement
	LambdaGroupResult
)

var lambdaKindNames = map[LambdaKind]string{
	LambdaPredicate:    "predicate",
	LambdaKey:          "key",
	LambdaProjection:   "projection",
	LambdaFlatten:      "flatten",
	LambdaNavigation:   "navigation",
	LambdaGroupKey:     "group-key",
	LambdaGroupElement: "group-element",
	LambdaGroupResult:  "group-result",
}

func (k LambdaKind) String() string {
	if name, ok := lambdaKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("lambda(%d)", uint8(k))
}

// Func is the in-process form of a caller-supplied selector. Predicates return
// a bool, flatten selectors a []any, group result selectors receive the key and
// the members.
type Func func(args ...any) (any, error)

// Lambda is a selector, predicate or navigation passed to a Call. The
// descriptive fields (Path, Fields, Filter, Many, Body) are what translating
// backends read; Fn is only usable in-process and may be nil.
type Lambda struct {
	Kind   LambdaKind
	In     string
	Out    string
	Path   string
	Fields []string
	Filter *query.QueryFilter
	Many   bool
	Body   Expr
	Fn     Func
	// Err records why the selector does not fit its element type. Backends
	// report it instead of executing.
	Err error
}

// Translatable reports whether a backend that cannot run Go code can still
// understand the lambda.
func (l *Lambda) Translatable() bool {
	switch l.Kind {
	case LambdaPredicate:
		return l.Filter != nil
	case LambdaProjection:
		return len(l.Fields) > 0
	case LambdaKey, LambdaFlatten, LambdaNavigation, LambdaGroupKey, LambdaGroupElement:
		return l.Path != ""
	default:
		return false
	}
}

func (*Source) exprNode()    {}
func (*Parameter) exprNode() {}
func (*Constant) exprNode()  {}
func (*Call) exprNode()      {}
func (*Lambda) exprNode()    {}

// TypeOf returns the name recorded for T in TypeArgs and lambda signatures.
func TypeOf[T any]() string {
	return reflect.TypeFor[T]().String()
}

// Format renders e in a compact call notation, used for logging and tests.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e)
	return sb.String()
}

func format(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Source:
		sb.WriteString(n.Name)
	case *Parameter:
		sb.WriteString("$" + n.Name)
	case *Constant:
		fmt.Fprintf(sb, "%v", n.Value)
	case *Call:
		sb.WriteString(n.Method.String())
		sb.WriteString("(")
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, arg)
		}
		sb.WriteString(")")
	case *Lambda:
		formatLambda(sb, n)
	default:
		fmt.Fprintf(sb, "%T", e)
	}
}

func formatLambda(sb *strings.Builder, l *Lambda) {
	switch {
	case l.Body != nil:
		sb.WriteString(l.Path + " => ")
		format(sb, l.Body)
	case l.Path != "":
		sb.WriteString(l.Path)
	case len(l.Fields) > 0:
		sb.WriteString("{" + strings.Join(l.Fields, ", ") + "}")
	case l.Filter != nil:
		sb.WriteString(query.DescribeFilter(*l.Filter))
	default:
		sb.WriteString("func")
	}
}
