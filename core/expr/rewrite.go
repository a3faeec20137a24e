package expr

import "fmt"

// Rewrite rebuilds e bottom-up. Children are rewritten before their parent, so
// fn always sees a node whose Args (and navigation Body) are already final.
// Nodes that fn returns unchanged keep their identity; the input tree is never
// mutated.
func Rewrite(e Expr, fn func(Expr) (Expr, error)) (Expr, error) {
	switch n := e.(type) {
	case nil:
		return nil, nil
	case *Call:
		args := make([]Expr, len(n.Args))
		changed := false
		for i, arg := range n.Args {
			rewritten, err := Rewrite(arg, fn)
			if err != nil {
				return nil, err
			}
			args[i] = rewritten
			changed = changed || rewritten != arg
		}
		node := n
		if changed {
			node = &Call{Method: n.Method, TypeArgs: append([]string(nil), n.TypeArgs...), Args: args}
		}
		return fn(node)
	case *Lambda:
		node := n
		if n.Body != nil {
			body, err := Rewrite(n.Body, fn)
			if err != nil {
				return nil, fmt.Errorf("rewriting %s lambda body: %w", n.Kind, err)
			}
			if body != n.Body {
				clone := *n
				clone.Body = body
				node = &clone
			}
		}
		return fn(node)
	case *Source, *Parameter, *Constant:
		return fn(e)
	default:
		return nil, fmt.Errorf("unsupported expression node %T", e)
	}
}

// Walk visits e pre-order. Returning false from visit skips the node's
// children.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch n := e.(type) {
	case *Call:
		for _, arg := range n.Args {
			Walk(arg, visit)
		}
	case *Lambda:
		Walk(n.Body, visit)
	}
}

// Root follows the first argument of each call down to the chain's origin.
func Root(e Expr) Expr {
	for {
		call, ok := e.(*Call)
		if !ok || len(call.Args) == 0 {
			return e
		}
		e = call.Args[0]
	}
}

// Chain returns the calls between the root and e, oldest first.
func Chain(e Expr) []*Call {
	var calls []*Call
	for {
		call, ok := e.(*Call)
		if !ok || len(call.Args) == 0 {
			break
		}
		calls = append(calls, call)
		e = call.Args[0]
	}
	for i, j := 0, len(calls)-1; i < j; i, j = i+1, j-1 {
		calls[i], calls[j] = calls[j], calls[i]
	}
	return calls
}

// ConstantArg returns the value of the Constant at position i of call.
func ConstantArg[T any](call *Call, i int) (T, error) {
	var zero T
	if i >= len(call.Args) {
		return zero, fmt.Errorf("%s: missing argument %d", call.Method, i)
	}
	c, ok := call.Args[i].(*Constant)
	if !ok {
		return zero, fmt.Errorf("%s: argument %d is %T, not a constant", call.Method, i, call.Args[i])
	}
	v, ok := c.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %d has type %T", call.Method, i, c.Value)
	}
	return v, nil
}

// LambdaArg returns the Lambda at position i of call.
func LambdaArg(call *Call, i int) (*Lambda, error) {
	if i >= len(call.Args) {
		return nil, fmt.Errorf("%s: missing argument %d", call.Method, i)
	}
	l, ok := call.Args[i].(*Lambda)
	if !ok {
		return nil, fmt.Errorf("%s: argument %d is %T, not a lambda", call.Method, i, call.Args[i])
	}
	return l, nil
}
