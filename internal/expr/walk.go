package expr

import (
	"fmt"
	"reflect"
)

// Children returns the direct sub-expressions of e in evaluation order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Member:
		return []Expr{n.Target}
	case *Binary:
		return []Expr{n.Left, n.Right}
	case *Unary:
		return []Expr{n.Operand}
	case *Call:
		out := make([]Expr, 0, len(n.Args)+1)
		if n.Target != nil {
			out = append(out, n.Target)
		}
		return append(out, n.Args...)
	case *Lambda:
		return []Expr{n.Body}
	case *PropertyRef:
		return []Expr{n.Expr}
	case *Guard:
		return []Expr{n.Receiver, n.Body}
	default:
		return nil
	}
}

// Walk visits e and its descendants in pre-order. If fn returns false the
// children of that node are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// RewriteFunc replaces a node after its children have been rewritten.
// Returning the node unchanged keeps it.
type RewriteFunc func(Expr) (Expr, error)

// Rewrite rebuilds e bottom-up, applying fn to every node after its children.
// The input tree is not modified.
func Rewrite(e Expr, fn RewriteFunc) (Expr, error) {
	if e == nil {
		return nil, nil
	}

	var rebuilt Expr
	switch n := e.(type) {
	case *Source, *Param, *Const:
		rebuilt = e
	case *Member:
		t, err := Rewrite(n.Target, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &Member{Target: t, Name: n.Name}
	case *Binary:
		l, err := Rewrite(n.Left, fn)
		if err != nil {
			return nil, err
		}
		r, err := Rewrite(n.Right, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &Binary{Op: n.Op, Left: l, Right: r}
	case *Unary:
		o, err := Rewrite(n.Operand, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &Unary{Op: n.Op, Operand: o}
	case *Call:
		var target Expr
		if n.Target != nil {
			t, err := Rewrite(n.Target, fn)
			if err != nil {
				return nil, err
			}
			target = t
		}
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			ra, err := Rewrite(a, fn)
			if err != nil {
				return nil, err
			}
			args[i] = ra
		}
		rebuilt = &Call{Target: target, Static: n.Static, Method: n.Method, Args: args}
	case *Lambda:
		body, err := Rewrite(n.Body, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &Lambda{Params: n.Params, Body: body}
	case *PropertyRef:
		inner, err := Rewrite(n.Expr, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &PropertyRef{Expr: inner, ID: n.ID, Name: n.Name}
	case *Guard:
		recv, err := Rewrite(n.Receiver, fn)
		if err != nil {
			return nil, err
		}
		body, err := Rewrite(n.Body, fn)
		if err != nil {
			return nil, err
		}
		rebuilt = &Guard{Receiver: recv, Body: body, OnNull: n.OnNull}
	default:
		return nil, fmt.Errorf("rewrite: unknown expression type %T", e)
	}

	return fn(rebuilt)
}

// IsConstant reports whether e can be evaluated without binding any
// parameter or reading any collection.
func IsConstant(e Expr) bool {
	constant := true
	Walk(e, func(n Expr) bool {
		switch n.(type) {
		case *Param, *Source, *Lambda:
			constant = false
		}
		return constant
	})
	return constant
}

// References reports whether e mentions the parameter named name.
func References(e Expr, name string) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if p, ok := n.(*Param); ok && p.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	return reflect.DeepEqual(a, b)
}

// Unwrap strips PropertyRef wrappers, returning the underlying expression.
func Unwrap(e Expr) Expr {
	for {
		ref, ok := e.(*PropertyRef)
		if !ok {
			return e
		}
		e = ref.Expr
	}
}
