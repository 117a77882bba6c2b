package residual

import (
	"github.com/roach88/sensorq/internal/expr"
)

// Expr normalizes a single expression and inserts null guards. param names
// the element parameter whose members are described by the catalog; it may
// be empty.
func (b *Builder) Expr(e expr.Expr, param string) (expr.Expr, error) {
	return expr.Rewrite(e, func(n expr.Expr) (expr.Expr, error) {
		switch n := n.(type) {
		case *expr.Unary:
			if n.Op == expr.OpNot {
				return expr.Eq(n.Operand, expr.C(false)), nil
			}

		case *expr.Member:
			if b.mayBeNull(n.Target, param) {
				return &expr.Guard{Receiver: n.Target, Body: n, OnNull: expr.NullRaise}, nil
			}

		case *expr.Call:
			return b.call(n, param), nil
		}
		return n, nil
	})
}

func (b *Builder) call(c *expr.Call, param string) expr.Expr {
	if c.IsStatic() {
		if c.Static == "Object" && c.Method == "Equals" && len(c.Args) == 2 {
			return expr.Bin(expr.OpBoxedEqual, c.Args[0], c.Args[1])
		}
		return c
	}

	var body expr.Expr = c
	onNull := expr.NullRaise
	switch c.Method {
	case "Equals":
		if len(c.Args) == 1 {
			body = expr.Bin(expr.OpBoxedEqual, c.Target, c.Args[0])
		}
		onNull = expr.NullFalse
	case "Contains":
		onNull = expr.NullFalse
	case "ToString":
		onNull = expr.NullNil
	}

	if !b.mayBeNull(c.Target, param) {
		return body
	}
	return &expr.Guard{Receiver: c.Target, Body: body, OnNull: onNull}
}

// mayBeNull reports whether evaluating e can produce null. Parameters and
// non-null constants never do; catalog properties follow their metadata.
// Everything else is assumed nullable.
func (b *Builder) mayBeNull(e expr.Expr, param string) bool {
	switch n := e.(type) {
	case *expr.Param:
		return false
	case *expr.Const:
		return n.Value == nil
	case *expr.Binary:
		switch n.Op {
		case expr.OpAdd, expr.OpSub, expr.OpMul, expr.OpDiv:
			return b.mayBeNull(n.Left, param) || b.mayBeNull(n.Right, param)
		}
		return false
	case *expr.Unary:
		return false
	}

	if param == "" || b.res == nil {
		return true
	}
	prop, ok := b.res.Lookup(strip(e), param)
	if !ok {
		return true
	}
	return prop.MayBeNull()
}

// strip removes guards and property references, recovering the plain access
// chain.
func strip(e expr.Expr) expr.Expr {
	out, err := expr.Rewrite(e, func(n expr.Expr) (expr.Expr, error) {
		switch n := n.(type) {
		case *expr.Guard:
			return n.Body, nil
		case *expr.PropertyRef:
			return n.Expr, nil
		}
		return n, nil
	})
	if err != nil {
		return e
	}
	return out
}
