package eval

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

// ErrNoElements is returned by First and Last on an empty sequence.
var ErrNoElements = errors.New("eval: sequence contains no elements")

// Env binds parameter and source names to values. The zero Env (nil) binds
// nothing. Bindings shadow outer bindings of the same name.
type Env struct {
	parent *Env
	name   string
	value  any
}

// Bind returns a new environment with name bound to v.
func (e *Env) Bind(name string, v any) *Env {
	return &Env{parent: e, name: name, value: v}
}

// Lookup returns the innermost binding of name.
func (e *Env) Lookup(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

func sourceKey(name string) string {
	return "$source:" + name
}

// BindSource returns a new environment with the named collection bound to
// items.
func (e *Env) BindSource(name string, items []any) *Env {
	return e.Bind(sourceKey(name), items)
}

// Run executes a query chain, binding every Source in it to items.
func Run(chain expr.Expr, items []any) (any, error) {
	var env *Env
	expr.Walk(chain, func(n expr.Expr) bool {
		if src, ok := n.(*expr.Source); ok {
			env = env.BindSource(src.Name, items)
		}
		return true
	})
	return Eval(chain, env)
}

// Constant evaluates an expression that references no parameter.
func Constant(e expr.Expr) (any, error) {
	if !expr.IsConstant(e) {
		return nil, fmt.Errorf("eval: %s is not constant", expr.Format(e))
	}
	return Eval(e, nil)
}

// Eval evaluates e in env.
func Eval(e expr.Expr, env *Env) (any, error) {
	switch n := e.(type) {
	case *expr.Const:
		return n.Value, nil
	case *expr.Param:
		v, ok := env.Lookup(n.Name)
		if !ok {
			return nil, fmt.Errorf("eval: unbound parameter %s", n.Name)
		}
		return v, nil
	case *expr.Source:
		v, ok := env.Lookup(sourceKey(n.Name))
		if !ok {
			return nil, fmt.Errorf("eval: unbound source %s", n.Name)
		}
		return v, nil
	case *expr.Member:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return Member(target, n.Name)
	case *expr.PropertyRef:
		return Eval(n.Expr, env)
	case *expr.Binary:
		return evalBinary(n, env)
	case *expr.Unary:
		return evalUnary(n, env)
	case *expr.Call:
		return evalCall(n, env)
	case *expr.Guard:
		return evalGuard(n, env)
	case *expr.Lambda:
		return nil, fmt.Errorf("eval: lambda %s used as a value", expr.Format(n))
	case nil:
		return nil, fmt.Errorf("eval: nil expression")
	default:
		return nil, fmt.Errorf("eval: unknown expression type %T", e)
	}
}

func evalGuard(g *expr.Guard, env *Env) (any, error) {
	recv, err := Eval(g.Receiver, env)
	if err != nil {
		return nil, err
	}
	if !IsNull(recv) {
		return Eval(g.Body, env)
	}

	switch g.OnNull {
	case expr.NullFalse:
		return false, nil
	case expr.NullNil:
		return nil, nil
	default:
		return nil, qerr.New(qerr.KindNullReference, expr.Format(g.Body),
			"null reference while evaluating expression %s: %s was null",
			expr.Format(g.Body), expr.Format(g.Receiver))
	}
}

func evalBool(e expr.Expr, env *Env) (bool, error) {
	v, err := Eval(e, env)
	if err != nil {
		return false, err
	}
	b, ok := Normalize(v).(bool)
	if !ok {
		return false, fmt.Errorf("eval: %s is %T, not bool", expr.Format(e), v)
	}
	return b, nil
}

func evalBinary(b *expr.Binary, env *Env) (any, error) {
	switch b.Op {
	case expr.OpAndAlso:
		l, err := evalBool(b.Left, env)
		if err != nil || !l {
			return false, err
		}
		return evalBool(b.Right, env)
	case expr.OpOrElse:
		l, err := evalBool(b.Left, env)
		if err != nil || l {
			return l, err
		}
		return evalBool(b.Right, env)
	}

	l, err := Eval(b.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := Eval(b.Right, env)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case expr.OpEqual, expr.OpBoxedEqual:
		return Equal(l, r), nil
	case expr.OpNotEqual:
		return !Equal(l, r), nil
	case expr.OpLess, expr.OpLessEqual, expr.OpGreater, expr.OpGreaterEqual:
		// Lifted comparison: any null operand yields false.
		if IsNull(l) || IsNull(r) {
			return false, nil
		}
		c, err := Compare(l, r)
		if err != nil {
			return nil, fmt.Errorf("eval: %s: %w", expr.Format(b), err)
		}
		switch b.Op {
		case expr.OpLess:
			return c < 0, nil
		case expr.OpLessEqual:
			return c <= 0, nil
		case expr.OpGreater:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	default:
		return arith(b, l, r)
	}
}

func arith(b *expr.Binary, l, r any) (any, error) {
	if IsNull(l) || IsNull(r) {
		return nil, nil
	}
	nl, nr := Normalize(l), Normalize(r)

	if b.Op == expr.OpAdd {
		if sl, ok := nl.(string); ok {
			return sl + ToString(nr), nil
		}
	}

	il, lInt := nl.(int64)
	ir, rInt := nr.(int64)
	if lInt && rInt {
		switch b.Op {
		case expr.OpAdd:
			return il + ir, nil
		case expr.OpSub:
			return il - ir, nil
		case expr.OpMul:
			return il * ir, nil
		case expr.OpDiv:
			if ir == 0 {
				return nil, fmt.Errorf("eval: %s: division by zero", expr.Format(b))
			}
			return il / ir, nil
		}
	}

	fl, ok1 := toFloat(nl)
	fr, ok2 := toFloat(nr)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("eval: %s: operands %T and %T are not numeric", expr.Format(b), l, r)
	}
	switch b.Op {
	case expr.OpAdd:
		return fl + fr, nil
	case expr.OpSub:
		return fl - fr, nil
	case expr.OpMul:
		return fl * fr, nil
	case expr.OpDiv:
		return fl / fr, nil
	}
	return nil, fmt.Errorf("eval: unsupported operator %s", b.Op)
}

func evalUnary(u *expr.Unary, env *Env) (any, error) {
	if u.Op == expr.OpNot {
		b, err := evalBool(u.Operand, env)
		if err != nil {
			return nil, err
		}
		return !b, nil
	}

	v, err := Eval(u.Operand, env)
	if err != nil || IsNull(v) {
		return nil, err
	}
	switch n := Normalize(v).(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	}
	return nil, fmt.Errorf("eval: cannot negate %T", v)
}

func evalCall(c *expr.Call, env *Env) (any, error) {
	if c.IsStatic() {
		return evalStatic(c, env)
	}
	if isSequenceMethod(c.Method) {
		if _, ok := orderingMethods[c.Method]; ok {
			return evalOrdering(c, env)
		}
		recv, err := Eval(c.Target, env)
		if err != nil {
			return nil, err
		}
		if seq, ok := toSeq(recv); ok {
			return evalSequence(c, seq, env)
		}
		if IsNull(recv) {
			return nil, fmt.Errorf("eval: %s called on null", c.Method)
		}
	}

	recv, err := Eval(c.Target, env)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = Eval(a, env); err != nil {
			return nil, err
		}
	}
	if IsNull(recv) {
		return nil, fmt.Errorf("eval: %s called on null receiver %s", c.Method, expr.Format(c.Target))
	}
	return callMethod(c, recv, args)
}

func callMethod(c *expr.Call, recv any, args []any) (any, error) {
	wantArgs := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("eval: %s expects %d argument(s), got %d", c.Method, n, len(args))
		}
		return nil
	}

	switch c.Method {
	case "ToString":
		return ToString(recv), wantArgs(0)
	case "Equals":
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		return Equal(recv, args[0]), nil
	case "ToLower", "ToUpper":
		s, ok := Normalize(recv).(string)
		if !ok {
			return nil, fmt.Errorf("eval: %s on %T", c.Method, recv)
		}
		if c.Method == "ToLower" {
			return strings.ToLower(s), wantArgs(0)
		}
		return strings.ToUpper(s), wantArgs(0)
	case "Contains", "StartsWith", "EndsWith":
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		s, ok := Normalize(recv).(string)
		if !ok {
			return nil, fmt.Errorf("eval: %s on %T", c.Method, recv)
		}
		if IsNull(args[0]) {
			return false, nil
		}
		sub := norm.NFC.String(ToString(args[0]))
		switch c.Method {
		case "Contains":
			return strings.Contains(s, sub), nil
		case "StartsWith":
			return strings.HasPrefix(s, sub), nil
		default:
			return strings.HasSuffix(s, sub), nil
		}
	}
	return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(c), "method %s cannot be evaluated locally", c.Method)
}

func evalStatic(c *expr.Call, env *Env) (any, error) {
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch c.Static + "." + c.Method {
	case "Object.Equals":
		if len(args) != 2 {
			return nil, fmt.Errorf("eval: Object.Equals expects 2 arguments")
		}
		return Equal(args[0], args[1]), nil
	case "String.IsNullOrEmpty":
		if len(args) != 1 {
			return nil, fmt.Errorf("eval: String.IsNullOrEmpty expects 1 argument")
		}
		return IsNull(args[0]) || ToString(args[0]) == "", nil
	}
	return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(c), "static method %s.%s cannot be evaluated locally", c.Static, c.Method)
}
