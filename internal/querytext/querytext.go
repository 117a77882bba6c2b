// Package querytext parses queries written as Go expressions into call-chain
// expression trees.
//
// The element parameter is implicit. Each argument of a query method that
// takes a lambda is wrapped in one over the parameter (default "s"):
//
//	Where(s.Status == Up && s.Priority > 3).OrderBy(s.Name).Skip(10).Take(5)
//
// A chain starting with a bare call applies to the default source. Any other
// identifier that is neither the parameter nor the source is read as a
// string literal, so enum members can be written unquoted. true, false and
// nil are literals, and Type.Method(args) is a static call.
package querytext

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/roach88/sensorq/internal/expr"
)

// Error codes reported in SyntaxError.Code.
const (
	ErrCodeParse       = "T001"
	ErrCodeUnsupported = "T002"
)

// SyntaxError is a query text that could not be parsed.
type SyntaxError struct {
	Code    string
	Message string
	// Column is the 1-based column of the offending token, or 0.
	Column int
}

func (e *SyntaxError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%d: %s: %s", e.Column, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Options configures parsing.
type Options struct {
	// Source is the collection name. A leading identifier equal to Source
	// starts the chain explicitly.
	Source string

	// Element is the element type name recorded on the source.
	Element string

	// Param is the implicit element parameter. Default: "s".
	Param string
}

// lambdaMethods take their first argument as a lambda over the element.
var lambdaMethods = map[string]bool{
	"Where":             true,
	"OrderBy":           true,
	"OrderByDescending": true,
	"ThenBy":            true,
	"ThenByDescending":  true,
	"Select":            true,
	"SelectMany":        true,
	"Any":               true,
	"Count":             true,
	"First":             true,
	"Last":              true,
}

var binaryOps = map[token.Token]expr.BinaryOp{
	token.EQL:  expr.OpEqual,
	token.NEQ:  expr.OpNotEqual,
	token.LSS:  expr.OpLess,
	token.LEQ:  expr.OpLessEqual,
	token.GTR:  expr.OpGreater,
	token.GEQ:  expr.OpGreaterEqual,
	token.LAND: expr.OpAndAlso,
	token.LOR:  expr.OpOrElse,
	token.ADD:  expr.OpAdd,
	token.SUB:  expr.OpSub,
	token.MUL:  expr.OpMul,
	token.QUO:  expr.OpDiv,
}

// Parse converts src into a call chain rooted at the configured source.
func Parse(src string, opts Options) (expr.Expr, error) {
	if opts.Param == "" {
		opts.Param = "s"
	}
	if opts.Source == "" {
		return nil, &SyntaxError{Code: ErrCodeParse, Message: "no source collection configured"}
	}

	fset := token.NewFileSet()
	node, err := parser.ParseExprFrom(fset, "query", src, 0)
	if err != nil {
		return nil, &SyntaxError{Code: ErrCodeParse, Message: err.Error()}
	}

	c := &converter{
		fset:   fset,
		opts:   opts,
		param:  expr.P(opts.Param),
		source: expr.NewSource(opts.Source, opts.Element),
	}
	return c.chain(node)
}

type converter struct {
	fset   *token.FileSet
	opts   Options
	param  *expr.Param
	source *expr.Source
}

func (c *converter) fail(n ast.Node, format string, args ...any) error {
	return &SyntaxError{
		Code:    ErrCodeUnsupported,
		Message: fmt.Sprintf(format, args...),
		Column:  c.fset.Position(n.Pos()).Column,
	}
}

// chain converts the query chain itself: the source and the method calls
// applied to it.
func (c *converter) chain(n ast.Expr) (expr.Expr, error) {
	switch node := n.(type) {
	case *ast.ParenExpr:
		return c.chain(node.X)
	case *ast.Ident:
		if node.Name != c.opts.Source {
			return nil, c.fail(node, "unknown collection %s", node.Name)
		}
		return c.source, nil
	case *ast.CallExpr:
		var (
			target expr.Expr
			method string
			err    error
		)
		switch fun := node.Fun.(type) {
		case *ast.Ident:
			target, method = c.source, fun.Name
		case *ast.SelectorExpr:
			if target, err = c.chain(fun.X); err != nil {
				return nil, err
			}
			method = fun.Sel.Name
		default:
			return nil, c.fail(node, "expected a query method call")
		}

		args := make([]expr.Expr, len(node.Args))
		for i, a := range node.Args {
			v, err := c.value(a)
			if err != nil {
				return nil, err
			}
			if (i == 0 && lambdaMethods[method]) || expr.References(v, c.param.Name) {
				v = expr.Fn(c.param, v)
			}
			args[i] = v
		}
		return expr.MethodCall(target, method, args...), nil
	}
	return nil, c.fail(n, "expected a query chain, got %T", n)
}

// value converts an expression inside a method argument.
func (c *converter) value(n ast.Expr) (expr.Expr, error) {
	switch node := n.(type) {
	case *ast.ParenExpr:
		return c.value(node.X)

	case *ast.Ident:
		switch node.Name {
		case c.param.Name:
			return c.param, nil
		case "true":
			return expr.C(true), nil
		case "false":
			return expr.C(false), nil
		case "nil":
			return expr.C(nil), nil
		}
		return expr.C(node.Name), nil

	case *ast.BasicLit:
		return c.literal(node)

	case *ast.SelectorExpr:
		target, err := c.value(node.X)
		if err != nil {
			return nil, err
		}
		return expr.M(target, node.Sel.Name), nil

	case *ast.BinaryExpr:
		op, ok := binaryOps[node.Op]
		if !ok {
			return nil, c.fail(node, "unsupported operator %s", node.Op)
		}
		left, err := c.value(node.X)
		if err != nil {
			return nil, err
		}
		right, err := c.value(node.Y)
		if err != nil {
			return nil, err
		}
		return expr.Bin(op, left, right), nil

	case *ast.UnaryExpr:
		operand, err := c.value(node.X)
		if err != nil {
			return nil, err
		}
		switch node.Op {
		case token.NOT:
			return expr.Not(operand), nil
		case token.SUB:
			if k, ok := operand.(*expr.Const); ok {
				switch v := k.Value.(type) {
				case int64:
					return expr.C(-v), nil
				case float64:
					return expr.C(-v), nil
				}
			}
			return &expr.Unary{Op: expr.OpNegate, Operand: operand}, nil
		}
		return nil, c.fail(node, "unsupported operator %s", node.Op)

	case *ast.CallExpr:
		return c.call(node)
	}
	return nil, c.fail(n, "unsupported expression %T", n)
}

func (c *converter) call(node *ast.CallExpr) (expr.Expr, error) {
	sel, ok := node.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil, c.fail(node, "calls must name a receiver or type")
	}

	args := make([]expr.Expr, len(node.Args))
	for i, a := range node.Args {
		v, err := c.value(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if id, ok := sel.X.(*ast.Ident); ok && id.Name != c.param.Name {
		return expr.StaticCall(id.Name, sel.Sel.Name, args...), nil
	}
	target, err := c.value(sel.X)
	if err != nil {
		return nil, err
	}
	return expr.MethodCall(target, sel.Sel.Name, args...), nil
}

func (c *converter) literal(lit *ast.BasicLit) (expr.Expr, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, c.fail(lit, "invalid integer %s", lit.Value)
		}
		return expr.C(n), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, c.fail(lit, "invalid number %s", lit.Value)
		}
		return expr.C(f), nil
	case token.STRING, token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, c.fail(lit, "invalid string %s", lit.Value)
		}
		return expr.C(s), nil
	}
	return nil, c.fail(lit, "unsupported literal %s", lit.Value)
}
