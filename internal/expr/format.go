package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Format renders e in a stable, human-readable form.
// The output is used in logs, error messages, and golden files.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Source:
		b.WriteString(n.Name)
	case *Param:
		b.WriteString(n.Name)
	case *Const:
		b.WriteString(FormatValue(n.Value))
	case *Member:
		formatOperand(b, n.Target)
		b.WriteByte('.')
		b.WriteString(n.Name)
	case *Binary:
		prec := precedence(n.Op)
		formatChild(b, n.Left, prec, false)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		formatChild(b, n.Right, prec, true)
	case *Unary:
		b.WriteString(n.Op.String())
		formatOperand(b, n.Operand)
	case *Call:
		if n.IsStatic() {
			b.WriteString(n.Static)
		} else {
			formatOperand(b, n.Target)
		}
		b.WriteByte('.')
		b.WriteString(n.Method)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, a)
		}
		b.WriteByte(')')
	case *Lambda:
		if len(n.Params) == 1 {
			b.WriteString(n.Params[0].Name)
		} else {
			b.WriteByte('(')
			for i, p := range n.Params {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(p.Name)
			}
			b.WriteByte(')')
		}
		b.WriteString(" => ")
		format(b, n.Body)
	case *PropertyRef:
		format(b, n.Expr)
	case *Guard:
		fmt.Fprintf(b, "guard[%s](", n.OnNull)
		format(b, n.Receiver)
		b.WriteString(", ")
		format(b, n.Body)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

// formatOperand writes e, parenthesized when it is an operator expression
// used as a receiver or unary operand.
func formatOperand(b *strings.Builder, e Expr) {
	switch e.(type) {
	case *Binary, *Unary, *Lambda:
		b.WriteByte('(')
		format(b, e)
		b.WriteByte(')')
	default:
		format(b, e)
	}
}

func formatChild(b *strings.Builder, e Expr, parent int, right bool) {
	child, ok := e.(*Binary)
	if !ok {
		format(b, e)
		return
	}
	p := precedence(child.Op)
	if p < parent || (right && p == parent) {
		b.WriteByte('(')
		format(b, e)
		b.WriteByte(')')
		return
	}
	format(b, e)
}

func precedence(op BinaryOp) int {
	switch op {
	case OpOrElse:
		return 1
	case OpAndAlso:
		return 2
	case OpAdd, OpSub:
		return 4
	case OpMul, OpDiv:
		return 5
	default:
		return 3
	}
}

// FormatValue renders a constant value.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return strconv.Quote(val.UTC().Format(time.RFC3339))
	case fmt.Stringer:
		return strconv.Quote(val.String())
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(normalizeConst(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
