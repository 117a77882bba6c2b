package querynode

import (
	"fmt"

	"github.com/roach88/sensorq/internal/expr"
)

// Chain returns the nodes of the chain ending at n, root first.
func Chain(n Node) []Node {
	var out []Node
	for cur := n; cur != nil; cur = cur.Source() {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// RootOf returns the Root at the start of n's chain, or nil if the chain is
// malformed.
func RootOf(n Node) *Root {
	for cur := n; cur != nil; cur = cur.Source() {
		if r, ok := cur.(*Root); ok {
			return r
		}
	}
	return nil
}

// WithSource returns a copy of n reading from src.
func WithSource(n Node, src Node) Node {
	switch node := n.(type) {
	case *Root:
		return node
	case *Where:
		c := *node
		c.From = src
		return &c
	case *OrderBy:
		c := *node
		c.From = src
		return &c
	case *Select:
		c := *node
		c.From = src
		return &c
	case *SelectMany:
		c := *node
		c.From = src
		return &c
	case *Skip:
		c := *node
		c.From = src
		return &c
	case *Take:
		c := *node
		c.From = src
		return &c
	case *Any:
		c := *node
		c.From = src
		return &c
	case *Count:
		c := *node
		c.From = src
		return &c
	case *First:
		c := *node
		c.From = src
		return &c
	case *Last:
		c := *node
		c.From = src
		return &c
	case *LocalOnly:
		c := *node
		c.From = src
		return &c
	}
	panic(fmt.Sprintf("querynode: unknown node type %T", n))
}

// ToExpr converts a node chain back into the call-chain expression it
// describes.
func ToExpr(n Node) expr.Expr {
	if root, ok := n.(*Root); ok {
		return root.Collection
	}
	src := ToExpr(n.Source())

	switch node := n.(type) {
	case *Where:
		return expr.MethodCall(src, "Where", node.Predicate)
	case *OrderBy:
		method := "OrderBy"
		if node.Direction == Descending {
			method = "OrderByDescending"
		}
		args := []expr.Expr{node.KeySelector}
		if node.Comparer != nil {
			args = append(args, node.Comparer)
		}
		return expr.MethodCall(src, method, args...)
	case *Select:
		return expr.MethodCall(src, "Select", node.Selector)
	case *SelectMany:
		args := []expr.Expr{node.CollectionSelector}
		if node.ResultSelector != nil {
			args = append(args, node.ResultSelector)
		}
		return expr.MethodCall(src, "SelectMany", args...)
	case *Skip:
		return expr.MethodCall(src, "Skip", expr.C(node.Count))
	case *Take:
		return expr.MethodCall(src, "Take", expr.C(node.Count))
	case *LocalOnly:
		return expr.MethodCall(src, node.Expr.Method, node.Expr.Args...)
	}

	method := string(n.Kind())
	if p := Predicate(n); p != nil {
		return expr.MethodCall(src, method, p)
	}
	return expr.MethodCall(src, method)
}

// Format renders the chain ending at n.
func Format(n Node) string {
	return expr.Format(ToExpr(n))
}
