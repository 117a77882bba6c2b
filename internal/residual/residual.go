// Package residual rewrites the locally evaluated remainder of a query into
// a tree that is safe to run against fetched objects.
//
// The builder drops work the server already did (pushed predicates, sort
// and paging) and every Skip, since an offset is only ever a server paging
// directive. It normalizes !x to x == false and Equals calls to boxed
// equality, and wraps every access whose receiver may be null in an
// explicit guard:
//
//	member access, most methods   raise a null-reference error
//	Contains, Equals              yield false
//	ToString                      yields null
package residual

import (
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/querynode"
	"github.com/roach88/sensorq/internal/resolve"
)

// Pushdown records which parts of a chain the server applies.
type Pushdown struct {
	// Predicates maps a Where node, or an Any, Count or First node with a
	// predicate, to the part of the predicate that must still be checked
	// locally. A nil entry drops the Where (or the terminal's predicate);
	// a node without an entry is kept whole.
	Predicates map[querynode.Node]expr.Expr

	// Dropped holds OrderBy and Take nodes applied by the server. Skip
	// nodes are always dropped.
	Dropped map[querynode.Node]bool
}

// Builder builds residual trees for one element type.
type Builder struct {
	res *resolve.Resolver
}

// New creates a builder. res supplies nullability metadata and may be nil,
// in which case every receiver other than a parameter is guarded.
func New(res *resolve.Resolver) *Builder {
	return &Builder{res: res}
}

// Build returns the local chain for the node chain ending at n.
func (b *Builder) Build(n querynode.Node, push Pushdown) (expr.Expr, error) {
	var out expr.Expr
	typed := true

	for _, node := range querynode.Chain(n) {
		switch node := node.(type) {
		case *querynode.Root:
			out = node.Collection

		case *querynode.Skip:
			continue

		case *querynode.Where:
			fn := node.Predicate
			if body, ok := push.Predicates[node]; ok {
				if body == nil {
					continue
				}
				fn = &expr.Lambda{Params: fn.Params, Body: body}
			}
			local, err := b.lambda(fn, typed)
			if err != nil {
				return nil, err
			}
			out = expr.MethodCall(out, "Where", local)

		case *querynode.Any, *querynode.Count, *querynode.First:
			method := string(node.Kind())
			fn := querynode.Predicate(node)
			body, pushed := push.Predicates[node]
			switch {
			case fn == nil || (pushed && body == nil):
				out = expr.MethodCall(out, method)
				continue
			case pushed:
				fn = &expr.Lambda{Params: fn.Params, Body: body}
			}
			local, err := b.lambda(fn, typed)
			if err != nil {
				return nil, err
			}
			out = expr.MethodCall(out, method, local)

		default:
			if push.Dropped[node] {
				continue
			}
			call := querynode.ToExpr(node).(*expr.Call)
			args, err := b.args(call.Args, typed)
			if err != nil {
				return nil, err
			}
			out = &expr.Call{Target: out, Method: call.Method, Args: args}

			switch node.Kind() {
			case querynode.KindSelect, querynode.KindSelectMany, querynode.KindLocalOnly:
				typed = false
			}
		}
	}
	return out, nil
}

func (b *Builder) args(args []expr.Expr, typed bool) ([]expr.Expr, error) {
	out := make([]expr.Expr, len(args))
	for i, a := range args {
		if fn, ok := a.(*expr.Lambda); ok {
			local, err := b.lambda(fn, typed)
			if err != nil {
				return nil, err
			}
			out[i] = local
			continue
		}
		out[i] = a
	}
	return out, nil
}

// lambda rewrites a lambda over the chain's element. typed is false once a
// projection has changed the element type, so catalog metadata no longer
// applies.
func (b *Builder) lambda(fn *expr.Lambda, typed bool) (*expr.Lambda, error) {
	param := ""
	if typed && b.res != nil && len(fn.Params) == 1 {
		param = fn.Params[0].Name
	}

	body := fn.Body
	if param != "" {
		body = b.res.Annotate(body, param)
	}
	body, err := b.Expr(body, param)
	if err != nil {
		return nil, err
	}
	return &expr.Lambda{Params: fn.Params, Body: body}, nil
}
