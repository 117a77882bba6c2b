package eval

import (
	"fmt"
	"sort"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

var sequenceMethods = map[string]struct{}{
	"Where": {}, "Select": {}, "SelectMany": {},
	"OrderBy": {}, "OrderByDescending": {}, "ThenBy": {}, "ThenByDescending": {},
	"Skip": {}, "Take": {}, "Distinct": {}, "Reverse": {},
	"Any": {}, "Count": {}, "First": {}, "Last": {}, "Contains": {},
}

var orderingMethods = map[string]bool{
	"OrderBy":           false,
	"OrderByDescending": true,
	"ThenBy":            false,
	"ThenByDescending":  true,
}

func isSequenceMethod(name string) bool {
	_, ok := sequenceMethods[name]
	return ok
}

// apply evaluates a lambda argument for one or two bound values.
func apply(arg expr.Expr, env *Env, values ...any) (any, error) {
	fn, ok := arg.(*expr.Lambda)
	if !ok {
		return nil, fmt.Errorf("eval: expected lambda, got %s", expr.Format(arg))
	}
	if len(fn.Params) != len(values) {
		return nil, fmt.Errorf("eval: lambda %s takes %d parameter(s), got %d", expr.Format(fn), len(fn.Params), len(values))
	}
	for i, p := range fn.Params {
		env = env.Bind(p.Name, values[i])
	}
	return Eval(fn.Body, env)
}

func applyBool(arg expr.Expr, env *Env, v any) (bool, error) {
	out, err := apply(arg, env, v)
	if err != nil {
		return false, err
	}
	b, ok := Normalize(out).(bool)
	if !ok {
		return false, fmt.Errorf("eval: predicate %s returned %T", expr.Format(arg), out)
	}
	return b, nil
}

func countArg(c *expr.Call, env *Env) (int, error) {
	if len(c.Args) != 1 {
		return 0, fmt.Errorf("eval: %s expects a count", c.Method)
	}
	v, err := Eval(c.Args[0], env)
	if err != nil {
		return 0, err
	}
	n, ok := Normalize(v).(int64)
	if !ok {
		return 0, fmt.Errorf("eval: %s count is %T, not an integer", c.Method, v)
	}
	if n < 0 {
		n = 0
	}
	return int(n), nil
}

func filter(seq []any, pred expr.Expr, env *Env) ([]any, error) {
	out := make([]any, 0, len(seq))
	for _, item := range seq {
		ok, err := applyBool(pred, env, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// optionalFilter applies the optional predicate of Any/Count/First/Last.
func optionalFilter(c *expr.Call, seq []any, env *Env) ([]any, error) {
	switch len(c.Args) {
	case 0:
		return seq, nil
	case 1:
		return filter(seq, c.Args[0], env)
	default:
		return nil, fmt.Errorf("eval: %s takes at most one predicate", c.Method)
	}
}

func evalSequence(c *expr.Call, seq []any, env *Env) (any, error) {
	switch c.Method {
	case "Where":
		if len(c.Args) != 1 {
			return nil, fmt.Errorf("eval: Where expects a predicate")
		}
		return filter(seq, c.Args[0], env)

	case "Select":
		if len(c.Args) != 1 {
			return nil, fmt.Errorf("eval: Select expects a selector")
		}
		out := make([]any, len(seq))
		for i, item := range seq {
			v, err := apply(c.Args[0], env, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case "SelectMany":
		if len(c.Args) < 1 || len(c.Args) > 2 {
			return nil, fmt.Errorf("eval: SelectMany expects a collection selector and an optional result selector")
		}
		var out []any
		for _, item := range seq {
			coll, err := apply(c.Args[0], env, item)
			if err != nil {
				return nil, err
			}
			if IsNull(coll) {
				return nil, qerr.New(qerr.KindNullReference, expr.Format(c.Args[0]),
					"null reference while evaluating expression %s: collection was null", expr.Format(c.Args[0]))
			}
			inner, ok := toSeq(coll)
			if !ok {
				return nil, fmt.Errorf("eval: SelectMany selector returned %T, not a collection", coll)
			}
			for _, elem := range inner {
				if len(c.Args) == 1 {
					out = append(out, elem)
					continue
				}
				v, err := apply(c.Args[1], env, item, elem)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		}
		return out, nil

	case "Skip":
		n, err := countArg(c, env)
		if err != nil {
			return nil, err
		}
		if n >= len(seq) {
			return []any{}, nil
		}
		return seq[n:], nil

	case "Take":
		n, err := countArg(c, env)
		if err != nil {
			return nil, err
		}
		if n >= len(seq) {
			return seq, nil
		}
		return seq[:n], nil

	case "Distinct":
		var out []any
	next:
		for _, item := range seq {
			for _, seen := range out {
				if Equal(seen, item) {
					continue next
				}
			}
			out = append(out, item)
		}
		return out, nil

	case "Reverse":
		out := make([]any, len(seq))
		for i, item := range seq {
			out[len(seq)-1-i] = item
		}
		return out, nil

	case "Contains":
		if len(c.Args) != 1 {
			return nil, fmt.Errorf("eval: Contains expects a value")
		}
		v, err := Eval(c.Args[0], env)
		if err != nil {
			return nil, err
		}
		for _, item := range seq {
			if Equal(item, v) {
				return true, nil
			}
		}
		return false, nil

	case "Any":
		matched, err := optionalFilter(c, seq, env)
		if err != nil {
			return nil, err
		}
		return len(matched) > 0, nil

	case "Count":
		matched, err := optionalFilter(c, seq, env)
		if err != nil {
			return nil, err
		}
		return int64(len(matched)), nil

	case "First", "Last":
		matched, err := optionalFilter(c, seq, env)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, ErrNoElements
		}
		if c.Method == "First" {
			return matched[0], nil
		}
		return matched[len(matched)-1], nil
	}

	return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(c), "method %s cannot be evaluated locally", c.Method)
}

type sortKey struct {
	selector   expr.Expr
	descending bool
}

// evalOrdering sorts by the whole OrderBy/ThenBy run ending at c with one
// stable sort, so ThenBy keys break ties of earlier keys.
func evalOrdering(c *expr.Call, env *Env) (any, error) {
	var keys []sortKey
	cur := c
	for {
		if len(cur.Args) != 1 {
			return nil, fmt.Errorf("eval: %s expects a key selector", cur.Method)
		}
		keys = append([]sortKey{{selector: cur.Args[0], descending: orderingMethods[cur.Method]}}, keys...)
		if cur.Method == "OrderBy" || cur.Method == "OrderByDescending" {
			break
		}
		prev, ok := cur.Target.(*expr.Call)
		if !ok || !isOrderingCall(prev) {
			return nil, fmt.Errorf("eval: %s must follow OrderBy", cur.Method)
		}
		cur = prev
	}

	recv, err := Eval(cur.Target, env)
	if err != nil {
		return nil, err
	}
	seq, ok := toSeq(recv)
	if !ok {
		return nil, fmt.Errorf("eval: %s on %T, not a sequence", cur.Method, recv)
	}

	values := make([][]any, len(seq))
	for i, item := range seq {
		values[i] = make([]any, len(keys))
		for k, key := range keys {
			v, err := apply(key.selector, env, item)
			if err != nil {
				return nil, err
			}
			values[i][k] = v
		}
	}

	idx := make([]int, len(seq))
	for i := range idx {
		idx[i] = i
	}
	var cmpErr error
	sort.SliceStable(idx, func(a, b int) bool {
		for k, key := range keys {
			c := compareNullsFirst(values[idx[a]][k], values[idx[b]][k], &cmpErr)
			if c == 0 {
				continue
			}
			if key.descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if cmpErr != nil {
		return nil, fmt.Errorf("eval: %s: %w", expr.Format(c), cmpErr)
	}

	out := make([]any, len(seq))
	for i, j := range idx {
		out[i] = seq[j]
	}
	return out, nil
}

func isOrderingCall(c *expr.Call) bool {
	_, ok := orderingMethods[c.Method]
	return ok && !c.IsStatic()
}

func compareNullsFirst(a, b any, errOut *error) int {
	switch {
	case IsNull(a) && IsNull(b):
		return 0
	case IsNull(a):
		return -1
	case IsNull(b):
		return 1
	}
	c, err := Compare(a, b)
	if err != nil && *errOut == nil {
		*errOut = err
	}
	return c
}
