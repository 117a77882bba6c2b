package chain

import (
	"log/slog"
	"math"
	"strings"

	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/querynode"
)

// methodKinds maps recognized query methods to node kinds.
var methodKinds = map[string]querynode.Kind{
	"Where":             querynode.KindWhere,
	"OrderBy":           querynode.KindOrderBy,
	"OrderByDescending": querynode.KindOrderBy,
	"Select":            querynode.KindSelect,
	"SelectMany":        querynode.KindSelectMany,
	"Skip":              querynode.KindSkip,
	"Take":              querynode.KindTake,
	"Any":               querynode.KindAny,
	"Count":             querynode.KindCount,
	"First":             querynode.KindFirst,
	"Last":              querynode.KindLast,
}

// Parser converts call-chain expressions into query node chains.
//
// Thread-safety: a Parser holds only configuration and may be shared.
type Parser struct {
	strict bool
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrict selects strict mode: every violation is returned as an error
// instead of being demoted to local evaluation.
func WithStrict(strict bool) Option {
	return func(p *Parser) {
		p.strict = strict
	}
}

// WithLogger sets the logger used for demotion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser creates a parser. The default is lenient mode logging to
// slog.Default().
func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts e into a node chain. Parsing is strictly source-to-sink:
// a node is only built once its source is fully parsed.
//
// Structural failures (a chain not rooted at a collection, a call on the
// scalar result of a terminal, a non-constant or negative Skip/Take count)
// are returned in both modes.
func (p *Parser) Parse(e expr.Expr) (querynode.Node, error) {
	node, err := p.parse(e, NewConsecutiveCallState())
	if err != nil {
		return nil, err
	}
	if r := querynode.Validate(node); !r.IsValid {
		return nil, qerr.New(qerr.KindInvalidArgument, expr.Format(e),
			"malformed query chain: %s", strings.Join(r.Errors, "; "))
	}
	return node, nil
}

func (p *Parser) parse(e expr.Expr, st *ConsecutiveCallState) (querynode.Node, error) {
	switch n := e.(type) {
	case *expr.Source:
		return &querynode.Root{Collection: n}, nil
	case *expr.Call:
		if n.IsStatic() {
			return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(n),
				"query chain must start at a collection, not a static call")
		}
		src, err := p.parse(n.Target, st)
		if err != nil {
			return nil, err
		}
		return p.parseCall(n, src, st)
	default:
		return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(e),
			"unsupported query expression %T", e)
	}
}

func (p *Parser) parseCall(call *expr.Call, src querynode.Node, st *ConsecutiveCallState) (querynode.Node, error) {
	if st.Terminated() {
		return nil, qerr.New(qerr.KindUnconsecutiveCallSequence, expr.Format(call),
			"%s cannot follow terminal %s", call.Method, st.Last())
	}

	kind, known := methodKinds[call.Method]
	if !known {
		if st.Local() {
			return p.local(call, src, st, qerr.KindUnsupportedMethod), nil
		}
		err := qerr.New(qerr.KindUnsupportedMethod, expr.Format(call),
			"unsupported query expression: method %s", call.Method)
		return p.demote(call, src, st, err)
	}

	node, err := p.build(kind, call, src)
	if err != nil {
		if qerr.IsStructural(err) {
			return nil, err
		}
		return p.demote(call, src, st, err)
	}

	if reason := st.Check(kind, querynode.Predicate(node) != nil); reason != "" {
		err := qerr.New(qerr.KindUnconsecutiveCallSequence, expr.Format(call),
			"unconsecutive query method: %s", reason)
		if kind == querynode.KindSkip {
			return p.passThrough(call, src, err)
		}
		return p.demote(call, src, st, err)
	}

	st.Append(kind)
	return node, nil
}

// demote returns err in strict mode; in lenient mode it logs the decision
// and keeps the call as a local-only node.
func (p *Parser) demote(call *expr.Call, src querynode.Node, st *ConsecutiveCallState, err *qerr.Error) (querynode.Node, error) {
	if p.strict {
		return nil, err
	}
	p.logger.Warn("demoting query method to local evaluation",
		"method", call.Method,
		"kind", string(err.Kind),
		"expr", err.Expr,
		"reason", err.Message)
	return p.local(call, src, st, err.Kind), nil
}

// passThrough returns err in strict mode; in lenient mode it drops call
// from the chain. A Skip is never evaluated locally, so an offset the server
// cannot apply is discarded.
func (p *Parser) passThrough(call *expr.Call, src querynode.Node, err *qerr.Error) (querynode.Node, error) {
	if p.strict {
		return nil, err
	}
	p.logger.Warn("dropping query method the server cannot apply",
		"method", call.Method,
		"kind", string(err.Kind),
		"expr", err.Expr,
		"reason", err.Message)
	return src, nil
}

func (p *Parser) local(call *expr.Call, src querynode.Node, st *ConsecutiveCallState, reason qerr.Kind) querynode.Node {
	st.Append(querynode.KindLocalOnly)
	return &querynode.LocalOnly{From: src, Expr: call, Reason: reason}
}

// build constructs the node for a recognized method, validating its
// arguments.
func (p *Parser) build(kind querynode.Kind, call *expr.Call, src querynode.Node) (querynode.Node, *qerr.Error) {
	args := call.Args

	switch kind {
	case querynode.KindWhere:
		fn, err := lambdaArg(call, args, 0, 1)
		if err != nil || len(args) != 1 {
			return nil, argError(call, err)
		}
		return &querynode.Where{From: src, Predicate: fn, Expr: call}, nil

	case querynode.KindOrderBy:
		if len(args) < 1 || len(args) > 2 {
			return nil, argError(call, nil)
		}
		fn, err := lambdaArg(call, args, 0, 1)
		if err != nil {
			return nil, err
		}
		node := &querynode.OrderBy{From: src, KeySelector: fn, Expr: call}
		if call.Method == "OrderByDescending" {
			node.Direction = querynode.Descending
		}
		if len(args) == 2 {
			node.Comparer = args[1]
		}
		return node, nil

	case querynode.KindSelect:
		fn, err := lambdaArg(call, args, 0, 1)
		if err != nil || len(args) != 1 {
			return nil, argError(call, err)
		}
		return &querynode.Select{From: src, Selector: fn, Expr: call}, nil

	case querynode.KindSelectMany:
		if len(args) < 1 || len(args) > 2 {
			return nil, argError(call, nil)
		}
		coll, err := lambdaArg(call, args, 0, 1)
		if err != nil {
			return nil, err
		}
		node := &querynode.SelectMany{From: src, CollectionSelector: coll, Expr: call}
		if len(args) == 2 {
			if node.ResultSelector, err = lambdaArg(call, args, 1, 2); err != nil {
				return nil, err
			}
		}
		return node, nil

	case querynode.KindSkip, querynode.KindTake:
		n, err := countArg(call)
		if err != nil {
			return nil, err
		}
		if kind == querynode.KindSkip {
			return &querynode.Skip{From: src, Count: n, Expr: call}, nil
		}
		return &querynode.Take{From: src, Count: n, Expr: call}, nil
	}

	// Terminal operators with an optional predicate.
	if len(args) > 1 {
		return nil, argError(call, nil)
	}
	var pred *expr.Lambda
	if len(args) == 1 {
		fn, err := lambdaArg(call, args, 0, 1)
		if err != nil {
			return nil, err
		}
		pred = fn
	}

	switch kind {
	case querynode.KindAny:
		return &querynode.Any{From: src, Predicate: pred, Expr: call}, nil
	case querynode.KindCount:
		return &querynode.Count{From: src, Predicate: pred, Expr: call}, nil
	case querynode.KindFirst:
		return &querynode.First{From: src, Predicate: pred, Expr: call}, nil
	default:
		if pred != nil {
			if p.strict {
				return nil, qerr.New(qerr.KindUnsupportedOptionalPredicate, expr.Format(call),
					"Last does not accept a predicate; filter with Where first")
			}
			p.logger.Warn("keeping Last predicate for local evaluation",
				"kind", string(qerr.KindUnsupportedOptionalPredicate),
				"expr", expr.Format(call))
		}
		return &querynode.Last{From: src, Predicate: pred, Expr: call}, nil
	}
}

func lambdaArg(call *expr.Call, args []expr.Expr, i, params int) (*expr.Lambda, *qerr.Error) {
	if i >= len(args) {
		return nil, argError(call, nil)
	}
	fn, ok := args[i].(*expr.Lambda)
	if !ok || len(fn.Params) != params {
		return nil, qerr.New(qerr.KindUnsupportedMethod, expr.Format(call),
			"argument %d of %s must be a lambda with %d parameter(s)", i+1, call.Method, params)
	}
	return fn, nil
}

func argError(call *expr.Call, err *qerr.Error) *qerr.Error {
	if err != nil {
		return err
	}
	return qerr.New(qerr.KindUnsupportedMethod, expr.Format(call),
		"unsupported overload of %s with %d argument(s)", call.Method, len(call.Args))
}

// countArg folds the single argument of Skip/Take to a non-negative int.
func countArg(call *expr.Call) (int, *qerr.Error) {
	if len(call.Args) != 1 || !expr.IsConstant(call.Args[0]) {
		return 0, qerr.New(qerr.KindInvalidArgument, expr.Format(call),
			"%s count must be a constant integer", call.Method)
	}
	v, err := eval.Constant(call.Args[0])
	if err != nil {
		return 0, qerr.New(qerr.KindInvalidArgument, expr.Format(call),
			"%s count could not be evaluated: %v", call.Method, err)
	}
	n, ok := eval.Normalize(v).(int64)
	if !ok {
		return 0, qerr.New(qerr.KindInvalidArgument, expr.Format(call),
			"%s count is %T, not an integer", call.Method, v)
	}
	if n < 0 {
		return 0, qerr.New(qerr.KindInvalidArgument, expr.Format(call),
			"%s count %d is negative", call.Method, n)
	}
	if n > math.MaxInt {
		return 0, qerr.New(qerr.KindInvalidArgument, expr.Format(call),
			"%s count %d is too large", call.Method, n)
	}
	return int(n), nil
}
