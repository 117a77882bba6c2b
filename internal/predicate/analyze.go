package predicate

import (
	"errors"
	"log/slog"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/resolve"
)

// Analyzer converts predicate leaves into candidate filters.
//
// In strict mode every leaf that cannot be expressed exactly as a server
// filter is an error. In lenient mode such leaves come back illegal (or
// weak) and a warning is logged.
type Analyzer struct {
	res    *resolve.Resolver
	strict bool
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStrict selects strict mode.
func WithStrict(strict bool) Option {
	return func(a *Analyzer) {
		a.strict = strict
	}
}

// WithLogger sets the logger for demotion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an analyzer resolving properties with res.
func New(res *resolve.Resolver, opts ...Option) *Analyzer {
	a := &Analyzer{res: res, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Strict reports whether the analyzer runs in strict mode.
func (a *Analyzer) Strict() bool {
	return a.strict
}

// Analysis is the result of analyzing a whole predicate.
type Analysis struct {
	// Filters holds one candidate per top-level conjunct.
	Filters []CandidateFilter

	// Complete is false if any part of the predicate could not be converted
	// exactly (an illegal or weak leaf, or a disjunction).
	Complete bool
}

// Analyze splits body into its top-level conjuncts and analyzes each as a
// leaf. Disjunctions are left to package legality and mark the analysis
// incomplete.
func (a *Analyzer) Analyze(body expr.Expr, param string) (Analysis, error) {
	out := Analysis{Complete: true}
	for _, part := range Conjuncts(body) {
		if b, ok := part.(*expr.Binary); ok && b.Op == expr.OpOrElse {
			out.Complete = false
			continue
		}
		f, err := a.Leaf(part, param)
		if err != nil {
			return Analysis{}, err
		}
		if f.NeedsRecheck() {
			out.Complete = false
		}
		out.Filters = append(out.Filters, f)
	}
	return out, nil
}

// Conjuncts flattens nested && into their operands.
func Conjuncts(e expr.Expr) []expr.Expr {
	if b, ok := e.(*expr.Binary); ok && b.Op == expr.OpAndAlso {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	return []expr.Expr{e}
}

// Leaf analyzes a single condition. param names the element parameter of
// the enclosing lambda.
func (a *Analyzer) Leaf(e expr.Expr, param string) (CandidateFilter, error) {
	f, qe := a.leaf(e, param)
	if qe == nil {
		qe = f.Validate()
	}
	if qe != nil {
		if a.strict {
			return CandidateFilter{}, qe
		}
		a.logger.Warn("evaluating condition locally",
			"kind", string(qe.Kind),
			"expr", expr.Format(e),
			"reason", qe.Message)
		return CandidateFilter{Leaf: e, Reason: qe}, nil
	}

	f.Leaf = e
	f.Legal = true
	if f.Weak {
		a.logger.Warn("approximating condition with Contains",
			"kind", string(qerr.KindWeakContainsCondition),
			"expr", expr.Format(e))
	}
	return f, nil
}

// propSide is the property operand of a condition.
type propSide struct {
	ref  *expr.PropertyRef
	prop *catalog.Property

	// stringified is true when the property is compared through ToString().
	stringified bool
}

func (a *Analyzer) leaf(e expr.Expr, param string) (CandidateFilter, *qerr.Error) {
	at := expr.Format(e)

	switch n := e.(type) {
	case *expr.Binary:
		switch {
		case n.Op.IsComparison():
			return a.comparison(at, n.Op, n.Left, n.Right, param)
		case n.Op == expr.OpBoxedEqual:
			return a.comparison(at, expr.OpEqual, n.Left, n.Right, param)
		}
		return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at,
			"operator %s is not a filter condition", n.Op)
	case *expr.Unary:
		if n.Op == expr.OpNot {
			return a.negated(at, n.Operand, param)
		}
	case *expr.Call:
		return a.call(at, n, param)
	case *expr.Member, *expr.PropertyRef:
		return a.comparison(at, expr.OpEqual, e, expr.C(true), param)
	}
	return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at, "expression is not a filter condition")
}

// negated handles !x. Only negations with an exact server equivalent are
// accepted.
func (a *Analyzer) negated(at string, operand expr.Expr, param string) (CandidateFilter, *qerr.Error) {
	switch n := operand.(type) {
	case *expr.Binary:
		switch n.Op {
		case expr.OpEqual, expr.OpBoxedEqual:
			return a.comparison(at, expr.OpNotEqual, n.Left, n.Right, param)
		case expr.OpNotEqual:
			return a.comparison(at, expr.OpEqual, n.Left, n.Right, param)
		}
	case *expr.Unary:
		if n.Op == expr.OpNot {
			return a.leaf(n.Operand, param)
		}
	case *expr.Member, *expr.PropertyRef:
		return a.comparison(at, expr.OpEqual, operand, expr.C(false), param)
	}
	return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at, "negated condition has no server equivalent")
}

func (a *Analyzer) call(at string, c *expr.Call, param string) (CandidateFilter, *qerr.Error) {
	if c.IsStatic() {
		if c.Static == "Object" && c.Method == "Equals" && len(c.Args) == 2 {
			return a.comparison(at, expr.OpEqual, c.Args[0], c.Args[1], param)
		}
		return CandidateFilter{}, qerr.New(qerr.KindUnsupportedMethod, at,
			"static method %s.%s cannot be sent to the server", c.Static, c.Method)
	}

	switch c.Method {
	case "Equals":
		if len(c.Args) != 1 {
			return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at, "Equals takes one argument")
		}
		return a.comparison(at, expr.OpEqual, c.Target, c.Args[0], param)

	case "Contains", "StartsWith", "EndsWith":
		if len(c.Args) != 1 {
			return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at, "%s takes one argument", c.Method)
		}
		weak := c.Method != "Contains"
		if weak && a.strict {
			return CandidateFilter{}, qerr.New(qerr.KindWeakContainsCondition, at,
				"%s cannot be expressed precisely server side; only Contains is supported", c.Method)
		}

		side, qe := a.property(c.Target, param)
		if qe != nil {
			return CandidateFilter{}, qe
		}
		if qe := a.checkPushable(at, side); qe != nil {
			return CandidateFilter{}, qe
		}
		if side.prop.Kind != catalog.KindString && !side.stringified {
			return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at,
				"%s requires a string property, %s is %s", c.Method, side.prop.Name, side.prop.Kind)
		}
		v, qe := a.constant(at, c.Args[0])
		if qe != nil {
			return CandidateFilter{}, qe
		}
		value, qe := a.coerce(at, propSide{ref: side.ref, prop: side.prop, stringified: true}, v)
		if qe != nil {
			return CandidateFilter{}, qe
		}
		return CandidateFilter{
			Property:  side.ref,
			Operators: []FilterOperator{Contains},
			Value:     value,
			Weak:      weak,
		}, nil
	}

	return CandidateFilter{}, qerr.New(qerr.KindUnsupportedMethod, at,
		"method %s cannot be sent to the server", c.Method)
}

// comparison analyzes left op right, normalizing the property to the left.
func (a *Analyzer) comparison(at string, op expr.BinaryOp, left, right expr.Expr, param string) (CandidateFilter, *qerr.Error) {
	lside, lerr := a.property(left, param)
	rside, rerr := a.property(right, param)

	var side propSide
	var valueExpr expr.Expr
	switch {
	case lerr == nil && rerr == nil:
		return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at,
			"condition compares two properties, %s and %s", lside.prop.Name, rside.prop.Name)
	case lerr == nil:
		side, valueExpr = lside, right
	case rerr == nil:
		side, valueExpr = rside, left
		op = op.Mirror()
	case expr.References(left, param):
		return CandidateFilter{}, lerr
	case expr.References(right, param):
		return CandidateFilter{}, rerr
	default:
		return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at,
			"condition does not reference a property of %s", a.res.Type().Name)
	}

	if qe := a.checkPushable(at, side); qe != nil {
		return CandidateFilter{}, qe
	}

	var ops []FilterOperator
	switch op {
	case expr.OpEqual:
		ops = []FilterOperator{Equals}
	case expr.OpNotEqual:
		ops = []FilterOperator{NotEquals}
	case expr.OpLess:
		ops = []FilterOperator{LessThan}
	case expr.OpLessEqual:
		ops = []FilterOperator{LessThan, Equals}
	case expr.OpGreater:
		ops = []FilterOperator{GreaterThan}
	case expr.OpGreaterEqual:
		ops = []FilterOperator{GreaterThan, Equals}
	default:
		return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at, "operator %s is not a filter condition", op)
	}
	if op != expr.OpEqual && op != expr.OpNotEqual && side.prop.Kind == catalog.KindBool {
		return CandidateFilter{}, qerr.New(qerr.KindInvalidCondition, at,
			"bool property %s cannot be ordered", side.prop.Name)
	}

	v, qe := a.constant(at, valueExpr)
	if qe != nil {
		return CandidateFilter{}, qe
	}
	value, qe := a.coerce(at, side, v)
	if qe != nil {
		return CandidateFilter{}, qe
	}
	return CandidateFilter{Property: side.ref, Operators: ops, Value: value}, nil
}

// property resolves e as the property operand of a condition, accepting an
// optional trailing ToString().
func (a *Analyzer) property(e expr.Expr, param string) (propSide, *qerr.Error) {
	if c, ok := e.(*expr.Call); ok && !c.IsStatic() && c.Method == "ToString" && len(c.Args) == 0 {
		ref, prop, err := a.res.Resolve(c.Target, param)
		if err != nil {
			return propSide{}, asQerr(err, e)
		}
		if !toStringAllowed(prop) {
			return propSide{}, qerr.New(qerr.KindUnsupportedToStringTarget, expr.Format(e),
				"ToString on %s property %s renders differently on the server", prop.Kind, prop.Name)
		}
		return propSide{ref: ref, prop: prop, stringified: true}, nil
	}

	ref, prop, err := a.res.Resolve(e, param)
	if err != nil {
		return propSide{}, asQerr(err, e)
	}
	return propSide{ref: ref, prop: prop}, nil
}

func (a *Analyzer) checkPushable(at string, side propSide) *qerr.Error {
	if !side.prop.Pushable() {
		return qerr.New(qerr.KindPropertyNotQueryable, at,
			"property %s cannot be filtered server side", side.prop.Name)
	}
	if !side.prop.Kind.IsScalar() && !side.stringified {
		return qerr.New(qerr.KindPropertyNotQueryable, at,
			"%s property %s can only be filtered through ToString()", side.prop.Kind, side.prop.Name)
	}
	return nil
}

func (a *Analyzer) constant(at string, e expr.Expr) (any, *qerr.Error) {
	if !expr.IsConstant(e) {
		return nil, qerr.New(qerr.KindInvalidCondition, at, "value %s is not constant", expr.Format(e))
	}
	v, err := eval.Constant(e)
	if err != nil {
		return nil, qerr.New(qerr.KindInvalidCondition, at, "value %s cannot be evaluated: %v", expr.Format(e), err)
	}
	return v, nil
}

// toStringAllowed reports whether the server renders prop the same way
// ToString() does locally.
func toStringAllowed(prop *catalog.Property) bool {
	if prop.Stringer {
		return true
	}
	switch prop.Kind {
	case catalog.KindString, catalog.KindInt, catalog.KindFloat:
		return true
	}
	return false
}

func asQerr(err error, e expr.Expr) *qerr.Error {
	var qe *qerr.Error
	if errors.As(err, &qe) {
		return qe
	}
	return qerr.New(qerr.KindInvalidCondition, expr.Format(e), "%v", err)
}
