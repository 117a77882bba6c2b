package chain

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/querynode"
)

var s = expr.P("s")

func sensors() *expr.Source { return expr.NewSource("Sensors", "Sensor") }

func call(target expr.Expr, method string, args ...expr.Expr) *expr.Call {
	return expr.MethodCall(target, method, args...)
}

func statusUp() *expr.Lambda {
	return expr.Fn(s, expr.Eq(expr.M(s, "Status"), expr.C("Up")))
}

func byName() *expr.Lambda {
	return expr.Fn(s, expr.M(s, "Name"))
}

func kinds(n querynode.Node) []querynode.Kind {
	var out []querynode.Kind
	for _, node := range querynode.Chain(n) {
		out = append(out, node.Kind())
	}
	return out
}

func lenient(buf *bytes.Buffer) *Parser {
	return NewParser(WithLogger(slog.New(slog.NewTextHandler(buf, nil))))
}

func TestParse_FullChain(t *testing.T) {
	e := call(call(call(call(sensors(), "Where", statusUp()), "OrderByDescending", byName()), "Skip", expr.C(10)), "Take", expr.C(5))

	node, err := NewParser(WithStrict(true)).Parse(e)
	require.NoError(t, err)

	assert.Equal(t, []querynode.Kind{
		querynode.KindRoot, querynode.KindWhere, querynode.KindOrderBy, querynode.KindSkip, querynode.KindTake,
	}, kinds(node))

	nodes := querynode.Chain(node)
	assert.Equal(t, querynode.Descending, nodes[2].(*querynode.OrderBy).Direction)
	assert.Equal(t, 10, nodes[3].(*querynode.Skip).Count)
	assert.Equal(t, 5, nodes[4].(*querynode.Take).Count)
	assert.True(t, querynode.Validate(node).IsValid)
}

func TestParse_RoundTripsThroughToExpr(t *testing.T) {
	e := call(call(call(sensors(), "Where", statusUp()), "OrderBy", byName()), "Take", expr.C(3))
	p := NewParser(WithStrict(true))

	first, err := p.Parse(e)
	require.NoError(t, err)
	second, err := p.Parse(querynode.ToExpr(first))
	require.NoError(t, err)

	assert.Equal(t, querynode.Format(first), querynode.Format(second))
	assert.Equal(t, expr.Format(e), querynode.Format(second))
}

func TestParse_Terminals(t *testing.T) {
	tests := []struct {
		name   string
		method string
		args   []expr.Expr
		want   querynode.Kind
	}{
		{"any", "Any", nil, querynode.KindAny},
		{"any predicate", "Any", []expr.Expr{statusUp()}, querynode.KindAny},
		{"count", "Count", nil, querynode.KindCount},
		{"count predicate", "Count", []expr.Expr{statusUp()}, querynode.KindCount},
		{"first", "First", []expr.Expr{statusUp()}, querynode.KindFirst},
		{"last", "Last", nil, querynode.KindLast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewParser(WithStrict(true)).Parse(call(sensors(), tt.method, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.Kind())
			assert.Equal(t, len(tt.args) == 1, querynode.Predicate(node) != nil)
		})
	}
}

func TestParse_SelectAndSelectMany(t *testing.T) {
	parent := expr.P("p")
	e := call(call(sensors(), "Select", expr.Fn(s, expr.M(s, "Name"))), "Take", expr.C(2))
	node, err := NewParser(WithStrict(true)).Parse(e)
	require.NoError(t, err)
	assert.Equal(t, []querynode.Kind{querynode.KindRoot, querynode.KindSelect, querynode.KindTake}, kinds(node))

	e = call(sensors(), "SelectMany",
		expr.Fn(s, expr.M(s, "Tags")),
		expr.Fn2(parent, expr.P("t"), expr.P("t")))
	node, err = NewParser(WithStrict(true)).Parse(e)
	require.NoError(t, err)
	sm := node.(*querynode.SelectMany)
	require.NotNil(t, sm.ResultSelector)
	assert.Len(t, sm.ResultSelector.Params, 2)
}

func TestParse_UnconsecutiveStrict(t *testing.T) {
	tests := []struct {
		name string
		e    expr.Expr
	}{
		{"where after skip", call(call(sensors(), "Skip", expr.C(1)), "Where", statusUp())},
		{"orderby after take", call(call(sensors(), "Take", expr.C(1)), "OrderBy", byName())},
		{"skip after take", call(call(sensors(), "Take", expr.C(1)), "Skip", expr.C(1))},
		{"where after select", call(call(sensors(), "Select", byName()), "Where", statusUp())},
		{"skip after selectmany", call(call(sensors(), "SelectMany", expr.Fn(s, expr.M(s, "Tags"))), "Skip", expr.C(1))},
		{"predicate after select", call(call(sensors(), "Select", byName()), "Any", statusUp())},
		{"where after skip then take", call(call(call(sensors(), "Skip", expr.C(1)), "Take", expr.C(2)), "Where", statusUp())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(WithStrict(true)).Parse(tt.e)
			require.Error(t, err)
			assert.True(t, qerr.IsUnconsecutive(err), "got %v", err)
		})
	}
}

func TestParse_UnconsecutiveLenientDemotes(t *testing.T) {
	var buf bytes.Buffer
	e := call(call(call(sensors(), "Skip", expr.C(1)), "Where", statusUp()), "OrderBy", byName())

	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)

	assert.Equal(t, []querynode.Kind{
		querynode.KindRoot, querynode.KindSkip, querynode.KindLocalOnly, querynode.KindLocalOnly,
	}, kinds(node))
	nodes := querynode.Chain(node)
	assert.Equal(t, qerr.KindUnconsecutiveCallSequence, nodes[2].(*querynode.LocalOnly).Reason)
	assert.Contains(t, buf.String(), "demoting query method to local evaluation")
	assert.Equal(t, expr.Format(e), querynode.Format(node), "demoted calls keep their shape")
}

func TestParse_TakeAfterSelectMany(t *testing.T) {
	e := call(call(sensors(), "SelectMany", expr.Fn(s, expr.M(s, "Tags"))), "Take", expr.C(2))

	node, err := NewParser(WithStrict(true)).Parse(e)
	require.NoError(t, err)
	assert.Equal(t, []querynode.Kind{querynode.KindRoot, querynode.KindSelectMany, querynode.KindTake}, kinds(node))
}

func TestParse_LenientDropsUnconsecutiveSkip(t *testing.T) {
	var buf bytes.Buffer
	e := call(call(call(sensors(), "Take", expr.C(5)), "Skip", expr.C(2)), "Count")

	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)

	assert.Equal(t, []querynode.Kind{querynode.KindRoot, querynode.KindTake, querynode.KindCount}, kinds(node))
	assert.Contains(t, buf.String(), "dropping query method the server cannot apply")
	assert.Contains(t, buf.String(), "method=Skip")
}

func TestParse_ResultsAreValidChains(t *testing.T) {
	chains := []expr.Expr{
		call(call(call(call(sensors(), "Where", statusUp()), "OrderBy", byName()), "Skip", expr.C(1)), "Take", expr.C(2)),
		call(call(call(sensors(), "Skip", expr.C(1)), "Where", statusUp()), "OrderBy", byName()),
		call(call(call(sensors(), "Reverse"), "Skip", expr.C(1)), "First", statusUp()),
		call(call(sensors(), "Take", expr.C(1)), "Skip", expr.C(1)),
		call(call(sensors(), "Select", byName()), "Count"),
	}

	var buf bytes.Buffer
	for _, e := range chains {
		node, err := lenient(&buf).Parse(e)
		require.NoError(t, err, expr.Format(e))
		r := querynode.Validate(node)
		assert.True(t, r.IsValid, "%s: %v", expr.Format(e), r.Errors)
	}
}

func TestParse_UnsupportedMethod(t *testing.T) {
	e := call(call(sensors(), "Reverse"), "Take", expr.C(2))

	_, err := NewParser(WithStrict(true)).Parse(e)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedMethod))
	assert.Contains(t, err.Error(), "Reverse")

	var buf bytes.Buffer
	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)
	assert.Equal(t, []querynode.Kind{querynode.KindRoot, querynode.KindLocalOnly, querynode.KindTake}, kinds(node))
	assert.Equal(t, qerr.KindUnsupportedMethod, querynode.Chain(node)[1].(*querynode.LocalOnly).Reason)
}

func TestParse_LocalOnlyLiftsRestrictions(t *testing.T) {
	e := call(call(call(sensors(), "Reverse"), "Skip", expr.C(1)), "Take", expr.C(1))
	e = call(e, "Where", statusUp())

	var buf bytes.Buffer
	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)
	assert.Equal(t, querynode.KindWhere, node.Kind(), "everything after a local call is local anyway")
}

func TestParse_LastPredicate(t *testing.T) {
	e := call(sensors(), "Last", statusUp())

	_, err := NewParser(WithStrict(true)).Parse(e)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedOptionalPredicate))

	var buf bytes.Buffer
	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)
	last := node.(*querynode.Last)
	assert.NotNil(t, last.Predicate)
	assert.Contains(t, buf.String(), "keeping Last predicate")
}

func TestParse_CountArguments(t *testing.T) {
	folded := call(sensors(), "Take", expr.Bin(expr.OpAdd, expr.C(2), expr.C(3)))
	node, err := NewParser().Parse(folded)
	require.NoError(t, err)
	assert.Equal(t, 5, node.(*querynode.Take).Count)

	bad := []expr.Expr{
		call(sensors(), "Skip", expr.C(-1)),
		call(sensors(), "Take", expr.C("five")),
		call(sensors(), "Take", expr.M(s, "Priority")),
		call(sensors(), "Skip"),
	}
	for _, e := range bad {
		_, err := NewParser().Parse(e)
		require.Error(t, err, expr.Format(e))
		assert.True(t, qerr.IsStructural(err), "lenient mode still raises: %v", err)
	}
}

func TestParse_StructuralFailures(t *testing.T) {
	var buf bytes.Buffer
	p := lenient(&buf)

	_, err := p.Parse(expr.M(sensors(), "Count"))
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedMethod))

	_, err = p.Parse(expr.StaticCall("Enumerable", "Empty"))
	require.Error(t, err)

	_, err = p.Parse(call(call(sensors(), "Count"), "Take", expr.C(1)))
	require.Error(t, err)
	assert.True(t, qerr.IsUnconsecutive(err))
}

func TestParse_BadLambdaShape(t *testing.T) {
	e := call(sensors(), "Where", expr.Fn2(s, expr.P("i"), expr.C(true)))

	_, err := NewParser(WithStrict(true)).Parse(e)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedMethod))

	var buf bytes.Buffer
	node, err := lenient(&buf).Parse(e)
	require.NoError(t, err)
	assert.Equal(t, querynode.KindLocalOnly, node.Kind())
}

func TestConsecutiveCallState(t *testing.T) {
	st := NewConsecutiveCallState()
	assert.Equal(t, querynode.KindRoot, st.Last())
	assert.Empty(t, st.Check(querynode.KindWhere, false))

	st.Append(querynode.KindSkip)
	assert.NotEmpty(t, st.Check(querynode.KindWhere, false))
	assert.Empty(t, st.Check(querynode.KindTake, false))
	assert.Empty(t, st.Check(querynode.KindSkip, false))

	flat := NewConsecutiveCallState()
	flat.Append(querynode.KindSelectMany)
	assert.Empty(t, flat.Check(querynode.KindTake, false))
	assert.NotEmpty(t, flat.Check(querynode.KindSkip, false))

	st.Append(querynode.KindLocalOnly)
	assert.True(t, st.Local())
	assert.Empty(t, st.Check(querynode.KindWhere, false))
}
