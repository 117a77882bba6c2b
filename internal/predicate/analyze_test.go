package predicate

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/resolve"
	"github.com/roach88/sensorq/internal/testutil"
)

var s = expr.P("s")

func prop(name string) *expr.Member { return expr.M(s, name) }

func analyzer(t testing.TB, strict bool) (*Analyzer, *bytes.Buffer) {
	cat, typ := testutil.SampleType(t, "Sensor")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return New(resolve.New(cat, typ), WithStrict(strict), WithLogger(logger)), &buf
}

func legal(t *testing.T, a *Analyzer, e expr.Expr) CandidateFilter {
	t.Helper()
	f, err := a.Leaf(e, "s")
	require.NoError(t, err)
	require.True(t, f.Legal, "want legal filter for %s, got %v", expr.Format(e), f.Reason)
	return f
}

func TestLeaf_Equality(t *testing.T) {
	a, _ := analyzer(t, true)

	f := legal(t, a, expr.Eq(prop("Name"), expr.C("db")))
	assert.Equal(t, "name", f.PropertyID())
	assert.Equal(t, []FilterOperator{Equals}, f.Operators)
	assert.Equal(t, "db", f.Value)
	assert.False(t, f.Weak)

	f = legal(t, a, expr.Ne(prop("Priority"), expr.C(3)))
	assert.Equal(t, []FilterOperator{NotEquals}, f.Operators)
	assert.Equal(t, int64(3), f.Value)
}

func TestLeaf_EnumCoercion(t *testing.T) {
	a, _ := analyzer(t, true)
	want := catalog.EnumValue{Type: "Status", Name: "Up", Ordinal: 3}

	for _, v := range []any{"Up", "up", 3, want} {
		f := legal(t, a, expr.Eq(prop("Status"), expr.C(v)))
		assert.Equal(t, want, f.Value, "literal %v", v)
	}
	assert.Equal(t, `Status Equals "Up"`, legal(t, a, expr.Eq(prop("Status"), expr.C("Up"))).String())

	_, err := a.Leaf(expr.Eq(prop("Status"), expr.C("Sideways")), "s")
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindInvalidCondition))
}

func TestLeaf_RelationalMirroring(t *testing.T) {
	a, _ := analyzer(t, true)

	tests := []struct {
		name string
		e    expr.Expr
		want []FilterOperator
	}{
		{"gt", expr.Gt(prop("Priority"), expr.C(5)), []FilterOperator{GreaterThan}},
		{"lt mirrored", expr.Lt(expr.C(5), prop("Priority")), []FilterOperator{GreaterThan}},
		{"lt", expr.Lt(prop("Priority"), expr.C(5)), []FilterOperator{LessThan}},
		{"gt mirrored", expr.Gt(expr.C(5), prop("Priority")), []FilterOperator{LessThan}},
		{"ge", expr.Ge(prop("Priority"), expr.C(5)), []FilterOperator{GreaterThan, Equals}},
		{"le mirrored", expr.Le(expr.C(5), prop("Priority")), []FilterOperator{GreaterThan, Equals}},
		{"le", expr.Le(prop("Priority"), expr.C(5)), []FilterOperator{LessThan, Equals}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := legal(t, a, tt.e)
			assert.Equal(t, tt.want, f.Operators)
			assert.Equal(t, int64(5), f.Value)
		})
	}
}

func TestLeaf_MirroringProperty(t *testing.T) {
	a, _ := analyzer(t, true)
	ops := []expr.BinaryOp{expr.OpEqual, expr.OpNotEqual, expr.OpLess, expr.OpLessEqual, expr.OpGreater, expr.OpGreaterEqual}

	rapid.Check(t, func(t *rapid.T) {
		op := rapid.SampledFrom(ops).Draw(t, "op")
		n := rapid.Int64Range(-1000, 1000).Draw(t, "n")

		direct, err := a.Leaf(expr.Bin(op, prop("Priority"), expr.C(n)), "s")
		if err != nil {
			t.Fatalf("direct: %v", err)
		}
		mirrored, err := a.Leaf(expr.Bin(op.Mirror(), expr.C(n), prop("Priority")), "s")
		if err != nil {
			t.Fatalf("mirrored: %v", err)
		}
		if direct.String() != mirrored.String() {
			t.Fatalf("%s != %s", direct, mirrored)
		}
	})
}

func TestLeaf_Strings(t *testing.T) {
	a, _ := analyzer(t, true)

	f := legal(t, a, expr.MethodCall(prop("Name"), "Contains", expr.C("db")))
	assert.Equal(t, []FilterOperator{Contains}, f.Operators)
	assert.Equal(t, "db", f.Value)

	f = legal(t, a, expr.MethodCall(prop("Name"), "Equals", expr.C("web")))
	assert.Equal(t, []FilterOperator{Equals}, f.Operators)

	f = legal(t, a, expr.StaticCall("Object", "Equals", expr.C(4), prop("Priority")))
	assert.Equal(t, []FilterOperator{Equals}, f.Operators)
	assert.Equal(t, int64(4), f.Value)
}

func TestLeaf_WeakContains(t *testing.T) {
	e := expr.MethodCall(prop("Name"), "StartsWith", expr.C("db"))

	strict, _ := analyzer(t, true)
	_, err := strict.Leaf(e, "s")
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindWeakContainsCondition))

	lenient, buf := analyzer(t, false)
	f, err := lenient.Leaf(e, "s")
	require.NoError(t, err)
	assert.True(t, f.Legal)
	assert.True(t, f.Weak)
	assert.True(t, f.NeedsRecheck())
	assert.Equal(t, []FilterOperator{Contains}, f.Operators)
	assert.Contains(t, buf.String(), "approximating condition with Contains")
}

func TestLeaf_ToString(t *testing.T) {
	a, _ := analyzer(t, true)

	f := legal(t, a, expr.Eq(expr.MethodCall(prop("Priority"), "ToString"), expr.C("4")))
	assert.Equal(t, "4", f.Value)

	f = legal(t, a, expr.Eq(expr.MethodCall(prop("Interval"), "ToString"), expr.C("60s")))
	assert.Equal(t, "interval", f.PropertyID())

	for _, name := range []string{"Active", "Status", "LastUp"} {
		_, err := a.Leaf(expr.Eq(expr.MethodCall(prop(name), "ToString"), expr.C("x")), "s")
		require.Error(t, err, name)
		assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedToStringTarget), "%s: %v", name, err)
	}
}

func TestLeaf_BooleanMembers(t *testing.T) {
	a, _ := analyzer(t, true)

	f := legal(t, a, prop("Active"))
	assert.Equal(t, true, f.Value)
	assert.Equal(t, []FilterOperator{Equals}, f.Operators)

	f = legal(t, a, expr.Not(prop("Active")))
	assert.Equal(t, false, f.Value)

	f = legal(t, a, expr.Not(expr.Eq(prop("Name"), expr.C("x"))))
	assert.Equal(t, []FilterOperator{NotEquals}, f.Operators)

	_, err := a.Leaf(expr.Gt(prop("Active"), expr.C(false)), "s")
	assert.True(t, qerr.IsKind(err, qerr.KindInvalidCondition))
}

func TestLeaf_TimeAndFloat(t *testing.T) {
	a, _ := analyzer(t, true)

	f := legal(t, a, expr.Gt(prop("LastUp"), expr.C("2026-01-02T00:00:00Z")))
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), f.Value)

	f = legal(t, a, expr.Ge(prop("Uptime"), expr.C(95)))
	assert.Equal(t, float64(95), f.Value)

	f = legal(t, a, expr.Eq(prop("Priority"), expr.C(4.0)))
	assert.Equal(t, int64(4), f.Value)
}

func TestLeaf_Illegal(t *testing.T) {
	tests := []struct {
		name string
		e    expr.Expr
		kind qerr.Kind
	}{
		{"list contains", expr.MethodCall(prop("Tags"), "Contains", expr.C("x")), qerr.KindPropertyNotQueryable},
		{"not filterable", expr.Eq(prop("Message"), expr.C("OK")), qerr.KindPropertyNotQueryable},
		{"nested", expr.Eq(expr.M(prop("Parent"), "Name"), expr.C("x")), qerr.KindPropertyNotQueryable},
		{"two properties", expr.Eq(prop("Priority"), prop("Id")), qerr.KindInvalidCondition},
		{"no property", expr.Eq(expr.C(1), expr.C(1)), qerr.KindInvalidCondition},
		{"null value", expr.Eq(prop("Name"), expr.C(nil)), qerr.KindInvalidCondition},
		{"empty value", expr.Eq(prop("Name"), expr.C("")), qerr.KindInvalidCondition},
		{"non constant value", expr.Gt(prop("Priority"), expr.Bin(expr.OpAdd, expr.M(s, "Id"), expr.C(1))), qerr.KindInvalidCondition},
		{"type mismatch", expr.Eq(prop("Priority"), expr.C("high")), qerr.KindInvalidCondition},
		{"unknown method", expr.MethodCall(prop("Name"), "ToLower"), qerr.KindUnsupportedMethod},
		{"negated relational", expr.Not(expr.Gt(prop("Priority"), expr.C(1))), qerr.KindInvalidCondition},
		{"object without ToString", expr.Eq(prop("Interval"), expr.C("60s")), qerr.KindPropertyNotQueryable},
		{"static call", expr.StaticCall("String", "IsNullOrEmpty", prop("Name")), qerr.KindUnsupportedMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strict, _ := analyzer(t, true)
			_, err := strict.Leaf(tt.e, "s")
			require.Error(t, err)
			assert.Equal(t, tt.kind, qerr.KindOf(err), "%v", err)

			lenient, buf := analyzer(t, false)
			f, err := lenient.Leaf(tt.e, "s")
			require.NoError(t, err)
			assert.False(t, f.Legal)
			assert.Same(t, tt.e, f.Leaf)
			require.NotNil(t, f.Reason)
			assert.Equal(t, tt.kind, f.Reason.Kind)
			assert.Contains(t, buf.String(), "evaluating condition locally")
		})
	}
}

func TestAnalyze_Conjuncts(t *testing.T) {
	a, _ := analyzer(t, false)
	body := expr.And(
		expr.MethodCall(prop("Name"), "Contains", expr.C("db")),
		expr.Gt(prop("Priority"), expr.C(3)))

	res, err := a.Analyze(body, "s")
	require.NoError(t, err)
	assert.True(t, res.Complete)
	require.Len(t, res.Filters, 2)
	assert.Equal(t, `Name Contains "db"`, res.Filters[0].String())
	assert.Equal(t, "Priority GreaterThan 3", res.Filters[1].String())

	res, err = a.Analyze(expr.And(body, expr.MethodCall(prop("Tags"), "Contains", expr.C("x"))), "s")
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Len(t, res.Filters, 3)

	res, err = a.Analyze(expr.Or(body, prop("Active")), "s")
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, res.Filters)
}

func TestCandidateFilter_Validate(t *testing.T) {
	ref := &expr.PropertyRef{Expr: prop("Name"), ID: "name", Name: "Name"}

	assert.Nil(t, CandidateFilter{Property: ref, Operators: []FilterOperator{Equals}, Value: "x"}.Validate())
	assert.NotNil(t, CandidateFilter{Operators: []FilterOperator{Equals}, Value: "x"}.Validate())
	assert.NotNil(t, CandidateFilter{Property: ref, Value: "x"}.Validate())
	assert.NotNil(t, CandidateFilter{Property: ref, Operators: []FilterOperator{Equals}}.Validate())
	assert.NotNil(t, CandidateFilter{Property: ref, Operators: []FilterOperator{Equals}, Value: ""}.Validate())
}

func TestParseOperator(t *testing.T) {
	op, ok := ParseOperator("greaterthan")
	require.True(t, ok)
	assert.Equal(t, GreaterThan, op)

	_, ok = ParseOperator("Between")
	assert.False(t, ok)
}
