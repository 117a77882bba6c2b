package translate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/ir"
	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/querynode"
	"github.com/roach88/sensorq/internal/testutil"
)

var (
	s       = expr.P("s")
	sensors = expr.NewSource("Sensors", "Sensor")
)

func prop(name string) *expr.Member { return expr.M(s, name) }

func fn(body expr.Expr) *expr.Lambda { return expr.Fn(s, body) }

func where(src expr.Expr, body expr.Expr) *expr.Call {
	return expr.MethodCall(src, "Where", fn(body))
}

func statusIs(v string) expr.Expr { return expr.Eq(prop("Status"), expr.C(v)) }

func tagsContain(v string) expr.Expr { return expr.MethodCall(prop("Tags"), "Contains", expr.C(v)) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func translator(strict bool, opts ...Option) *Translator {
	base := []Option{
		WithStrict(strict),
		WithLogger(discard()),
		WithIDGenerator(testutil.NewFixedIDGenerator("")),
	}
	return New(testutil.SampleCatalog(), append(base, opts...)...)
}

func translate(t *testing.T, strict bool, e expr.Expr, opts ...Option) *Plan {
	t.Helper()
	plan, err := translator(strict, opts...).Translate(context.Background(), e)
	require.NoError(t, err)
	return plan
}

func filterSets(plan *Plan) [][]string {
	out := make([][]string, len(plan.Requests))
	for i, r := range plan.Requests {
		out[i] = []string{}
		for _, c := range r.Filters {
			out[i] = append(out[i], c.String())
		}
	}
	return out
}

func residualOf(plan *Plan) string {
	if plan.Residual == nil {
		return ""
	}
	return expr.Format(plan.Residual)
}

func countCalls(e expr.Expr, method string) int {
	n := 0
	expr.Walk(e, func(x expr.Expr) bool {
		if c, ok := x.(*expr.Call); ok && c.Method == method {
			n++
		}
		return true
	})
	return n
}

func assertGolden(t *testing.T, name string, plan *Plan) {
	t.Helper()
	data, err := ir.MarshalIndent(plan.Snapshot())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.json"),
	)
	g.Assert(t, name, data)
}

func TestTranslate_ScenarioEquality(t *testing.T) {
	for _, strict := range []bool{false, true} {
		plan := translate(t, strict, where(sensors, statusIs("Up")))

		assert.Equal(t, [][]string{{`Status Equals "Up"`}}, filterSets(plan))
		assert.Nil(t, plan.Residual)
		assert.False(t, plan.RequiresSplit)
		assert.Nil(t, plan.Merge)
		assert.Equal(t, []string{"status"}, plan.Columns)
	}

	assertGolden(t, "scenario_equality", translate(t, false, where(sensors, statusIs("Up"))))
}

func TestTranslate_ScenarioConjunction(t *testing.T) {
	body := expr.And(
		expr.MethodCall(prop("Name"), "Contains", expr.C("db")),
		expr.Gt(prop("Priority"), expr.C(3)))

	plan := translate(t, true, where(sensors, body))

	assert.Equal(t, [][]string{{`Name Contains "db"`, `Priority GreaterThan 3`}}, filterSets(plan))
	assert.Nil(t, plan.Residual)
	assert.Equal(t, []string{"name", "priority"}, plan.Columns)
}

func TestTranslate_ScenarioIllegalBranch(t *testing.T) {
	body := expr.Or(expr.Eq(prop("Name"), expr.C("a")), tagsContain("x"))

	plan := translate(t, false, where(sensors, body))

	assert.False(t, plan.RequiresSplit)
	assert.Equal(t, [][]string{{}}, filterSets(plan))
	assert.False(t, plan.Filtered())
	assert.Equal(t, `Sensors.Where(s => s.Name == "a" || guard[false](s.Tags, s.Tags.Contains("x")))`, residualOf(plan))
	assert.Equal(t, []string{"name", "tags"}, plan.Columns)

	_, err := translator(true).Translate(context.Background(), where(sensors, body))
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindPropertyNotQueryable), "got %v", err)
}

func TestTranslate_ScenarioSplit(t *testing.T) {
	plan := translate(t, false, where(sensors, expr.Or(statusIs("Up"), statusIs("Down"))))

	assert.True(t, plan.RequiresSplit)
	assert.Equal(t, [][]string{{`Status Equals "Up"`}, {`Status Equals "Down"`}}, filterSets(plan))
	require.NotNil(t, plan.Merge)
	assert.Equal(t, Merge{Union: true, Identity: "Id"}, *plan.Merge)
	assert.Nil(t, plan.Residual)

	assertGolden(t, "scenario_split", plan)
}

func TestTranslate_ScenarioSortAndPaging(t *testing.T) {
	q := expr.MethodCall(
		expr.MethodCall(
			expr.MethodCall(sensors, "OrderBy", fn(prop("Name"))),
			"Skip", expr.C(10)),
		"Take", expr.C(5))

	plan := translate(t, true, q)

	require.NotNil(t, plan.Sort)
	assert.Equal(t, "Name Ascending", plan.Sort.String())
	assert.Equal(t, 10, plan.Paging.Skip)
	require.NotNil(t, plan.Paging.Take)
	assert.Equal(t, 5, *plan.Paging.Take)
	assert.Equal(t, "skip 10 take 5", plan.Paging.String())
	assert.Nil(t, plan.Residual)
	assert.Equal(t, plan.Paging, plan.Requests[0].Paging)

	assertGolden(t, "scenario_sort_paging", translate(t, false, q))
}

func TestTranslate_ScenarioNullGuard(t *testing.T) {
	q := where(sensors, expr.Eq(expr.M(prop("Parent"), "Name"), expr.C("x")))

	plan := translate(t, false, q)
	assert.Equal(t, [][]string{{}}, filterSets(plan))
	assert.Equal(t, `Sensors.Where(s => guard[raise](s.Parent, s.Parent.Name) == "x")`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	assert.True(t, qerr.IsKind(err, qerr.KindPropertyNotQueryable))
}

func TestTranslate_WheresAreCrossed(t *testing.T) {
	q := where(where(sensors, expr.Or(statusIs("Up"), statusIs("Down"))), expr.Gt(prop("Priority"), expr.C(3)))

	plan := translate(t, true, q)

	assert.Equal(t, [][]string{
		{`Status Equals "Up"`, `Priority GreaterThan 3`},
		{`Status Equals "Down"`, `Priority GreaterThan 3`},
	}, filterSets(plan))
	assert.Nil(t, plan.Residual)
}

func TestTranslate_RepeatedPropertyAcrossWheres(t *testing.T) {
	q := where(where(sensors, statusIs("Up")), expr.Ne(prop("Status"), expr.C("Down")))

	plan := translate(t, false, q)
	assert.Equal(t, [][]string{{`Status Equals "Up"`}}, filterSets(plan))
	assert.Equal(t, `Sensors.Where(s => s.Status != "Down")`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	assert.True(t, qerr.IsKind(err, qerr.KindInvalidCondition))
	assert.Contains(t, err.Error(), "cannot AND two conditions on Status")
}

func TestTranslate_PartialPushdown(t *testing.T) {
	q := where(sensors, expr.And(statusIs("Up"), tagsContain("db")))

	plan := translate(t, false, q)

	assert.Equal(t, [][]string{{`Status Equals "Up"`}}, filterSets(plan))
	assert.Equal(t, `Sensors.Where(s => guard[false](s.Tags, s.Tags.Contains("db")))`, residualOf(plan))
}

func TestTranslate_WeakContains(t *testing.T) {
	q := where(sensors, expr.MethodCall(prop("Name"), "StartsWith", expr.C("db")))

	plan := translate(t, false, q)
	assert.Equal(t, [][]string{{`Name Contains "db"`}}, filterSets(plan))
	assert.Equal(t, `Sensors.Where(s => guard[raise](s.Name, s.Name.StartsWith("db")))`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	assert.True(t, qerr.IsKind(err, qerr.KindWeakContainsCondition))
}

func TestTranslate_UnsortableKey(t *testing.T) {
	tests := []struct {
		name     string
		key      expr.Expr
		residual string
		kind     qerr.Kind
	}{
		{"list", prop("Tags"), `Sensors.OrderBy(s => s.Tags)`, qerr.KindPropertyNotQueryable},
		{"nested", expr.M(prop("Parent"), "Name"), `Sensors.OrderBy(s => guard[raise](s.Parent, s.Parent.Name))`, qerr.KindPropertyNotQueryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := expr.MethodCall(sensors, "OrderBy", fn(tt.key))

			plan := translate(t, false, q)
			assert.Nil(t, plan.Sort)
			assert.Equal(t, tt.residual, residualOf(plan))

			_, err := translator(true).Translate(context.Background(), q)
			assert.True(t, qerr.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestTranslate_Comparer(t *testing.T) {
	q := expr.MethodCall(sensors, "OrderBy", fn(prop("Name")), expr.C("ordinal"))

	plan := translate(t, false, q)
	assert.Nil(t, plan.Sort)
	assert.Equal(t, `Sensors.OrderBy(s => s.Name, "ordinal")`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedMethod))
}

func TestTranslate_SecondOrderBy(t *testing.T) {
	q := expr.MethodCall(
		expr.MethodCall(sensors, "OrderBy", fn(prop("Name"))),
		"OrderByDescending", fn(prop("Priority")))

	plan := translate(t, false, q)
	assert.Equal(t, "Name Ascending", plan.Sort.String())
	assert.Equal(t, `Sensors.OrderByDescending(s => s.Priority)`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	require.Error(t, err)
	assert.True(t, qerr.IsUnconsecutive(err), "got %v", err)
	assert.Contains(t, err.Error(), "single property")
}

func TestTranslate_OrderByAfterLocalOrderByIsLocal(t *testing.T) {
	q := expr.MethodCall(
		expr.MethodCall(sensors, "OrderBy", fn(prop("Name")), expr.C("ordinal")),
		"OrderBy", fn(prop("Priority")))

	plan := translate(t, false, q)
	assert.Nil(t, plan.Sort)
	assert.Equal(t, `Sensors.OrderBy(s => s.Name, "ordinal").OrderBy(s => s.Priority)`, residualOf(plan))
}

func TestTranslate_SplitKeepsSortLocally(t *testing.T) {
	q := expr.MethodCall(where(sensors, expr.Or(statusIs("Up"), statusIs("Down"))), "OrderByDescending", fn(prop("Priority")))

	plan := translate(t, true, q)

	require.Len(t, plan.Requests, 2)
	assert.Equal(t, "Priority Descending", plan.Requests[1].Sort.String())
	assert.Equal(t, `Sensors.OrderByDescending(s => s.Priority)`, residualOf(plan))
}

func TestTranslate_ThenByKeepsSortLocally(t *testing.T) {
	q := expr.MethodCall(
		expr.MethodCall(sensors, "OrderBy", fn(prop("Name"))),
		"ThenBy", fn(prop("Priority")))

	plan := translate(t, false, q)
	assert.NotNil(t, plan.Sort)
	assert.Equal(t, `Sensors.OrderBy(s => s.Name).ThenBy(s => s.Priority)`, residualOf(plan))
}

func TestTranslate_SkipAfterResidualStaysOnServer(t *testing.T) {
	var buf bytes.Buffer
	q := expr.MethodCall(expr.MethodCall(where(sensors, tagsContain("db")), "Skip", expr.C(2)), "Take", expr.C(3))

	plan, err := translator(false, WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))).
		Translate(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "skip 2", plan.Paging.String())
	assert.Equal(t, `Sensors.Where(s => guard[false](s.Tags, s.Tags.Contains("db"))).Take(3)`, residualOf(plan))
	assert.Zero(t, countCalls(plan.Residual, "Skip"))
	assert.Contains(t, buf.String(), "applying Skip on the server ahead of local evaluation")
}

func TestTranslate_PagingAfterSplit(t *testing.T) {
	split := where(sensors, expr.Or(statusIs("Up"), statusIs("Down")))

	take := expr.MethodCall(split, "Take", expr.C(1))
	plan := translate(t, false, take)
	assert.True(t, plan.Paging.IsZero())
	assert.Equal(t, `Sensors.Take(1)`, residualOf(plan))

	skip := expr.MethodCall(split, "Skip", expr.C(2))
	plan = translate(t, false, skip)
	assert.Equal(t, "skip 2", plan.Paging.String())
	assert.Nil(t, plan.Residual)
	for _, req := range plan.Requests {
		assert.Equal(t, 2, req.Paging.Skip)
	}
}

func TestTranslate_StrictRefusesLocalPaging(t *testing.T) {
	split := where(sensors, expr.Or(statusIs("Up"), statusIs("Down")))

	tests := []struct {
		name string
		q    expr.Expr
		want string
	}{
		{"skip after split", expr.MethodCall(split, "Skip", expr.C(2)), "Skip cannot be applied by the server after a split"},
		{"take after split", expr.MethodCall(split, "Take", expr.C(1)), "Take cannot be applied by the server after a split"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translator(true).Translate(context.Background(), tt.q)
			require.Error(t, err)
			assert.True(t, qerr.IsUnconsecutive(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTranslate_SkipSaturates(t *testing.T) {
	q := expr.MethodCall(expr.MethodCall(sensors, "Skip", expr.C(math.MaxInt)), "Skip", expr.C(5))

	plan := translate(t, true, q)
	assert.Equal(t, math.MaxInt, plan.Paging.Skip)
	assert.Nil(t, plan.Residual)
}

func TestTranslate_ConsecutivePaging(t *testing.T) {
	q := expr.MethodCall(
		expr.MethodCall(
			expr.MethodCall(expr.MethodCall(sensors, "Skip", expr.C(2)), "Skip", expr.C(3)),
			"Take", expr.C(4)),
		"Take", expr.C(2))

	plan := translate(t, true, q)
	assert.Equal(t, "skip 5 take 2", plan.Paging.String())
	assert.Nil(t, plan.Residual)
}

func TestTranslate_SelectKeepsPaging(t *testing.T) {
	q := expr.MethodCall(expr.MethodCall(sensors, "Select", fn(prop("Name"))), "Take", expr.C(2))

	plan := translate(t, true, q)
	assert.Equal(t, "take 2", plan.Paging.String())
	assert.Equal(t, `Sensors.Select(s => s.Name)`, residualOf(plan))
	assert.Equal(t, []string{"name"}, plan.Columns)
}

func TestTranslate_SelectManyMakesPagingLocal(t *testing.T) {
	q := expr.MethodCall(expr.MethodCall(sensors, "SelectMany", fn(prop("Tags"))), "Take", expr.C(2))

	plan := translate(t, true, q)
	assert.True(t, plan.Paging.IsZero())
	assert.Equal(t, `Sensors.SelectMany(s => s.Tags).Take(2)`, residualOf(plan))
}

func TestTranslate_Terminals(t *testing.T) {
	up := fn(statusIs("Up"))
	tests := []struct {
		name     string
		query    expr.Expr
		filters  [][]string
		paging   string
		residual string
	}{
		{"first with predicate", expr.MethodCall(sensors, "First", up), [][]string{{`Status Equals "Up"`}}, "take 1", "Sensors.First()"},
		{"any", expr.MethodCall(sensors, "Any"), [][]string{{}}, "take 1", "Sensors.Any()"},
		{"count with predicate", expr.MethodCall(sensors, "Count", up), [][]string{{`Status Equals "Up"`}}, "", "Sensors.Count()"},
		{"last", expr.MethodCall(sensors, "Last"), [][]string{{}}, "", "Sensors.Last()"},
		{"first after take", expr.MethodCall(expr.MethodCall(sensors, "Take", expr.C(5)), "First"), [][]string{{}}, "take 1", "Sensors.First()"},
		{
			"any with local predicate",
			expr.MethodCall(sensors, "Any", fn(tagsContain("db"))),
			[][]string{{}}, "",
			`Sensors.Any(s => guard[false](s.Tags, s.Tags.Contains("db")))`,
		},
		{
			"predicate after paging stays local",
			expr.MethodCall(expr.MethodCall(sensors, "Take", expr.C(3)), "Count", up),
			[][]string{{}}, "take 3",
			`Sensors.Count(s => s.Status == "Up")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := translate(t, false, tt.query)
			assert.Equal(t, tt.filters, filterSets(plan))
			assert.Equal(t, tt.paging, plan.Paging.String())
			assert.Equal(t, tt.residual, residualOf(plan))
		})
	}
}

func TestTranslate_LocalOnlyStopsPushdown(t *testing.T) {
	q := where(expr.MethodCall(sensors, "Distinct"), statusIs("Up"))

	plan := translate(t, false, q)
	assert.Equal(t, [][]string{{}}, filterSets(plan))
	assert.Equal(t, `Sensors.Distinct().Where(s => s.Status == "Up")`, residualOf(plan))

	_, err := translator(true).Translate(context.Background(), q)
	assert.True(t, qerr.IsKind(err, qerr.KindUnsupportedMethod))
}

func TestTranslate_MaxRequests(t *testing.T) {
	q := where(
		where(sensors, expr.Or(statusIs("Up"), statusIs("Down"))),
		expr.Or(expr.Eq(prop("Priority"), expr.C(1)), expr.Eq(prop("Priority"), expr.C(2))))

	plan := translate(t, false, q, WithMaxRequests(2))
	assert.Len(t, plan.Requests, 2)
	assert.Equal(t, `Sensors.Where(s => s.Priority == 1 || s.Priority == 2)`, residualOf(plan))

	_, err := translator(true, WithMaxRequests(2)).Translate(context.Background(), q)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.KindSplitLimitExceeded))
	qe, _ := qerr.As(err)
	assert.Equal(t, "4", qe.Details["requests"])

	plan = translate(t, true, q)
	assert.Len(t, plan.Requests, 4)
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query expr.Expr
		kind  qerr.Kind
	}{
		{"unknown element", where(expr.NewSource("Things", "Thing"), statusIs("Up")), qerr.KindInvalidArgument},
		{"not a chain", expr.C(1), qerr.KindUnsupportedMethod},
		{"negative take", expr.MethodCall(sensors, "Take", expr.C(-1)), qerr.KindInvalidArgument},
		{"call after terminal", expr.MethodCall(expr.MethodCall(sensors, "Count"), "Take", expr.C(1)), qerr.KindUnconsecutiveCallSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translator(false).Translate(context.Background(), tt.query)
			require.Error(t, err)
			assert.True(t, qerr.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestTranslate_LogsCarryPlanID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tr := New(testutil.SampleCatalog(),
		WithLogger(logger),
		WithIDGenerator(testutil.NewFixedIDGenerator("plan-log")))

	_, err := tr.Translate(context.Background(), where(sensors, tagsContain("db")))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"plan_id":"plan-log"`)
	assert.Contains(t, out, `"msg":"evaluating condition locally"`)
	assert.Contains(t, out, `"msg":"planned query"`)
}

func TestPlan_Fingerprint(t *testing.T) {
	ids := testutil.NewSequenceIDGenerator()
	q := where(sensors, expr.Or(statusIs("Up"), statusIs("Down")))

	lenient := New(testutil.SampleCatalog(), WithLogger(discard()), WithIDGenerator(ids))
	a, err := lenient.Translate(context.Background(), q)
	require.NoError(t, err)
	b, err := lenient.Translate(context.Background(), q)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	strict := translate(t, true, q)
	assert.NotEqual(t, a.Fingerprint(), strict.Fingerprint())
}

func TestPlan_SnapshotRendersValuesAsText(t *testing.T) {
	q := where(sensors, expr.And(expr.Gt(prop("Uptime"), expr.C(99.5)), expr.Eq(prop("Active"), expr.C(true))))
	plan := translate(t, true, q)

	filters := plan.Snapshot()["requests"].(ir.List)[0].(ir.Object)["filters"].(ir.List)
	require.Len(t, filters, 2)
	assert.Equal(t, ir.String("99.5"), filters[0].(ir.Object)["value"])
	assert.Equal(t, ir.String("true"), filters[1].(ir.Object)["value"])

	_, err := ir.MarshalCanonical(plan.Snapshot())
	assert.NoError(t, err)
}

func TestTranslate_ReparseIsStable(t *testing.T) {
	q := expr.MethodCall(where(expr.MethodCall(sensors, "OrderByDescending", fn(prop("Priority"))), statusIs("Up")), "Take", expr.C(3))

	plan := translate(t, false, q)
	again := translate(t, false, querynode.ToExpr(plan.Chain))

	assert.Equal(t, plan.Query(), again.Query())
	assert.Equal(t, plan.Fingerprint(), again.Fingerprint())
}

func TestCondition_String(t *testing.T) {
	c := Condition{Property: "priority", Name: "Priority", Operator: predicate.GreaterThan, Value: int64(3)}
	assert.Equal(t, "Priority GreaterThan 3", c.String())
}
