package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/testutil"
)

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	split := true
	sort := "Id Descending"
	s := &Scenario{
		Name:        "wrong",
		Description: "every expectation is wrong",
		Catalog:     SampleCatalog,
		Type:        "Sensor",
		Source:      "Sensors",
		Query:       "Where(s.Status == Up)",
		Expect: Expect{
			RequiresSplit: &split,
			FilterSets:    [][]string{{`Status Equals "Down"`}},
			Sort:          &sort,
			Results:       []any{2},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expectation failed: requires_split")
	assert.Contains(t, result.Errors[1], "filter_sets")
	assert.Contains(t, result.Errors[2], `Expected: "Id Descending"`)
	assert.Contains(t, result.Errors[3], "results")
	assert.Contains(t, result.Errors[3], `Query: Sensors.Where(s => s.Status == "Up")`)
}

func TestRun_UnexpectedError(t *testing.T) {
	s := &Scenario{
		Name: "strict", Description: "d", Catalog: SampleCatalog,
		Type: "Sensor", Source: "Sensors", Strict: true,
		Query: `Where(s.Tags.Contains("db"))`,
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Nil(t, result.Plan)
	assert.True(t, qerr.IsKind(result.Err, qerr.KindPropertyNotQueryable))
	assert.Contains(t, result.Errors[0], "Expected: no error")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := &Scenario{
		Name: "lenient", Description: "d", Catalog: SampleCatalog,
		Type: "Sensor", Source: "Sensors",
		Query:  `Where(s.Tags.Contains("db"))`,
		Expect: Expect{Error: "PropertyNotQueryable"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "Actual: no error")
}

func TestRun_OracleAgreesOnLocalResidual(t *testing.T) {
	s := &Scenario{
		Name: "tags", Description: "d", Catalog: SampleCatalog,
		Type: "Sensor", Source: "Sensors",
		Query: `Where(s.Priority > 2 && s.Tags.Contains("db"))`,
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []any{int64(1), int64(2)}, result.Value)
	assert.Equal(t, result.Oracle, result.Value)
}

func TestRun_OracleFailureSkipsComparison(t *testing.T) {
	// The unguarded query fails locally on the sensor without a name; the
	// server never returns that sensor.
	s := &Scenario{
		Name: "null", Description: "d", Catalog: SampleCatalog,
		Type: "Sensor", Source: "Sensors", Strict: true,
		Query:  `Where(s.Name.Contains("db"))`,
		Expect: Expect{Results: []any{1, 2}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotEmpty(t, result.OracleErr)
}

func TestRun_ScenarioProblems(t *testing.T) {
	tests := []struct {
		name string
		s    Scenario
		want string
	}{
		{"unknown type", Scenario{Catalog: SampleCatalog, Type: "Probe", Source: "Probes", Query: "Take(1)"}, `no type "Probe"`},
		{"bad query", Scenario{Catalog: SampleCatalog, Type: "Sensor", Source: "Sensors", Query: "Where(("}, "parse query"},
		{"unknown property", Scenario{
			Catalog: SampleCatalog, Type: "Device", Source: "Devices", Query: "Take(1)",
			Objects: []map[string]any{{"Id": 1, "Color": "red"}},
		}, `no property "Color"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Run(context.Background(), &tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestObjectFromYAML_ParsesTimes(t *testing.T) {
	_, typ := testutil.SampleType(t, "Sensor")

	obj, err := ObjectFromYAML(typ, map[string]any{"Id": 9, "LastUp": "2026-02-03T04:05:06Z"})
	require.NoError(t, err)
	assert.Equal(t, 2026, obj["LastUp"].(interface{ Year() int }).Year())
	assert.Contains(t, obj, "Name")
	assert.Nil(t, obj["Name"])

	_, err = ObjectFromYAML(typ, map[string]any{"LastUp": "yesterday"})
	require.Error(t, err)
}
