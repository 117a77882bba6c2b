package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sensorq/internal/ir"
	"github.com/roach88/sensorq/internal/translate"
)

// RunWithGolden executes a scenario and compares the translated plan against
// a golden file. The golden file is stored in
// testdata/golden/{scenario.Name}.golden.json
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result for further checks, or an error if the scenario could
// not run or produced no plan.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if result.Plan == nil {
		return result, fmt.Errorf("scenario %s produced no plan: %v", scenario.Name, result.Err)
	}

	if err := AssertGoldenPlan(t, scenario.Name, result.Plan); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGoldenPlan compares the plan snapshot (indented canonical JSON)
// against testdata/golden/{name}.golden.json.
func AssertGoldenPlan(t *testing.T, name string, plan *translate.Plan) error {
	t.Helper()

	data, err := ir.MarshalIndent(plan.Snapshot())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.json"),
	)
	g.Assert(t, name, data)

	return nil
}
