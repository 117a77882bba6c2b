package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Field    string // Expectation that failed (e.g. "filter_sets")
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Query    string // Formatted query for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "expectation failed: %s\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Query != "" {
		fmt.Fprintf(&buf, "  Query: %s\n", e.Query)
	}
	return buf.String()
}

// checkExpectations records every failed expectation in result.
func checkExpectations(scenario *Scenario, result *Result) {
	for _, err := range evaluate(scenario, result) {
		result.AddError(err.Error())
	}
}

func evaluate(scenario *Scenario, result *Result) []error {
	exp := scenario.Expect
	query := scenario.Query
	fail := func(field string, expected, actual any) error {
		return &AssertionError{
			Field:    field,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
			Query:    query,
		}
	}

	var errs []error

	if exp.Error != "" {
		want, _ := qerr.ParseKind(exp.Error)
		if result.Err == nil {
			errs = append(errs, fail("error", want, "no error"))
		} else if got := qerr.KindOf(result.Err); got != want {
			errs = append(errs, fail("error", want, result.Err))
		}
	} else if result.Err != nil {
		errs = append(errs, fail("error", "no error", result.Err))
	}

	plan := result.Plan
	if plan != nil {
		query = plan.Query()

		if exp.RequiresSplit != nil && *exp.RequiresSplit != plan.RequiresSplit {
			errs = append(errs, fail("requires_split", *exp.RequiresSplit, plan.RequiresSplit))
		}

		if exp.FilterSets != nil {
			got := make([][]string, len(plan.Requests))
			for i, req := range plan.Requests {
				got[i] = make([]string, 0, len(req.Filters))
				for _, c := range req.Filters {
					got[i] = append(got[i], c.String())
				}
			}
			if !filterSetsEqual(exp.FilterSets, got) {
				errs = append(errs, fail("filter_sets", exp.FilterSets, got))
			}
		}

		if exp.Sort != nil {
			got := ""
			if plan.Sort != nil {
				got = plan.Sort.String()
			}
			if got != *exp.Sort {
				errs = append(errs, fail("sort", quote(*exp.Sort), quote(got)))
			}
		}

		if exp.Paging != nil {
			if got := plan.Paging.String(); got != *exp.Paging {
				errs = append(errs, fail("paging", quote(*exp.Paging), quote(got)))
			}
		}

		if exp.Residual != nil {
			got := ""
			if plan.Residual != nil {
				got = expr.Format(plan.Residual)
			}
			if got != *exp.Residual {
				errs = append(errs, fail("residual", quote(*exp.Residual), quote(got)))
			}
		}
	}

	if result.Err != nil {
		return errs
	}

	if exp.Results != nil && !eval.Equal(normalizeAll(exp.Results), result.Value) {
		errs = append(errs, fail("results", exp.Results, result.Value))
	}
	if exp.Value != nil && !eval.Equal(eval.Normalize(exp.Value), result.Value) {
		errs = append(errs, fail("value", exp.Value, result.Value))
	}

	// The translated query must return what local evaluation returns.
	if result.OracleErr == "" && !eval.Equal(result.Oracle, result.Value) {
		errs = append(errs, fail("oracle", result.Oracle, result.Value))
	}

	return errs
}

// filterSetsEqual compares filter sets in order; conditions within a set
// are compared in order as well, since the plan keeps source order.
func filterSetsEqual(want, got [][]string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if len(want[i]) != len(got[i]) {
			return false
		}
		for j := range want[i] {
			if want[i][j] != got[i][j] {
				return false
			}
		}
	}
	return true
}

func normalizeAll(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = eval.Normalize(v)
	}
	return out
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
