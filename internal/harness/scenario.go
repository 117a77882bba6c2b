package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/qerr"
)

// SampleCatalog is the catalog name that selects the built-in sample
// catalog and its fixture objects.
const SampleCatalog = "sample"

// Scenario defines a conformance test scenario.
// Scenarios translate one query and validate the plan and its result.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a path to a CUE file or directory, relative to the scenario
	// file, or "sample" for the built-in catalog. Defaults to "sample".
	Catalog string `yaml:"catalog,omitempty"`

	// Type is the element type queried.
	Type string `yaml:"type"`

	// Source names the queried collection. Defaults to Type.
	Source string `yaml:"source,omitempty"`

	// Objects are the collection's objects, keyed by member name. When
	// empty and Catalog is "sample", the sample fixtures of Type are used.
	Objects []map[string]any `yaml:"objects,omitempty"`

	// Query is the query in querytext syntax.
	Query string `yaml:"query"`

	// Strict selects strict translation.
	Strict bool `yaml:"strict,omitempty"`

	// MaxRequests overrides the split request limit when positive.
	MaxRequests int `yaml:"max_requests,omitempty"`

	// Expect lists the expectations. Omitted fields are not checked.
	Expect Expect `yaml:"expect"`

	// path is the file the scenario was loaded from.
	path string
}

// Expect specifies the expected plan and result.
type Expect struct {
	// Error is the expected error kind name or code (e.g. "InvalidCondition"
	// or "Q003"). When set, translation or execution must fail with it.
	Error string `yaml:"error,omitempty"`

	// RequiresSplit is the expected split flag.
	RequiresSplit *bool `yaml:"requires_split,omitempty"`

	// FilterSets lists the conditions of each request, rendered as
	// `Name Operator value`.
	FilterSets [][]string `yaml:"filter_sets,omitempty"`

	// Sort is the server sort ("Name Ascending"), or "" for none.
	Sort *string `yaml:"sort,omitempty"`

	// Paging is the server paging ("skip 10 take 5"), or "" for none.
	Paging *string `yaml:"paging,omitempty"`

	// Residual is the formatted residual chain, or "" for none.
	Residual *string `yaml:"residual,omitempty"`

	// Results lists the identities of the returned objects in order, or
	// the projected values for queries ending in Select.
	Results []any `yaml:"results,omitempty"`

	// Value is the expected scalar result of Any, Count, First or Last.
	// First and Last are compared by identity.
	Value any `yaml:"value,omitempty"`
}

// Path returns the file the scenario was loaded from, or "".
func (s *Scenario) Path() string {
	return s.path
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative catalog path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "expects:" vs "expect:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.path = path

	if scenario.Catalog == "" {
		scenario.Catalog = SampleCatalog
	}
	if scenario.Catalog != SampleCatalog && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Source == "" {
		scenario.Source = scenario.Type
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name. Scenario names must be unique.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan scenarios: %w", err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", path, s.Name, prev)
		}
		seen[s.Name] = path
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Type == "" {
		return fmt.Errorf("type is required")
	}

	if s.Query == "" {
		return fmt.Errorf("query is required")
	}

	if s.MaxRequests < 0 {
		return fmt.Errorf("max_requests must be non-negative")
	}

	if s.Catalog != SampleCatalog {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog not found: %s", s.Catalog)
		}
	}

	if s.Expect.Error != "" {
		if _, ok := qerr.ParseKind(s.Expect.Error); !ok {
			return fmt.Errorf("expect.error: unknown error kind %q", s.Expect.Error)
		}
		if s.Expect.Results != nil || s.Expect.Value != nil {
			return fmt.Errorf("expect.error cannot be combined with results or value")
		}
	}

	if s.Expect.Results != nil && s.Expect.Value != nil {
		return fmt.Errorf("expect: results and value are mutually exclusive")
	}

	for i, set := range s.Expect.FilterSets {
		for j, cond := range set {
			canonical, err := canonicalCondition(cond)
			if err != nil {
				return fmt.Errorf("expect.filter_sets[%d][%d]: %w", i, j, err)
			}
			set[j] = canonical
		}
	}

	return nil
}

// canonicalCondition checks a `Name Operator value` condition and rewrites
// the operator to its canonical spelling.
func canonicalCondition(cond string) (string, error) {
	parts := strings.SplitN(cond, " ", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("condition %q is not `Name Operator value`", cond)
	}
	op, ok := predicate.ParseOperator(parts[1])
	if !ok {
		return "", fmt.Errorf("condition %q: unknown operator %q", cond, parts[1])
	}
	return parts[0] + " " + string(op) + " " + parts[2], nil
}
