package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/executor"
	"github.com/roach88/sensorq/internal/querytext"
	"github.com/roach88/sensorq/internal/store"
	"github.com/roach88/sensorq/internal/testutil"
	"github.com/roach88/sensorq/internal/translate"
)

// Harness is the test execution engine.
// It runs scenarios with a fixed plan ID so plans are reproducible.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger used for translation and execution. The
// default discards all records.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}
	return h
}

// Run executes a test scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Load the catalog and objects
//  2. Parse and translate the query
//  3. Execute the plan against the store
//  4. Evaluate the original query locally (the oracle)
//  5. Check expectations and compare with the oracle
//
// The returned error reports problems with the scenario itself (a missing
// catalog, an unparsable query). Translation and execution failures are
// recorded in the Result and checked against expect.error.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cat, err := loadCatalog(scenario.Catalog)
	if err != nil {
		return nil, err
	}
	typ, ok := cat.Type(scenario.Type)
	if !ok {
		return nil, fmt.Errorf("catalog has no type %q", scenario.Type)
	}
	objects, err := scenarioObjects(scenario, typ)
	if err != nil {
		return nil, err
	}

	query, err := querytext.Parse(scenario.Query, querytext.Options{
		Source:  scenario.Source,
		Element: scenario.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	st, err := store.Open(store.Memory, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	if err := st.Load(ctx, typ.Name, objects); err != nil {
		return nil, fmt.Errorf("load objects: %w", err)
	}

	opts := []translate.Option{
		translate.WithStrict(scenario.Strict),
		translate.WithLogger(h.logger),
		translate.WithIDGenerator(testutil.NewFixedIDGenerator("")),
	}
	if scenario.MaxRequests > 0 {
		opts = append(opts, translate.WithMaxRequests(scenario.MaxRequests))
	}

	result := NewResult()
	plan, err := translate.New(cat, opts...).Translate(ctx, query)
	if err == nil {
		result.Plan = plan
		var value any
		value, err = executor.New(st, executor.WithLogger(h.logger)).Execute(ctx, plan)
		if err == nil {
			result.Value = reduce(value, typ)
		}
	}
	result.Err = err

	if oracle, oerr := eval.Run(query, objects); oerr != nil {
		result.OracleErr = oerr.Error()
	} else {
		result.Oracle = reduce(oracle, typ)
	}

	checkExpectations(scenario, result)
	return result, nil
}

func loadCatalog(name string) (*catalog.Catalog, error) {
	if name == SampleCatalog || name == "" {
		return testutil.SampleCatalog(), nil
	}
	cat, err := catalog.LoadDir(name)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// scenarioObjects returns the scenario's objects with time properties
// parsed, or the sample fixtures.
func scenarioObjects(scenario *Scenario, typ *catalog.Type) ([]any, error) {
	if len(scenario.Objects) == 0 && scenario.Catalog == SampleCatalog {
		switch typ.Name {
		case "Sensor":
			return testutil.SampleSensors(), nil
		case "Device":
			return testutil.SampleDevices(), nil
		}
	}

	objects := make([]any, len(scenario.Objects))
	for i, obj := range scenario.Objects {
		converted, err := ObjectFromYAML(typ, obj)
		if err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
		objects[i] = converted
	}
	return objects, nil
}

// ObjectFromYAML converts a decoded YAML object to the representation the
// evaluator and store expect. Every property of typ is present; time
// properties written as RFC 3339 text become time.Time.
func ObjectFromYAML(typ *catalog.Type, obj map[string]any) (map[string]any, error) {
	for name := range obj {
		if _, ok := typ.Property(name); !ok {
			return nil, fmt.Errorf("type %s has no property %q", typ.Name, name)
		}
	}

	out := make(map[string]any, len(obj))
	for _, prop := range typ.Properties() {
		v := obj[prop.Name]
		if s, ok := v.(string); ok && prop.Kind == catalog.KindTime {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", prop.Name, err)
			}
			v = t
		}
		out[prop.Name] = v
	}
	return out, nil
}

// reduce converts a query result to a comparable form: objects of typ
// become their identity values, everything else is normalized.
func reduce(v any, typ *catalog.Type) any {
	if seq, ok := v.([]any); ok {
		out := make([]any, len(seq))
		for i, item := range seq {
			out[i] = reduce(item, typ)
		}
		return out
	}
	if eval.IsNull(v) {
		return nil
	}
	if typ.Identity != "" {
		if _, isObject := v.(map[string]any); isObject {
			id, err := eval.Member(v, typ.Identity)
			if err == nil {
				return eval.Normalize(id)
			}
		}
	}
	return eval.Normalize(v)
}
