package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/translate"
)

// Fetcher issues one server request for objects of the named element type.
type Fetcher interface {
	Fetch(ctx context.Context, element string, req translate.Request) ([]any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, element string, req translate.Request) ([]any, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, element string, req translate.Request) ([]any, error) {
	return f(ctx, element, req)
}

// Executor runs plans against a Fetcher.
//
// Thread-safety: an Executor holds no per-plan state and is safe for
// concurrent use if its Fetcher is.
type Executor struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency issues up to n requests of a split plan in parallel.
// Values below 2 run requests sequentially.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		e.concurrency = n
	}
}

// WithLogger sets the logger. A nil logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor that fetches through f.
func New(f Fetcher, opts ...Option) *Executor {
	e := &Executor{fetcher: f, concurrency: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute fetches the plan's objects and applies its residual. The result is
// a []any for sequence queries, or the scalar produced by a terminal
// operator (Any, Count, First, Last).
func (e *Executor) Execute(ctx context.Context, plan *translate.Plan) (any, error) {
	objects, err := e.Fetch(ctx, plan)
	if err != nil {
		return nil, err
	}
	if plan.Residual == nil {
		return objects, nil
	}

	result, err := eval.Run(plan.Residual, objects)
	if err != nil {
		return nil, fmt.Errorf("execute plan %s: residual %s: %w", plan.ID, expr.Format(plan.Residual), err)
	}
	return result, nil
}

// Fetch issues every request of the plan and returns the merged objects
// before the residual is applied.
func (e *Executor) Fetch(ctx context.Context, plan *translate.Plan) ([]any, error) {
	if len(plan.Requests) == 0 {
		return nil, fmt.Errorf("execute plan %s: no requests", plan.ID)
	}
	logger := e.logger.With("plan_id", plan.ID)

	results := make([][]any, len(plan.Requests))
	fetch := func(ctx context.Context, i int) error {
		req := plan.Requests[i]
		objs, err := e.fetcher.Fetch(ctx, plan.Element, req)
		if err != nil {
			return fmt.Errorf("execute plan %s: request %d: %w", plan.ID, i, err)
		}
		logger.DebugContext(ctx, "fetched request",
			"request", i,
			"key", req.Key(),
			"objects", len(objs))
		results[i] = objs
		return nil
	}

	if e.concurrency > 1 && len(plan.Requests) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for i := range plan.Requests {
			i := i
			g.Go(func() error {
				return fetch(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range plan.Requests {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("execute plan %s: %w", plan.ID, err)
			}
			if err := fetch(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	if plan.Merge == nil {
		return results[0], nil
	}
	merged, err := merge(results, plan.Merge.Identity)
	if err != nil {
		return nil, fmt.Errorf("execute plan %s: %w", plan.ID, err)
	}
	logger.DebugContext(ctx, "merged requests",
		"requests", len(results),
		"objects", len(merged))
	return merged, nil
}

// merge returns the union of results, deduplicated by the identity member
// and ordered by it.
func merge(results [][]any, identity string) ([]any, error) {
	type entry struct {
		id  any
		obj any
	}

	seen := make(map[string]bool)
	var entries []entry
	for _, objs := range results {
		for _, obj := range objs {
			id, err := eval.Member(obj, identity)
			if err != nil {
				return nil, fmt.Errorf("merge: identity %s: %w", identity, err)
			}
			id = eval.Normalize(id)
			if eval.IsNull(id) {
				return nil, fmt.Errorf("merge: object without identity %s", identity)
			}
			key := expr.FormatValue(id)
			if seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, entry{id: id, obj: obj})
		}
	}

	var cmpErr error
	sort.SliceStable(entries, func(i, j int) bool {
		c, err := eval.Compare(entries[i].id, entries[j].id)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c < 0
	})
	if cmpErr != nil {
		return nil, fmt.Errorf("merge: order by %s: %w", identity, cmpErr)
	}

	out := make([]any, len(entries))
	for i, en := range entries {
		out[i] = en.obj
	}
	return out, nil
}
