package translate

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/chain"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/legality"
	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/qerr"
	"github.com/roach88/sensorq/internal/querynode"
	"github.com/roach88/sensorq/internal/residual"
	"github.com/roach88/sensorq/internal/resolve"
)

// Translator builds plans for queries over the element types of a catalog.
//
// Thread-safety: a Translator holds only configuration and may be shared.
// Each Translate call uses its own parser, analyzer and splitter.
type Translator struct {
	cat         *catalog.Catalog
	strict      bool
	logger      *slog.Logger
	ids         IDGenerator
	maxRequests int
}

// Option configures a Translator.
type Option func(*Translator)

// WithStrict selects strict mode: anything that cannot be sent to the
// server is an error instead of being evaluated locally.
func WithStrict(strict bool) Option {
	return func(t *Translator) {
		t.strict = strict
	}
}

// WithLogger sets the logger. Every record carries the plan ID.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithIDGenerator sets the plan ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(t *Translator) {
		if ids != nil {
			t.ids = ids
		}
	}
}

// WithMaxRequests bounds the number of server requests one plan may issue.
// Values below 1 are ignored.
// Default: legality.DefaultMaxRequests.
func WithMaxRequests(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxRequests = n
		}
	}
}

// New creates a translator for the types of cat. The default is lenient
// mode logging to slog.Default().
func New(cat *catalog.Catalog, opts ...Option) *Translator {
	t := &Translator{
		cat:         cat,
		logger:      slog.Default(),
		ids:         UUIDv7Generator{},
		maxRequests: legality.DefaultMaxRequests,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Strict reports whether the translator runs in strict mode.
func (t *Translator) Strict() bool {
	return t.strict
}

// Catalog returns the catalog the translator resolves types against.
func (t *Translator) Catalog() *catalog.Catalog {
	return t.cat
}

// Translate parses e and plans its execution. e must be a call chain rooted
// at a Source whose Element names a catalog type.
//
// Errors are *qerr.Error values. In lenient mode only structural failures
// are returned; in strict mode any part of the query that cannot be applied
// by the server is an error.
func (t *Translator) Translate(ctx context.Context, e expr.Expr) (*Plan, error) {
	id := t.ids.Generate()
	logger := t.logger.With("plan_id", id)

	node, err := chain.NewParser(chain.WithStrict(t.strict), chain.WithLogger(logger)).Parse(e)
	if err != nil {
		return nil, err
	}

	src := querynode.RootOf(node).Collection
	typ, ok := t.cat.Type(src.Element)
	if !ok {
		return nil, qerr.New(qerr.KindInvalidArgument, expr.Format(src),
			"unknown element type %q", src.Element).With("element", src.Element)
	}

	res := resolve.New(t.cat, typ)
	an := predicate.New(res, predicate.WithStrict(t.strict), predicate.WithLogger(logger))
	p := &planner{
		strict:      t.strict,
		logger:      logger,
		res:         res,
		splitter:    legality.New(an, legality.WithMaxRequests(t.maxRequests), legality.WithLogger(logger)),
		maxRequests: t.maxRequests,
		sets:        [][]predicate.CandidateFilter{{}},
		push: residual.Pushdown{
			Predicates: make(map[querynode.Node]expr.Expr),
			Dropped:    make(map[querynode.Node]bool),
		},
		typed: true,
	}
	for _, n := range querynode.Chain(node) {
		if err := p.visit(n); err != nil {
			return nil, err
		}
	}

	split := len(p.sets) > 1
	if split && p.sortNode != nil {
		// The union of split results is re-sorted locally.
		delete(p.push.Dropped, p.sortNode)
	}

	local, err := residual.New(res).Build(node, p.push)
	if err != nil {
		return nil, err
	}
	if _, bare := local.(*expr.Source); bare {
		local = nil
	}

	plan := &Plan{
		ID:            id,
		Source:        src.Name,
		Element:       typ.Name,
		Chain:         node,
		Sort:          p.sort,
		Paging:        p.paging,
		RequiresSplit: split,
		Residual:      local,
		Strict:        t.strict,
	}
	for _, set := range p.sets {
		plan.Requests = append(plan.Requests, Request{
			Filters: conditions(set),
			Sort:    p.sort,
			Paging:  p.paging,
		})
	}
	if split {
		plan.Merge = &Merge{Union: true, Identity: typ.Identity}
	}
	plan.Columns = columns(plan)

	logger.DebugContext(ctx, "planned query",
		"query", plan.Query(),
		"requests", len(plan.Requests),
		"split", split,
		"residual", local != nil)
	return plan, nil
}

// planner walks a parsed chain root first and decides, node by node, what
// the server applies.
type planner struct {
	strict      bool
	logger      *slog.Logger
	res         *resolve.Resolver
	splitter    *legality.Splitter
	maxRequests int

	// sets is the disjunction of filter sets pushed so far.
	sets [][]predicate.CandidateFilter
	push residual.Pushdown

	sort     *Sort
	sortNode querynode.Node
	paging   Paging

	// typed is false once a projection changed the element type.
	typed bool
	// local is true once any node runs locally; later paging must run
	// locally too.
	local bool
	// paged is true once paging was pushed; later predicates run locally.
	paged bool
	// flattened is true after a SelectMany.
	flattened bool
	// ordered is true once an OrderBy was seen, pushed or not.
	ordered bool
	// done is true after a LocalOnly node; nothing more is pushed.
	done bool
}

func (p *planner) visit(n querynode.Node) error {
	switch node := n.(type) {
	case *querynode.Root:
		return nil

	case *querynode.Where:
		return p.filter(node, node.Predicate)

	case *querynode.Count:
		return p.filter(node, node.Predicate)

	case *querynode.Any, *querynode.First:
		if err := p.filter(node, querynode.Predicate(node)); err != nil {
			return err
		}
		// Only the first object is needed.
		if p.canPage() {
			p.limit(1)
		}
		return nil

	case *querynode.Last:
		p.local = true
		return nil

	case *querynode.OrderBy:
		return p.order(node)

	case *querynode.Skip:
		// The offset is a server paging directive only. Applying it locally
		// as well would skip twice.
		if blocker := p.pagingBlocker(); blocker != "" {
			refusal := qerr.New(qerr.KindUnconsecutiveCallSequence, expr.Format(node.Expr),
				"Skip cannot be applied by the server after %s", blocker)
			if err := p.keepLocal(refusal, "applying Skip on the server ahead of local evaluation"); err != nil {
				return err
			}
		}
		p.paging.Skip = addCount(p.paging.Skip, node.Count)
		p.push.Dropped[node] = true
		p.paged = true
		return nil

	case *querynode.Take:
		if p.flattened {
			// Flattened elements never reach the server.
			return nil
		}
		if blocker := p.pagingBlocker(); blocker != "" {
			return p.keepLocal(qerr.New(qerr.KindUnconsecutiveCallSequence, expr.Format(node.Expr),
				"Take cannot be applied by the server after %s", blocker),
				"applying Take locally")
		}
		p.limit(node.Count)
		p.push.Dropped[node] = true
		p.paged = true
		return nil

	case *querynode.Select:
		p.typed = false
		return nil

	case *querynode.SelectMany:
		p.typed = false
		p.flattened = true
		p.local = true
		return nil

	case *querynode.LocalOnly:
		if strings.HasPrefix(node.Expr.Method, "ThenBy") && p.sortNode != nil {
			// A local ThenBy refines the ordering, so the primary sort must
			// be applied locally as well.
			delete(p.push.Dropped, p.sortNode)
		}
		p.typed = false
		p.local = true
		p.done = true
		return nil
	}
	return nil
}

func (p *planner) canPage() bool {
	return p.pagingBlocker() == ""
}

// pagingBlocker describes what keeps paging from being pushed, or returns
// "" when the server can page.
func (p *planner) pagingBlocker() string {
	switch {
	case p.done:
		return "a local-only method"
	case len(p.sets) > 1:
		return "a split into several requests"
	case p.local:
		return "a locally evaluated step"
	}
	return ""
}

// addCount sums paging counts, saturating at the largest int.
func addCount(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func (p *planner) limit(n int) {
	if p.paging.Take == nil || n < *p.paging.Take {
		p.paging.Take = &n
	}
}

// filter pushes the predicate fn of node, a Where or a terminal.
func (p *planner) filter(node querynode.Node, fn *expr.Lambda) error {
	if fn == nil {
		return nil
	}
	if p.done || p.paged || !p.typed {
		p.local = true
		return nil
	}

	res, err := p.splitter.Split(fn.Body, fn.Params[0].Name)
	if err != nil {
		return err
	}

	sets, dropped := legality.Cross(p.sets, res.ServerFilters)
	switch {
	case dropped != nil:
		return p.keepLocal(legality.RepeatedPropertyError(fn, dropped),
			"evaluating repeated property condition locally")
	case len(sets) > p.maxRequests:
		return p.keepLocal(qerr.New(qerr.KindSplitLimitExceeded, expr.Format(fn),
			"query needs %d server requests, more than the limit of %d", len(sets), p.maxRequests).
			With("requests", strconv.Itoa(len(sets))),
			"evaluating predicate locally")
	}

	p.sets = sets
	if res.Residual != nil {
		p.local = true
		if res.Unfiltered() {
			// Nothing was pushed; keep the predicate as written.
			return nil
		}
	}
	p.push.Predicates[node] = res.Residual
	return nil
}

// order pushes the sort of the first OrderBy whose key is a sortable
// property. The server sorts by one property, so a later OrderBy re-sorts
// locally on top of it.
func (p *planner) order(node *querynode.OrderBy) error {
	if p.sort != nil {
		return p.keepLocal(qerr.New(qerr.KindUnconsecutiveCallSequence, expr.Format(node.Expr),
			"%s cannot follow %s: the server sorts by a single property", node.Expr.Method, p.sortNode.Kind()),
			"sorting locally")
	}
	if p.done || !p.typed || p.ordered {
		p.local = true
		return nil
	}
	p.ordered = true
	if node.Comparer != nil {
		return p.keepLocal(qerr.New(qerr.KindUnsupportedMethod, expr.Format(node.Comparer),
			"the server cannot sort with a custom comparer"),
			"sorting locally")
	}

	key := node.KeySelector
	ref, prop, err := p.res.Resolve(key.Body, key.Params[0].Name)
	if err != nil {
		return p.keepLocal(asQerr(err, key), "sorting locally")
	}
	if !prop.CanSort() {
		return p.keepLocal(qerr.New(qerr.KindPropertyNotQueryable, expr.Format(key),
			"property not queryable: the server cannot sort by %s", prop.Name),
			"sorting locally")
	}

	p.sort = &Sort{Property: ref.ID, Name: ref.Name, Direction: node.Direction}
	p.sortNode = node
	p.push.Dropped[node] = true
	return nil
}

// keepLocal returns err in strict mode. In lenient mode it logs the
// decision and leaves the node for local evaluation.
func (p *planner) keepLocal(err *qerr.Error, msg string) error {
	if p.strict {
		return err
	}
	p.logger.Warn(msg,
		"kind", string(err.Kind),
		"expr", err.Expr,
		"reason", err.Message)
	p.local = true
	return nil
}

func conditions(set []predicate.CandidateFilter) []Condition {
	var out []Condition
	for _, f := range set {
		for _, op := range f.Operators {
			out = append(out, Condition{
				Property: f.Property.ID,
				Name:     f.Property.Name,
				Operator: op,
				Value:    f.Value,
			})
		}
	}
	return out
}

// columns lists the server property IDs read by filters, the sort and the
// residual, in first-use order.
func columns(plan *Plan) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, r := range plan.Requests {
		for _, c := range r.Filters {
			add(c.Property)
		}
	}
	if plan.Sort != nil {
		add(plan.Sort.Property)
	}
	if plan.Residual != nil {
		for _, id := range resolve.Columns(plan.Residual) {
			add(id)
		}
	}
	return out
}

func asQerr(err error, at expr.Expr) *qerr.Error {
	if qe, ok := qerr.As(err); ok {
		return qe
	}
	return qerr.New(qerr.KindPropertyNotQueryable, expr.Format(at), "%v", err)
}
