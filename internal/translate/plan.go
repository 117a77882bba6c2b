package translate

import (
	"fmt"
	"strings"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/ir"
	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/querynode"
)

// Plan is the result of translating one query.
type Plan struct {
	// ID correlates log records for this translation. It is excluded from
	// the fingerprint.
	ID string

	// Source and Element name the collection and its element type.
	Source  string
	Element string

	// Chain is the parsed query.
	Chain querynode.Node

	// Requests holds one server request per filter set. There is always at
	// least one; a request without filters fetches the whole collection.
	Requests []Request

	// Sort and Paging are the parts of the chain applied by the server.
	// Every request carries the same values.
	Sort   *Sort
	Paging Paging

	// RequiresSplit is true when more than one request is issued.
	RequiresSplit bool

	// Merge describes how to combine the results of split requests. Nil
	// when there is a single request.
	Merge *Merge

	// Residual is the chain to run locally over the merged objects, rooted
	// at the source expression. Nil when the server result is final.
	Residual expr.Expr

	// Columns lists the server property IDs the plan reads, in first-use
	// order.
	Columns []string

	// Strict records the mode the plan was built in.
	Strict bool
}

// Request is one server fetch.
type Request struct {
	Filters []Condition
	Sort    *Sort
	Paging  Paging
}

// Condition is a property/operator/value triple. Conditions on different
// properties are combined with AND by the server; conditions on the same
// property with OR.
type Condition struct {
	// Property is the server property ID; Name is the member name.
	Property string
	Name     string
	Operator predicate.FilterOperator
	Value    any
}

// String renders the condition as "Name Operator value".
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Name, c.Operator, expr.FormatValue(c.Value))
}

// Sort is a server-side sort key.
type Sort struct {
	Property  string
	Name      string
	Direction querynode.Direction
}

// String renders the sort as "Name Ascending".
func (s Sort) String() string {
	return s.Name + " " + s.Direction.String()
}

// Paging holds server-side Skip and Take counts. Take is nil when the
// server returns every remaining object.
type Paging struct {
	Skip int
	Take *int
}

// IsZero reports whether no paging is applied.
func (p Paging) IsZero() bool {
	return p.Skip == 0 && p.Take == nil
}

// String renders the paging as "skip 10 take 5".
func (p Paging) String() string {
	var parts []string
	if p.Skip > 0 {
		parts = append(parts, fmt.Sprintf("skip %d", p.Skip))
	}
	if p.Take != nil {
		parts = append(parts, fmt.Sprintf("take %d", *p.Take))
	}
	return strings.Join(parts, " ")
}

// Merge describes how split results are combined: the union of all
// results, deduplicated by the Identity property and ordered by it.
type Merge struct {
	Union    bool
	Identity string
}

// Filtered reports whether any request carries filters.
func (p *Plan) Filtered() bool {
	for _, r := range p.Requests {
		if len(r.Filters) > 0 {
			return true
		}
	}
	return false
}

// Query returns the formatted input chain.
func (p *Plan) Query() string {
	return querynode.Format(p.Chain)
}

// Snapshot returns the canonical form of the plan used for JSON output,
// golden files and fingerprints. Values are rendered as text so the
// snapshot contains no floats.
func (p *Plan) Snapshot() ir.Object {
	requests := make(ir.List, len(p.Requests))
	for i, r := range p.Requests {
		requests[i] = r.Snapshot()
	}

	snap := ir.Object{
		"id":             ir.String(p.ID),
		"source":         ir.String(p.Source),
		"element":        ir.String(p.Element),
		"query":          ir.String(p.Query()),
		"requests":       requests,
		"requires_split": ir.Bool(p.RequiresSplit),
		"columns":        ir.Strings(p.Columns...),
		"strict":         ir.Bool(p.Strict),
	}
	if p.Merge != nil {
		snap["merge"] = ir.Object{
			"union":    ir.Bool(p.Merge.Union),
			"identity": ir.String(p.Merge.Identity),
		}
	}
	if p.Residual != nil {
		snap["residual"] = ir.String(expr.Format(p.Residual))
	}
	return snap
}

// Snapshot returns the canonical form of the request.
func (r Request) Snapshot() ir.Object {
	filters := make(ir.List, len(r.Filters))
	for i, c := range r.Filters {
		filters[i] = ir.Object{
			"property": ir.String(c.Property),
			"operator": ir.String(string(c.Operator)),
			"value":    ir.String(expr.FormatValue(c.Value)),
		}
	}

	snap := ir.Object{"filters": filters}
	if r.Sort != nil {
		snap["sort"] = ir.Object{
			"property":  ir.String(r.Sort.Property),
			"direction": ir.String(r.Sort.Direction.String()),
		}
	}
	if r.Paging.Skip > 0 {
		snap["skip"] = ir.Int(r.Paging.Skip)
	}
	if r.Paging.Take != nil {
		snap["take"] = ir.Int(*r.Paging.Take)
	}
	return snap
}

// Key fingerprints the request. Equal keys fetch equal results.
func (r Request) Key() string {
	return ir.MustFingerprint(ir.DomainRequest, r.Snapshot())
}

// Fingerprint returns a stable hash of the plan, ignoring its ID. Two
// translations of the same query in the same mode have equal fingerprints.
func (p *Plan) Fingerprint() string {
	snap := p.Snapshot()
	delete(snap, "id")
	return ir.MustFingerprint(ir.DomainPlan, snap)
}
