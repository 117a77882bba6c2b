// Package legality classifies a Where predicate as fully server-pushable,
// partially pushable with a local remainder, or requiring a split into
// several server requests.
//
// A predicate is reduced to a disjunction of filter sets (one per server
// request) plus a residual that must hold as well:
//
//	predicate == (set1 || set2 || ...) && residual
//
// A set is a conjunction of candidate filters. An empty set matches every
// object; a nil residual means the sets are exact.
package legality

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/predicate"
	"github.com/roach88/sensorq/internal/qerr"
)

// DefaultMaxRequests bounds the number of filter sets a predicate may
// expand into.
const DefaultMaxRequests = 16

// LegalityResult is the classification of one predicate.
type LegalityResult struct {
	// ServerFilters holds one filter set per server request. It always has
	// at least one entry; a single empty set is an unfiltered fetch.
	ServerFilters [][]predicate.CandidateFilter

	// Residual must be evaluated locally against the fetched objects. Nil
	// when the server filters are exact.
	Residual expr.Expr

	// RequiresSplit is true when more than one request is needed and the
	// results must be unioned.
	RequiresSplit bool
}

// Unfiltered reports whether the result is a single request with no filters.
func (r LegalityResult) Unfiltered() bool {
	return len(r.ServerFilters) == 1 && len(r.ServerFilters[0]) == 0
}

// Splitter classifies predicates.
type Splitter struct {
	an          *predicate.Analyzer
	maxRequests int
	logger      *slog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithMaxRequests bounds the number of filter sets. Values below 1 are
// ignored.
func WithMaxRequests(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.maxRequests = n
		}
	}
}

// WithLogger sets the logger for demotion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a splitter. Strictness follows the analyzer.
func New(an *predicate.Analyzer, opts ...Option) *Splitter {
	s := &Splitter{an: an, maxRequests: DefaultMaxRequests, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// form is the intermediate classification of a sub-expression:
// e == (any of sets) && residual.
type form struct {
	sets     [][]predicate.CandidateFilter
	residual expr.Expr
}

func (f form) exact() bool {
	return f.residual == nil
}

// Split classifies the body of a Where lambda whose parameter is param.
func (s *Splitter) Split(body expr.Expr, param string) (LegalityResult, error) {
	f, err := s.classify(Normalize(body), param)
	if err != nil {
		return LegalityResult{}, err
	}
	return LegalityResult{
		ServerFilters: f.sets,
		Residual:      f.residual,
		RequiresSplit: len(f.sets) > 1,
	}, nil
}

func (s *Splitter) classify(e expr.Expr, param string) (form, error) {
	if b, ok := e.(*expr.Binary); ok {
		switch b.Op {
		case expr.OpAndAlso:
			return s.conjunction(e, predicate.Conjuncts(e), param)
		case expr.OpOrElse:
			return s.disjunction(e, disjuncts(e), param)
		}
	}

	f, err := s.an.Leaf(e, param)
	if err != nil {
		return form{}, err
	}
	switch {
	case !f.Legal:
		return form{sets: unfiltered(), residual: e}, nil
	case f.Weak:
		return form{sets: [][]predicate.CandidateFilter{{f}}, residual: e}, nil
	default:
		return form{sets: [][]predicate.CandidateFilter{{f}}}, nil
	}
}

// conjunction folds the operands left to right, cross-multiplying their
// filter sets. The server combines repeated filters on one property with
// OR, so within a set only the first filter per property is kept and the
// operand that contributed a dropped filter is re-checked locally.
func (s *Splitter) conjunction(e expr.Expr, parts []expr.Expr, param string) (form, error) {
	acc := form{sets: unfiltered()}
	for _, part := range parts {
		f, err := s.classify(part, param)
		if err != nil {
			return form{}, err
		}

		sets, dropped := Cross(acc.sets, f.sets)
		if dropped != nil && s.an.Strict() {
			return form{}, RepeatedPropertyError(part, dropped)
		}

		residual := conjoin(acc.residual, f.residual)
		if dropped != nil {
			s.logger.Warn("evaluating repeated property condition locally",
				"kind", string(qerr.KindInvalidCondition),
				"expr", expr.Format(part),
				"reason", "the server combines conditions on one property with OR")
			residual = conjoin(acc.residual, part)
		}

		acc = form{sets: sets, residual: residual}
		if len(acc.sets) > s.maxRequests {
			return s.tooMany(e, len(acc.sets))
		}
	}
	return acc, nil
}

// disjunction unions the operands' filter sets when every operand is exact.
// Otherwise the whole disjunction is re-checked locally, fetching the union
// of the operands' sets if none of them is unfiltered.
func (s *Splitter) disjunction(e expr.Expr, parts []expr.Expr, param string) (form, error) {
	var sets [][]predicate.CandidateFilter
	exact := true
	for _, part := range parts {
		f, err := s.classify(part, param)
		if err != nil {
			return form{}, err
		}
		exact = exact && f.exact()
		sets = append(sets, f.sets...)
	}
	sets = dedupe(sets)

	if !exact {
		for _, set := range sets {
			if len(set) == 0 {
				return form{sets: unfiltered(), residual: e}, nil
			}
		}
	}
	if len(sets) > s.maxRequests {
		return s.tooMany(e, len(sets))
	}
	if exact {
		return form{sets: sets}, nil
	}
	return form{sets: sets, residual: e}, nil
}

func (s *Splitter) tooMany(e expr.Expr, n int) (form, error) {
	err := qerr.New(qerr.KindSplitLimitExceeded, expr.Format(e),
		"predicate needs %d server requests, more than the limit of %d", n, s.maxRequests).
		With("requests", strconv.Itoa(n))
	if s.an.Strict() {
		return form{}, err
	}
	s.logger.Warn("evaluating predicate locally",
		"kind", string(err.Kind),
		"expr", err.Expr,
		"reason", err.Message)
	return form{sets: unfiltered(), residual: e}, nil
}

// RepeatedPropertyError reports a condition that cannot be ANDed with an
// earlier condition on the same property. The server joins every filter on
// one property with OR, so sending both would widen the result instead of
// narrowing it.
func RepeatedPropertyError(part expr.Expr, dropped *predicate.CandidateFilter) *qerr.Error {
	return qerr.New(qerr.KindInvalidCondition, expr.Format(part),
		"cannot AND two conditions on %s: the server joins filters on the same property (%s) with OR, "+
			"so this condition would widen the result instead of narrowing it",
		dropped.Property.Name, dropped.PropertyID()).
		With("property", dropped.Property.Name)
}

// Cross ANDs two disjunctions of filter sets by pairing every set of a with
// every set of b. Filters in b on a property already constrained by the
// paired set of a are dropped, and the first such filter is returned so the
// caller can re-check it locally. The result is deduplicated.
func Cross(a, b [][]predicate.CandidateFilter) ([][]predicate.CandidateFilter, *predicate.CandidateFilter) {
	var (
		sets    [][]predicate.CandidateFilter
		dropped *predicate.CandidateFilter
	)
	for _, left := range a {
		for _, right := range b {
			set, d := merge(left, right)
			if dropped == nil {
				dropped = d
			}
			sets = append(sets, set)
		}
	}
	return dedupe(sets), dropped
}

// merge concatenates two filter sets, dropping filters from right whose
// property already appears. It returns the first dropped filter, if any.
func merge(left, right []predicate.CandidateFilter) ([]predicate.CandidateFilter, *predicate.CandidateFilter) {
	out := make([]predicate.CandidateFilter, 0, len(left)+len(right))
	out = append(out, left...)

	var dropped *predicate.CandidateFilter
	for i := range right {
		if hasProperty(out, right[i].PropertyID()) {
			if dropped == nil {
				dropped = &right[i]
			}
			continue
		}
		out = append(out, right[i])
	}
	return out, dropped
}

func hasProperty(set []predicate.CandidateFilter, id string) bool {
	for _, f := range set {
		if f.PropertyID() == id {
			return true
		}
	}
	return false
}

// dedupe removes filter sets identical to an earlier one.
func dedupe(sets [][]predicate.CandidateFilter) [][]predicate.CandidateFilter {
	seen := make(map[string]bool, len(sets))
	out := sets[:0:0]
	for _, set := range sets {
		key := SetKey(set)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, set)
	}
	return out
}

// SetKey renders a filter set for comparison and display.
func SetKey(set []predicate.CandidateFilter) string {
	parts := make([]string, len(set))
	for i, f := range set {
		parts[i] = f.String()
	}
	return strings.Join(parts, " && ")
}

func unfiltered() [][]predicate.CandidateFilter {
	return [][]predicate.CandidateFilter{{}}
}

func disjuncts(e expr.Expr) []expr.Expr {
	if b, ok := e.(*expr.Binary); ok && b.Op == expr.OpOrElse {
		return append(disjuncts(b.Left), disjuncts(b.Right)...)
	}
	return []expr.Expr{e}
}

// conjoin joins two optional conditions with &&.
func conjoin(a, b expr.Expr) expr.Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return expr.And(a, b)
}
