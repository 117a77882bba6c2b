package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

// FilterOperator is an operator of the server filter grammar.
type FilterOperator string

const (
	Equals      FilterOperator = "Equals"
	NotEquals   FilterOperator = "NotEquals"
	LessThan    FilterOperator = "LessThan"
	GreaterThan FilterOperator = "GreaterThan"
	Contains    FilterOperator = "Contains"
)

var operators = []FilterOperator{Equals, NotEquals, LessThan, GreaterThan, Contains}

// ParseOperator returns the operator with the given name (case-insensitive).
func ParseOperator(s string) (FilterOperator, bool) {
	for _, op := range operators {
		if strings.EqualFold(string(op), s) {
			return op, true
		}
	}
	return "", false
}

// CandidateFilter is a filter condition extracted from one predicate leaf.
//
// Operators holds more than one entry when the leaf is a disjunction the
// server understands natively on a single property (x >= 5 is
// {GreaterThan, Equals}).
type CandidateFilter struct {
	Property  *expr.PropertyRef
	Operators []FilterOperator
	Value     any

	// Legal is false when the leaf must be evaluated locally.
	Legal bool

	// Weak marks a legal filter whose server result is a superset of the
	// leaf (StartsWith approximated by Contains). The leaf must also be
	// re-checked locally.
	Weak bool

	// Leaf is the predicate sub-expression the filter came from.
	Leaf expr.Expr

	// Reason explains why the leaf is illegal.
	Reason *qerr.Error
}

// PropertyID returns the server property identifier, or "" if unresolved.
func (f CandidateFilter) PropertyID() string {
	if f.Property == nil {
		return ""
	}
	return f.Property.ID
}

// NeedsRecheck reports whether the leaf must be evaluated locally, either
// because it is illegal or because the server filter only approximates it.
func (f CandidateFilter) NeedsRecheck() bool {
	return !f.Legal || f.Weak
}

// Validate checks that the filter has a property, a non-empty value and at
// least one operator.
func (f CandidateFilter) Validate() *qerr.Error {
	at := ""
	if f.Leaf != nil {
		at = expr.Format(f.Leaf)
	}
	switch {
	case f.Property == nil:
		return qerr.New(qerr.KindInvalidCondition, at, "condition has no property")
	case len(f.Operators) == 0:
		return qerr.New(qerr.KindInvalidCondition, at, "condition on %s has no operator", f.Property.Name)
	case eval.IsNull(f.Value):
		return qerr.New(qerr.KindInvalidCondition, at, "condition on %s has no value", f.Property.Name)
	}
	if s, ok := f.Value.(string); ok && s == "" {
		return qerr.New(qerr.KindInvalidCondition, at, "condition on %s has an empty value", f.Property.Name)
	}
	return nil
}

// String renders the filter as "Name Contains "db"" for logs and output.
func (f CandidateFilter) String() string {
	if !f.Legal {
		return fmt.Sprintf("local(%s)", expr.Format(f.Leaf))
	}
	ops := make([]string, len(f.Operators))
	for i, op := range f.Operators {
		ops[i] = string(op)
	}
	return fmt.Sprintf("%s %s %s", f.Property.Name, strings.Join(ops, "|"), expr.FormatValue(f.Value))
}
