// Package qerr defines the error taxonomy shared by the query translation
// pipeline and the local evaluator.
//
// Errors are classified by Kind, not by Go type: every failure is a *Error
// carrying a Kind, a message, and the formatted sub-expression that caused it.
// Use IsKind (or the IsXxx helpers) to classify wrapped errors.
package qerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes translation and evaluation errors.
type Kind string

const (
	// KindUnsupportedMethod indicates a method or expression shape the
	// translator does not recognize.
	KindUnsupportedMethod Kind = "UNSUPPORTED_METHOD"

	// KindUnconsecutiveCallSequence indicates a query method appended after a
	// node it may not legally follow (e.g. Where after Skip).
	KindUnconsecutiveCallSequence Kind = "UNCONSECUTIVE_CALL_SEQUENCE"

	// KindInvalidCondition indicates a condition missing its property,
	// operator, or value where one is structurally required.
	KindInvalidCondition Kind = "INVALID_CONDITION"

	// KindWeakContainsCondition indicates StartsWith/EndsWith used where only
	// Contains can be expressed server side.
	KindWeakContainsCondition Kind = "WEAK_CONTAINS_CONDITION"

	// KindUnsupportedToStringTarget indicates ToString called on a value whose
	// server rendering differs from its local rendering.
	KindUnsupportedToStringTarget Kind = "UNSUPPORTED_TOSTRING_TARGET"

	// KindUnsupportedOptionalPredicate indicates a predicate passed to a
	// terminal operator that cannot carry one (e.g. Last).
	KindUnsupportedOptionalPredicate Kind = "UNSUPPORTED_OPTIONAL_PREDICATE"

	// KindNullReference indicates a guarded receiver was null while
	// evaluating a residual expression locally.
	KindNullReference Kind = "NULL_REFERENCE_DURING_LOCAL_EVALUATION"

	// KindPropertyNotQueryable indicates a member access that does not map to
	// a known server property.
	KindPropertyNotQueryable Kind = "PROPERTY_NOT_QUERYABLE"

	// KindInvalidArgument indicates a Skip/Take count that is not a
	// constant non-negative integer.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindSplitLimitExceeded indicates an OR expansion needing more server
	// requests than allowed.
	KindSplitLimitExceeded Kind = "SPLIT_LIMIT_EXCEEDED"
)

// codes maps each kind to the stable code reported by the CLI.
var codes = map[Kind]string{
	KindUnsupportedMethod:            "Q001",
	KindUnconsecutiveCallSequence:    "Q002",
	KindInvalidCondition:             "Q003",
	KindWeakContainsCondition:        "Q004",
	KindUnsupportedToStringTarget:    "Q005",
	KindUnsupportedOptionalPredicate: "Q006",
	KindNullReference:                "Q007",
	KindPropertyNotQueryable:         "Q008",
	KindInvalidArgument:              "Q009",
	KindSplitLimitExceeded:           "Q010",
}

// Code returns the stable short code for the kind ("Q000" if unknown).
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return "Q000"
}

// Error is a classified translation or evaluation error.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Expr is the formatted sub-expression the error refers to, if any.
	Expr string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: %s (expr=%s)", e.Kind, e.Message, e.Expr)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error of the given kind.
func New(kind Kind, expr string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Expr:    expr,
	}
}

// With returns a copy of e with the detail key set.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// As returns the classified error in err's chain.
func As(err error) (*Error, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" if err is not a classified error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	if qe, ok := As(err); ok {
		return qe.Kind
	}
	return ""
}

// IsKind returns true if err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNullReference returns true if err was raised by a null guard during
// local evaluation.
func IsNullReference(err error) bool {
	return IsKind(err, KindNullReference)
}

// IsUnconsecutive returns true if err is an illegal call-sequence error.
func IsUnconsecutive(err error) bool {
	return IsKind(err, KindUnconsecutiveCallSequence)
}

// IsStructural reports whether err is a parser failure that lenient mode
// never recovers from.
func IsStructural(err error) bool {
	return IsKind(err, KindInvalidArgument)
}

// ParseKind returns the kind whose name or code matches s. Names match
// without regard to case or underscores, so "PropertyNotQueryable" and
// "PROPERTY_NOT_QUERYABLE" are the same kind.
func ParseKind(s string) (Kind, bool) {
	name := foldName(s)
	for k, c := range codes {
		if c == s || foldName(string(k)) == name {
			return k, true
		}
	}
	return "", false
}

func foldName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
