package querynode

import (
	"github.com/roach88/sensorq/internal/expr"
	"github.com/roach88/sensorq/internal/qerr"
)

// Node is a parsed query operator.
type Node interface {
	queryNode() // Marker method - seals interface to this package

	// Source returns the preceding node, or nil for Root.
	Source() Node

	// Kind returns the node's discriminant.
	Kind() Kind
}

// Kind discriminates node variants.
type Kind string

const (
	KindRoot       Kind = "Root"
	KindWhere      Kind = "Where"
	KindOrderBy    Kind = "OrderBy"
	KindSelect     Kind = "Select"
	KindSelectMany Kind = "SelectMany"
	KindSkip       Kind = "Skip"
	KindTake       Kind = "Take"
	KindAny        Kind = "Any"
	KindCount      Kind = "Count"
	KindFirst      Kind = "First"
	KindLast       Kind = "Last"
	KindLocalOnly  Kind = "LocalOnly"
)

// IsTerminal reports whether nodes of this kind produce a scalar rather than
// a sequence.
func (k Kind) IsTerminal() bool {
	switch k {
	case KindAny, KindCount, KindFirst, KindLast:
		return true
	}
	return false
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// String returns "Ascending" or "Descending".
func (d Direction) String() string {
	if d == Descending {
		return "Descending"
	}
	return "Ascending"
}

// Root is the collection a chain starts from.
type Root struct {
	Collection *expr.Source
}

func (*Root) queryNode()   {}
func (*Root) Source() Node { return nil }
func (*Root) Kind() Kind   { return KindRoot }

// Where filters by a boolean predicate.
type Where struct {
	From      Node
	Predicate *expr.Lambda
	Expr      *expr.Call
}

func (*Where) queryNode()     {}
func (n *Where) Source() Node { return n.From }
func (*Where) Kind() Kind     { return KindWhere }

// OrderBy sorts by a key. Comparer is an optional custom comparer argument,
// kept verbatim; a node with a comparer is never sorted server side.
type OrderBy struct {
	From        Node
	KeySelector *expr.Lambda
	Comparer    expr.Expr
	Direction   Direction
	Expr        *expr.Call
}

func (*OrderBy) queryNode()     {}
func (n *OrderBy) Source() Node { return n.From }
func (*OrderBy) Kind() Kind     { return KindOrderBy }

// Select projects each element.
type Select struct {
	From     Node
	Selector *expr.Lambda
	Expr     *expr.Call
}

func (*Select) queryNode()     {}
func (n *Select) Source() Node { return n.From }
func (*Select) Kind() Kind     { return KindSelect }

// SelectMany flattens a per-element collection. ResultSelector is nil when
// the call had a single argument.
type SelectMany struct {
	From               Node
	CollectionSelector *expr.Lambda
	ResultSelector     *expr.Lambda
	Expr               *expr.Call
}

func (*SelectMany) queryNode()     {}
func (n *SelectMany) Source() Node { return n.From }
func (*SelectMany) Kind() Kind     { return KindSelectMany }

// Skip bypasses Count elements.
type Skip struct {
	From  Node
	Count int
	Expr  *expr.Call
}

func (*Skip) queryNode()     {}
func (n *Skip) Source() Node { return n.From }
func (*Skip) Kind() Kind     { return KindSkip }

// Take limits the sequence to Count elements.
type Take struct {
	From  Node
	Count int
	Expr  *expr.Call
}

func (*Take) queryNode()     {}
func (n *Take) Source() Node { return n.From }
func (*Take) Kind() Kind     { return KindTake }

// Any reports whether any element (matching Predicate, if set) exists.
type Any struct {
	From      Node
	Predicate *expr.Lambda
	Expr      *expr.Call
}

func (*Any) queryNode()     {}
func (n *Any) Source() Node { return n.From }
func (*Any) Kind() Kind     { return KindAny }

// Count counts elements (matching Predicate, if set).
type Count struct {
	From      Node
	Predicate *expr.Lambda
	Expr      *expr.Call
}

func (*Count) queryNode()     {}
func (n *Count) Source() Node { return n.From }
func (*Count) Kind() Kind     { return KindCount }

// First returns the first element (matching Predicate, if set).
type First struct {
	From      Node
	Predicate *expr.Lambda
	Expr      *expr.Call
}

func (*First) queryNode()     {}
func (n *First) Source() Node { return n.From }
func (*First) Kind() Kind     { return KindFirst }

// Last returns the last element. A Predicate is only present when lenient
// parsing kept one for local evaluation.
type Last struct {
	From      Node
	Predicate *expr.Lambda
	Expr      *expr.Call
}

func (*Last) queryNode()     {}
func (n *Last) Source() Node { return n.From }
func (*Last) Kind() Kind     { return KindLast }

// LocalOnly is a call the translator could not model and keeps verbatim for
// local evaluation. Reason records why it was demoted.
type LocalOnly struct {
	From   Node
	Expr   *expr.Call
	Reason qerr.Kind
}

func (*LocalOnly) queryNode()     {}
func (n *LocalOnly) Source() Node { return n.From }
func (*LocalOnly) Kind() Kind     { return KindLocalOnly }

// Predicate returns the optional predicate of a node, or nil.
func Predicate(n Node) *expr.Lambda {
	switch node := n.(type) {
	case *Where:
		return node.Predicate
	case *Any:
		return node.Predicate
	case *Count:
		return node.Predicate
	case *First:
		return node.Predicate
	case *Last:
		return node.Predicate
	}
	return nil
}

// Call returns the call expression n was parsed from, or nil for Root.
func Call(n Node) *expr.Call {
	switch node := n.(type) {
	case *Where:
		return node.Expr
	case *OrderBy:
		return node.Expr
	case *Select:
		return node.Expr
	case *SelectMany:
		return node.Expr
	case *Skip:
		return node.Expr
	case *Take:
		return node.Expr
	case *Any:
		return node.Expr
	case *Count:
		return node.Expr
	case *First:
		return node.Expr
	case *Last:
		return node.Expr
	case *LocalOnly:
		return node.Expr
	}
	return nil
}
