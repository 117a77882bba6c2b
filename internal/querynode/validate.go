package querynode

import (
	"fmt"

	"github.com/roach88/sensorq/internal/expr"
)

// ValidationResult describes the structural soundness of a node chain.
type ValidationResult struct {
	// IsValid is true when every structural invariant holds.
	IsValid bool

	// Errors lists violated invariants. Empty when IsValid is true.
	Errors []string
}

// Validate checks the invariants every parsed chain must satisfy:
//  1. The chain ends at exactly one Root with a collection
//  2. Every lambda takes one parameter (two for a SelectMany result selector)
//  3. Skip and Take counts are non-negative
//  4. Terminal nodes only appear last
//
// Validate is a pure function with no side effects.
func Validate(n Node) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateChain(n)

	return ValidationResult{
		IsValid: len(v.errors) == 0,
		Errors:  v.errors,
	}
}

// validator accumulates errors during traversal.
type validator struct {
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateChain(n Node) {
	if n == nil {
		v.addError("nil chain")
		return
	}

	nodes := Chain(n)
	if _, ok := nodes[0].(*Root); !ok {
		v.addError("chain starts at %s, not Root", nodes[0].Kind())
	}

	for i, node := range nodes {
		if i > 0 && node.Kind() == KindRoot {
			v.addError("Root at position %d", i)
		}
		if i < len(nodes)-1 && node.Kind().IsTerminal() {
			v.addError("terminal %s at position %d is followed by %s", node.Kind(), i, nodes[i+1].Kind())
		}
		v.validateNode(i, node)
	}
}

func (v *validator) validateNode(pos int, n Node) {
	switch node := n.(type) {
	case *Root:
		if node.Collection == nil {
			v.addError("Root without collection")
		}
	case *Where:
		v.requireLambda(pos, "Where predicate", node.Predicate, 1)
	case *OrderBy:
		v.requireLambda(pos, "OrderBy key selector", node.KeySelector, 1)
	case *Select:
		v.requireLambda(pos, "Select selector", node.Selector, 1)
	case *SelectMany:
		v.requireLambda(pos, "SelectMany collection selector", node.CollectionSelector, 1)
		if node.ResultSelector != nil {
			v.requireLambda(pos, "SelectMany result selector", node.ResultSelector, 2)
		}
	case *Skip:
		if node.Count < 0 {
			v.addError("Skip at position %d has negative count %d", pos, node.Count)
		}
	case *Take:
		if node.Count < 0 {
			v.addError("Take at position %d has negative count %d", pos, node.Count)
		}
	case *Any, *Count, *First, *Last:
		if p := Predicate(n); p != nil {
			v.requireLambda(pos, string(n.Kind())+" predicate", p, 1)
		}
	case *LocalOnly:
		if node.Expr == nil {
			v.addError("LocalOnly at position %d has no call", pos)
		}
	default:
		v.addError("unknown node type %T at position %d", n, pos)
	}
}

func (v *validator) requireLambda(pos int, what string, fn *expr.Lambda, want int) {
	if fn == nil {
		v.addError("%s at position %d is missing", what, pos)
		return
	}
	if got := len(fn.Params); got != want {
		v.addError("%s at position %d takes %d parameter(s), want %d", what, pos, got, want)
	}
}
