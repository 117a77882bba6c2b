// Package expr defines the caller-facing expression tree that query chains
// are written in.
//
// An expression tree is a closed set of immutable node types implementing the
// sealed Expr interface. Query chains are instance method calls whose target
// is the preceding part of the chain, terminating at a Source:
//
//	src := expr.NewSource("Sensors", "Sensor")
//	s := expr.P("s")
//	q := expr.MethodCall(src, "Where", expr.Fn(s,
//	    expr.Eq(expr.M(s, "Status"), expr.C("Up"))))
//
// Nodes are never mutated after construction. Rewrite produces new trees and
// leaves the input intact, so the original tree stays available for
// diagnostics.
//
// # Node Types
//
//   - Source: the root collection of a query chain
//   - Param: a lambda parameter
//   - Const: a literal Go value
//   - Member: member access (s.Name)
//   - Binary, Unary: operators
//   - Call: instance or static method call
//   - Lambda: a function literal with one or more parameters
//   - PropertyRef: a member access resolved to a server property
//   - Guard: an explicit null check around a receiver
//
// PropertyRef and Guard never appear in caller input; they are produced by
// the resolver and the residual builder.
package expr
