// Package querynode defines the closed set of query nodes a parsed query
// chain is made of.
//
// A query chain such as
//
//	Sensors.Where(s => s.Status == "Up").OrderBy(s => s.Name).Skip(10).Take(5)
//
// parses into a singly-linked list of nodes, each owning the node before it:
//
//	Take{From: Skip{From: OrderBy{From: Where{From: Root{Sensors}}}}}
//
// SEALED INTERFACE:
//
// Node is sealed with a marker method. Only the types in this package
// implement it, so a type switch over Node can be checked for exhaustiveness
// by reading this file:
//
//   - Root: the collection the chain starts from
//   - Where, OrderBy, Select, SelectMany, Skip, Take: sequence operators
//   - Any, Count, First, Last: terminal operators with an optional predicate
//   - LocalOnly: a call kept verbatim for local evaluation (lenient mode)
//
// IMMUTABILITY:
//
// Nodes are built once by the chain parser and never mutated. WithSource
// returns an updated copy, so the original chain remains available for
// diagnostics. Every node except Root keeps the call expression it was
// parsed from in Expr.
package querynode
