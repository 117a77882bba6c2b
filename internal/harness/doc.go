// Package harness provides a conformance testing framework for query
// translation.
//
// A scenario is a YAML file naming a catalog, an element type, a set of
// objects and a query in the querytext syntax, together with expectations
// about the translated plan and the query result:
//
//	name: status-split
//	description: An OR over one property splits into one request per value
//	catalog: sample
//	type: Sensor
//	source: Sensors
//	query: Where(s.Status == Up || s.Status == Down)
//	expect:
//	  requires_split: true
//	  filter_sets:
//	    - ['Status Equals "Up"']
//	    - ['Status Equals "Down"']
//	  results: [1, 2, 4, 6]
//
// Run translates the query, executes the plan against a fresh in-memory
// store loaded with the objects, and checks the outcome twice: against the
// explicit expectations, and against an oracle that evaluates the original
// query locally over every object. A plan that pushes work to the server
// must return exactly what local evaluation returns.
//
// RunWithGolden additionally snapshots the plan to a golden file so changes
// to translation show up in review.
package harness
