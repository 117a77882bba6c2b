// Package translate turns a query call chain into an executable Plan.
//
// Translation runs the full pipeline:
//
//	chain parser -> per-node planning -> legality splitter -> residual builder
//
// Each node of the parsed chain is either applied by the server (filters,
// one sort, paging) or left for local evaluation. The Plan lists the server
// requests to issue, how to merge their results, and the residual chain to
// run over the merged objects.
//
// PUSHDOWN RULES
//
// Where predicates, and the predicates of Any, Count and First, are pushed
// as filter sets until the first LocalOnly node. Several Where nodes are
// ANDed by crossing their sets. A sort is pushed for the first OrderBy whose
// key is a sortable property. Skip and Take are pushed only while every
// earlier node was applied by the server and there is a single request;
// once anything runs locally, paging runs locally too.
//
// Translation is pure: it never performs I/O and the context is only used
// for logging.
package translate
