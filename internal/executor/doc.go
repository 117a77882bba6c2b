// Package executor runs translated plans against a server.
//
// An Executor issues every request of a plan through a Fetcher, merges the
// results of split requests, and runs the plan's residual chain locally with
// the eval package. Requests run sequentially by default; WithConcurrency
// issues them in parallel with golang.org/x/sync/errgroup, cancelling the
// remaining requests when one fails.
//
// Merging follows the plan's Merge instruction: the union of all results,
// deduplicated by the identity property and ordered by it, so a split plan
// returns the same objects in the same order as a single request would.
package executor
