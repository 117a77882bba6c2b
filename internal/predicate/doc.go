// Package predicate extracts server filter conditions from boolean
// predicate expressions.
//
// The Analyzer classifies one leaf at a time (a comparison, a string match,
// a boolean member) into a CandidateFilter. Combining leaves across && and
// || is the job of package legality.
package predicate
