// Package chain parses call-chain expressions into query node chains.
//
// The parser walks from the collection root outward, validating each query
// method against a ConsecutiveCallState. In strict mode every violation is
// an error; in lenient mode unsupported or out-of-order calls are demoted to
// LocalOnly nodes and a warning is logged.
package chain
