// Package store provides a SQLite object table that stands in for the
// remote monitoring service in tests and the CLI.
//
// Objects are written with Load and read back with Fetch. Fetch evaluates
// a server request (filters, sort, paging) with SQL compiled by querysql,
// so the store answers exactly what a server honoring the filter grammar
// would answer.
//
// # Storage Format
//
//   - One row per object: seq (load order), kind (element type name), data
//   - data is JSON keyed by server property ID
//   - Enums are stored as ordinals, times as RFC 3339 UTC text, bools as
//     JSON booleans
//   - Properties with a server string rendering (Stringer) are stored as
//     that rendering
//   - Lists and objects without a string rendering are not stored; the
//     server cannot filter or sort on them
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Fetch returns the original objects passed to Load. Rows written by an
// earlier process are decoded from data into maps keyed by member name.
package store
