// Package ir provides the canonical value model used to snapshot query plans.
//
// A plan snapshot is a tree of Values (strings, integers, booleans, lists and
// objects). Snapshots are rendered as canonical JSON so that two equal plans
// always produce identical bytes, which makes them usable as golden files and
// as input to content-addressed fingerprints.
//
// Canonical form:
//   - Object keys sorted by UTF-16 code units (RFC 8785)
//   - Strings NFC normalized, no HTML escaping
//   - No floats and no null; callers render floats as text and omit absent keys
//
// ir imports nothing internal.
package ir
