// Package eval evaluates expression trees against in-memory objects.
//
// It is the reference local evaluator for residual query chains produced by
// translation: a chain rooted at an expr.Source is run against the objects
// fetched from the server, and scalar sub-expressions are evaluated against
// bound lambda parameters.
//
// Objects may be Go structs (exported fields or zero-argument methods,
// pointers followed) or map[string]any. Values are normalized before
// comparison: integer kinds become int64, floats float64, named string and
// bool types their underlying type, and enum-like types implementing
// fmt.Stringer their String form. Strings are compared in Unicode NFC.
//
// Guard nodes implement the null-check semantics of residual trees; an
// unguarded access through null is still an error, but an unclassified one.
package eval
