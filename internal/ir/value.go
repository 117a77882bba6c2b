package ir

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the values a snapshot may contain.
// There is no float variant; floats do not survive canonicalization.
type Value interface {
	irValue()
}

// Null is an explicit null. It may appear in a Value tree but is rejected
// by MarshalCanonical.
type Null struct{}

func (Null) irValue() {}

// String is a string value.
type String string

func (String) irValue() {}

// Int is an integer value.
type Int int64

func (Int) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// List is an ordered list of values.
type List []Value

func (List) irValue() {}

// Object maps keys to values. Use Keys for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// Strings builds a List of String values.
func Strings(ss ...string) List {
	out := make(List, len(ss))
	for i, s := range ss {
		out[i] = String(s)
	}
	return out
}

// Set stores v under key unless v is nil, so optional fields can be
// assigned without checking them first.
func (obj Object) Set(key string, v Value) Object {
	if v != nil {
		obj[key] = v
	}
	return obj
}

// Keys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's native string ordering compares UTF-8 bytes and differs for
// characters outside the BMP.
func (obj Object) Keys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// From converts a Go value into a Value. Supported inputs are Values,
// strings, signed integers, booleans, time.Time (RFC 3339, UTC),
// fmt.Stringer (its text), []any, []string and map[string]any.
// Floats and nil are rejected.
func From(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	case time.Time:
		return String(val.UTC().Format(time.RFC3339)), nil
	case fmt.Stringer:
		return String(val.String()), nil
	case []string:
		return Strings(val...), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			iv, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = iv
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			iv, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = iv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
