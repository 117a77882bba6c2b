package eval

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// Normalize converts v to the canonical representation used for comparison.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case int64, float64, bool, time.Time, []any, map[string]any:
		return val
	case int:
		return int64(val)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Type() != timeType && rv.Type().Implements(stringerType) && rv.Kind() != reflect.String {
		if rv.Kind() == reflect.Struct || isIntKind(rv.Kind()) {
			return norm.NFC.String(rv.Interface().(fmt.Stringer).String())
		}
	}

	switch {
	case isIntKind(rv.Kind()):
		return rv.Int()
	case isUintKind(rv.Kind()):
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u)
		}
		return int64(u)
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		return rv.Float()
	case rv.Kind() == reflect.String:
		return norm.NFC.String(rv.String())
	case rv.Kind() == reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// IsNull reports whether v is nil or a nil pointer, map, slice or interface.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Equal compares two values after normalization. Two nulls are equal; a null
// never equals a non-null. Numbers compare by value across int and float.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	na, nb := Normalize(a), Normalize(b)

	if fa, ok := toFloat(na); ok {
		if fb, ok := toFloat(nb); ok {
			return fa == fb
		}
		return false
	}
	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	if sa, ok := toSeq(na); ok {
		sb, ok := toSeq(nb)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(na, nb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Compare orders two non-null values of compatible types.
func Compare(a, b any) (int, error) {
	na, nb := Normalize(a), Normalize(b)

	if ia, ok := na.(int64); ok {
		if ib, ok := nb.(int64); ok {
			return cmpOrdered(ia, ib), nil
		}
	}
	if fa, ok := toFloat(na); ok {
		if fb, ok := toFloat(nb); ok {
			return cmpOrdered(fa, fb), nil
		}
	}
	switch va := na.(type) {
	case string:
		if vb, ok := nb.(string); ok {
			return strings.Compare(va, vb), nil
		}
	case time.Time:
		if vb, ok := nb.(time.Time); ok {
			return va.Compare(vb), nil
		}
	case bool:
		if vb, ok := nb.(bool); ok {
			switch {
			case va == vb:
				return 0, nil
			case !va:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToString renders v the way a local ToString call would.
func ToString(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toSeq converts slices and arrays (other than byte strings) to []any.
func toSeq(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Member reads the named member of obj.
// Maps are indexed by key; structs by exported field, then by a
// zero-argument method.
func Member(obj any, name string) (any, error) {
	if IsNull(obj) {
		return nil, fmt.Errorf("member %s accessed on null", name)
	}
	if m, ok := obj.(map[string]any); ok {
		return m[name], nil
	}

	rv := reflect.ValueOf(obj)
	base := rv
	for base.Kind() == reflect.Pointer || base.Kind() == reflect.Interface {
		if base.IsNil() {
			return nil, fmt.Errorf("member %s accessed on null", name)
		}
		base = base.Elem()
	}

	switch base.Kind() {
	case reflect.Map:
		if base.Type().Key().Kind() == reflect.String {
			val := base.MapIndex(reflect.ValueOf(name).Convert(base.Type().Key()))
			if !val.IsValid() {
				return nil, nil
			}
			return val.Interface(), nil
		}
	case reflect.Struct:
		if f, ok := base.Type().FieldByName(name); ok && f.IsExported() {
			return base.FieldByIndex(f.Index).Interface(), nil
		}
	}

	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	return nil, fmt.Errorf("%T has no member %s", obj, name)
}
