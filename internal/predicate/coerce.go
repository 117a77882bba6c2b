package predicate

import (
	"math"
	"strings"
	"time"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/eval"
	"github.com/roach88/sensorq/internal/qerr"
)

// coerce converts a constant to the representation the server expects for
// prop. Enum literals supplied by name or ordinal become catalog.EnumValue.
func (a *Analyzer) coerce(at string, side propSide, v any) (any, *qerr.Error) {
	if eval.IsNull(v) {
		return nil, qerr.New(qerr.KindInvalidCondition, at, "null cannot be compared server side")
	}

	kind := side.prop.Kind
	if side.stringified {
		kind = catalog.KindString
	}

	invalid := func() *qerr.Error {
		return qerr.New(qerr.KindInvalidCondition, at,
			"value %v (%T) does not match %s property %s", v, v, kind, side.prop.Name)
	}

	if kind == catalog.KindEnum {
		return a.coerceEnum(at, side.prop, v)
	}

	switch n := eval.Normalize(v).(type) {
	case string:
		switch kind {
		case catalog.KindString:
			if n == "" {
				return nil, qerr.New(qerr.KindInvalidCondition, at, "empty value cannot be compared server side")
			}
			return n, nil
		case catalog.KindTime:
			t, err := time.Parse(time.RFC3339, n)
			if err != nil {
				return nil, invalid()
			}
			return t.UTC(), nil
		}
	case int64:
		switch kind {
		case catalog.KindInt:
			return n, nil
		case catalog.KindFloat:
			return float64(n), nil
		}
	case float64:
		switch kind {
		case catalog.KindFloat:
			return n, nil
		case catalog.KindInt:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n), nil
			}
		}
	case bool:
		if kind == catalog.KindBool {
			return n, nil
		}
	case time.Time:
		if kind == catalog.KindTime {
			return n.UTC(), nil
		}
	}
	return nil, invalid()
}

func (a *Analyzer) coerceEnum(at string, prop *catalog.Property, v any) (any, *qerr.Error) {
	var enum *catalog.Enum
	if cat := a.res.Catalog(); cat != nil {
		enum, _ = cat.Enum(prop.Enum)
	}
	if enum == nil {
		return nil, qerr.New(qerr.KindInvalidCondition, at, "enum %s of property %s is unknown", prop.Enum, prop.Name)
	}

	if ev, ok := v.(catalog.EnumValue); ok {
		if ev.Type != enum.Name {
			return nil, qerr.New(qerr.KindInvalidCondition, at,
				"%s.%s is not a member of %s", ev.Type, ev.Name, enum.Name)
		}
		return ev, nil
	}

	switch n := eval.Normalize(v).(type) {
	case string:
		if ev, ok := enum.Lookup(n); ok {
			return ev, nil
		}
		for _, ev := range enum.Values {
			if strings.EqualFold(ev.Name, n) {
				return ev, nil
			}
		}
	case int64:
		if ev, ok := enum.ByOrdinal(n); ok {
			return ev, nil
		}
	}
	return nil, qerr.New(qerr.KindInvalidCondition, at, "%v is not a member of enum %s", v, enum.Name)
}
