package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roach88/sensorq/internal/catalog"
	"github.com/roach88/sensorq/internal/eval"
)

// marshalObject encodes obj as JSON keyed by server property ID. Null
// values are omitted.
func (s *Store) marshalObject(typ *catalog.Type, obj any) (string, error) {
	data := make(map[string]any)
	for _, prop := range typ.Properties() {
		v, err := eval.Member(obj, prop.Name)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", prop.Name, err)
		}
		if eval.IsNull(v) {
			continue
		}

		enc, ok, err := s.encodeValue(prop, v)
		if err != nil {
			return "", fmt.Errorf("property %s: %w", prop.Name, err)
		}
		if ok {
			data[prop.ID] = enc
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(b), nil
}

// encodeValue converts v to its stored representation. ok is false for
// values the server does not store.
func (s *Store) encodeValue(prop *catalog.Property, v any) (any, bool, error) {
	if !prop.Kind.IsScalar() {
		if prop.Stringer {
			return eval.ToString(v), true, nil
		}
		return nil, false, nil
	}

	if prop.Kind == catalog.KindEnum {
		n, err := s.enumOrdinal(prop, v)
		return n, err == nil, err
	}

	switch n := eval.Normalize(v).(type) {
	case string:
		switch prop.Kind {
		case catalog.KindString:
			return n, true, nil
		case catalog.KindTime:
			t, err := time.Parse(time.RFC3339, n)
			if err != nil {
				return nil, false, fmt.Errorf("invalid time %q: %w", n, err)
			}
			return t.UTC().Format(time.RFC3339), true, nil
		}
	case int64:
		switch prop.Kind {
		case catalog.KindInt:
			return n, true, nil
		case catalog.KindFloat:
			return float64(n), true, nil
		}
	case float64:
		switch prop.Kind {
		case catalog.KindFloat:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, false, fmt.Errorf("%v cannot be stored", n)
			}
			return n, true, nil
		case catalog.KindInt:
			if n == math.Trunc(n) {
				return int64(n), true, nil
			}
		}
	case bool:
		if prop.Kind == catalog.KindBool {
			return n, true, nil
		}
	case time.Time:
		if prop.Kind == catalog.KindTime {
			return n.UTC().Format(time.RFC3339), true, nil
		}
	}
	if prop.Kind == catalog.KindString {
		return eval.ToString(v), true, nil
	}
	return nil, false, fmt.Errorf("value %v (%T) does not match %s", v, v, prop.Kind)
}

func (s *Store) enumOrdinal(prop *catalog.Property, v any) (int64, error) {
	if ev, ok := v.(catalog.EnumValue); ok {
		return ev.Ordinal, nil
	}
	enum, ok := s.cat.Enum(prop.Enum)
	if !ok {
		return 0, fmt.Errorf("unknown enum %s", prop.Enum)
	}

	switch n := eval.Normalize(v).(type) {
	case string:
		for _, ev := range enum.Values {
			if strings.EqualFold(ev.Name, n) {
				return ev.Ordinal, nil
			}
		}
	case int64:
		if ev, ok := enum.ByOrdinal(n); ok {
			return ev.Ordinal, nil
		}
	}
	return 0, fmt.Errorf("%v is not a member of enum %s", v, enum.Name)
}

// unmarshalObject decodes stored data into a map keyed by member name.
// Enums decode to their member names and times to time.Time.
func (s *Store) unmarshalObject(typ *catalog.Type, data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}

	obj := make(map[string]any, len(raw))
	for _, prop := range typ.Properties() {
		v, ok := raw[prop.ID]
		if !ok {
			obj[prop.Name] = nil
			continue
		}
		dv, err := s.decodeValue(prop, v)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", prop.Name, err)
		}
		obj[prop.Name] = dv
	}
	return obj, nil
}

func (s *Store) decodeValue(prop *catalog.Property, v any) (any, error) {
	num, isNum := v.(json.Number)

	switch prop.Kind {
	case catalog.KindInt:
		if isNum {
			return num.Int64()
		}
	case catalog.KindFloat:
		if isNum {
			return num.Float64()
		}
	case catalog.KindEnum:
		if isNum {
			n, err := num.Int64()
			if err != nil {
				return nil, err
			}
			if enum, ok := s.cat.Enum(prop.Enum); ok {
				if ev, ok := enum.ByOrdinal(n); ok {
					return ev.Name, nil
				}
			}
			return n, nil
		}
	case catalog.KindTime:
		if str, ok := v.(string); ok {
			return time.Parse(time.RFC3339, str)
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("unexpected stored value %v for %s", v, prop.Kind)
}
