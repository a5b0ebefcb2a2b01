package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind is the terminal kind understood by the working memory.
// There is no boolean kind; booleans are stored as integers.
type ValueKind string

const (
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
)

// NoneValue is what a nil reading is written as.
const NoneValue = "none"

// Value is a terminal attribute value.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

// Int returns an integer value.
func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// String returns a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Bool returns the integer encoding of a boolean (1 or 0).
func Bool(v bool) Value {
	if v {
		return Int(1)
	}
	return Int(0)
}

// ValueOf converts an arbitrary reading into a terminal value.
//
// Whole number types become ints, fractional types become floats, booleans
// become 0/1, nil becomes the string "none" and any other type is written as
// its string form.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return String(NoneValue)
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Int(int64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return String(strconv.FormatUint(x, 10))
		}
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case Handle:
		return String(string(x))
	case fmt.Stringer:
		return String(x.String())
	default:
		return String(fmt.Sprint(x))
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	default:
		return v.Str == o.Str
	}
}

// Any returns the value as a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	default:
		return v.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Str
	}
}

// MarshalJSON encodes the value as a single-key object tagged by kind,
// e.g. {"int":3} or {"string":"obj7"}.
func (v Value) MarshalJSON() ([]byte, error) {
	kind := v.Kind
	if kind == "" {
		kind = KindString
	}
	return json.Marshal(map[ValueKind]any{kind: v.Any()})
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[ValueKind]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("invalid value: expected exactly one kind, got %d", len(raw))
	}
	for kind, payload := range raw {
		switch kind {
		case KindInt:
			var i int64
			if err := json.Unmarshal(payload, &i); err != nil {
				return fmt.Errorf("invalid int value: %w", err)
			}
			*v = Int(i)
		case KindFloat:
			var f float64
			if err := json.Unmarshal(payload, &f); err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			*v = Float(f)
		case KindString:
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return fmt.Errorf("invalid string value: %w", err)
			}
			*v = String(s)
		default:
			return fmt.Errorf("invalid value kind %q", kind)
		}
	}
	return nil
}
