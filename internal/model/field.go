// internal/model/field.go
package model

import (
	"fmt"
	"math"
)

// Policy marks whether configuration must supply a field
type Policy string

const (
	PolicyOptional  Policy = ""
	PolicyMandatory Policy = "mandatory"
)

// Field is a field definition from the schema. Inside a cloned record it is
// also a field instance: Value holds the configured value (nil when absent).
//
// Values are normalized per kind: int64 for byte/short/integer, float64 for
// float/double, string for char and []byte for array.
type Field struct {
	Name        string     `json:"name"`
	Kind        Kind       `json:"kind"`
	Position    int        `json:"position"`
	Width       int        `json:"width"`
	Description string     `json:"description"`
	Default     any        `json:"default,omitempty"`
	Policy      Policy     `json:"policy,omitempty"`
	Constraint  Constraint `json:"constraint"`
	Value       any        `json:"value,omitempty"`
}

// HasValue reports whether configuration assigned the field
func (f *Field) HasValue() bool {
	return f.Value != nil
}

// HasDefault reports whether the schema supplies a fallback value
func (f *Field) HasDefault() bool {
	return f.Default != nil
}

// Effective returns the assigned value, falling back to the default
func (f *Field) Effective() (any, bool) {
	if f.Value != nil {
		return f.Value, true
	}
	if f.Default != nil {
		return f.Default, true
	}
	return nil, false
}

// Assign validates a raw configuration value against the field kind and
// constraint and stores it. On failure the previous value is kept.
func (f *Field) Assign(value any) error {
	if f.Constraint.Kind == ConstraintFixed {
		return newValidationError(f.Name, value, ErrFixedValue, "field has a fixed value")
	}

	v, err := f.coerce(value)
	if err != nil {
		return err
	}

	f.Value = v
	return nil
}

func (f *Field) coerce(value any) (any, error) {
	if n, ok := intLiteral(value); ok {
		if !f.Kind.IsDiscrete() {
			return nil, newValidationError(f.Name, value, ErrTypeMismatch, "integer value for %s field", f.Kind)
		}
		if err := f.checkBounds(value, n); err != nil {
			return nil, err
		}
		if err := f.checkConstraint(value, n); err != nil {
			return nil, err
		}
		return n, nil
	}

	if x, ok := floatLiteral(value); ok {
		if !f.Kind.IsReal() {
			return nil, newValidationError(f.Name, value, ErrTypeMismatch, "floating point value for %s field", f.Kind)
		}
		if f.Kind == KindFloat && math.Abs(x) > math.MaxFloat32 {
			return nil, newValidationError(f.Name, value, ErrRange, "value does not fit a 32-bit float")
		}
		if err := f.checkConstraint(value, x); err != nil {
			return nil, err
		}
		return x, nil
	}

	switch v := value.(type) {
	case string:
		switch f.Kind {
		case KindChar:
			if err := f.checkConstraint(value, v); err != nil {
				return nil, err
			}
			return v, nil
		case KindByte:
			if f.Constraint.Kind != ConstraintMap {
				return nil, newValidationError(f.Name, value, ErrTypeMismatch, "string value for %s field", f.Kind)
			}
			// map entries may be selected by tag instead of value
			n, ok := f.Constraint.LookupTag(v)
			if !ok {
				return nil, newValidationError(f.Name, value, ErrMap, "no map entry tagged %q", v)
			}
			return n, nil
		default:
			return nil, newValidationError(f.Name, value, ErrTypeMismatch, "string value for %s field", f.Kind)
		}

	case []any:
		if f.Kind != KindArray {
			return nil, newValidationError(f.Name, value, ErrTypeMismatch, "sequence value for %s field", f.Kind)
		}
		if len(v) != f.Width {
			return nil, newValidationError(f.Name, value, ErrWidth, "array has %d elements, want %d", len(v), f.Width)
		}
		out := make([]byte, len(v))
		for i, elem := range v {
			n, ok := intLiteral(elem)
			if !ok {
				return nil, newValidationError(f.Name, value, ErrTypeMismatch, "array element %d is not an integer", i)
			}
			if n < 0 || n > math.MaxUint8 {
				return nil, newValidationError(f.Name, value, ErrRange, "array element %d out of byte range", i)
			}
			if err := f.checkConstraint(value, n); err != nil {
				return nil, err
			}
			out[i] = byte(n)
		}
		return out, nil
	}

	return nil, newValidationError(f.Name, value, ErrTypeMismatch, "unsupported value type %T for %s field", value, f.Kind)
}

// checkBounds rejects integers the wire encoding of the kind cannot hold
func (f *Field) checkBounds(raw any, n int64) error {
	var lo, hi int64
	switch f.Kind {
	case KindByte:
		lo, hi = 0, math.MaxUint8
	case KindShort:
		lo, hi = math.MinInt16, math.MaxInt16
	case KindInteger:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return newValidationError(f.Name, raw, ErrTypeMismatch, "integer value for %s field", f.Kind)
	}
	if n < lo || n > hi {
		return newValidationError(f.Name, raw, ErrRange, "value does not fit a %s field", f.Kind)
	}
	return nil
}

// checkConstraint applies range, then map, then string width
func (f *Field) checkConstraint(raw any, v any) error {
	switch f.Constraint.Kind {
	case ConstraintRange:
		x, ok := numeric(v)
		if !ok {
			return newValidationError(f.Name, raw, ErrTypeMismatch, "range constraint on non numeric value")
		}
		if !f.Constraint.InRange(x) {
			return newValidationError(f.Name, raw, ErrRange, "value outside [%v, %v]", f.Constraint.Min, f.Constraint.Max)
		}
		return nil
	case ConstraintMap:
		n, ok := v.(int64)
		if !ok || !f.Constraint.HasValue(n) {
			return newValidationError(f.Name, raw, ErrMap, "value not present in map")
		}
		return nil
	case ConstraintNone, ConstraintFixed:
	default:
		return fmt.Errorf("field %s: unknown constraint %q", f.Name, string(f.Constraint.Kind))
	}

	if s, ok := v.(string); ok && len(s) > f.Width {
		return newValidationError(f.Name, raw, ErrWidth, "string of %d bytes exceeds width %d", len(s), f.Width)
	}
	return nil
}

// SetDefault normalizes a schema default value for the field kind. No
// constraint is applied: defaults are trusted schema data.
func (f *Field) SetDefault(raw any) error {
	if raw == nil {
		f.Default = nil
		return nil
	}

	switch f.Kind {
	case KindByte, KindShort, KindInteger:
		n, ok := intLiteral(raw)
		if !ok {
			return newValidationError(f.Name, raw, ErrTypeMismatch, "default is not an integer")
		}
		if err := f.checkBounds(raw, n); err != nil {
			return err
		}
		f.Default = n
	case KindFloat, KindDouble:
		x, ok := numeric(raw)
		if !ok {
			return newValidationError(f.Name, raw, ErrTypeMismatch, "default is not a number")
		}
		f.Default = x
	case KindChar:
		s, ok := raw.(string)
		if !ok {
			return newValidationError(f.Name, raw, ErrTypeMismatch, "default is not a string")
		}
		if len(s) > f.Width {
			return newValidationError(f.Name, raw, ErrWidth, "default exceeds width %d", f.Width)
		}
		f.Default = s
	case KindArray:
		seq, ok := raw.([]any)
		if !ok {
			return newValidationError(f.Name, raw, ErrTypeMismatch, "default is not a sequence")
		}
		if len(seq) != f.Width {
			return newValidationError(f.Name, raw, ErrWidth, "default has %d elements, want %d", len(seq), f.Width)
		}
		out := make([]byte, len(seq))
		for i, elem := range seq {
			n, ok := intLiteral(elem)
			if !ok || n < 0 || n > math.MaxUint8 {
				return newValidationError(f.Name, raw, ErrTypeMismatch, "default element %d is not a byte", i)
			}
			out[i] = byte(n)
		}
		f.Default = out
	default:
		return fmt.Errorf("field %s: unknown kind %q", f.Name, string(f.Kind))
	}
	return nil
}

// Clone returns an independent copy of the field
func (f *Field) Clone() *Field {
	out := *f
	out.Constraint = f.Constraint.clone()
	out.Default = cloneValue(f.Default)
	out.Value = cloneValue(f.Value)
	return &out
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok {
		c := make([]byte, len(b))
		copy(c, b)
		return c
	}
	return v
}

func intLiteral(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func floatLiteral(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func numeric(v any) (float64, bool) {
	if x, ok := floatLiteral(v); ok {
		return x, true
	}
	if n, ok := intLiteral(v); ok {
		return float64(n), true
	}
	return 0, false
}
