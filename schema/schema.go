// Package schema provides a small dynamic schema builder for validating
// and decoding untyped map[string]any input into typed Go values. It
// stands in for the structural, dynamically-typed schema spec.md assumes
// ("Dynamically typed schema values... implementers in statically typed
// languages must expose a schema-builder API"): Record/String/Int/Bool/
// Enum/Optional fields describe the shape, mapstructure decodes into a
// map[string]any tree, and go-playground/validator enforces field-level
// constraints the same way internal/config.Validate does for the
// teacher's OSSConfig.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Kind identifies the type of a schema field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindFloat
	KindEnum
	KindRecord
	KindAny
)

// Field describes one field of a Record schema.
type Field struct {
	Kind     Kind
	Optional bool
	Enum     []string // valid values when Kind == KindEnum
	Fields   Record    // nested fields when Kind == KindRecord
	Validate string    // additional go-playground/validator tag, e.g. "gt=0"
}

// String returns a required string field.
func String() Field { return Field{Kind: KindString} }

// Int returns a required integer field.
func Int() Field { return Field{Kind: KindInt} }

// Bool returns a required boolean field.
func Bool() Field { return Field{Kind: KindBool} }

// Float returns a required float field.
func Float() Field { return Field{Kind: KindFloat} }

// Enum returns a required string field constrained to the given values.
func Enum(values ...string) Field {
	return Field{Kind: KindEnum, Enum: values}
}

// NestedRecord returns a required nested record field.
func NestedRecord(fields Record) Field {
	return Field{Kind: KindRecord, Fields: fields}
}

// Any returns a field that accepts any value unchanged.
func Any() Field { return Field{Kind: KindAny} }

// Optional marks a field as not required; absent values are left unset
// rather than rejected.
func Optional(f Field) Field {
	f.Optional = true
	return f
}

// Record is a structural schema: a record type is the only schema shape
// spec.md allows at the top level ("Schema must be a record type").
type Record map[string]Field

// Merge shallow-unions two records; fields in other win on name conflict,
// matching ComposeContext's "later wins" rule for schema fields.
func (r Record) Merge(other Record) Record {
	out := make(Record, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParsedInput is the result of validating and defaulting an input document
// against a Record schema. Field access is by key; nested records are
// themselves ParsedInput-shaped maps.
type ParsedInput map[string]any

// Get returns the raw value stored at key, and whether it was present.
func (p ParsedInput) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// GetString returns the string at key, or "" if absent or not a string.
func (p ParsedInput) GetString(key string) string {
	s, _ := p[key].(string)
	return s
}

// Parse validates value against the schema, applies defaults for missing
// optional fields, and returns a ParsedInput. With partial=true, required
// fields that are absent are not an error (used to validate Context
// defaults, which need not set every field, per spec.md 4.2).
func Parse(r Record, value map[string]any, defaults map[string]any, partial bool) (ParsedInput, error) {
	merged := make(map[string]any, len(defaults)+len(value))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range value {
		merged[k] = v
	}

	out := make(ParsedInput, len(merged))
	var missing []string

	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := r[name]
		raw, present := merged[name]
		if !present {
			if field.Optional || partial {
				continue
			}
			missing = append(missing, name)
			continue
		}
		decoded, err := decodeField(name, field, raw)
		if err != nil {
			return nil, err
		}
		out[name] = decoded
	}

	if len(missing) > 0 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")),
		}
	}

	return out, nil
}

func decodeField(name string, field Field, raw any) (any, error) {
	switch field.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected string, got %T", name, raw)}
		}
		if err := validateTag(name, s, field.Validate); err != nil {
			return nil, err
		}
		return s, nil
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected string, got %T", name, raw)}
		}
		for _, allowed := range field.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, &ValidationError{Reason: fmt.Sprintf("field %q: %q is not one of %v", name, s, field.Enum)}
	case KindInt:
		var out int64
		if err := mapstructure.WeakDecode(raw, &out); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected int: %v", name, err)}
		}
		return out, nil
	case KindFloat:
		var out float64
		if err := mapstructure.WeakDecode(raw, &out); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected float: %v", name, err)}
		}
		return out, nil
	case KindBool:
		var out bool
		if err := mapstructure.WeakDecode(raw, &out); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected bool: %v", name, err)}
		}
		return out, nil
	case KindRecord:
		nested, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q: expected object, got %T", name, raw)}
		}
		return Parse(field.Fields, nested, nil, false)
	default:
		return raw, nil
	}
}

func validateTag(fieldName, value, tag string) error {
	if tag == "" {
		return nil
	}
	if err := validate.Var(value, tag); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("field %q: %v", fieldName, err)}
	}
	return nil
}

// ValidationError reports that an input document failed to conform to a
// Record schema. It is returned by Parse and propagates out of
// EvaluatePolicy unconverted, per spec.md section 7 ("Schema validation
// error... Raised before any rule runs").
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "schema validation: " + e.Reason
}
