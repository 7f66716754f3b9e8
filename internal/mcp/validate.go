package mcp

import (
	"fmt"
	"sort"
	"strconv"
)

// ValidationKind names the rule a value broke.
type ValidationKind string

const (
	UnexpectedField ValidationKind = "unexpected_field"
	MissingField    ValidationKind = "missing_field"
	TypeMismatch    ValidationKind = "type_mismatch"
)

// ValidationError is the first schema violation found in a value.
type ValidationError struct {
	Kind     ValidationKind
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case UnexpectedField:
		return fmt.Sprintf("unexpected argument: %s", e.Field)
	case MissingField:
		return fmt.Sprintf("missing required argument: %s", e.Field)
	default:
		return fmt.Sprintf("argument %s must be %s, got %s", e.Field, e.Expected, e.Actual)
	}
}

// Validate checks raw against an object schema and returns a copy with
// schema defaults filled in for absent properties. Rules run in a fixed
// order and the first violation is returned: unexpected keys (sorted),
// missing required keys (declared order), then type mismatches (sorted).
func Validate(schema *Schema, raw map[string]any) (Args, error) {
	if schema == nil {
		schema = OpenObject(nil)
	}
	if err := checkObject("", schema, raw); err != nil {
		return nil, err
	}
	out := make(Args, len(raw)+len(schema.Properties))
	for k, v := range raw {
		out[k] = v
	}
	for name, prop := range schema.Properties {
		if _, present := raw[name]; present || prop == nil {
			continue
		}
		if v, ok := defaultOf(prop); ok {
			out[name] = v
		}
	}
	return out, nil
}

// ValidateValue checks an arbitrary decoded JSON value against a schema.
func ValidateValue(schema *Schema, v any) error {
	if schema == nil {
		return nil
	}
	return checkValue("", schema, v)
}

func checkObject(path string, s *Schema, obj map[string]any) error {
	if closed(s) {
		for _, k := range sortedKeys(obj) {
			if _, declared := s.Properties[k]; !declared {
				return &ValidationError{Kind: UnexpectedField, Field: join(path, k)}
			}
		}
	}
	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			return &ValidationError{Kind: MissingField, Field: join(path, name)}
		}
	}
	for _, k := range sortedKeys(obj) {
		prop, declared := s.Properties[k]
		if !declared || prop == nil {
			continue
		}
		if err := checkValue(join(path, k), prop, obj[k]); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(path string, s *Schema, v any) error {
	actual := kindOf(v)
	if !allows(s, actual) {
		return &ValidationError{Kind: TypeMismatch, Field: path, Expected: typeString(s), Actual: actual}
	}
	switch val := v.(type) {
	case map[string]any:
		if len(s.Properties) > 0 || len(s.Required) > 0 || closed(s) {
			return checkObject(path, s, val)
		}
	case []any:
		if s.Items != nil {
			for i, item := range val {
				if err := checkValue(path+"["+strconv.Itoa(i)+"]", s.Items, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
