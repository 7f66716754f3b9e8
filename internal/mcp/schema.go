package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// JSON type tags understood by the validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// Schema is the JSON Schema document type used for tool inputs and outputs.
// The validator honours type, properties, required, additionalProperties,
// items and default; pattern, enum and the numeric bounds are documentation.
type Schema = jsonschema.Schema

// PropOption adjusts a property schema built by Prop or ArrayOf.
type PropOption func(*Schema)

// Object returns an object schema with the given properties and required
// names. Additional properties are rejected.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{
		Type:                 TypeObject,
		Properties:           props,
		Required:             required,
		AdditionalProperties: falseSchema(),
	}
}

// OpenObject is Object without the additionalProperties restriction.
func OpenObject(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// ArrayOf returns an array schema.
func ArrayOf(items *Schema, description string, opts ...PropOption) *Schema {
	return apply(&Schema{Type: TypeArray, Items: items, Description: description}, opts)
}

// Prop returns a scalar property schema.
func Prop(typ, description string, opts ...PropOption) *Schema {
	return apply(&Schema{Type: typ, Description: description}, opts)
}

// WithDefault sets the value applied when the property is absent.
func WithDefault(v any) PropOption {
	return func(s *Schema) {
		data, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("schema default %v: %v", v, err))
		}
		if err := json.Unmarshal(data, &s.Default); err != nil {
			panic(fmt.Sprintf("schema default %v: %v", v, err))
		}
	}
}

// WithRange documents numeric bounds.
func WithRange(min, max float64) PropOption {
	return func(s *Schema) { s.Minimum, s.Maximum = &min, &max }
}

// WithPattern documents a string pattern.
func WithPattern(p string) PropOption {
	return func(s *Schema) { s.Pattern = p }
}

// Nullable widens the property's type to also allow null.
func Nullable() PropOption {
	return func(s *Schema) {
		s.Types = append(typesOf(s), TypeNull)
		s.Type = ""
	}
}

func apply(s *Schema, opts []PropOption) *Schema {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// falseSchema is the schema that matches nothing.
func falseSchema() *Schema { return &Schema{Not: &Schema{}} }

func closed(s *Schema) bool {
	return s.AdditionalProperties != nil && s.AdditionalProperties.Not != nil
}

// defaultOf decodes the schema's default value; ok is false when none is set.
func defaultOf(s *Schema) (any, bool) {
	data, err := json.Marshal(s.Default)
	if err != nil || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

func typesOf(s *Schema) []string {
	if s.Type != "" {
		return []string{s.Type}
	}
	return append([]string(nil), s.Types...)
}

// allows reports whether a value of JSON kind actual satisfies the schema's
// type. No type allows anything; "number" accepts integers.
func allows(s *Schema, actual string) bool {
	tags := typesOf(s)
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if tag == actual || (tag == TypeNumber && actual == TypeInteger) {
			return true
		}
	}
	return false
}

func typeString(s *Schema) string { return strings.Join(typesOf(s), "|") }

// kindOf names the JSON kind of a decoded value.
func kindOf(v any) string {
	switch n := v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return TypeInteger
		}
		return TypeNumber
	case float32:
		return kindOf(float64(n))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return TypeInteger
		}
		return TypeNumber
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return fmt.Sprintf("%T", v)
	}
}
