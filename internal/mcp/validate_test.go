package mcp

import (
	"encoding/json"
	"errors"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestValidate(t *testing.T) {
	schema := Object(map[string]*Schema{
		"recordId": Prop(TypeString, ""),
		"limit":    Prop(TypeInteger, "", WithDefault(10)),
		"score":    Prop(TypeNumber, ""),
		"note":     Prop(TypeString, "", Nullable()),
		"tags":     ArrayOf(Prop(TypeString, ""), ""),
		"filter": Object(map[string]*Schema{
			"since": Prop(TypeString, ""),
		}, "since"),
	}, "recordId")

	cases := []struct {
		name  string
		input string
		kind  ValidationKind
		field string
	}{
		{"ok", `{"recordId":"abc"}`, "", ""},
		{"integer accepted as number", `{"recordId":"abc","score":3}`, "", ""},
		{"null allowed by union", `{"recordId":"abc","note":null}`, "", ""},
		{"missing required", `{}`, MissingField, "recordId"},
		{"unexpected before missing", `{"zzz":1,"aaa":2}`, UnexpectedField, "aaa"},
		{"wrong type", `{"recordId":5}`, TypeMismatch, "recordId"},
		{"fraction is not integer", `{"recordId":"a","limit":1.5}`, TypeMismatch, "limit"},
		{"type errors in key order", `{"recordId":"a","score":"x","limit":"y"}`, TypeMismatch, "limit"},
		{"array item", `{"recordId":"a","tags":["x",2]}`, TypeMismatch, "tags[1]"},
		{"nested missing", `{"recordId":"a","filter":{}}`, MissingField, "filter.since"},
		{"nested unexpected", `{"recordId":"a","filter":{"since":"x","until":"y"}}`, UnexpectedField, "filter.until"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(schema, decode(t, tc.input))
			if tc.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Kind != tc.kind || ve.Field != tc.field {
				t.Fatalf("expected %s on %s, got %s on %s", tc.kind, tc.field, ve.Kind, ve.Field)
			}
		})
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	schema := Object(map[string]*Schema{
		"q":     Prop(TypeString, ""),
		"limit": Prop(TypeInteger, "", WithDefault(10)),
	}, "q")
	raw := decode(t, `{"q":"x"}`)

	args, err := Validate(schema, raw)
	if err != nil {
		t.Fatal(err)
	}
	if args["limit"] != float64(10) {
		t.Fatalf("expected default limit, got %v", args["limit"])
	}
	if _, touched := raw["limit"]; touched {
		t.Fatal("input map must not be modified")
	}

	args, err = Validate(schema, decode(t, `{"q":"x","limit":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if args["limit"] != float64(3) {
		t.Fatalf("explicit value must win, got %v", args["limit"])
	}
}

func TestOpenObjectAllowsExtraKeys(t *testing.T) {
	if _, err := Validate(OpenObject(nil), decode(t, `{"anything":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Validate(nil, nil); err != nil {
		t.Fatalf("nil schema should accept anything: %v", err)
	}
}

func TestValidationErrorMessages(t *testing.T) {
	cases := map[string]*ValidationError{
		"unexpected argument: x":                 {Kind: UnexpectedField, Field: "x"},
		"missing required argument: id":          {Kind: MissingField, Field: "id"},
		"argument n must be integer, got string": {Kind: TypeMismatch, Field: "n", Expected: "integer", Actual: "string"},
	}
	for want, err := range cases {
		if err.Error() != want {
			t.Errorf("got %q, want %q", err.Error(), want)
		}
	}
}

func TestSchemaTypeUnion(t *testing.T) {
	var s Schema
	if err := json.Unmarshal([]byte(`{"type":["string","null"]}`), &s); err != nil {
		t.Fatal(err)
	}
	if !allows(&s, TypeNull) || !allows(&s, TypeString) || allows(&s, TypeInteger) {
		t.Fatalf("unexpected type union %v", typeString(&s))
	}

	var out map[string]any
	data, err := json.Marshal(Prop(TypeString, "", Nullable()))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if types, _ := out["type"].([]any); len(types) != 2 || types[1] != TypeNull {
		t.Fatalf("nullable property should list both types, got %s", data)
	}

	data, err = json.Marshal(Prop(TypeInteger, "", WithDefault(10)))
	if err != nil {
		t.Fatal(err)
	}
	out = nil
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["type"] != TypeInteger || out["default"] != float64(10) {
		t.Fatalf("unexpected property encoding %s", data)
	}
}
