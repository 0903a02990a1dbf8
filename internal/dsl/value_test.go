package dsl

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromAny(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"string", "hi", String("hi")},
		{"float64", 3.5, Number(3.5)},
		{"int", 7, Number(7)},
		{"int64", int64(8), Number(8)},
		{"time", ts, String("2026-01-02T03:04:05Z")},
		{"bytes", []byte("raw"), String("raw")},
		{"slice", []any{1.0, "x"}, Value{Kind: KindSlice, Slice: []Value{Number(1), String("x")}}},
		{"map", map[string]any{"a": 1.0}, Value{Kind: KindMap, Map: map[string]Value{"a": Number(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAny(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("FromAny(%v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueRawRoundTrip(t *testing.T) {
	v := Value{Kind: KindMap, Map: map[string]Value{
		"n": Number(1),
		"s": String("x"),
		"l": {Kind: KindSlice, Slice: []Value{Bool(true), Null()}},
	}}
	raw := v.Raw()
	back := FromAny(raw)
	if diff := cmp.Diff(v, back); diff != "" {
		t.Errorf("Raw/FromAny round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValueEqualNullDistinct(t *testing.T) {
	if !Null().Equal(Null()) {
		t.Error("expected null to equal null")
	}
	if Null().Equal(String("")) {
		t.Error("expected null to never equal a non-null empty string")
	}
	if String("").Equal(Null()) {
		t.Error("expected equality to be symmetric for null vs non-null")
	}
	if Number(1).Equal(String("1")) {
		t.Error("expected values of different kinds to never be equal")
	}
	if !Number(1).Equal(Number(1)) {
		t.Error("expected equal numbers to be equal")
	}
}

func TestValueFieldDottedPath(t *testing.T) {
	v := Value{Kind: KindMap, Map: map[string]Value{
		"a": {Kind: KindMap, Map: map[string]Value{
			"b": String("found"),
		}},
	}}

	if got := v.Field("a.b"); got.Str != "found" {
		t.Errorf("Field(a.b) = %+v, want found", got)
	}
	if got := v.Field("a.missing"); !got.IsNull() {
		t.Errorf("Field(a.missing) = %+v, want null", got)
	}
	if got := v.Field("missing.b"); !got.IsNull() {
		t.Errorf("Field(missing.b) = %+v, want null", got)
	}
	if got := String("x").Field("a.b"); !got.IsNull() {
		t.Errorf("Field on a non-map value = %+v, want null", got)
	}
}

func TestRowField(t *testing.T) {
	row := Row{
		"id":   Number(1),
		"meta": {Kind: KindMap, Map: map[string]Value{"owner": String("alice")}},
	}
	if got := row.Field("meta.owner"); got.Str != "alice" {
		t.Errorf("Row.Field(meta.owner) = %+v, want alice", got)
	}
	if got := row.Field("nope"); !got.IsNull() {
		t.Errorf("Row.Field(nope) = %+v, want null", got)
	}
}
