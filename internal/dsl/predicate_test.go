package dsl

import "testing"

func TestCheckMatchOperators(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		operand Value
		value   Value
		want    bool
	}{
		{"eq match", OpEq, Number(5), Number(5), true},
		{"eq mismatch", OpEq, Number(5), Number(6), false},
		{"ne mismatch counts as true", OpNe, Number(5), Number(6), true},
		{"in membership", OpIn, Value{Kind: KindSlice, Slice: []Value{Number(1), Number(2)}}, Number(2), true},
		{"not_in membership", OpNotIn, Value{Kind: KindSlice, Slice: []Value{Number(1), Number(2)}}, Number(3), true},
		{"contains substring", OpContains, String("ell"), String("hello"), true},
		{"i_contains case-insensitive", OpIContains, String("ELL"), String("hello"), true},
		{"starts_with", OpStartsWith, String("he"), String("hello"), true},
		{"ends_with", OpEndsWith, String("lo"), String("hello"), true},
		{"gt true", OpGt, Number(3), Number(5), true},
		{"gt false on equal", OpGt, Number(5), Number(5), false},
		{"gt incomparable types", OpGt, String("x"), Number(5), false},
		{"lt incomparable types returns false, not true", OpLt, String("x"), Number(5), false},
		{"gte equal", OpGte, Number(5), Number(5), true},
		{"lte equal", OpLte, Number(5), Number(5), true},
		{"exists true on non-null", OpExists, Bool(true), String("x"), true},
		{"exists true on null fails", OpExists, Bool(true), Null(), false},
		{"exists false on null", OpExists, Bool(false), Null(), true},
		{"has_any membership", OpHasAny, Value{Kind: KindSlice, Slice: []Value{Number(1), Number(2)}}, Value{Kind: KindSlice, Slice: []Value{Number(2), Number(9)}}, true},
		{"has_all requires every member", OpHasAll, Value{Kind: KindSlice, Slice: []Value{Number(1), Number(2)}}, Value{Kind: KindSlice, Slice: []Value{Number(1)}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := Check{Op: tt.op, Operand: tt.operand}
			got := check.Match(tt.value)
			if got != tt.want {
				t.Errorf("Check{%s, %v}.Match(%v) = %v, want %v", tt.op, tt.operand, tt.value, got, tt.want)
			}
		})
	}
}

func TestPredicateMatchIsConjunction(t *testing.T) {
	p := Predicate{Checks: []Check{
		{Op: OpGte, Operand: Number(1)},
		{Op: OpLte, Operand: Number(10)},
	}}

	if !p.Match(Number(5)) {
		t.Error("expected 5 to satisfy gte:1,lte:10")
	}
	if p.Match(Number(11)) {
		t.Error("expected 11 to fail gte:1,lte:10")
	}
}

func TestRegexMatchCaseSensitivity(t *testing.T) {
	check := Check{Op: OpRegex, Operand: String("^Hello")}
	if !check.Match(String("Hello world")) {
		t.Error("expected case-sensitive regex to match exact case")
	}
	if check.Match(String("hello world")) {
		t.Error("expected case-sensitive regex to reject different case")
	}
}
