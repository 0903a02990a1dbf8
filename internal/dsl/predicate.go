package dsl

import (
	"regexp"
	"strings"
)

// Operator is the closed set of predicate operators this language
// supports. Adding one is a breaking change to every stored spec.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIContains   Operator = "i_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIStartsWith Operator = "i_starts_with"
	OpIEndsWith   Operator = "i_ends_with"
	OpRegex       Operator = "regex"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpExists      Operator = "exists"
	OpHasAny      Operator = "has_any"
	OpHasAll      Operator = "has_all"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNotIn: true,
	OpContains: true, OpNotContains: true, OpIContains: true,
	OpStartsWith: true, OpEndsWith: true, OpIStartsWith: true, OpIEndsWith: true,
	OpRegex: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpExists: true, OpHasAny: true, OpHasAll: true,
}

// Check is a single operator/operand pair. A Predicate is a conjunction
// of Checks, which is how a multi-key predicate map such as
// {gte: 1, lte: 10} is represented.
type Check struct {
	Op      Operator
	Operand Value
}

type Predicate struct {
	Checks []Check
}

// Match reports whether v satisfies every check in the predicate.
func (p Predicate) Match(v Value) bool {
	for _, c := range p.Checks {
		if !c.Match(v) {
			return false
		}
	}
	return true
}

func (c Check) Match(v Value) bool {
	switch c.Op {
	case OpEq:
		return v.Equal(c.Operand)
	case OpNe:
		return !v.Equal(c.Operand)
	case OpIn:
		return memberOf(c.Operand, v)
	case OpNotIn:
		return !memberOf(c.Operand, v)
	case OpContains:
		return stringCompare(v, c.Operand, false, strings.Contains)
	case OpNotContains:
		return !stringCompare(v, c.Operand, false, strings.Contains)
	case OpIContains:
		return stringCompare(v, c.Operand, true, strings.Contains)
	case OpStartsWith:
		return stringCompare(v, c.Operand, false, strings.HasPrefix)
	case OpEndsWith:
		return stringCompare(v, c.Operand, false, strings.HasSuffix)
	case OpIStartsWith:
		return stringCompare(v, c.Operand, true, strings.HasPrefix)
	case OpIEndsWith:
		return stringCompare(v, c.Operand, true, strings.HasSuffix)
	case OpRegex:
		return regexMatch(v, c.Operand)
	case OpGt:
		cmp, ok := compareOrdered(v, c.Operand)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compareOrdered(v, c.Operand)
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compareOrdered(v, c.Operand)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compareOrdered(v, c.Operand)
		return ok && cmp <= 0
	case OpExists:
		want := c.Operand.Kind == KindBool && c.Operand.Bool
		return !v.IsNull() == want
	case OpHasAny:
		return hasAny(v, c.Operand)
	case OpHasAll:
		return hasAll(v, c.Operand)
	}
	return false
}

func memberOf(list Value, item Value) bool {
	if list.Kind != KindSlice {
		return false
	}
	for _, e := range list.Slice {
		if e.Equal(item) {
			return true
		}
	}
	return false
}

func stringCompare(v, operand Value, ci bool, fn func(s, substr string) bool) bool {
	s, ok1 := v.AsString()
	sub, ok2 := operand.AsString()
	if !ok1 || !ok2 {
		return false
	}
	if ci {
		s, sub = strings.ToLower(s), strings.ToLower(sub)
	}
	return fn(s, sub)
}

func regexMatch(v, operand Value) bool {
	s, ok1 := v.AsString()
	pattern, ok2 := operand.AsString()
	if !ok1 || !ok2 {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// compareOrdered returns -1/0/1 comparing v to operand and ok=false when
// the two values are not both numbers or both strings, so gt/gte/lt/lte
// can uniformly return false on incomparable types.
func compareOrdered(v, operand Value) (int, bool) {
	if vf, ok := v.AsFloat(); ok {
		if of, ok2 := operand.AsFloat(); ok2 {
			switch {
			case vf < of:
				return -1, true
			case vf > of:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if vs, ok := v.AsString(); ok {
		if os, ok2 := operand.AsString(); ok2 {
			return strings.Compare(vs, os), true
		}
	}
	return 0, false
}

func hasAny(v, operand Value) bool {
	elems, ok := sequenceOf(operand)
	if !ok {
		return false
	}
	for _, e := range elems {
		if sequenceContains(v, e) {
			return true
		}
	}
	return false
}

func hasAll(v, operand Value) bool {
	elems, ok := sequenceOf(operand)
	if !ok {
		return false
	}
	for _, e := range elems {
		if !sequenceContains(v, e) {
			return false
		}
	}
	return true
}

func sequenceOf(v Value) ([]Value, bool) {
	if v.Kind == KindSlice {
		return v.Slice, true
	}
	return nil, false
}

func sequenceContains(v, elem Value) bool {
	switch v.Kind {
	case KindSlice:
		for _, e := range v.Slice {
			if e.Equal(elem) {
				return true
			}
		}
		return false
	case KindString:
		s, _ := v.AsString()
		sub, ok := elem.AsString()
		return ok && strings.Contains(s, sub)
	default:
		return false
	}
}
