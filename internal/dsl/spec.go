package dsl

import "strconv"

// DiffType selects which bucket of a diff an assertion inspects.
type DiffType string

const (
	DiffAdded     DiffType = "added"
	DiffRemoved   DiffType = "removed"
	DiffChanged   DiffType = "changed"
	DiffUnchanged DiffType = "unchanged"
)

// Count models an expected_count clause: either an exact integer or an
// inclusive {min?, max?} range.
type Count struct {
	Exact *int
	Min   *int
	Max   *int
}

// Satisfied reports whether n meets this count's bounds.
func (c *Count) Satisfied(n int) bool {
	if c == nil {
		return true
	}
	if c.Exact != nil {
		return n == *c.Exact
	}
	if c.Min != nil && n < *c.Min {
		return false
	}
	if c.Max != nil && n > *c.Max {
		return false
	}
	return true
}

func (c *Count) String() string {
	if c == nil {
		return "(default)"
	}
	if c.Exact != nil {
		return strconv.Itoa(*c.Exact)
	}
	s := "{"
	if c.Min != nil {
		s += "min=" + strconv.Itoa(*c.Min) + " "
	}
	if c.Max != nil {
		s += "max=" + strconv.Itoa(*c.Max)
	}
	return s + "}"
}

// ChangeExpectation is one entry of an assertion's expected_changes map.
type ChangeExpectation struct {
	From *Predicate
	To   *Predicate
}

// Assertion is one compiled clause of a Spec.
type Assertion struct {
	Index           int
	DiffType        DiffType
	Entity          string
	Where           map[string]Predicate
	Ignore          []string
	ExpectedCount   *Count
	ExpectedChanges map[string]ChangeExpectation
}

// IgnoreFields is the spec-level ignore_fields clause: a global list plus
// per-entity overrides.
type IgnoreFields struct {
	Global    []string
	PerEntity map[string][]string
}

// IgnoreSetFor returns the union of global, per-entity, and
// assertion-level ignore columns for one assertion.
func (f IgnoreFields) IgnoreSetFor(entity string, assertionIgnore []string) map[string]bool {
	set := make(map[string]bool)
	for _, c := range f.Global {
		set[c] = true
	}
	for _, c := range f.PerEntity[entity] {
		set[c] = true
	}
	for _, c := range assertionIgnore {
		set[c] = true
	}
	return set
}

// Spec is the canonical, compiled assertion specification. It is produced
// once by Compile and then evaluated any number of times.
type Spec struct {
	Version      string
	Strict       bool
	IgnoreFields IgnoreFields
	Assertions   []Assertion
}
