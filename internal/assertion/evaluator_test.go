package assertion

import (
	"strings"
	"testing"

	"evalplatform/internal/diffmodel"
	"evalplatform/internal/dsl"
)

func taggedRow(table string, cols map[string]dsl.Value) dsl.Row {
	row := dsl.Row{diffmodel.TableTag: dsl.String(table)}
	for k, v := range cols {
		row[k] = v
	}
	return row
}

func eqAssertion(index int, diffType dsl.DiffType, entity string, where map[string]dsl.Predicate) dsl.Assertion {
	return dsl.Assertion{Index: index, DiffType: diffType, Entity: entity, Where: where}
}

func eqPredicate(v dsl.Value) dsl.Predicate {
	return dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: v}}}
}

func TestEvaluateAddedPasses(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		eqAssertion(0, dsl.DiffAdded, "orders", map[string]dsl.Predicate{"status": eqPredicate(dsl.String("shipped"))}),
	}}
	diff := diffmodel.Diff{
		Inserts: []dsl.Row{taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped")})},
	}

	result := Evaluate(spec, diff)
	if !result.Passed {
		t.Fatalf("expected pass, got failures %v", result.Failures)
	}
	if result.Score != (Score{Passed: 1, Total: 1, Percent: 100}) {
		t.Errorf("unexpected score %+v", result.Score)
	}
}

func TestEvaluateAddedFailsOnCountMismatch(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		eqAssertion(0, dsl.DiffAdded, "orders", nil),
	}}
	diff := diffmodel.Diff{}

	result := Evaluate(spec, diff)
	if result.Passed {
		t.Fatal("expected failure when no rows were added")
	}
	if result.Score.Passed != 0 || result.Score.Total != 1 {
		t.Errorf("unexpected score %+v", result.Score)
	}
}

func TestEvaluateRemoved(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		eqAssertion(0, dsl.DiffRemoved, "orders", nil),
	}}
	diff := diffmodel.Diff{Deletes: []dsl.Row{taggedRow("orders", map[string]dsl.Value{"id": dsl.Number(1)})}}

	if result := Evaluate(spec, diff); !result.Passed {
		t.Fatalf("expected pass, got failures %v", result.Failures)
	}
}

func TestEvaluateUnchangedDefaultsToZero(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		eqAssertion(0, dsl.DiffUnchanged, "orders", map[string]dsl.Predicate{"id": eqPredicate(dsl.Number(1))}),
	}}

	passing := diffmodel.Diff{}
	if result := Evaluate(spec, passing); !result.Passed {
		t.Fatalf("expected pass when nothing touched the matching row, got %v", result.Failures)
	}

	failing := diffmodel.Diff{Inserts: []dsl.Row{taggedRow("orders", map[string]dsl.Value{"id": dsl.Number(1)})}}
	if result := Evaluate(spec, failing); result.Passed {
		t.Fatal("expected failure when the supposedly-unchanged row was inserted")
	}
}

func TestEvaluateChangedStrictModeRejectsUndeclaredChange(t *testing.T) {
	spec := &dsl.Spec{Strict: true, Assertions: []dsl.Assertion{
		{
			Index:    0,
			DiffType: dsl.DiffChanged,
			Entity:   "orders",
			ExpectedChanges: map[string]dsl.ChangeExpectation{
				"status": {To: &dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: dsl.String("shipped")}}}},
			},
		},
	}}

	update := diffmodel.Update{
		Table:  "orders",
		Before: taggedRow("orders", map[string]dsl.Value{"status": dsl.String("pending"), "total": dsl.Number(10)}),
		After:  taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped"), "total": dsl.Number(12)}),
	}
	diff := diffmodel.Diff{Updates: []diffmodel.Update{update}}

	result := Evaluate(spec, diff)
	if result.Passed {
		t.Fatal("expected strict mode to reject a change to an undeclared field")
	}
	if !strings.Contains(result.Failures[0], "total") {
		t.Errorf("expected failure message to name the undeclared field, got %q", result.Failures[0])
	}
}

func TestEvaluateChangedNonStrictIgnoresUndeclaredChange(t *testing.T) {
	spec := &dsl.Spec{Strict: false, Assertions: []dsl.Assertion{
		{
			Index:    0,
			DiffType: dsl.DiffChanged,
			Entity:   "orders",
			ExpectedChanges: map[string]dsl.ChangeExpectation{
				"status": {To: &dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: dsl.String("shipped")}}}},
			},
		},
	}}

	update := diffmodel.Update{
		Table:  "orders",
		Before: taggedRow("orders", map[string]dsl.Value{"status": dsl.String("pending"), "total": dsl.Number(10)}),
		After:  taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped"), "total": dsl.Number(12)}),
	}
	diff := diffmodel.Diff{Updates: []diffmodel.Update{update}}

	if result := Evaluate(spec, diff); !result.Passed {
		t.Fatalf("expected non-strict mode to tolerate an undeclared field change, got %v", result.Failures)
	}
}

func TestEvaluateChangedIgnoreFieldExcludesFromStrictCheck(t *testing.T) {
	spec := &dsl.Spec{
		Strict:       true,
		IgnoreFields: dsl.IgnoreFields{Global: []string{"total"}},
		Assertions: []dsl.Assertion{
			{
				Index:    0,
				DiffType: dsl.DiffChanged,
				Entity:   "orders",
				ExpectedChanges: map[string]dsl.ChangeExpectation{
					"status": {To: &dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: dsl.String("shipped")}}}},
				},
			},
		},
	}

	update := diffmodel.Update{
		Table:  "orders",
		Before: taggedRow("orders", map[string]dsl.Value{"status": dsl.String("pending"), "total": dsl.Number(10)}),
		After:  taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped"), "total": dsl.Number(12)}),
	}
	diff := diffmodel.Diff{Updates: []diffmodel.Update{update}}

	if result := Evaluate(spec, diff); !result.Passed {
		t.Fatalf("expected globally ignored field to be excluded from the strict check, got %v", result.Failures)
	}
}

func TestEvaluateChangedFromToPredicates(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		{
			Index:    0,
			DiffType: dsl.DiffChanged,
			Entity:   "orders",
			ExpectedChanges: map[string]dsl.ChangeExpectation{
				"status": {
					From: &dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: dsl.String("pending")}}},
					To:   &dsl.Predicate{Checks: []dsl.Check{{Op: dsl.OpEq, Operand: dsl.String("shipped")}}},
				},
			},
		},
	}}

	good := diffmodel.Update{
		Table:  "orders",
		Before: taggedRow("orders", map[string]dsl.Value{"status": dsl.String("pending")}),
		After:  taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped")}),
	}
	if result := Evaluate(spec, diffmodel.Diff{Updates: []diffmodel.Update{good}}); !result.Passed {
		t.Fatalf("expected matching from/to to pass, got %v", result.Failures)
	}

	bad := diffmodel.Update{
		Table:  "orders",
		Before: taggedRow("orders", map[string]dsl.Value{"status": dsl.String("cancelled")}),
		After:  taggedRow("orders", map[string]dsl.Value{"status": dsl.String("shipped")}),
	}
	if result := Evaluate(spec, diffmodel.Diff{Updates: []diffmodel.Update{bad}}); result.Passed {
		t.Fatal("expected a from-predicate mismatch to fail the assertion")
	}
}

func TestEvaluateScoringLawAcrossMultipleAssertions(t *testing.T) {
	spec := &dsl.Spec{Assertions: []dsl.Assertion{
		eqAssertion(0, dsl.DiffAdded, "orders", nil),
		eqAssertion(1, dsl.DiffRemoved, "orders", nil),
	}}
	diff := diffmodel.Diff{
		Inserts: []dsl.Row{taggedRow("orders", map[string]dsl.Value{"id": dsl.Number(1)})},
	}

	result := Evaluate(spec, diff)
	if result.Passed {
		t.Fatal("expected overall failure since one of two assertions failed")
	}
	if result.Score.Passed != 1 || result.Score.Total != 2 || result.Score.Percent != 50 {
		t.Errorf("unexpected score %+v", result.Score)
	}
	if len(result.Failures) != 1 {
		t.Errorf("expected exactly one failure message, got %v", result.Failures)
	}
}
