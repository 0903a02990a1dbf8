// Package assertion evaluates a compiled dsl.Spec against a diffmodel.Diff,
// producing a pass/fail verdict, a score, and human-readable failures.
package assertion

import (
	"fmt"
	"sort"
	"strings"

	"evalplatform/internal/diffmodel"
	"evalplatform/internal/dsl"
)

type Score struct {
	Passed  int     `json:"passed"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type Result struct {
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures"`
	Score    Score    `json:"score"`
}

// Evaluate is a pure function of (spec, diff): identical inputs always
// produce an identical Result.
func Evaluate(spec *dsl.Spec, diff diffmodel.Diff) Result {
	var failures []string

	for _, a := range spec.Assertions {
		ignoreSet := spec.IgnoreFields.IgnoreSetFor(a.Entity, a.Ignore)

		var ok bool
		var msg string
		switch a.DiffType {
		case dsl.DiffAdded:
			ok, msg = evalAddedOrRemoved(a, diffmodel.RowsFor(diff.Inserts, a.Entity), "added")
		case dsl.DiffRemoved:
			ok, msg = evalAddedOrRemoved(a, diffmodel.RowsFor(diff.Deletes, a.Entity), "removed")
		case dsl.DiffChanged:
			ok, msg = evalChanged(spec, a, diffmodel.UpdatesFor(diff.Updates, a.Entity), ignoreSet)
		case dsl.DiffUnchanged:
			ok, msg = evalUnchanged(a, diff)
		default:
			ok, msg = false, fmt.Sprintf("assertion %d: unknown diff_type %q", a.Index, a.DiffType)
		}
		if !ok {
			failures = append(failures, msg)
		}
	}

	total := len(spec.Assertions)
	passedCount := total - len(failures)
	percent := 100.0
	if total > 0 {
		percent = float64(passedCount) / float64(total) * 100
	}
	return Result{
		Passed:   len(failures) == 0,
		Failures: failures,
		Score:    Score{Passed: passedCount, Total: total, Percent: percent},
	}
}

// countOK applies the shared expected_count rule used by added, removed,
// and changed assertions: omitted means "at least one".
func countOK(n int, c *dsl.Count) bool {
	if c == nil {
		return n >= 1
	}
	return c.Satisfied(n)
}

func rowMatches(where map[string]dsl.Predicate, row dsl.Row) bool {
	if len(where) == 0 {
		return true
	}
	val := row.ToValue()
	for field, pred := range where {
		if !pred.Match(val.Field(field)) {
			return false
		}
	}
	return true
}

func filterRows(rows []dsl.Row, where map[string]dsl.Predicate) []dsl.Row {
	if len(where) == 0 {
		return rows
	}
	var out []dsl.Row
	for _, r := range rows {
		if rowMatches(where, r) {
			out = append(out, r)
		}
	}
	return out
}

func evalAddedOrRemoved(a dsl.Assertion, rows []dsl.Row, verb string) (bool, string) {
	matches := filterRows(rows, a.Where)
	if countOK(len(matches), a.ExpectedCount) {
		return true, ""
	}
	return false, fmt.Sprintf("assertion %d (%s %s): expected count %s, got %d",
		a.Index, verb, a.Entity, a.ExpectedCount.String(), len(matches))
}

func evalUnchanged(a dsl.Assertion, diff diffmodel.Diff) (bool, string) {
	tally := len(filterRows(diffmodel.RowsFor(diff.Inserts, a.Entity), a.Where))
	tally += len(filterRows(diffmodel.RowsFor(diff.Deletes, a.Entity), a.Where))
	for _, u := range diffmodel.UpdatesFor(diff.Updates, a.Entity) {
		if len(a.Where) == 0 || rowMatches(a.Where, u.Before) || rowMatches(a.Where, u.After) {
			tally++
		}
	}

	var ok bool
	expected := "0"
	if a.ExpectedCount == nil {
		ok = tally == 0
	} else {
		ok = a.ExpectedCount.Satisfied(tally)
		expected = a.ExpectedCount.String()
	}
	if ok {
		return true, ""
	}
	return false, fmt.Sprintf("assertion %d (unchanged %s): expected count %s, got %d", a.Index, a.Entity, expected, tally)
}

func evalChanged(spec *dsl.Spec, a dsl.Assertion, candidates []diffmodel.Update, ignoreSet map[string]bool) (bool, string) {
	matchCount := 0
	var reasons []string

	for _, u := range candidates {
		if len(a.Where) > 0 && !rowMatches(a.Where, u.After) && !rowMatches(a.Where, u.Before) {
			continue
		}

		changed := changedFieldNames(u.Before, u.After, ignoreSet)
		var candidateReasons []string

		if spec.Strict {
			for _, c := range changed {
				if _, declared := a.ExpectedChanges[c]; !declared {
					candidateReasons = append(candidateReasons,
						fmt.Sprintf("field %q changed but is not declared in expected_changes (strict mode)", c))
				}
			}
		}

		fields := make([]string, 0, len(a.ExpectedChanges))
		for field := range a.ExpectedChanges {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			ce := a.ExpectedChanges[field]
			if !containsStr(changed, field) {
				candidateReasons = append(candidateReasons, fmt.Sprintf("field %q was expected to change but did not", field))
				continue
			}
			if ce.From != nil && !ce.From.Match(u.Before.Field(field)) {
				candidateReasons = append(candidateReasons, fmt.Sprintf("field %q before-value did not satisfy the expected from-predicate", field))
			}
			if ce.To != nil && !ce.To.Match(u.After.Field(field)) {
				candidateReasons = append(candidateReasons, fmt.Sprintf("field %q after-value did not satisfy the expected to-predicate", field))
			}
		}

		if len(candidateReasons) == 0 {
			matchCount++
		} else {
			reasons = append(reasons, candidateReasons...)
		}
	}

	if countOK(matchCount, a.ExpectedCount) {
		return true, ""
	}
	if len(reasons) > 0 {
		return false, fmt.Sprintf("assertion %d (changed %s): %s", a.Index, a.Entity, strings.Join(reasons, "; "))
	}
	return false, fmt.Sprintf("assertion %d (changed %s): expected count %s, got %d",
		a.Index, a.Entity, a.ExpectedCount.String(), matchCount)
}

// changedFieldNames is the non-excluded column set differing between
// before and after under NULL-distinct comparison, sorted for a
// deterministic failure message.
func changedFieldNames(before, after dsl.Row, ignore map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	consider := func(col string) {
		if seen[col] || col == diffmodel.TableTag || ignore[col] {
			return
		}
		seen[col] = true
		if !before[col].Equal(after[col]) {
			out = append(out, col)
		}
	}
	for col := range before {
		consider(col)
	}
	for col := range after {
		consider(col)
	}
	sort.Strings(out)
	return out
}

func containsStr(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
