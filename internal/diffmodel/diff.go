// Package diffmodel defines the structured diff payload produced by the
// Differ and consumed by the Assertion Evaluator and the meta store. It
// is a leaf package so both sides can depend on it without a cycle.
package diffmodel

import "evalplatform/internal/dsl"

const TableTag = "__table__"

// Update is one row present in both snapshots with at least one
// non-excluded column differing.
type Update struct {
	Table  string
	Before dsl.Row
	After  dsl.Row
}

// Diff is the full result of comparing two snapshots of a tenant schema.
type Diff struct {
	Inserts []dsl.Row
	Updates []Update
	Deletes []dsl.Row
}

// Payload renders the diff into the plain-JSON shape persisted by the
// meta store and described in the external interface contract.
func (d Diff) Payload() map[string]any {
	inserts := make([]any, len(d.Inserts))
	for i, row := range d.Inserts {
		inserts[i] = row.ToValue().Raw()
	}
	deletes := make([]any, len(d.Deletes))
	for i, row := range d.Deletes {
		deletes[i] = row.ToValue().Raw()
	}
	updates := make([]any, len(d.Updates))
	for i, u := range d.Updates {
		updates[i] = map[string]any{
			TableTag: u.Table,
			"before": u.Before.ToValue().Raw(),
			"after":  u.After.ToValue().Raw(),
		}
	}
	return map[string]any{
		"inserts": inserts,
		"updates": updates,
		"deletes": deletes,
	}
}

// RowsFor filters a row slice down to those tagged with the given table.
func RowsFor(rows []dsl.Row, table string) []dsl.Row {
	var out []dsl.Row
	for _, r := range rows {
		if t, _ := r[TableTag].AsString(); t == table {
			out = append(out, r)
		}
	}
	return out
}

// UpdatesFor filters updates down to those tagged with the given table.
func UpdatesFor(updates []Update, table string) []Update {
	var out []Update
	for _, u := range updates {
		if u.Table == table {
			out = append(out, u)
		}
	}
	return out
}
