// Package differ implements the Differ: snapshot-and-compare primitives
// that turn two moments of one tenant schema into a structured diff.
// Scanning untyped rows into dsl.Value mirrors the decode step
// internal/dsl uses for assertion inputs, and the strict NULL-distinct
// update semantics follow the resolved open question recorded in
// DESIGN.md (a row with zero differing non-excluded columns is never
// reported as an update, even though both snapshots contain it).
package differ

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/db"
	"evalplatform/internal/diffmodel"
	"evalplatform/internal/dsl"
	"evalplatform/internal/meta"
)

var snapshotNamePattern = regexp.MustCompile(`_snapshot_.+$`)

func quote(ident string) string { return `"` + ident + `"` }

// Differ is bound to one tenant schema and the set of base tables it
// discovered at construction time.
type Differ struct {
	schema string
	tables []string
}

// New enumerates schema's base tables, excluding anything already named
// like a snapshot table, so repeated snapshotting never snapshots a
// snapshot.
func New(ctx context.Context, q db.Querier, schemaName string) (*Differ, error) {
	rows, err := q.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schemaName)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("list tables in %s: %v", schemaName, err))
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan table name: %v", err))
		}
		if snapshotNamePattern.MatchString(t) {
			continue
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("iterate tables in %s: %v", schemaName, err))
	}
	return &Differ{schema: schemaName, tables: tables}, nil
}

func (d *Differ) snapshotTable(table, suffix string) string {
	return fmt.Sprintf("%s_snapshot_%s", table, suffix)
}

// CreateSnapshot copies every base table's current rows into
// <table>_snapshot_<suffix>. CREATE TABLE IF NOT EXISTS makes repeated
// calls with the same suffix idempotent: an existing snapshot is left
// untouched rather than refreshed.
func (d *Differ) CreateSnapshot(ctx context.Context, q db.Querier, suffix string) error {
	for _, table := range d.tables {
		snap := d.snapshotTable(table, suffix)
		sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s AS SELECT * FROM %s.%s`,
			quote(d.schema), quote(snap), quote(d.schema), quote(table))
		if _, err := q.Exec(ctx, sql); err != nil {
			return apierrors.Internal(fmt.Sprintf("snapshot %s as %s: %v", table, snap, err))
		}
	}
	return nil
}

// ArchiveSnapshots drops every <table>_snapshot_<suffix> table.
func (d *Differ) ArchiveSnapshots(ctx context.Context, q db.Querier, suffix string) error {
	for _, table := range d.tables {
		snap := d.snapshotTable(table, suffix)
		sql := fmt.Sprintf(`DROP TABLE IF EXISTS %s.%s`, quote(d.schema), quote(snap))
		if _, err := q.Exec(ctx, sql); err != nil {
			return apierrors.Internal(fmt.Sprintf("archive snapshot %s: %v", snap, err))
		}
	}
	return nil
}

func scanRows(rows pgx.Rows) ([]dsl.Row, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []dsl.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan row values: %v", err))
		}
		row := make(dsl.Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = dsl.FromAny(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetInserts returns every row present in the after snapshot but absent
// (by id) from the before snapshot, tagged with __table__.
func (d *Differ) GetInserts(ctx context.Context, q db.Querier, beforeSuffix, afterSuffix string) ([]dsl.Row, error) {
	return d.sideOnly(ctx, q, beforeSuffix, afterSuffix, true)
}

// GetDeletes is symmetric to GetInserts: rows in before absent from after.
func (d *Differ) GetDeletes(ctx context.Context, q db.Querier, beforeSuffix, afterSuffix string) ([]dsl.Row, error) {
	return d.sideOnly(ctx, q, beforeSuffix, afterSuffix, false)
}

// sideOnly implements both getInserts (forward=true, after minus before)
// and getDeletes (forward=false, before minus after) with one LEFT JOIN
// shape.
func (d *Differ) sideOnly(ctx context.Context, q db.Querier, beforeSuffix, afterSuffix string, forward bool) ([]dsl.Row, error) {
	var out []dsl.Row
	for _, table := range d.tables {
		beforeT, afterT := d.snapshotTable(table, beforeSuffix), d.snapshotTable(table, afterSuffix)
		from, missing := afterT, beforeT
		if !forward {
			from, missing = beforeT, afterT
		}
		sql := fmt.Sprintf(`
			SELECT a.* FROM %s.%s a
			LEFT JOIN %s.%s b ON a.id = b.id
			WHERE b.id IS NULL
		`, quote(d.schema), quote(from), quote(d.schema), quote(missing))
		rows, err := q.Query(ctx, sql)
		if err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("diff %s for table %s: %v", sideLabel(forward), table, err))
		}
		tableRows, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		for _, r := range tableRows {
			r[diffmodel.TableTag] = dsl.String(table)
			out = append(out, r)
		}
	}
	return out, nil
}

func sideLabel(forward bool) string {
	if forward {
		return "inserts"
	}
	return "deletes"
}

func (d *Differ) columns(ctx context.Context, q db.Querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, d.schema, table)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("list columns of %s: %v", table, err))
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan column name: %v", err))
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// GetUpdates returns, per table, every row present in both snapshots
// with at least one differing non-excluded column under IS DISTINCT
// FROM (NULL-distinct). excludeCols are removed from the change
// predicate but still appear in the before/after projection.
func (d *Differ) GetUpdates(ctx context.Context, q db.Querier, beforeSuffix, afterSuffix string, excludeCols []string) ([]diffmodel.Update, error) {
	excluded := make(map[string]bool, len(excludeCols))
	for _, c := range excludeCols {
		excluded[c] = true
	}

	var out []diffmodel.Update
	for _, table := range d.tables {
		beforeT, afterT := d.snapshotTable(table, beforeSuffix), d.snapshotTable(table, afterSuffix)

		cols, err := d.columns(ctx, q, beforeT)
		if err != nil {
			return nil, err
		}

		var predicateCols []string
		for _, c := range cols {
			if c != "id" && !excluded[c] {
				predicateCols = append(predicateCols, c)
			}
		}
		if len(predicateCols) == 0 {
			// Every comparable column is excluded: no row can ever
			// register as changed.
			continue
		}
		sort.Strings(predicateCols)

		clauses := make([]string, 0, len(predicateCols))
		for _, c := range predicateCols {
			clauses = append(clauses, fmt.Sprintf("a.%s IS DISTINCT FROM b.%s", quote(c), quote(c)))
		}
		predicate := clauses[0]
		for _, c := range clauses[1:] {
			predicate += " OR " + c
		}

		sql := fmt.Sprintf(`
			SELECT a.id FROM %s.%s a
			JOIN %s.%s b ON a.id = b.id
			WHERE %s
		`, quote(d.schema), quote(afterT), quote(d.schema), quote(beforeT), predicate)

		idRows, err := q.Query(ctx, sql)
		if err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("diff updates for table %s: %v", table, err))
		}
		var ids []any
		for idRows.Next() {
			var id any
			if err := idRows.Scan(&id); err != nil {
				idRows.Close()
				return nil, apierrors.Internal(fmt.Sprintf("scan changed id: %v", err))
			}
			ids = append(ids, id)
		}
		idRows.Close()
		if err := idRows.Err(); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("iterate changed ids for table %s: %v", table, err))
		}
		if len(ids) == 0 {
			continue
		}

		beforeRows, err := d.rowsByID(ctx, q, beforeT, ids)
		if err != nil {
			return nil, err
		}
		afterRows, err := d.rowsByID(ctx, q, afterT, ids)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			key := fmt.Sprintf("%v", dsl.FromAny(id).Raw())
			before, ok1 := beforeRows[key]
			after, ok2 := afterRows[key]
			if !ok1 || !ok2 {
				continue
			}
			before[diffmodel.TableTag] = dsl.String(table)
			after[diffmodel.TableTag] = dsl.String(table)
			out = append(out, diffmodel.Update{Table: table, Before: before, After: after})
		}
	}
	return out, nil
}

func (d *Differ) rowsByID(ctx context.Context, q db.Querier, table string, ids []any) (map[string]dsl.Row, error) {
	sql := fmt.Sprintf(`SELECT * FROM %s.%s WHERE id = ANY($1)`, quote(d.schema), quote(table))
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("fetch rows by id from %s: %v", table, err))
	}
	tableRows, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dsl.Row, len(tableRows))
	for _, r := range tableRows {
		idVal, ok := r["id"]
		if !ok {
			continue
		}
		out[fmt.Sprintf("%v", idVal.Raw())] = r
	}
	return out, nil
}

// GetDiff assembles the full inserts/updates/deletes payload between two
// snapshots.
func (d *Differ) GetDiff(ctx context.Context, q db.Querier, beforeSuffix, afterSuffix string, excludeCols []string) (diffmodel.Diff, error) {
	inserts, err := d.GetInserts(ctx, q, beforeSuffix, afterSuffix)
	if err != nil {
		return diffmodel.Diff{}, err
	}
	deletes, err := d.GetDeletes(ctx, q, beforeSuffix, afterSuffix)
	if err != nil {
		return diffmodel.Diff{}, err
	}
	updates, err := d.GetUpdates(ctx, q, beforeSuffix, afterSuffix, excludeCols)
	if err != nil {
		return diffmodel.Diff{}, err
	}
	return diffmodel.Diff{Inserts: inserts, Updates: updates, Deletes: deletes}, nil
}

// StoreDiff persists diff's payload in the meta store, keyed by the
// environment it was computed for.
func StoreDiff(ctx context.Context, q db.Querier, environmentID uuid.UUID, diff diffmodel.Diff, beforeSuffix, afterSuffix string) error {
	record := meta.Diff{
		ID:            uuid.New(),
		EnvironmentID: environmentID,
		BeforeSuffix:  beforeSuffix,
		AfterSuffix:   afterSuffix,
		Payload:       diff.Payload(),
	}
	return meta.InsertDiff(ctx, q, record)
}
