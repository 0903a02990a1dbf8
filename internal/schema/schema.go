// Package schema implements the Environment Handler: schema-level
// create/clone/drop primitives that turn a template schema into a fresh,
// independent tenant schema. Grounded on
// services/deal-service/tenant/schema.go's copy-by-LIKE approach,
// generalized with foreign-key topological ordering and identity-sequence
// rebasing for the clone-data step, neither of which the teacher needed
// because its seed tables carry no identity columns.
package schema

import (
	"context"
	"fmt"
	"regexp"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/db"
)

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateSchemaName(name string) error {
	if name == "" {
		return apierrors.BadRequest("schema name cannot be blank")
	}
	if !schemaNamePattern.MatchString(name) {
		return apierrors.BadRequest(fmt.Sprintf("invalid schema name: %s", name))
	}
	return nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// Exists reports whether schema already exists.
func Exists(ctx context.Context, q db.Querier, name string) (bool, error) {
	if err := validateSchemaName(name); err != nil {
		return false, err
	}
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, apierrors.Internal(fmt.Sprintf("check schema existence: %v", err))
	}
	return exists, nil
}

// Create creates a new schema, failing if one already exists under this
// name. Unlike the teacher's CREATE SCHEMA IF NOT EXISTS, environment
// creation is not idempotent: a collision means id generation produced a
// schema name already in use, which should never happen and should be
// surfaced rather than silently reused.
func Create(ctx context.Context, q db.Querier, name string) error {
	if err := validateSchemaName(name); err != nil {
		return err
	}
	exists, err := Exists(ctx, q, name)
	if err != nil {
		return err
	}
	if exists {
		return apierrors.Conflict(fmt.Sprintf("schema %s already exists", name))
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA %s`, quote(name))); err != nil {
		return apierrors.Internal(fmt.Sprintf("create schema %s: %v", name, err))
	}
	return nil
}

// Drop cascades and swallows a not-exists failure.
func Drop(ctx context.Context, q db.Querier, name string) error {
	if err := validateSchemaName(name); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, quote(name))); err != nil {
		return apierrors.Internal(fmt.Sprintf("drop schema %s: %v", name, err))
	}
	return nil
}

// SetSearchPath pins q's session/transaction to schema with public as the
// fallback for catalog tables.
func SetSearchPath(ctx context.Context, q db.Querier, name string) error {
	if err := validateSchemaName(name); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`SET search_path TO %s, public`, quote(name))); err != nil {
		return apierrors.Internal(fmt.Sprintf("set search_path to %s: %v", name, err))
	}
	return nil
}

func tableNames(ctx context.Context, q db.Querier, schemaName string) ([]string, error) {
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
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// CloneStructure replicates every base table in templateSchema into
// targetSchema via LIKE ... INCLUDING DEFAULTS INCLUDING CONSTRAINTS
// INCLUDING INDEXES, preserving column types, defaults, NOT NULL and CHECK
// constraints, and indexes (primary keys and unique constraints among
// them). Foreign-key constraints are not copied: LIKE never carries them,
// so the cloned tables have none.
func CloneStructure(ctx context.Context, q db.Querier, templateSchema, targetSchema string) error {
	if err := validateSchemaName(templateSchema); err != nil {
		return fmt.Errorf("template schema: %w", err)
	}
	if err := validateSchemaName(targetSchema); err != nil {
		return fmt.Errorf("target schema: %w", err)
	}

	tables, err := tableNames(ctx, q, templateSchema)
	if err != nil {
		return err
	}

	for _, table := range tables {
		sql := fmt.Sprintf(
			`CREATE TABLE %s.%s (LIKE %s.%s INCLUDING DEFAULTS INCLUDING CONSTRAINTS INCLUDING INDEXES)`,
			quote(targetSchema), quote(table), quote(templateSchema), quote(table),
		)
		if _, err := q.Exec(ctx, sql); err != nil {
			return apierrors.Internal(fmt.Sprintf("clone structure of %s.%s: %v", templateSchema, table, err))
		}
	}
	return nil
}

type fkEdge struct {
	table      string
	references string
}

// topologicalOrder sorts tables so that a table referenced by a foreign
// key comes before the table holding that key. Cycles are broken by
// falling back to the tables' original (stable, alphabetical) order for
// whichever members remain unresolved.
func topologicalOrder(tables []string, edges []fkEdge) []string {
	deps := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		deps[t] = map[string]bool{}
	}
	for _, e := range edges {
		if e.table == e.references {
			continue // self-reference: no ordering constraint needed
		}
		if _, ok := deps[e.table]; ok {
			if _, ok2 := deps[e.references]; ok2 {
				deps[e.table][e.references] = true
			}
		}
	}

	var ordered []string
	placed := map[string]bool{}
	for len(ordered) < len(tables) {
		progressed := false
		for _, t := range tables {
			if placed[t] {
				continue
			}
			ready := true
			for dep := range deps[t] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, t)
				placed[t] = true
				progressed = true
			}
		}
		if !progressed {
			// Cycle among the remaining tables: append them in their
			// original stable order and stop trying to resolve further.
			for _, t := range tables {
				if !placed[t] {
					ordered = append(ordered, t)
					placed[t] = true
				}
			}
		}
	}
	return ordered
}

func foreignKeyEdges(ctx context.Context, q db.Querier, schemaName string) ([]fkEdge, error) {
	rows, err := q.Query(ctx, `
		SELECT tc.table_name, ccu.table_name AS references_table
		FROM information_schema.table_constraints tc
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
	`, schemaName)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("list foreign keys in %s: %v", schemaName, err))
	}
	defer rows.Close()

	var edges []fkEdge
	for rows.Next() {
		var e fkEdge
		if err := rows.Scan(&e.table, &e.references); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan foreign key edge: %v", err))
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

type identityColumn struct {
	table  string
	column string
}

func identityColumns(ctx context.Context, q db.Querier, schemaName string) ([]identityColumn, error) {
	rows, err := q.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND column_default LIKE 'nextval(%'
	`, schemaName)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("list identity columns in %s: %v", schemaName, err))
	}
	defer rows.Close()

	var cols []identityColumn
	for rows.Next() {
		var c identityColumn
		if err := rows.Scan(&c.table, &c.column); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan identity column: %v", err))
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CloneData bulk-copies every row from templateSchema into targetSchema
// in foreign-key topological order, then rebases each identity column's
// sequence so inserts made against the clone do not collide with the
// seeded keys. Callers are expected to run this inside the same
// transaction as CloneStructure so mid-copy failure leaves nothing
// behind.
func CloneData(ctx context.Context, q db.Querier, templateSchema, targetSchema string) error {
	if err := validateSchemaName(templateSchema); err != nil {
		return fmt.Errorf("template schema: %w", err)
	}
	if err := validateSchemaName(targetSchema); err != nil {
		return fmt.Errorf("target schema: %w", err)
	}

	tables, err := tableNames(ctx, q, templateSchema)
	if err != nil {
		return err
	}
	edges, err := foreignKeyEdges(ctx, q, templateSchema)
	if err != nil {
		return err
	}
	ordered := topologicalOrder(tables, edges)

	for _, table := range ordered {
		sql := fmt.Sprintf(`INSERT INTO %s.%s SELECT * FROM %s.%s`,
			quote(targetSchema), quote(table), quote(templateSchema), quote(table))
		if _, err := q.Exec(ctx, sql); err != nil {
			return apierrors.Internal(fmt.Sprintf("clone data for %s.%s: %v", targetSchema, table, err))
		}
	}

	cols, err := identityColumns(ctx, q, targetSchema)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := rebaseSequence(ctx, q, targetSchema, c.table, c.column); err != nil {
			return err
		}
	}
	return nil
}

// rebaseSequence sets the sequence backing schema.table.column to
// max(column)+1, or leaves it untouched (starting at its default) when
// the table came back empty.
func rebaseSequence(ctx context.Context, q db.Querier, schemaName, table, column string) error {
	var seqName *string
	err := q.QueryRow(ctx, `SELECT pg_get_serial_sequence($1, $2)`,
		fmt.Sprintf("%s.%s", schemaName, table), column).Scan(&seqName)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("resolve sequence for %s.%s.%s: %v", schemaName, table, column, err))
	}
	if seqName == nil {
		return nil
	}

	var maxVal *int64
	selectMax := fmt.Sprintf(`SELECT MAX(%s) FROM %s.%s`, quote(column), quote(schemaName), quote(table))
	if err := q.QueryRow(ctx, selectMax).Scan(&maxVal); err != nil {
		return apierrors.Internal(fmt.Sprintf("compute max(%s) for %s.%s: %v", column, schemaName, table, err))
	}
	if maxVal == nil {
		return nil
	}

	if _, err := q.Exec(ctx, `SELECT setval($1, $2, false)`, *seqName, *maxVal+1); err != nil {
		return apierrors.Internal(fmt.Sprintf("rebase sequence %s: %v", *seqName, err))
	}
	return nil
}
