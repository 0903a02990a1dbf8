package meta

import (
	"context"
	"fmt"

	"evalplatform/internal/db"
)

// statements is applied in order by RunMigrations. Grounded on the
// startup sequence this codebase's sibling services use (InitDB then
// RunMigrations, each statement applied with IF NOT EXISTS so the
// sequence is idempotent across restarts) rather than a versioned
// migration tool, which nothing in this stack pulls in.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS organization_memberships (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		organization_id UUID NOT NULL REFERENCES organizations(id),
		role TEXT NOT NULL DEFAULT 'member',
		UNIQUE (user_id, organization_id)
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id),
		key_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		revoked_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS templates (
		id UUID PRIMARY KEY,
		service TEXT NOT NULL,
		owner_scope TEXT NOT NULL,
		owner_org_id UUID REFERENCES organizations(id),
		owner_user_id UUID REFERENCES users(id),
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		kind TEXT NOT NULL,
		location TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (service, owner_scope, owner_org_id, owner_user_id, name, version)
	)`,

	`CREATE TABLE IF NOT EXISTS runtime_environments (
		id UUID PRIMARY KEY,
		template_id UUID REFERENCES templates(id),
		schema TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		created_by UUID NOT NULL,
		impersonate_user_id UUID,
		impersonate_email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS diffs (
		id UUID PRIMARY KEY,
		environment_id UUID NOT NULL REFERENCES runtime_environments(id),
		before_suffix TEXT NOT NULL,
		after_suffix TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS tests (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		type TEXT NOT NULL,
		expected_output JSONB,
		template_ref UUID NOT NULL REFERENCES templates(id),
		impersonate_user_id UUID,
		owner UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS test_suites (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner UUID NOT NULL,
		visibility TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS test_memberships (
		id UUID PRIMARY KEY,
		test_id UUID NOT NULL REFERENCES tests(id),
		test_suite_id UUID NOT NULL REFERENCES test_suites(id),
		UNIQUE (test_id, test_suite_id)
	)`,

	`CREATE TABLE IF NOT EXISTS test_runs (
		id UUID PRIMARY KEY,
		test_id UUID NOT NULL REFERENCES tests(id),
		test_suite_id UUID REFERENCES test_suites(id),
		environment_id UUID NOT NULL REFERENCES runtime_environments(id),
		status TEXT NOT NULL,
		before_snapshot_suffix TEXT,
		after_snapshot_suffix TEXT,
		result JSONB,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// RunMigrations applies every statement in order. Safe to call on every
// startup; every statement is its own idempotent DDL operation.
func RunMigrations(ctx context.Context, q db.Querier) error {
	for i, stmt := range statements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
