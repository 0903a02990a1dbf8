// Package session implements the Session Router: scoped acquisition
// primitives that bind a logical operation to a physical connection whose
// search path is pinned to either the meta catalog or one tenant schema.
//
// Grounded on this codebase's pkg/tenant/pool.go (the same
// begin-set-search-path-commit-or-rollback shape) and pkg/tenant/context.go
// (the same context-carried-identifier convention, generalized from
// ULID tenant ids to UUID environment ids). No ambient/thread-local state
// is used: every caller receives its transaction as an explicit argument.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/db"
	"evalplatform/internal/logging"
)

// EnvironmentResolver resolves a ready environment to its tenant schema
// and records that it was just used. Implemented by the meta package;
// declared here so session has no dependency on meta's storage shape,
// only on the one capability it needs.
type EnvironmentResolver interface {
	ResolveAndTouch(ctx context.Context, q db.Querier, envID uuid.UUID) (schema string, err error)
}

// Router is the Session Router. One Router is constructed at startup and
// shared by every request; it carries no per-request state.
type Router struct {
	pool     *db.Pool
	resolver EnvironmentResolver
}

func NewRouter(pool *db.Pool, resolver EnvironmentResolver) *Router {
	return &Router{pool: pool, resolver: resolver}
}

// WithMeta runs fn in a transaction scoped to the catalog tables (the
// default public search path). Commits on normal return, rolls back on
// any error, always releases the connection.
func (r *Router) WithMeta(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("begin meta session: %v", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return runScoped(ctx, tx, fn)
}

// WithTenant resolves envID to its tenant schema, pins the transaction's
// search path to that schema (falling back to public for catalog
// lookups), and runs fn. Fails with a state_error if the environment is
// not ready.
func (r *Router) WithTenant(ctx context.Context, envID uuid.UUID, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("begin tenant session: %v", err))
	}
	committedOrRolledBack := false
	defer func() {
		if !committedOrRolledBack {
			_ = tx.Rollback(ctx)
		}
	}()

	schema, err := r.resolver.ResolveAndTouch(ctx, tx, envID)
	if err != nil {
		committedOrRolledBack = true
		_ = tx.Rollback(ctx)
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET search_path TO %s, public`, quoteIdent(schema))); err != nil {
		committedOrRolledBack = true
		_ = tx.Rollback(ctx)
		return apierrors.Internal(fmt.Sprintf("set search_path to %s: %v", schema, err))
	}

	logging.Ctx(ctx).Debug().Str("environment_id", envID.String()).Str("schema", schema).Msg("tenant session bound")

	if err := fn(ctx, tx); err != nil {
		committedOrRolledBack = true
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		committedOrRolledBack = true
		return apierrors.Internal(fmt.Sprintf("commit tenant session: %v", err))
	}
	committedOrRolledBack = true
	return nil
}

func runScoped(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apierrors.Internal(fmt.Sprintf("commit meta session: %v", err))
	}
	return nil
}

// quoteIdent double-quotes a schema name for safe interpolation into SET
// search_path, which does not accept query parameters. Schema names are
// always generated by this platform (state_<32-hex>), never user
// supplied, but embedded double quotes are still escaped defensively.
func quoteIdent(ident string) string {
	escaped := ""
	for _, r := range ident {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}
