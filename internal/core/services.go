// Package core wires every engine and handler dependency into one
// explicit struct, constructed once at startup and threaded through the
// HTTP boundary. Grounded on services/deal-service/cmd/server/main.go's
// setupDatabase -> setupHandlers -> setupMiddleware -> setupRoutes
// sequence, generalized from that file's ad hoc local variables into a
// single aggregator type so handler constructors take one argument
// instead of a growing parameter list.
package core

import (
	"context"

	"github.com/google/uuid"

	"evalplatform/internal/config"
	"evalplatform/internal/db"
	"evalplatform/internal/meta"
	"evalplatform/internal/session"
)

// Services aggregates every dependency the HTTP boundary needs. The
// Environment Handler, Isolation Engine, Differ, DSL compiler, and
// Assertion Evaluator are stateless function sets (internal/schema,
// internal/isolation, internal/differ, internal/dsl, internal/assertion)
// rather than fields here: they take a db.Querier as an explicit
// argument, supplied per-call by Router, so there is nothing to store
// beyond the Router and the Config that built it.
type Services struct {
	Config *config.Config
	Pool   *db.Pool
	Router *session.Router
}

// metaResolver adapts meta's free functions to session.EnvironmentResolver
// without meta importing session or vice versa.
type metaResolver struct{}

func (metaResolver) ResolveAndTouch(ctx context.Context, q db.Querier, envID uuid.UUID) (string, error) {
	return meta.ResolveAndTouch(ctx, q, envID)
}

// New builds the Services aggregator from a connected pool and loaded
// config. It does not run migrations; call meta.RunMigrations against
// pool before New if the caller wants them applied on this boot.
func New(cfg *config.Config, pool *db.Pool) *Services {
	router := session.NewRouter(pool, metaResolver{})
	return &Services{Config: cfg, Pool: pool, Router: router}
}
