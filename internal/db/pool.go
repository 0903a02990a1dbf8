package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"evalplatform/internal/logging"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so meta-store and
// schema-handler code can be written once and run either outside a
// transaction or pinned inside one — the same Executor-interface pattern
// this codebase already uses for its DDL-cloning helpers.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	ErrNilConfig        = fmt.Errorf("config cannot be nil")
	ErrPoolConfigParse  = fmt.Errorf("unable to parse pool config")
	ErrConnectionFailed = fmt.Errorf("failed to create connection pool")
)

// Pool wraps pgxpool.Pool with this codebase's startup-retry convention.
// A single Pool serves every tenant schema: isolation comes from
// per-transaction search_path binding (see internal/session), not from
// separate pools or connections.
type Pool struct {
	*pgxpool.Pool
	config *Config
}

// NewPool connects with retry, pinging after each attempt, honoring ctx
// cancellation between attempts rather than sleeping blindly.
func NewPool(ctx context.Context, config *Config) (*Pool, error) {
	if config == nil {
		return nil, ErrNilConfig
	}

	pgxConfig, err := pgxpool.ParseConfig(config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolConfigParse, err)
	}
	pgxConfig.MaxConns = config.MaxConns
	pgxConfig.MinConns = config.MinConns
	pgxConfig.MaxConnLifetime = config.MaxConnLifetime
	pgxConfig.MaxConnIdleTime = config.MaxConnIdleTime
	pgxConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout

	logger := logging.Ctx(ctx)

	var pool *pgxpool.Pool
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, pgxConfig)
		if err == nil {
			if err = pool.Ping(ctx); err != nil {
				pool.Close()
			} else {
				break
			}
		}
		if attempt == config.MaxRetries {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", config.RetryInterval).Msg("database connection attempt failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(config.RetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, config.MaxRetries+1, err)
	}

	return &Pool{Pool: pool, config: config}, nil
}

func (p *Pool) Close() {
	p.Pool.Close()
}

func (p *Pool) Stats() *pgxpool.Stat {
	return p.Pool.Stat()
}
