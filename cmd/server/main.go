package main

import (
	"context"
	"time"

	"evalplatform/internal/config"
	"evalplatform/internal/core"
	"evalplatform/internal/db"
	"evalplatform/internal/httpapi"
	"evalplatform/internal/logging"
	"evalplatform/internal/meta"
)

// setupDatabase connects with retry and applies the meta-store
// migrations, mirroring services/deal-service/cmd/server/main.go's
// setupDatabase step but folding migration application into the same
// boot phase since this platform owns its own schema rather than
// inheriting one from an external service.
func setupDatabase(ctx context.Context, cfg *config.Config) (*db.Pool, error) {
	dbConfig, err := db.ConfigFromURL(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBConnectTimeout, cfg.IsDevelopment())
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(connectCtx, dbConfig)
	if err != nil {
		return nil, err
	}

	if err := meta.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	ctx = logging.WithContext(ctx, logger)

	logger.Info().Str("environment", cfg.Environment).Msg("starting evaluation platform")

	pool, err := setupDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database setup failed")
	}
	defer pool.Close()

	svc := core.New(cfg, pool)
	router := httpapi.NewRouter(svc)

	logger.Info().Str("port", cfg.Port).Msg("listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
