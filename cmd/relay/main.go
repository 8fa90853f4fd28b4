package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	logStartup(ctx, logger, &cfg)

	deps, err := connectDependencies(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, deps.db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          deps.db,
		RedisClient: deps.redisClient,
		Logger:      logger,
	})

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          deps.db,
		RedisClient: deps.redisClient,
		Logger:      logger,
	})
}

// logStartup records the effective service selection and the delivery
// guarantees in force, so operators can read retry behavior off the first
// log line instead of the environment.
func logStartup(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting relay",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"max_receives", cfg.Channel.MaxReceives,
		"retry_delay", cfg.Channel.RetryDelay,
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled(),
	)
}

// dependencies holds the shared infrastructure handed to every service.
type dependencies struct {
	db          *sql.DB
	redisClient redis.UniversalClient
}

func (d *dependencies) close(ctx context.Context, logger *slog.Logger) {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "error", err)
		}
	}
}

// connectDependencies connects Postgres first, then the Redis claim store.
// A Redis failure closes the database so a partial startup never leaks a
// connection pool.
func connectDependencies(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*dependencies, error) {
	db, err := bootstrap.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	redisClient, err := bootstrap.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		err = fmt.Errorf("connect redis: %w", err)
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, err
	}

	return &dependencies{db: db, redisClient: redisClient}, nil
}
