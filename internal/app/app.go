// Package app assembles the reconciliation store from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/project-reconciler/internal/config"
	"github.com/project-reconciler/internal/lock"
	"github.com/project-reconciler/internal/logging"
	"github.com/project-reconciler/internal/priority"
	"github.com/project-reconciler/internal/service"
	"github.com/project-reconciler/internal/storage"
)

// App holds the store and the connections it depends on.
type App struct {
	Config   *config.Config
	Service  *service.ReconciliationService
	Postgres *storage.PostgresDB
	// Redis is nil unless caching or the shared lock is enabled
	Redis *storage.RedisCache
	// Events is nil unless the ClickHouse event log is enabled
	Events     *storage.UpsertEventRepository
	ClickHouse *storage.EventLogDB
}

// New connects to the configured backends and builds the service.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.FromContext(ctx)
	a := &App{Config: cfg}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	a.Postgres = postgres

	opts := []service.Option{
		service.WithMaxConflictRetries(cfg.Reconcile.MaxConflictRetries),
		service.WithLocker(lock.NewLocalLocker(cfg.Reconcile.LockWait)),
	}

	if cfg.Cache.Enabled || cfg.Reconcile.UseRedisLock {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.Redis = redis

		if cfg.Cache.Enabled {
			opts = append(opts, service.WithCache(storage.NewProjectCache(redis, cfg.Cache.TTL)))
			logger.WithField("ttl", cfg.Cache.TTL.String()).Info("project cache enabled")
		}
		if cfg.Reconcile.UseRedisLock {
			opts = append(opts, service.WithLocker(lock.NewRedisLocker(lock.RedisLockerConfig{
				Redis: redis.Client(),
				TTL:   cfg.Reconcile.LockTTL,
				Wait:  cfg.Reconcile.LockWait,
			})))
			logger.Info("using Redis identity lock")
		}
	}

	if cfg.Events.Enabled {
		clickhouse, err := storage.OpenEventLog(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.ClickHouse = clickhouse
		a.Events = storage.NewUpsertEventRepository(clickhouse)
		opts = append(opts, service.WithEventRecorder(a.Events))
		logger.Info("upsert event log enabled")
	}

	resolver := priority.NewResolver(cfg.Reconcile.SourcePriority)
	a.Service = service.NewReconciliationService(storage.NewProjectRepository(postgres), resolver, opts...)

	logger.WithField("source_priority", resolver.Order()).Info("reconciliation store ready")
	return a, nil
}

// HealthChecks returns a ping per connected backend.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": a.Postgres.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping
	}
	if a.ClickHouse != nil {
		checks["clickhouse"] = a.ClickHouse.Ping
	}
	return checks
}

// Close releases every open connection.
func (a *App) Close() {
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			logging.WithError(err).Warn("failed to close ClickHouse connection")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logging.WithError(err).Warn("failed to close Redis connection")
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
