// Package app wires the unit engine to its PostgreSQL store and lock
// backend from configuration. The server, worker and seed binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"unitrack/internal/domain/units"
	"unitrack/internal/infrastructure/cache"
	"unitrack/internal/infrastructure/config"
	"unitrack/internal/infrastructure/lock"
	"unitrack/internal/infrastructure/migration"
	"unitrack/internal/infrastructure/storage/postgres"
	"unitrack/pkg/logger"
)

// Deps holds the constructed dependencies of a process.
type Deps struct {
	Pool       *postgres.Pool
	TxManager  *postgres.TxManager
	Repo       *postgres.UnitRepo
	Operations *postgres.OperationStore
	Redis      *redis.Client // nil when Redis is not configured
	Service    *units.Service
}

// Open connects to the database, applies migrations when configured and
// builds the engine.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	if cfg.Database.AutoMigrate {
		if err := migration.Run(ctx, cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.ApplicationName = cfg.App.Name
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.Database.StatementTimeout
	txm := postgres.NewTxManager(pool).WithOptions(txOpts)

	codec, err := postgres.NewHistoryCodec(cfg.Engine.HistoryCompressBytes)
	if err != nil {
		pool.Close()
		return nil, err
	}

	d := &Deps{
		Pool:       pool,
		TxManager:  txm,
		Repo:       postgres.NewUnitRepo(txm, codec),
		Operations: postgres.NewOperationStore(txm, cfg.Engine.OperationTTL),
	}

	var locker units.Locker = lock.NewLocal()
	if cfg.Redis.Enabled() {
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedis(d.Redis, lock.RedisConfig{
			TTL:  cfg.Engine.LockTTL,
			Wait: cfg.Engine.LockWait,
		})
		logger.Info(ctx, "allocation lock backed by redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn(ctx, "redis not configured, allocation lock is process-local")
	}

	d.Service = units.NewService(units.ServiceConfig{
		Repo:              d.Repo,
		TxManager:         txm,
		Operations:        d.Operations,
		Locker:            locker,
		Prefixes:          cache.NewPrefixCache(d.Repo, cfg.Engine.PrefixCacheSize),
		MaxCreateAttempts: cfg.Engine.MaxCreateAttempts,
	})
	return d, nil
}

// Close releases the pool and the Redis client.
func (d *Deps) Close(ctx context.Context) {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn(ctx, "close dependencies", "error", err)
	}
}
