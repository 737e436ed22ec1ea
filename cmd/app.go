package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"corebridge/process-service/internal/cache"
	"corebridge/process-service/internal/config"
	"corebridge/process-service/internal/db"
	"corebridge/process-service/internal/idgen"
	"corebridge/process-service/internal/notify"
	"corebridge/process-service/internal/process"
	"corebridge/process-service/internal/storage/postgres"
	"corebridge/process-service/internal/storage/sqlite"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	store    process.Store
	svc      *process.Service
	stats    *process.Aggregator
	notifier *notify.Async
	closers  []func()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", serviceName)
	slog.SetDefault(logger)
	return logger, nil
}

// openStore connects the configured store and applies its schema.
func openStore(ctx context.Context, cfg *config.Config) (process.Store, process.ApplicationDirectory, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("sqlite store opened", "path", cfg.SQLitePath)
		return store, nil, func() { _ = store.Close() }, nil
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MaxConnIdleTime: cfg.DBMaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		slog.Info("postgres connected")
		return store, postgres.NewDirectory(pool), pool.Close, nil
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	store, directory, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		slog.Info("redis connected")
	}

	ids, err := newIDSource(cfg, rdb)
	if err != nil {
		return nil, err
	}

	var sink process.Notifier = notify.NewLogNotifier(nil)
	if rdb != nil {
		sink = notify.NewRedisPublisher(rdb)
	}
	a.notifier = notify.NewAsync(sink, cfg.NotifyQueueSize)

	opts := []process.Option{process.WithNotifier(a.notifier)}
	var aggOpts []process.AggregatorOption
	if directory != nil {
		opts = append(opts, process.WithDirectory(directory))
	}
	if rdb != nil {
		c := cache.NewStatsCache(rdb, cfg.StatsCacheTTL)
		opts = append(opts, process.WithStatsCache(c))
		aggOpts = append(aggOpts, process.WithAggregatorCache(c))
	}

	a.svc = process.NewService(store, ids, opts...)
	a.stats = process.NewAggregator(store, aggOpts...)
	ok = true
	return a, nil
}

func newIDSource(cfg *config.Config, rdb *redis.Client) (process.IDSource, error) {
	if cfg.IDSource == config.IDSourceRedis {
		if rdb == nil {
			return nil, fmt.Errorf("ID_SOURCE=redis needs REDIS_URL")
		}
		return idgen.NewRedisSequence(rdb, ""), nil
	}
	return idgen.NewSnowflake(cfg.SnowflakeNodeID)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
