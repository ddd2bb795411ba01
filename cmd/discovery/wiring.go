package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/discovery-service/internal/cache"
	"govwatch/discovery-service/internal/config"
	"govwatch/discovery-service/internal/credentials"
	"govwatch/discovery-service/internal/db"
	"govwatch/discovery-service/internal/history"
	"govwatch/discovery-service/internal/logging"
	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/notify"
	"govwatch/discovery-service/internal/scheduler"
	"govwatch/discovery-service/internal/source"
	"govwatch/discovery-service/internal/syncer"
)

// loadConfig reads the configuration, applies flag overrides and installs
// the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(map[string]string{"SQLITE_PATH": sqlitePath})
	if err != nil {
		return nil, err
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// historyStore is satisfied by both history backends.
type historyStore interface {
	RecordSearch(ctx context.Context, rec model.SearchHistoryRecord) (model.SearchHistoryRecord, error)
	RecentSearches(ctx context.Context, limit int) ([]model.SearchHistoryRecord, error)
	RecordMatch(ctx context.Context, rec model.MatchHistoryRecord) error
}

// stores bundles the persistence a command needs. pool is nil in SQLite mode.
type stores struct {
	cache   *cache.Store
	history historyStore
	lookup  credentials.Lookup
	pool    *pgxpool.Pool
	close   func()
}

// openStores connects to SQLite when a path is configured and to PostgreSQL
// otherwise. Both schemas are applied on open.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	cacheLog := slog.Default().With("component", "cache")

	if cfg.SQLitePath != "" {
		log.Printf("[discovery] Opening SQLite database %s…", cfg.SQLitePath)
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			cache:   cache.NewStore(cache.NewSQLiteBackend(conn), cache.WithLogger(cacheLog)),
			history: history.NewSQLite(conn),
			lookup:  credentials.NewSQLiteLookup(conn),
			close:   func() { _ = conn.Close() },
		}, nil
	}

	log.Println("[discovery] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Println("[discovery] PostgreSQL connected ✓")
	return &stores{
		cache:   cache.NewStore(cache.NewPostgresBackend(pool), cache.WithLogger(cacheLog)),
		history: history.NewPostgres(pool),
		lookup:  credentials.NewPostgresLookup(pool),
		pool:    pool,
		close:   pool.Close,
	}, nil
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: int32(cfg.DBMaxConns), StatementTimeout: cfg.StoreTimeout}
}

func syncOptions(cfg *config.Config) syncer.Options {
	opts := syncer.DefaultOptions()
	opts.PageSize = cfg.PageSize
	opts.PageDelay = cfg.PageDelay
	opts.WindowDelay = cfg.BackfillWindowDelay
	opts.StoreTimeout = cfg.StoreTimeout
	return opts
}

func newOrchestrator(cfg *config.Config, s *stores, keyword string) *syncer.Orchestrator {
	opts := syncOptions(cfg)
	opts.Keyword = keyword
	return syncer.New(
		source.NewSAMClient(cfg.SAMBaseURL, cfg.SourceTimeout),
		s.cache,
		s.history,
		credentials.NewResolver(cfg.SAMAPIKey, s.lookup),
		nil,
		opts,
	)
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.SyncSpec = cfg.SyncCron
	sc.ReminderSpec = cfg.ReminderCron
	sc.SavedSearchSpec = cfg.SavedSearchCron
	sc.BackfillMonths = cfg.BackfillMonths
	sc.BackfillThreshold = cfg.BackfillThreshold
	return sc
}

// newSink builds the configured notification sink and its cleanup.
func newSink(ctx context.Context, cfg *config.Config) (notify.Sink, func(), error) {
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		log.Println("[discovery] Connecting to Redis…")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Println("[discovery] Redis connected ✓")
		return notify.NewRedisSink(rdb, cfg.NotifyChannel), func() { _ = rdb.Close() }, nil

	case config.NotifyKafka:
		producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka: %w", err)
		}
		sink := notify.NewKafkaSink(producer, cfg.KafkaTopic)
		return sink, func() { _ = sink.Close() }, nil

	default:
		return notify.NewLogSink(slog.Default().With("component", "notify")), func() {}, nil
	}
}
