package cache

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const postgresDDL = `CREATE TABLE IF NOT EXISTS ocr_cache (
	hash TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	confidence DOUBLE PRECISION,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
)`

type PostgresConfig struct {
	DSN             string
	TTL             time.Duration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// OpenPostgres creates a pgx pool, wraps it as *sql.DB and prepares the cache table.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MaxConnLifetime <= 0 {
		cfg.MaxConnLifetime = 30 * time.Minute
	}
	if cfg.MaxConnIdleTime <= 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	logger.Info("cache.postgres.connecting")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("cache.postgres.parse_failed", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "pdf-analyzer"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("cache.postgres.connect_failed", "error", err)
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}

	// Wrap pool as *sql.DB for the shared SQL store
	db := stdlib.OpenDBFromPool(pool)
	s := &sqlStore{
		name:   "postgres",
		drv:    entsql.OpenDB(dialect.Postgres, db),
		ttl:    cfg.TTL,
		logger: logger,
		now:    time.Now,
		close: func() error {
			pool.Close()
			return nil
		},
	}
	if err := s.migrate(ctx, postgresDDL); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("cache.postgres.ready")
	return s, nil
}
