package cache

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"
)

const sqliteDDL = `CREATE TABLE IF NOT EXISTS ocr_cache (
	hash TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	confidence REAL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// DefaultSQLitePath is used when no DSN is configured.
const DefaultSQLitePath = "./tmp/ocr-cache.db"

// OpenSQLite opens (and creates) a file-backed cache.
func OpenSQLite(ctx context.Context, dsn string, ttl time.Duration, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:"); path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps sqlite free of SQLITE_BUSY under concurrent pipelines
	db.SetMaxOpenConns(1)

	s := &sqlStore{
		name:   "sqlite",
		drv:    entsql.OpenDB(dialect.SQLite, db),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	if err := s.migrate(ctx, sqliteDDL); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("cache.sqlite.ready", "dsn", dsn)
	return s, nil
}
