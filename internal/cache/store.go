// Package cache stores recognition results keyed by page content hash so
// identical pages are not sent for recognition twice.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

// Store is a recognition result cache.
type Store interface {
	Get(ctx context.Context, key string) (ocr.Recognition, bool, error)
	Set(ctx context.Context, key string, rec ocr.Recognition) error
	Ping(ctx context.Context) error
	Close() error
	Name() string
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.CacheConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "none":
		s = Nop{}
	case "memory":
		s = NewMemory(cfg.TTL)
	case "sqlite":
		s, err = OpenSQLite(ctx, cfg.DSN, cfg.TTL, logger)
	case "postgres":
		s, err = OpenPostgres(ctx, PostgresConfig{DSN: cfg.DSN, TTL: cfg.TTL}, logger)
	case "redis":
		s, err = OpenRedis(ctx, cfg.DSN, cfg.TTL, logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown cache backend %q", cfg.Backend), common.ErrInvalidInput)
	}
	if err != nil {
		return nil, common.NewAppError("CACHE_ERROR", "open "+cfg.Backend+" cache", fmt.Errorf("%w: %w", common.ErrCache, err))
	}
	logger.Info("cache.opened", "backend", s.Name(), "ttl", cfg.TTL)
	return s, nil
}

// Nop is a Store that never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (ocr.Recognition, bool, error) {
	return ocr.Recognition{}, false, nil
}
func (Nop) Set(context.Context, string, ocr.Recognition) error { return nil }
func (Nop) Ping(context.Context) error                         { return nil }
func (Nop) Close() error                                       { return nil }
func (Nop) Name() string                                       { return "none" }

func expiry(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).Unix()
}
