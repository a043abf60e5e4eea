package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

const redisPrefix = "pdfa:ocr:"

// Redis is a Store shared between processes.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func OpenRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	if url == "" {
		return nil, fmt.Errorf("empty redis url")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (ocr.Recognition, bool, error) {
	val, err := r.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocr.Recognition{}, false, nil
	}
	if err != nil {
		return ocr.Recognition{}, false, err
	}
	var rec ocr.Recognition
	if err := json.Unmarshal(val, &rec); err != nil {
		r.logger.Warn("cache.redis.decode_failed", "key", key, "error", err)
		return ocr.Recognition{}, false, nil
	}
	return rec, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, rec ocr.Recognition) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return r.rdb.Set(ctx, redisPrefix+key, b, r.ttl).Err()
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.rdb.Close() }
func (r *Redis) Name() string                   { return "redis" }
