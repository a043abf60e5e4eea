package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

const table = "ocr_cache"

// sqlStore is the shared Store over database/sql; statements are built with
// ent's SQL builder so placeholders follow the dialect.
type sqlStore struct {
	name   string
	drv    *entsql.Driver
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	close  func() error
}

func (s *sqlStore) Name() string { return s.name }

func (s *sqlStore) migrate(ctx context.Context, ddl string) error {
	_, err := s.drv.ExecContext(ctx, ddl)
	return err
}

func (s *sqlStore) Get(ctx context.Context, key string) (ocr.Recognition, bool, error) {
	b := entsql.Dialect(s.drv.Dialect())
	query, args := b.Select("text", "confidence", "expires_at").
		From(b.Table(table)).
		Where(entsql.EQ("hash", key)).
		Query()

	rows, err := s.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return ocr.Recognition{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return ocr.Recognition{}, false, rows.Err()
	}
	var (
		text      string
		conf      sql.NullFloat64
		expiresAt int64
	)
	if err := rows.Scan(&text, &conf, &expiresAt); err != nil {
		return ocr.Recognition{}, false, err
	}
	if expiresAt > 0 && expiresAt <= s.now().Unix() {
		s.logger.Debug("cache.sql.expired", "backend", s.name, "key", key)
		return ocr.Recognition{}, false, nil
	}
	rec := ocr.Recognition{Text: text}
	if conf.Valid {
		c := conf.Float64
		rec.Confidence = &c
	}
	return rec, true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, rec ocr.Recognition) error {
	now := s.now()
	var conf any
	if rec.Confidence != nil {
		conf = *rec.Confidence
	}
	query, args := entsql.Dialect(s.drv.Dialect()).
		Insert(table).
		Columns("hash", "text", "confidence", "created_at", "expires_at").
		Values(key, rec.Text, conf, now.Unix(), expiry(now, s.ttl)).
		OnConflict(entsql.ConflictColumns("hash"), entsql.ResolveWithNewValues()).
		Query()
	_, err := s.drv.ExecContext(ctx, query, args...)
	return err
}

// Prune deletes expired rows and returns how many were removed.
func (s *sqlStore) Prune(ctx context.Context) (int64, error) {
	query, args := entsql.Dialect(s.drv.Dialect()).
		Delete(table).
		Where(entsql.And(entsql.GT("expires_at", 0), entsql.LTE("expires_at", s.now().Unix()))).
		Query()
	res, err := s.drv.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.drv.DB().PingContext(ctx)
}

func (s *sqlStore) Close() error {
	var errs []error
	if err := s.drv.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.close != nil {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
