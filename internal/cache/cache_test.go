package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

func conf(v float64) *float64 { return &v }

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", ocr.Recognition{Text: "hello", Confidence: conf(91)}))
	rec, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Text)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 91.0, *rec.Confidence, 0.001)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20 * time.Millisecond)
	require.NoError(t, m.Set(ctx, "k", ocr.Recognition{Text: "x"}))
	time.Sleep(40 * time.Millisecond)
	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func openTestSQLite(t *testing.T, ttl time.Duration) *sqlStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "cache.db")
	s, err := OpenSQLite(context.Background(), dsn, ttl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.(*sqlStore)
}

func TestSQLite_RoundTripAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 0)
	require.NoError(t, s.Ping(ctx))

	_, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "abc", ocr.Recognition{Text: "first"}))
	rec, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", rec.Text)
	assert.Nil(t, rec.Confidence)

	require.NoError(t, s.Set(ctx, "abc", ocr.Recognition{Text: "second", Confidence: conf(77.5)}))
	rec, ok, err = s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", rec.Text)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 77.5, *rec.Confidence, 0.001)
}

func TestSQLite_ExpiredEntriesMissAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "old", ocr.Recognition{Text: "stale"}))

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, common.CacheConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", s.Name())

	s, err = Open(ctx, common.CacheConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	_, err = Open(ctx, common.CacheConfig{Backend: "etcd"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
