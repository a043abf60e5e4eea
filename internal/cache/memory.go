package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

// Memory is an in-process Store backed by go-cache.
type Memory struct {
	client *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	exp := gocache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	return &Memory{client: gocache.New(exp, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (ocr.Recognition, bool, error) {
	v, ok := m.client.Get(key)
	if !ok {
		return ocr.Recognition{}, false, nil
	}
	rec, ok := v.(ocr.Recognition)
	return rec, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, rec ocr.Recognition) error {
	m.client.SetDefault(key, rec)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { m.client.Flush(); return nil }
func (m *Memory) Name() string               { return "memory" }

// Len returns the number of cached entries.
func (m *Memory) Len() int { return m.client.ItemCount() }
