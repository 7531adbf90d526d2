package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre patrickmn/go-cache.
type memoryClient struct {
	c      *gocache.Cache
	prefix string
}

// NewMemory crea un cache en memoria con limpieza periódica.
func NewMemory(prefix string) Client {
	return &memoryClient{
		c:      gocache.New(gocache.NoExpiration, 5*time.Minute),
		prefix: prefix,
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(m.key(key), value, ttlOrDefault(ttl))
	return nil
}

func (m *memoryClient) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	// go-cache Add es atómico: falla si la key ya existe y no expiró.
	if err := m.c.Add(m.key(key), value, ttlOrDefault(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
