package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// MultiLimiter permite usar presupuestos distintos por plataforma
// manteniendo el algoritmo fixed-window del RedisLimiter.
type MultiLimiter interface {
	AllowWithBudget(ctx context.Context, identifier, endpoint string, budget platform.RateBudget) (Result, error)
}

// MultiRedisLimiter cachea un RedisLimiter por configuración (max, window).
type MultiRedisLimiter struct {
	client *rdb.Client
	prefix string
	mu     sync.RWMutex
	// Cache de limiters por configuración para eficiencia
	limiters map[string]*RedisLimiter
}

func NewMultiRedisLimiter(client *rdb.Client, prefix string) *MultiRedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MultiRedisLimiter{
		client:   client,
		prefix:   prefix,
		limiters: make(map[string]*RedisLimiter),
	}
}

func (m *MultiRedisLimiter) AllowWithBudget(ctx context.Context, identifier, endpoint string, budget platform.RateBudget) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", budget.Requests, budget.Window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check para evitar crear dos limiters en paralelo
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = NewRedisLimiter(m.client, m.prefix, budget.Requests, budget.Window)
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}

	return limiter.Allow(ctx, identifier, endpoint)
}

// MemoryLimiter: fixed window in-process, fallback cuando no hay redis.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string]*memWindow
}

type memWindow struct {
	start time.Time
	count int64
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string]*memWindow)}
}

func (m *MemoryLimiter) AllowWithBudget(ctx context.Context, identifier, endpoint string, budget platform.RateBudget) (Result, error) {
	now := time.Now().UTC()
	k := fmt.Sprintf("%s:%d:%s", Key(identifier, endpoint), budget.Requests, budget.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.hits[k]
	if !ok || now.Sub(w.start) >= budget.Window {
		w = &memWindow{start: now.Truncate(budget.Window)}
		m.hits[k] = w
	}
	w.count++

	max := int64(budget.Requests)
	allowed := w.count <= max
	remaining := max - w.count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: w.count,
		WindowTTL:   budget.Window - now.Sub(w.start),
	}
	if !allowed {
		res.RetryAfter = res.WindowTTL
	}
	return res, nil
}
