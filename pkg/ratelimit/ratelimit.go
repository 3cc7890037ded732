// Package ratelimit provides per-client request limiters. The memory backend
// keeps a token bucket per key; the redis backend shares a fixed-window
// counter across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Backend() string
}

type MemoryConfig struct {
	RPS   float64
	Burst int
	// IdleTTL evicts the bucket of a client that has been quiet this long.
	IdleTTL time.Duration
}

type MemoryLimiter struct {
	rps     rate.Limit
	burst   int
	mu      sync.Mutex
	buckets *cache.Cache
}

func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryLimiter{
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		buckets: cache.New(ttl, 2*ttl),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

func (l *MemoryLimiter) Backend() string {
	return "memory"
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(key); ok {
		limiter := v.(*rate.Limiter)
		l.buckets.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.buckets.SetDefault(key, limiter)
	return limiter
}

// Clients reports how many client buckets are currently tracked.
func (l *MemoryLimiter) Clients() int {
	return l.buckets.ItemCount()
}
