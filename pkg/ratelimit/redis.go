package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/personas-api/pkg/circuitbreaker"
)

type RedisConfig struct {
	URL          string
	Prefix       string
	Limit        int
	Window       time.Duration
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
}

// RedisLimiter counts requests per key in fixed windows stored in redis.
// Calls go through a circuit breaker so an unavailable redis is skipped
// quickly instead of adding latency to every request.
type RedisLimiter struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisClient builds a client from a redis:// URL with pool options.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	return redis.NewClient(opts), nil
}

func NewRedisLimiter(client *redis.Client, cfg RedisConfig) *RedisLimiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-ratelimit",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}),
		prefix: prefix,
		limit:  cfg.Limit,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Backend() string {
	return "redis"
}

func (l *RedisLimiter) windowKey(key string) string {
	slot := l.now().UnixNano() / int64(l.window)
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	var count int64
	err := l.cb.Execute(func() error {
		k := l.windowKey(key)
		pipe := l.client.TxPipeline()
		incr := pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		count = incr.Val()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return count <= int64(l.limit), nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
