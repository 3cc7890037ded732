package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/personas-api/pkg/errors"
	"github.com/jwalitptl/personas-api/pkg/metrics"
	"github.com/jwalitptl/personas-api/pkg/ratelimit"
)

type RateLimiter struct {
	limiter   ratelimit.Limiter
	metrics   *metrics.Metrics
	skipPaths map[string]struct{}
}

func NewRateLimiter(limiter ratelimit.Limiter, m *metrics.Metrics, skipPaths ...string) *RateLimiter {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return &RateLimiter{
		limiter:   limiter,
		metrics:   m,
		skipPaths: skip,
	}
}

// RateLimit limits requests per client IP. When the backend itself fails
// the request is let through.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.skipPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		allowed, err := rl.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().
				Err(err).
				Str("backend", rl.limiter.Backend()).
				Str("request_id", c.GetString(ContextRequestID)).
				Msg("rate limiter unavailable, allowing request")
			if rl.metrics != nil {
				rl.metrics.RateLimitErrors.Inc()
			}
			c.Next()
			return
		}

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RateLimitRejections.WithLabelValues(rl.limiter.Backend()).Inc()
			}
			_ = c.Error(apperrors.TooManyRequests())
			c.Abort()
			return
		}

		c.Next()
	}
}
