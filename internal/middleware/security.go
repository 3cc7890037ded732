package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityConfig represents security headers configuration
type SecurityConfig struct {
	HSTS         bool
	HSTSMaxAge   int
	FrameOptions string
	NoStore      bool
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTS:         false,
		HSTSMaxAge:   31536000,
		FrameOptions: "DENY",
		NoStore:      true,
	}
}

// SecurityHeaders adds response headers suited to a JSON API serving
// patient data. Responses are marked non-cacheable when NoStore is set.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.HSTS {
			c.Header("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", config.FrameOptions)
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		if config.NoStore {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
