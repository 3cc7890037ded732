package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/personas-api/internal/handler/prometheus"
	"github.com/jwalitptl/personas-api/internal/middleware"
	"github.com/jwalitptl/personas-api/pkg/httputil"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
	SecurityConfig middleware.SecurityConfig
	// RateLimiter guards the persona routes; nil disables limiting.
	RateLimiter *middleware.RateLimiter
}

type Router struct {
	engine         *gin.Engine
	personaHandler Handler
	healthHandler  Handler
	systemHandler  Handler
	metrics        *prometheus.Handler
	rateLimiter    *middleware.RateLimiter
}

func NewRouter(
	personaHandler Handler,
	healthHandler Handler,
	systemHandler Handler,
	metrics *prometheus.Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:         engine,
		personaHandler: personaHandler,
		healthHandler:  healthHandler,
		systemHandler:  systemHandler,
		metrics:        metrics,
		rateLimiter:    config.RateLimiter,
	}

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultTimeoutConfig().Duration
	}
	sizeLimit := middleware.DefaultSizeLimitConfig()
	if config.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = config.MaxBodyBytes
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(config.SecurityConfig),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(sizeLimit),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse("route not found", nil))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, httputil.NewErrorResponse("method not allowed", nil))
	})

	return r
}

// Setup registers every route. Persona routes are served both under
// /api/v1 and at the root.
func (r *Router) Setup() {
	root := r.engine.Group("")
	r.systemHandler.RegisterRoutes(root)
	r.healthHandler.RegisterRoutes(root)
	root.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	for _, group := range []*gin.RouterGroup{api, r.engine.Group("")} {
		if r.rateLimiter != nil {
			group.Use(r.rateLimiter.RateLimit())
		}
		r.personaHandler.RegisterRoutes(group)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
