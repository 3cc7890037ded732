package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/personas-api/internal/config"
	"github.com/jwalitptl/personas-api/internal/handler"
	"github.com/jwalitptl/personas-api/internal/handler/health"
	personaHandler "github.com/jwalitptl/personas-api/internal/handler/persona"
	"github.com/jwalitptl/personas-api/internal/handler/prometheus"
	"github.com/jwalitptl/personas-api/internal/middleware"
	"github.com/jwalitptl/personas-api/internal/repository"
	"github.com/jwalitptl/personas-api/internal/repository/memory"
	"github.com/jwalitptl/personas-api/internal/repository/postgres"
	"github.com/jwalitptl/personas-api/internal/router"
	personaService "github.com/jwalitptl/personas-api/internal/service/persona"
	"github.com/jwalitptl/personas-api/pkg/logger"
	"github.com/jwalitptl/personas-api/pkg/metrics"
	"github.com/jwalitptl/personas-api/pkg/ratelimit"
	"github.com/jwalitptl/personas-api/pkg/validator"
)

const metricsNamespace = "personas"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	logger.SetGlobal(appLogger)

	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promHandler := prometheus.New(metricsNamespace)
	appMetrics := metrics.NewMetrics(metricsNamespace, promHandler.Registry())

	// Initialize store
	repo, closeStore, err := newPersonaRepository(ctx, cfg.Database, appMetrics)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to initialize persona store")
	}
	defer closeStore()

	rateLimiter, closeLimiter, err := newRateLimiter(cfg.RateLimit, appMetrics)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.RateLimit.Backend).Msg("failed to initialize rate limiter")
	}
	defer closeLimiter()

	// Initialize services and handlers
	personaSvc := personaService.NewService(repo, validator.New(), appLogger)

	r := router.NewRouter(
		personaHandler.NewHandler(personaSvc),
		health.NewHandler(repo, cfg.Database.Driver),
		handler.NewHandler(cfg.Database.Driver),
		promHandler,
		router.RouterConfig{
			RequestTimeout: cfg.Server.RequestTimeout(),
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins: cfg.CORS.AllowOrigins,
				MaxAge:       middleware.DefaultCORSConfig().MaxAge,
			},
			SecurityConfig: middleware.DefaultSecurityConfig(),
			RateLimiter:    rateLimiter,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Bool("rate_limit", rateLimiter != nil).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func newPersonaRepository(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics) (repository.PersonaRepository, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn().Msg("using in-memory persona store, data is lost on restart")
		return memory.NewPersonaRepository(), func() {}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		base := postgres.NewBaseRepository(db)
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := base.EnsureSchema(migrateCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		log.Info().Msg("database schema ensured")
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	return postgres.NewPersonaRepository(db, m), closeDB, nil
}

func newRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics) (*middleware.RateLimiter, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	switch cfg.Backend {
	case config.BackendRedis:
		client, err := ratelimit.NewRedisClient(ratelimit.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			return nil, nil, err
		}
		limiter := ratelimit.NewRedisLimiter(client, ratelimit.RedisConfig{
			Prefix: "personas:ratelimit",
			Limit:  cfg.Burst,
			Window: cfg.Window,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := limiter.Ping(pingCtx); err != nil {
			// Requests are let through while redis is down.
			log.Warn().Err(err).Msg("redis unreachable at startup")
		}

		closeFn := func() {
			if err := limiter.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
		}
		return middleware.NewRateLimiter(limiter, m), closeFn, nil
	default:
		limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
			RPS:   cfg.RPS,
			Burst: cfg.Burst,
		})
		return middleware.NewRateLimiter(limiter, m), func() {}, nil
	}
}
