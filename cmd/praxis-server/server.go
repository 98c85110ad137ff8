package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/config"
	"github.com/praxis/praxis/internal/domain/availability"
	"github.com/praxis/praxis/internal/domain/practitioner"
	"github.com/praxis/praxis/internal/platform/auth"
	"github.com/praxis/praxis/internal/platform/db"
	"github.com/praxis/praxis/internal/platform/middleware"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.ZerologLevel())
}

// newRevocationStore picks Redis when REDIS_URL is set and process memory
// otherwise. The returned func releases the store's resources.
func newRevocationStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; token revocations are kept in memory")
		return auth.NewMemoryRevocationStore(), func() {}, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to redis")
	return auth.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil
}

func jwtConfig(cfg *config.Config, store auth.RevocationStore) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:      cfg.AuthIssuer,
		Audience:    cfg.AuthAudience,
		SigningKey:  []byte(cfg.AuthSigningKey),
		Revocations: store,
		Skipper:     auth.AuthSkipper,
	}
}

// authMiddleware verifies bearer tokens. In development a request without
// one is treated as an admin of DEFAULT_PRACTICE_ID.
func authMiddleware(cfg *config.Config, store auth.RevocationStore) echo.MiddlewareFunc {
	jwtCfg := jwtConfig(cfg, store)
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(cfg.DefaultPracticeID, jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           cfg.RateLimitIdleTTL,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// newEcho builds the HTTP server with the global middleware chain and the
// public health routes. Routes under the returned group require a caller and
// a tenant connection.
func newEcho(cfg *config.Config, logger zerolog.Logger, store auth.RevocationStore, tenant echo.MiddlewareFunc) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))

	e.GET("/health", db.LivenessHandler("praxis-server", version))

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(rateLimitConfig(cfg)),
		authMiddleware(cfg, store),
		tenant,
		middleware.RequestTimeout(cfg.RequestTimeout),
	)
	return e, apiV1
}

func registerRoutes(api *echo.Group, pool *pgxpool.Pool, fallback *time.Location, store auth.RevocationStore) {
	directory := practitioner.NewDirectoryPG(pool)
	svc := availability.NewService(
		directory,
		availability.NewScheduleRepoPG(pool),
		availability.NewExceptionRepoPG(pool),
		availability.NewTxRunnerPG(pool),
		fallback,
	)
	availability.NewHandler(svc).RegisterRoutes(api)
	auth.RegisterRevocationRoutes(api, store)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		if _, err := uuid.Parse(cfg.DefaultPracticeID); err != nil {
			logger.Fatal().Err(err).Msg("DEFAULT_PRACTICE_ID must be a UUID")
		}
	}
	fallback, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load default timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := newRevocationStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeStore()

	e, apiV1 := newEcho(cfg, logger, store, db.TenantMiddleware(pool, cfg.DefaultTenant))
	e.GET("/health/db", db.HealthHandler(pool))
	registerRoutes(apiV1, pool, fallback, store)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
