package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/infra/config"
	"github.com/coursava/auth-service/internal/infra/database"
	kafkainfra "github.com/coursava/auth-service/internal/infra/kafka"
	"github.com/coursava/auth-service/internal/infra/logger"
	redisinfra "github.com/coursava/auth-service/internal/infra/redis"
	"github.com/coursava/auth-service/internal/infra/security"
	postgresrepo "github.com/coursava/auth-service/internal/repository/postgres"
	redisrepo "github.com/coursava/auth-service/internal/repository/redis"
	"github.com/coursava/auth-service/internal/transport/http/middleware"
	"github.com/coursava/auth-service/internal/transport/http/routes"
	"github.com/coursava/auth-service/internal/usecase"
)

// Application owns every long-lived dependency of the auth service and the
// HTTP engine serving it.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New builds the full dependency graph: storage, signing, session store,
// services, and routes. Nothing starts listening until Run.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	codec, err := security.NewTokenCodec(security.TokenCodecOptions{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	sessionStore := redisrepo.NewSessionRepository(redisClient.Client())

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	limitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "auth:rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	users := postgresrepo.NewUserRepository(pool)

	var producer *kafkainfra.Producer
	var publisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("kafka producer unavailable, security events stay local", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka brokers not configured, security events stay local")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	authMetrics, err := usecase.NewAuthMetrics(nil)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}

	tokens := usecase.NewTokenService(codec, sessionStore, users, log)
	lockout := usecase.NewLockoutService(sessionStore, publisher, usecase.LockoutSettings{
		MaxIdentifierAttempts: cfg.Lockout.MaxIdentifierAttempts,
		MaxIPAttempts:         cfg.Lockout.MaxIPAttempts,
		Duration:              cfg.Lockout.Duration,
	}, log).WithMetrics(authMetrics)
	auth := usecase.NewAuthService(users, tokens, lockout, publisher, log).WithMetrics(authMetrics)

	gate := middleware.NewGate(tokens,
		middleware.WithHintThresholds(cfg.JWT.RefreshThreshold, cfg.JWT.WarningThreshold))
	rateLimiter := middleware.NewRateLimiter(limitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        auth,
		Gate:        gate,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then drains in-flight
// requests before releasing connections.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
