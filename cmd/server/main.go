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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/bankledger/internal/adapter/http"
	"github.com/iho/bankledger/internal/adapter/http/handler"
	"github.com/iho/bankledger/internal/adapter/http/middleware"
	"github.com/iho/bankledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/bankledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/bankledger/internal/adapter/repository/redis"
	"github.com/iho/bankledger/internal/infrastructure/auth"
	"github.com/iho/bankledger/internal/infrastructure/config"
	"github.com/iho/bankledger/internal/infrastructure/eventpublisher"
	"github.com/iho/bankledger/internal/infrastructure/id"
	"github.com/iho/bankledger/internal/infrastructure/logger"
	"github.com/iho/bankledger/internal/infrastructure/metrics"
	"github.com/iho/bankledger/internal/infrastructure/postgres"
	"github.com/iho/bankledger/internal/infrastructure/redis"
	"github.com/iho/bankledger/internal/usecase"
)

const (
	redisConnectTimeout    = 3 * time.Second
	rateLimiterCleanup     = 10 * time.Minute
	rateLimiterIdleTimeout = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger, prometheus.DefaultRegisterer, promhttp.Handler()); err != nil {
		appLogger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	appLogger.Info().Msg("server stopped")
}

// backend bundles the storage-side dependencies of one storage engine.
type backend struct {
	store        usecase.AccountStore
	recorder     usecase.TransactionRecorder
	accounts     usecase.AccountRepository
	transactions usecase.TransactionRepository
	outbox       usecase.OutboxRepository
	users        usecase.UserRepository
	checks       []handler.HealthCheck
	close        func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	idGen := id.NewULIDGenerator()

	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory storage; balances are lost on restart")

		store := memory.NewAccountStore()
		txLog := memory.NewTransactionLog(idGen)

		return &backend{
			store:        store,
			recorder:     txLog,
			accounts:     store,
			transactions: txLog,
			outbox:       txLog,
			users:        memory.NewUserRepository(),
			close:        func() {},
		}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info().Msg("connected to postgres")

		if cfg.RunMigrations {
			if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		txRepo := postgresRepo.NewTransactionRepository(pool, idGen)

		return &backend{
			store:        postgresRepo.NewAccountStore(pool, postgresRepo.NewRetrier().WithLogger(logger), logger),
			recorder:     txRepo,
			accounts:     postgresRepo.NewAccountRepository(pool),
			transactions: txRepo,
			outbox:       postgresRepo.NewOutboxRepository(pool),
			users:        postgresRepo.NewUserRepository(pool),
			checks:       []handler.HealthCheck{{Name: "postgres", Check: pool.Ping}},
			close:        pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// connectRedis returns nil when redis is not configured or unreachable.
// Idempotency and the transaction cache are then disabled.
func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *goredis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; idempotency and caching disabled")
		return nil
	}

	client, err := redis.NewClientWithConfig(ctx, redis.ClientConfig{
		URL:            cfg.RedisURL,
		ConnectTimeout: redisConnectTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; idempotency and caching disabled")
		return nil
	}

	logger.Info().Msg("connected to redis")
	return client
}

// newPublisher returns the outbox publisher and a function that releases it.
func newPublisher(cfg *config.Config, logger zerolog.Logger) (eventpublisher.Publisher, func() error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("no kafka brokers configured; outbox events are logged")
		return eventpublisher.NewLogPublisher(logger), func() error { return nil }
	}

	kafka := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	breaker := eventpublisher.NewBreakerPublisher(kafka, eventpublisher.BreakerConfig{Name: "kafka"}, logger)

	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing outbox events to kafka")
	return breaker, kafka.Close
}

// adminBootstrapper creates the configured admin account.
type adminBootstrapper interface {
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
}

func ensureAdmin(ctx context.Context, cfg *config.Config, users adminBootstrapper, logger zerolog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	created, err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info().Str("username", cfg.AdminUsername).Msg("created bootstrap admin")
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer, metricsHandler http.Handler) error {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	m := metrics.NewWithRegisterer(reg)

	var (
		cache       usecase.Cache
		idempotency *middleware.IdempotencyMiddleware
		checks      = be.checks
	)
	if client := connectRedis(ctx, cfg, logger); client != nil {
		defer client.Close()

		cache = redisRepo.NewCache(client)
		idempotency = middleware.NewIdempotencyMiddleware(redisRepo.NewIdempotencyStore(client), cfg.IdempotencyTTL, logger).
			WithReplayCounter(m.IdempotencyReplays)
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)

	ledgerUC := usecase.NewLedgerUseCase(be.store, be.recorder,
		usecase.WithLogger(logger),
		usecase.WithMetrics(m),
		usecase.WithLockTimeout(cfg.LedgerLockTimeout),
	)
	accountUC := usecase.NewAccountUseCase(be.accounts)
	txUC := usecase.NewTransactionUseCase(be.transactions, cache, cfg.TransactionCacheTTL, logger)
	userUC := usecase.NewUserUseCase(be.users, id.NewULIDGenerator(), tokens)
	if err := ensureAdmin(ctx, cfg, userUC, logger); err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithHitCounter(m.RateLimitHits)

	routerCfg := httpAdapter.RouterConfig{
		AccountHandler:     handler.NewAccountHandler(accountUC),
		LedgerHandler:      handler.NewLedgerHandler(ledgerUC, logger),
		TransactionHandler: handler.NewTransactionHandler(txUC),
		AuthHandler:        handler.NewAuthHandler(userUC),
		HealthHandler:      handler.NewHealthHandler(checks...),
		Idempotency:        idempotency,
		RateLimiter:        rateLimiter,
		Metrics:            m,
		MetricsHandler:     metricsHandler,
		Logger:             logger,
	}
	if cfg.AuthEnabled {
		routerCfg.TokenVerifier = tokens
	} else {
		logger.Warn().Msg("AUTH_ENABLED=false; API routes are not authenticated")
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	publisher, closePublisher := newPublisher(cfg, logger)
	defer func() {
		if err := closePublisher(); err != nil {
			logger.Warn().Err(err).Msg("failed to close publisher")
		}
	}()

	worker := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: be.outbox,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     logger,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(rateLimiterCleanup)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := rateLimiter.CleanupLimiters(rateLimiterIdleTimeout); n > 0 {
					logger.Debug().Int("removed", n).Msg("cleaned up idle rate limiters")
				}
			}
		}
	})

	return g.Wait()
}
