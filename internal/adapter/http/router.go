package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/bankledger/internal/adapter/http/handler"
	"github.com/iho/bankledger/internal/adapter/http/middleware"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/infrastructure/metrics"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler     *handler.AccountHandler
	LedgerHandler      *handler.LedgerHandler
	TransactionHandler *handler.TransactionHandler
	AuthHandler        *handler.AuthHandler
	HealthHandler      *handler.HealthHandler

	// TokenVerifier guards the API. Nil disables authentication.
	TokenVerifier middleware.TokenVerifier
	// Idempotency is applied to movements and account creation. Nil disables it.
	Idempotency *middleware.IdempotencyMiddleware
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Operational endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", cfg.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				if cfg.TokenVerifier != nil {
					r.Use(middleware.OptionalAuthMiddleware(cfg.TokenVerifier))
				}
				r.Post("/register", cfg.AuthHandler.Register)
			})
		})

		r.Group(func(r chi.Router) {
			if cfg.TokenVerifier != nil {
				r.Use(middleware.AuthMiddleware(cfg.TokenVerifier))
			}

			// Reads, any role
			r.Get("/transaction/{id}", cfg.TransactionHandler.Get)
			r.Get("/accounts/{id}", cfg.AccountHandler.Get)
			r.Get("/accounts/{id}/transactions", cfg.TransactionHandler.ListByAccount)
			r.Get("/accounts", cfg.AccountHandler.List)

			r.Group(func(r chi.Router) {
				guard(r, cfg, domain.Role.CanManageAccounts)
				r.Post("/accounts", cfg.AccountHandler.Create)
			})

			r.Group(func(r chi.Router) {
				guard(r, cfg, domain.Role.CanMoveMoney)
				r.Post("/transaction/deposit", cfg.LedgerHandler.Deposit)
				r.Post("/transaction/withdraw", cfg.LedgerHandler.Withdraw)
				r.Post("/transaction/transfer", cfg.LedgerHandler.Transfer)
			})
		})
	})

	return r
}

// guard applies the role check and idempotency to a mutating group.
func guard(r chi.Router, cfg RouterConfig, allowed func(domain.Role) bool) {
	if cfg.TokenVerifier != nil {
		r.Use(middleware.RequireRole(allowed))
	}
	if cfg.Idempotency != nil {
		r.Use(cfg.Idempotency.Wrap)
	}
}
