package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/pkg/health"
	"github.com/Tzesh/EcommerceAPI/pkg/middleware"
)

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	PprofCIDRs     []string
	RateLimit      middleware.RateLimitConfig
	// Gatherer backs /metrics. The endpoint is not mounted when nil.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *middleware.HTTPMetrics
}

// NewRouter creates a chi router with all auth service routes registered.
// ctx bounds the rate limiter's background eviction.
func NewRouter(
	ctx context.Context,
	authService AuthService,
	userService UserService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}

	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	authenticate := middleware.Auth(tokenValidator(authService))
	authHandler := NewAuthHandler(authService, logger)
	userHandler := NewUserHandler(userService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		if cfg.RateLimit.RPS > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit, logger))
		}
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh-token", authHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequestLogger(logger))
			r.Post("/authorize", authHandler.Authorize)
		})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(authenticate)
		r.Use(middleware.RequestLogger(logger))

		r.Get("/me", userHandler.GetProfile)
		r.Put("/me", userHandler.UpdateProfile)
		r.With(middleware.RequireRole(string(domain.RoleAdmin))).Delete("/", userHandler.DeleteUser)
	})

	return r
}

// tokenValidator resolves the caller from an access token. The role comes
// from the user record so role changes apply immediately.
func tokenValidator(svc AuthService) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Principal, error) {
		user, err := svc.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{Username: user.Username, Role: string(user.Role)}, nil
	}
}
