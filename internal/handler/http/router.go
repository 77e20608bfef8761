package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/identity/internal/service"
	"github.com/utafrali/identity/pkg/health"
	"github.com/utafrali/identity/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	// APIPrefix is prepended to every API route, e.g. "/api/v1".
	APIPrefix      string
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
}

// NewRouter creates a chi router with all identity service routes registered.
func NewRouter(
	identityService *service.IdentityService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/"
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CorrelationID)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics("identity"))
	r.Use(middleware.Tracing("identity"))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Token validator that bridges to the identity service.
	accessValidator := func(ctx context.Context, token string) (*middleware.Claims, error) {
		claims, err := identityService.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID:    claims.Subject,
			TokenType: string(claims.Type),
		}, nil
	}

	authHandler := NewAuthHandler(identityService, logger)
	accountHandler := NewAccountHandler(identityService, logger)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(middleware.NoStore)

		// Auth endpoints (public)
		r.Route("/auth", func(r chi.Router) {
			r.With(ContentTypeJSON).Post("/register", authHandler.Register)
			r.With(authHandler.RequireLoginEligibility).Post("/login", authHandler.Login)
			r.Get("/verify-email", authHandler.VerifyEmail)
			r.Get("/refresh", authHandler.Refresh)
		})

		// Account endpoints (access token required)
		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Auth(accessValidator))

			r.Get("/", accountHandler.List)
			r.Get("/me", accountHandler.Me)
			r.Delete("/{id}", accountHandler.Delete)
		})
	})

	return r
}
