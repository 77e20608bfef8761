package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/identity/internal/auth"
	"github.com/utafrali/identity/internal/config"
	handler "github.com/utafrali/identity/internal/handler/http"
	"github.com/utafrali/identity/internal/notify"
	"github.com/utafrali/identity/internal/repository/postgres"
	redisstore "github.com/utafrali/identity/internal/repository/redis"
	"github.com/utafrali/identity/internal/service"
	"github.com/utafrali/identity/migrations"
	"github.com/utafrali/identity/pkg/database"
	"github.com/utafrali/identity/pkg/health"
	pkgkafka "github.com/utafrali/identity/pkg/kafka"
	"github.com/utafrali/identity/pkg/middleware"
	"github.com/utafrali/identity/pkg/tracing"
)

const serviceName = "identity"

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	notifier       *notify.Async
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		Headers:        cfg.OTELHeaders,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		URL:             cfg.DatabaseURL,
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)

	// Initialize Redis (refresh token store).
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		pool.Close()
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Notification transport, made fire-and-forget.
	transport, producer, err := newTransport(cfg, logger)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		_ = tracerShutdown(context.Background())
		return nil, err
	}
	notifier := notify.NewAsync(transport, cfg.NotifyTransport, cfg.NotifySendTimeout, logger)

	// Build the dependency graph.
	codec, err := auth.NewTokenCodec(auth.CodecConfig{
		Secret:          cfg.JWTSecret,
		Algorithm:       cfg.JWTAlgorithm,
		AccessTTL:       cfg.JWTAccessExpiry,
		RefreshTTL:      cfg.JWTRefreshExpiry,
		VerificationTTL: cfg.JWTVerificationExpiry,
	})
	if err != nil {
		if producer != nil {
			_ = producer.Close()
		}
		_ = redisClient.Close()
		pool.Close()
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	accountRepo := postgres.NewAccountRepository(pool)
	sessionStore := redisstore.NewSessionStore(redisClient)
	identityService := service.NewIdentityService(
		accountRepo,
		sessionStore,
		auth.NewPasswordHasher(cfg.BcryptCost),
		codec,
		notifier,
		service.Config{
			PublicBaseURL:      cfg.PublicURL(),
			StrictRefreshMatch: cfg.RefreshStrictMatch,
			AdminEmails:        cfg.AdminEmails,
		},
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(identityService, healthHandler, logger, handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		RequestTimeout: cfg.RequestTimeout,
		CORS:           corsCfg,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		notifier:       notifier,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newTransport builds the configured notification transport. The Kafka
// producer is returned so the caller can close it; it is nil otherwise.
func newTransport(cfg *config.Config, logger *slog.Logger) (notify.Dispatcher, *pkgkafka.Producer, error) {
	switch cfg.NotifyTransport {
	case notify.TransportSMTP:
		sender := notify.NewSMTPSender(notify.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			Sender:      cfg.SMTPSender,
			ImplicitTLS: cfg.SMTPImplicitTLS,
			Timeout:     cfg.SMTPTimeout,
		}, notify.DefaultBreakerConfig("smtp"), logger)
		logger.Info("smtp notifier initialized", slog.String("addr", cfg.SMTPHost))
		return sender, nil, nil

	case notify.TransportKafka:
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers, notify.SourceIdentityService), logger)
		logger.Info("kafka notifier initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.NotifyTopic),
		)
		return notify.NewKafkaSender(producer, cfg.NotifyTopic, logger), producer, nil

	case notify.TransportLog:
		logger.Warn("log notifier selected, verification emails are only logged")
		return notify.NewLogSender(logger), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown notification transport %q", cfg.NotifyTransport)
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Notifier (finish pending verification emails)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
// 6. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Let queued notifications finish before their transport goes away.
	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifyCancel()
	if err := a.notifier.Close(notifyCtx); err != nil {
		a.logger.Error("notifier drain error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	// 6. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
