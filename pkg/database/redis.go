package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/identity/pkg/tracing"
)

// RedisConfig describes the session store connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Retry RetryPolicy
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// NewRedisClient connects, instruments and pings a client. Pings are retried
// per cfg.Retry (DefaultRetryPolicy when zero).
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())
	client.AddHook(commandHook{})

	policy := cfg.Retry
	if policy.MaxTries == 0 {
		policy = DefaultRetryPolicy()
	}
	_, err := withRetry(ctx, policy, logger, "redis ping", func() (string, error) {
		return client.Ping(ctx).Result()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

var redisCommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Duration of Redis commands.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	},
	[]string{"command", "outcome"},
)

// commandHook traces every command and pipeline. A redis.Nil reply is a
// miss, not a failure.
type commandHook struct{}

func (commandHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, end := traceRedis(ctx, cmd.FullName())
		err := next(ctx, cmd)
		end(err)
		return err
	}
}

func (commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, c := range cmds {
			names = append(names, c.Name())
		}
		ctx, end := traceRedis(ctx, "pipeline "+strings.Join(names, " "))
		err := next(ctx, cmds)
		end(err)
		return err
	}
}

func traceRedis(ctx context.Context, command string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "redis."+command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", command),
		),
	)
	return ctx, func(err error) {
		outcome := outcomeOK
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			outcome = "miss"
		default:
			outcome = outcomeError
			tracing.Fail(span, err)
		}
		span.End()
		redisCommandDuration.WithLabelValues(command, outcome).Observe(time.Since(start).Seconds())
	}
}
