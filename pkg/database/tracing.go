package database

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/tracing"
)

const tracerName = "github.com/utafrali/identity/pkg/database"

// Query outcomes recorded in db_query_duration_seconds.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of repository queries.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"operation", "outcome"},
)

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs a warning for every traced query slower than
// threshold. A zero threshold turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// TraceQuery wraps one repository statement in a client span and records its
// duration. Call the returned func exactly once with the statement's error:
//
//	ctx, end := database.TraceQuery(ctx, "GetAccountByEmail", selectAccountByEmailSQL)
//	err := pool.QueryRow(ctx, ...).Scan(...)
//	end(err)
//
// Only driver and storage faults mark the span as failed. Domain answers such
// as pgx.ErrNoRows or a not-found sentinel are recorded as "rejected".
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := queryOutcome(err)

		if outcome == outcomeError || outcome == outcomeCanceled {
			tracing.Fail(span, err)
		}
		span.End()
		queryDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())

		if s := slowQueries.Load(); s != nil && elapsed >= s.threshold {
			s.logger.WarnContext(ctx, "slow query",
				slog.String("operation", operation),
				slog.String("statement", statement),
				slog.Duration("duration", elapsed),
				slog.String("outcome", outcome),
			)
		}
	}
}

func queryOutcome(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	case errors.Is(err, pgx.ErrNoRows):
		return outcomeRejected
	case errors.Is(err, apperrors.ErrStorage), errors.As(err, &pgErr), IsTransient(err):
		return outcomeError
	default:
		return outcomeRejected
	}
}
