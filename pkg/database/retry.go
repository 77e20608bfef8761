package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RetryPolicy bounds startup retries against a dependency that is still
// coming up.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy tries 3 times, waiting roughly 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: time.Second, MaxInterval: 4 * time.Second}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	return b
}

// withRetry runs op until it succeeds, fails permanently or the policy runs
// out. Only transient errors are retried.
func withRetry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, what string, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if logger == nil {
				return
			}
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt),
				slog.Uint64("max_attempts", uint64(p.MaxTries)),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
}

// IsTransient reports whether err looks like a connectivity problem rather
// than a rejected statement. Server-side SQL errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P03: cannot connect now.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P03"
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		return true
	case errors.As(err, &connectErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}
