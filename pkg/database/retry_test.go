package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/identity/pkg/errors"
)

var fastRetry = RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"wrapped reset", fmt.Errorf("query: %w", syscall.ECONNRESET), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"empty sqlstate", &pgconn.PgError{}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("relation does not exist"), false},
		{"storage wrapped refusal", apperrors.Storage("ping", syscall.ECONNREFUSED), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestWithRetry_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), fastRetry, discardLogger(), "probe", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ECONNREFUSED
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	sqlErr := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	_, err := withRetry(context.Background(), fastRetry, discardLogger(), "probe", func() (int, error) {
		calls++
		return 0, sqlErr
	})

	assert.ErrorIs(t, err, sqlErr)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_GivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetry, nil, "probe", func() (int, error) {
		calls++
		return 0, syscall.ECONNREFUSED
	})

	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxTries: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}

	calls := 0
	_, err := withRetry(ctx, policy, nil, "probe", func() (int, error) {
		calls++
		cancel()
		return 0, syscall.ECONNREFUSED
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
