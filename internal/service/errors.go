package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/utafrali/identity/internal/auth"
	"github.com/utafrali/identity/internal/domain"
	apperrors "github.com/utafrali/identity/pkg/errors"
)

// User-facing error codes carried by service errors.
const (
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeAccountNotVerified = "ACCOUNT_NOT_VERIFIED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNoActiveSession    = "NO_ACTIVE_SESSION"
	CodeSessionMismatch    = "SESSION_MISMATCH"
	CodeInvalidTokenType   = "INVALID_TOKEN_TYPE"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalid       = "INVALID_TOKEN"
	CodeTokenMalformed     = "MALFORMED_TOKEN"
	CodePermissionDenied   = "FORBIDDEN"
)

func errDuplicateEmail() error {
	return apperrors.New(http.StatusConflict, CodeDuplicateEmail, "user with this email already exists", domain.ErrDuplicateEmail)
}

func errAccountNotFound(message string) error {
	return apperrors.New(http.StatusNotFound, CodeAccountNotFound, message, domain.ErrAccountNotFound)
}

func errAccountNotVerified() error {
	return apperrors.New(http.StatusForbidden, CodeAccountNotVerified, "user email is not verified", domain.ErrAccountNotVerified)
}

func errInvalidCredentials() error {
	return apperrors.New(http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password", domain.ErrInvalidCredentials)
}

func errNoActiveSession() error {
	return apperrors.New(http.StatusForbidden, CodeNoActiveSession, "no active session, log in again", domain.ErrNoActiveSession)
}

func errSessionMismatch() error {
	return apperrors.New(http.StatusForbidden, CodeSessionMismatch, "refresh token has been superseded", domain.ErrSessionMismatch)
}

func errInvalidTokenType(want auth.TokenType) error {
	return apperrors.New(http.StatusForbidden, CodeInvalidTokenType, "expected a token of type "+string(want), domain.ErrInvalidTokenType)
}

func errPermissionDenied() error {
	return apperrors.New(http.StatusForbidden, CodePermissionDenied, "you are not allowed to perform this action", domain.ErrPermissionDenied)
}

// tokenError maps a codec failure to a user-facing error. Malformed tokens
// get malformedStatus; expired and badly signed tokens are always 401.
func tokenError(err error, malformedStatus int) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return apperrors.New(http.StatusUnauthorized, CodeTokenExpired, "token has expired", err)
	case errors.Is(err, auth.ErrTokenMalformed):
		return apperrors.New(malformedStatus, CodeTokenMalformed, "token is malformed", err)
	default:
		return apperrors.New(http.StatusUnauthorized, CodeTokenInvalid, "could not validate token", err)
	}
}

// storageFault logs a storage failure with its operation and returns an error
// safe to surface to callers.
func (s *IdentityService) storageFault(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "storage operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Storage(op, err)
}
