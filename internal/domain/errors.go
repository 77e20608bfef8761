package domain

import (
	"fmt"

	apperrors "github.com/utafrali/identity/pkg/errors"
)

// Failure kinds of the identity and session lifecycle. Each wraps the
// pkg/errors kind it belongs to. Service operations wrap these in an
// apperrors.AppError carrying the user-facing status and message.
var (
	ErrDuplicateEmail     = fmt.Errorf("account with this email already exists: %w", apperrors.ErrAlreadyExists)
	ErrAccountNotFound    = fmt.Errorf("account not found: %w", apperrors.ErrNotFound)
	ErrAccountNotVerified = fmt.Errorf("account email is not verified: %w", apperrors.ErrForbidden)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", apperrors.ErrUnauthorized)
	ErrNoActiveSession    = fmt.Errorf("no active session: %w", apperrors.ErrForbidden)
	ErrSessionMismatch    = fmt.Errorf("refresh token does not match the active session: %w", apperrors.ErrForbidden)
	ErrInvalidTokenType   = fmt.Errorf("invalid token type: %w", apperrors.ErrForbidden)
	ErrPermissionDenied   = fmt.Errorf("permission denied: %w", apperrors.ErrForbidden)
)
