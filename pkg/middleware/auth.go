package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/httputil"
	"github.com/utafrali/identity/pkg/logger"
)

type claimsKey struct{}

// Claims is what Auth learns about the caller.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
}

// TokenValidator turns a bearer credential into claims. A returned
// *apperrors.AppError decides the status and code the client sees; any other
// error is answered with 401.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

var (
	errNotAuthenticated = apperrors.New(http.StatusForbidden, "NOT_AUTHENTICATED", "not authenticated", apperrors.ErrUnauthorized)
	errInvalidToken     = apperrors.New(http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", apperrors.ErrUnauthorized)
)

// BearerToken returns the credential of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token. A missing header is a
// 403, matching what the API has always answered for anonymous callers.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, r, errNotAuthenticated)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				var appErr *apperrors.AppError
				if !errors.As(err, &appErr) {
					appErr = errInvalidToken
				}
				writeAuthError(w, r, appErr)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", claims.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims Auth stored, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return ""
}

// TokenTypeFromContext returns the authenticated token type or "".
func TokenTypeFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.TokenType
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err *apperrors.AppError) {
	httputil.WriteJSON(w, err.Status, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:      err.Code,
			Message:   err.Message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}
