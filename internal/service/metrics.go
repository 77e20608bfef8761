package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/tracing"
)

// Operation labels.
const (
	opRegister      = "register"
	opVerifyEmail   = "verify_email"
	opLogin         = "login"
	opRefresh       = "refresh"
	opDeleteAccount = "delete_account"
)

const tracerName = "github.com/utafrali/identity/internal/service"

var authOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_auth_operations_total",
		Help: "Total number of identity operations by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// startOperation opens a span for operation. The returned func counts the
// outcome and ends the span; only server-side faults mark the span failed.
func startOperation(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "identity."+operation)
	return ctx, func(err error) {
		result := outcome(err)
		authOperationsTotal.WithLabelValues(operation, result).Inc()
		span.SetAttributes(attribute.String("identity.outcome", result))
		if serverFault(err) {
			tracing.Fail(span, err)
		}
		span.End()
	}
}

// outcome is "success" or the lower-cased error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

func serverFault(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status >= http.StatusInternalServerError
	}
	return true
}
