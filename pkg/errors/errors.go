package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels shared across layers. Domain errors wrap these so transport code
// can classify failures without importing the domain.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrStorage       = errors.New("storage error")
	ErrTimeout       = errors.New("operation timed out")
)

const internalMessage = "an internal error occurred"

// AppError is an error with the status, code and message a client sees.
// Err keeps the cause for errors.Is and for logs.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError. cause is usually a domain sentinel.
func New(status int, code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

// InvalidInput creates a 400 error whose message is shown to the client.
func InvalidInput(message string) *AppError {
	return New(http.StatusBadRequest, "INVALID_INPUT", message, ErrInvalidInput)
}

// Internal hides err behind a generic 500.
func Internal(err error) *AppError {
	return New(http.StatusInternalServerError, "INTERNAL_ERROR", internalMessage, err)
}

// Storage wraps a fault from the database or the session store. The message
// never carries driver detail. A deadline overrun becomes a 504; both forms
// match ErrStorage.
func Storage(op string, err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(http.StatusGatewayTimeout, "TIMEOUT", "the operation timed out",
			fmt.Errorf("%s: %w: %w: %w", op, ErrStorage, ErrTimeout, err))
	}
	return New(http.StatusInternalServerError, "STORAGE_ERROR", internalMessage,
		fmt.Errorf("%s: %w: %w", op, ErrStorage, err))
}

// Public classifies err for a client. An AppError anywhere in the chain is
// returned as is. Bare sentinels get a stock code; anything else is internal.
func Public(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "NOT_FOUND", "resource not found", err)
	case errors.Is(err, ErrAlreadyExists):
		return New(http.StatusConflict, "ALREADY_EXISTS", "resource already exists", err)
	case errors.Is(err, ErrInvalidInput):
		return New(http.StatusBadRequest, "INVALID_INPUT", err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return New(http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated", err)
	case errors.Is(err, ErrForbidden):
		return New(http.StatusForbidden, "FORBIDDEN", "forbidden", err)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return New(http.StatusGatewayTimeout, "TIMEOUT", "the operation timed out", err)
	case errors.Is(err, ErrStorage):
		return New(http.StatusInternalServerError, "STORAGE_ERROR", internalMessage, err)
	default:
		return Internal(err)
	}
}

// HTTPStatus returns the status code a client would see for err.
func HTTPStatus(err error) int {
	return Public(err).Status
}
