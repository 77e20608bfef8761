package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/logger"
	"github.com/utafrali/identity/pkg/validator"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func requestWithCorrelation(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	return req.WithContext(logger.WithCorrelationID(req.Context(), id))
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, http.StatusCreated, Response{Data: map[string]int64{"id": 7}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":7}}`, rec.Body.String())
}

func TestWriteError_AppErrorKeepsCodeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("login: %w", apperrors.New(http.StatusForbidden, "ACCOUNT_NOT_VERIFIED", "user email is not verified", nil))

	WriteError(rec, requestWithCorrelation("corr-7"), err, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ACCOUNT_NOT_VERIFIED", resp.Error.Code)
	assert.Equal(t, "user email is not verified", resp.Error.Message)
	assert.Equal(t, "corr-7", resp.Error.RequestID)
	assert.Nil(t, resp.Data)
}

func TestWriteError_ValidationError(t *testing.T) {
	type body struct {
		Email string `json:"email" validate:"required,email"`
	}
	verr := validator.Validate(body{Email: "nope"})
	require.Error(t, verr)
	rec := httptest.NewRecorder()

	WriteError(rec, requestWithCorrelation("corr-v"), verr, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, map[string]string{"email": "must be a valid email address"}, resp.Error.Fields)
	assert.Equal(t, "corr-v", resp.Error.RequestID)
}

func TestWriteError_StorageFault_HidesDriverDetailAndLogs(t *testing.T) {
	var buf bytes.Buffer
	fallback := logger.NewWithWriter("identity", "info", &buf)
	rec := httptest.NewRecorder()
	err := apperrors.Storage("get account", errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	WriteError(rec, requestWithCorrelation("corr-s"), err, fallback)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "STORAGE_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "10.0.0.5")

	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), `"correlation_id":"corr-s"`)
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	var fallbackBuf, requestBuf bytes.Buffer
	fallback := logger.NewWithWriter("identity", "info", &fallbackBuf)
	reqLogger := logger.NewWithWriter("identity", "info", &requestBuf)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.NewContext(req.Context(), reqLogger))

	WriteError(httptest.NewRecorder(), req, errors.New("boom"), fallback)

	assert.Empty(t, fallbackBuf.String())
	assert.Contains(t, requestBuf.String(), "boom")
}

func TestWriteError_ClientErrorsAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := httptest.NewRecorder()

	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperrors.InvalidInput("page must be positive"), slog.New(slog.NewJSONHandler(&buf, nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page must be positive", decodeEnvelope(t, rec).Error.Message)
	assert.Empty(t, buf.String())
}
