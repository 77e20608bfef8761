package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/identity/internal/domain"
)

// TestScenario_RegisterVerifyLoginRefresh walks one account through the whole
// lifecycle against the real service, codec, hasher and Redis session store.
func TestScenario_RegisterVerifyLoginRefresh(t *testing.T) {
	ts := newTestServer(t)

	// Register.
	account := ts.register(t, "alice", "alice@example.com", "correct-horse")
	assert.False(t, account.IsVerified)

	// Login is refused until the email is confirmed.
	rec := ts.postForm("/auth/login", url.Values{"email": {"alice@example.com"}, "password": {"correct-horse"}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Follow the emailed link.
	msg := ts.notifier.messages[0]
	assert.Equal(t, "Confirm email", msg.Subject)
	assert.Contains(t, msg.Body, testBaseURL+"/auth/verify-email?token=")
	token := ts.notifier.tokenFor(t, "alice@example.com")

	rec = ts.get("/auth/verify-email?token="+token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[domain.PublicAccount](t, rec).IsVerified)

	// Login.
	pair := ts.login(t, "alice@example.com", "correct-horse")
	stored, err := ts.mr.Get("refresh_token:1")
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, stored)

	// Refresh yields a new pair and replaces the stored token.
	rec = ts.get("/auth/refresh", pair.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeData[domain.TokenPair](t, rec)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	stored, err = ts.mr.Get("refresh_token:1")
	require.NoError(t, err)
	assert.Equal(t, next.RefreshToken, stored)

	// The new access token authenticates the caller.
	rec = ts.get("/users/me", next.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, account.ID, decodeData[domain.PublicAccount](t, rec).ID)
}

func TestRouter_APIResponsesAreNotCached(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "alice@example.com", "correct-horse")
	ts.verify(t, "alice@example.com")

	rec := ts.postForm("/auth/login", url.Values{"email": {"alice@example.com"}, "password": {"correct-horse"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRouter_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "alice@example.com", "correct-horse")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "identity_auth_operations_total")
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, testAPIPrefix+"/auth/register", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := ts.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CorrelationIDEchoedInErrors(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, testAPIPrefix+"/users/me", nil)
	req.Header.Set("X-Correlation-ID", "corr-e2e")
	rec := ts.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "corr-e2e", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "corr-e2e", decodeError(t, rec).RequestID)
}

func TestRouter_UnknownRoute_Returns404(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
