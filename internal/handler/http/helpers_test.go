package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/identity/internal/auth"
	"github.com/utafrali/identity/internal/domain"
	"github.com/utafrali/identity/internal/notify"
	redisstore "github.com/utafrali/identity/internal/repository/redis"
	"github.com/utafrali/identity/internal/service"
	"github.com/utafrali/identity/pkg/health"
	"github.com/utafrali/identity/pkg/httputil"
	"github.com/utafrali/identity/pkg/middleware"
)

const (
	testAPIPrefix = "/api/v1"
	testBaseURL   = "http://identity.test/api/v1"
	testAdmin     = "admin@example.com"
)

// ============================================================================
// In-memory account directory
// ============================================================================

type memAccountRepository struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*domain.Account
}

func newMemAccountRepository() *memAccountRepository {
	return &memAccountRepository{accounts: make(map[int64]*domain.Account)}
}

func (m *memAccountRepository) Create(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Email == account.Email {
			return domain.ErrDuplicateEmail
		}
	}

	m.nextID++
	now := time.Now().UTC()
	account.ID = m.nextID
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	m.accounts[account.ID] = &stored
	return nil
}

func (m *memAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Email == email {
			found := *a
			return &found, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memAccountRepository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	found := *a
	return &found, nil
}

func (m *memAccountRepository) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.IsVerified = true
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memAccountRepository) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memAccountRepository) List(_ context.Context, offset, limit int) ([]domain.Account, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if offset >= total {
		return []domain.Account{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// ============================================================================
// Notification capture
// ============================================================================

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *captureNotifier) Dispatch(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

// tokenFor returns the verification token from the last message sent to email.
func (n *captureNotifier) tokenFor(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.messages) - 1; i >= 0; i-- {
		msg := n.messages[i]
		if msg.To != email {
			continue
		}
		idx := strings.Index(msg.Body, "http")
		require.GreaterOrEqual(t, idx, 0, "no link in %q", msg.Body)
		u, err := url.Parse(msg.Body[idx:])
		require.NoError(t, err)
		return u.Query().Get("token")
	}
	t.Fatalf("no message sent to %s", email)
	return ""
}

// ============================================================================
// Test server
// ============================================================================

type testServer struct {
	handler  http.Handler
	accounts *memAccountRepository
	notifier *captureNotifier
	codec    *auth.TokenCodec
	mr       *miniredis.Miniredis
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	codec, err := auth.NewTokenCodec(auth.CodecConfig{
		Secret:          "handler-test-secret-with-enough-entropy",
		Algorithm:       "HS256",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      24 * time.Hour,
		VerificationTTL: time.Hour,
	})
	require.NoError(t, err)

	ts := &testServer{
		accounts: newMemAccountRepository(),
		notifier: &captureNotifier{},
		codec:    codec,
		mr:       mr,
	}

	svc := service.NewIdentityService(
		ts.accounts,
		redisstore.NewSessionStore(client),
		auth.NewPasswordHasher(bcrypt.MinCost),
		codec,
		ts.notifier,
		service.Config{
			PublicBaseURL:      testBaseURL,
			StrictRefreshMatch: true,
			AdminEmails:        []string{testAdmin},
		},
		testLogger(),
	)

	ts.handler = NewRouter(svc, health.NewHandler(), testLogger(), RouterConfig{
		APIPrefix: testAPIPrefix,
		CORS:      middleware.DefaultCORSConfig(),
	})
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, testAPIPrefix+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func (ts *testServer) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, testAPIPrefix+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func (ts *testServer) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, testAPIPrefix+path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ts.do(req)
}

func (ts *testServer) delete(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, testAPIPrefix+path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ts.do(req)
}

func (ts *testServer) register(t *testing.T, name, email, password string) domain.PublicAccount {
	t.Helper()
	rec := ts.postJSON(t, "/auth/register", RegisterRequest{
		Name:      name,
		Email:     email,
		AvatarURL: "https://cdn.example.com/avatars/" + name + ".png",
		Password:  password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[domain.PublicAccount](t, rec)
}

func (ts *testServer) verify(t *testing.T, email string) {
	t.Helper()
	rec := ts.get("/auth/verify-email?token="+url.QueryEscape(ts.notifier.tokenFor(t, email)), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) login(t *testing.T, email, password string) domain.TokenPair {
	t.Helper()
	rec := ts.postForm("/auth/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[domain.TokenPair](t, rec)
}

// signUp registers, verifies and logs in an account.
func (ts *testServer) signUp(t *testing.T, name, email, password string) (domain.PublicAccount, domain.TokenPair) {
	t.Helper()
	account := ts.register(t, name, email, password)
	ts.verify(t, email)
	return account, ts.login(t, email, password)
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error, "expected error envelope, got %s", rec.Body.String())
	return resp.Error
}
