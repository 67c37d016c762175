package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/taskmanager/internal/security"
	"github.com/eugenenazirov/taskmanager/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router *Router
	tokens *security.TokenManager
	clock  *controllableClock
}

func setupTestRouter(t *testing.T, opts ...RouterOption) testEnv {
	t.Helper()

	clock := newControllableClock(time.Now().UTC().Truncate(time.Second))
	store := storage.NewMemoryRevocationStore(storage.WithClock(clock.Now))
	tokens, err := security.NewTokenManager("handler-test-secret",
		security.WithRevocationStore(store),
		security.WithTokenClock(clock.Now),
		security.WithLifetimes(time.Minute, time.Hour),
	)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	handler := NewHandler(tokens, WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, append([]RouterOption{WithLogging(false)}, opts...)...)

	return testEnv{router: router, tokens: tokens, clock: clock}
}

func (e testEnv) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e testEnv) accessToken(t *testing.T, identity string, fresh bool) string {
	t.Helper()

	token, err := e.tokens.CreateAccessToken(identity, fresh)
	if err != nil {
		t.Fatalf("CreateAccessToken returned error: %v", err)
	}
	return token
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", env.clock.Now(), body.Timestamp)
	}
}

func TestIdentityEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodGet, "/api/auth/identity", env.accessToken(t, "user-7", true))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Identity  string    `json:"identity"`
		Fresh     bool      `json:"fresh"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Identity != "user-7" {
		t.Fatalf("expected identity user-7, got %s", body.Identity)
	}
	if !body.Fresh {
		t.Fatalf("expected fresh token")
	}
	if want := env.clock.Now().Add(time.Minute); !body.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, body.ExpiresAt)
	}
}

func TestIdentityEndpointRequiresToken(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodGet, "/api/auth/identity", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestRefreshEndpointIssuesAccessToken(t *testing.T) {
	env := setupTestRouter(t)

	refresh, err := env.tokens.CreateRefreshToken("user-7")
	if err != nil {
		t.Fatalf("CreateRefreshToken returned error: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/refresh", refresh)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.TokenType != "Bearer" || body.ExpiresIn != 60 {
		t.Fatalf("unexpected token metadata: %+v", body)
	}

	claims, err := env.tokens.Verify(body.AccessToken, security.AccessToken)
	if err != nil {
		t.Fatalf("issued token did not verify: %v", err)
	}
	if claims.Identity() != "user-7" || claims.Fresh {
		t.Fatalf("expected non-fresh token for user-7, got %+v", claims)
	}
}

func TestRefreshEndpointRejectsAccessToken(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodPost, "/api/auth/refresh", env.accessToken(t, "user-7", false))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestRouter(t)
	token := env.accessToken(t, "user-7", false)

	rec := env.do(t, http.MethodPost, "/api/auth/logout", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/identity", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	env := setupTestRouter(t)
	token := env.accessToken(t, "user-7", false)

	env.clock.Advance(2 * time.Minute)

	rec := env.do(t, http.MethodGet, "/api/auth/identity", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	var body struct {
		Details    string `json:"details"`
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Details != "token has expired" || body.Suggestion == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestHandlersRejectRequestsWithoutClaims(t *testing.T) {
	env := setupTestRouter(t)
	handler := env.router.handler

	for name, fn := range map[string]http.HandlerFunc{
		"identity": handler.handleIdentity,
		"refresh":  handler.handleRefresh,
		"logout":   handler.handleLogout,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	env := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}
}
