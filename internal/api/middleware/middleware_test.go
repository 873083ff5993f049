package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/appauth/internal/api/middleware"
	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/session"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/internal/store/memstore"
	"github.com/kiranshivaraju/appauth/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock credentials ---

type mockCreds struct {
	users map[string]*models.User // "name:password" or token -> user
	err   error
	calls []string
}

func (m *mockCreds) Password(_ context.Context, name, password string) (*models.User, error) {
	m.calls = append(m.calls, "password:"+name)
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[name+":"+password]; ok {
		return u, nil
	}
	return nil, auth.ErrNotAuthenticated
}

func (m *mockCreds) APIKey(_ context.Context, token string) (*models.User, error) {
	m.calls = append(m.calls, "apikey")
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, auth.ErrNotAuthenticated
}

// --- mock sessions ---

type mockSessions struct {
	results map[string]*session.Result
	err     error
}

func (m *mockSessions) Validate(_ context.Context, cookie string) (*session.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	if res, ok := m.results[cookie]; ok {
		return res, nil
	}
	return nil, auth.ErrNotAuthenticated
}

// --- mock permissions ---

type mockPerms struct {
	granted map[string]bool
	err     error
}

func (m *mockPerms) Require(_ context.Context, _ *models.User, perm string) error {
	if m.err != nil {
		return m.err
	}
	if !m.granted[perm] {
		return authz.ErrForbidden
	}
	return nil
}

// --- mock cache ---

type mockCache struct {
	counter int64
	err     error
	keys    []string
}

func (m *mockCache) Ping(_ context.Context) error { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.keys = append(m.keys, key)
	m.counter++
	return m.counter, m.err
}
func (m *mockCache) Count(_ context.Context, _ string) (int64, error) {
	return m.counter, m.err
}
func (m *mockCache) AcquireLock(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	return "", false, nil
}
func (m *mockCache) ReleaseLock(_ context.Context, _, _ string) (bool, error) { return false, nil }
func (m *mockCache) Members(_ context.Context, _ string) ([]string, error)    { return nil, nil }
func (m *mockCache) SetMembers(_ context.Context, _ string, _ []string) error { return nil }

var _ cache.Cache = (*mockCache)(nil)

// --- failing tx ---

type failingTx struct{ err error }

func (f failingTx) WithTx(_ context.Context, _ func(ctx context.Context) error) error { return f.err }

var _ store.TxRunner = failingTx{}

// --- helpers ---

var (
	alice   = &models.User{ID: 1, Name: "alice"}
	cookies = mw.Cookies{Name: "appauth_session"}
)

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// whoHandler echoes the authenticated user and method.
func whoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := mw.GetUser(r)
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(u.Name + "/" + mw.GetAuthMethod(r)))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func newAuth(creds *mockCreds, sessions *mockSessions, perms *mockPerms) *mw.Auth {
	return mw.NewAuth(memstore.New(), creds, sessions, perms, cookies)
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_NoCredentials(t *testing.T) {
	a := newAuth(&mockCreds{}, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", errBody(t, w)["code"])
}

func TestAuth_UnknownScheme(t *testing.T) {
	creds := &mockCreds{}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Digest abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, creds.calls)
}

func TestAuth_BearerKey(t *testing.T) {
	creds := &mockCreds{users: map[string]*models.User{"abc-def": alice}}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(whoHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "bearer abc-def")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice/api_key", w.Body.String())
}

func TestAuth_BearerWrongKey(t *testing.T) {
	creds := &mockCreds{users: map[string]*models.User{"abc-def": alice}}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer abc-xyz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", errBody(t, w)["code"])
}

func TestAuth_BasicPassword(t *testing.T) {
	creds := &mockCreds{users: map[string]*models.User{"alice:pw": alice}}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(whoHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.SetBasicAuth("alice", "pw")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice/password", w.Body.String())
}

func TestAuth_MalformedBasic(t *testing.T) {
	creds := &mockCreds{}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic !!!notbase64")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, creds.calls)
}

func TestAuth_HeaderTakesPrecedenceOverCookie(t *testing.T) {
	creds := &mockCreds{}
	sessions := &mockSessions{results: map[string]*session.Result{
		"good": {Session: &models.Session{ID: 1}, User: alice},
	}}
	a := newAuth(creds, sessions, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer bad-key")
	req.AddCookie(&http.Cookie{Name: cookies.Name, Value: "good"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_SessionCookie(t *testing.T) {
	sessions := &mockSessions{results: map[string]*session.Result{
		"c1": {Session: &models.Session{ID: 1}, User: alice},
	}}
	a := newAuth(&mockCreds{}, sessions, &mockPerms{})
	handler := a.Authenticate(whoHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: cookies.Name, Value: "c1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice/session", w.Body.String())
	assert.Empty(t, w.Result().Cookies())
}

func TestAuth_SessionCookieRotated(t *testing.T) {
	sessions := &mockSessions{results: map[string]*session.Result{
		"old": {Session: &models.Session{ID: 1}, User: alice, NextCookie: "new"},
	}}
	a := newAuth(&mockCreds{}, sessions, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: cookies.Name, Value: "old"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	set := w.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, cookies.Name, set[0].Name)
	assert.Equal(t, "new", set[0].Value)
	assert.True(t, set[0].HttpOnly)
	assert.True(t, set[0].Secure)
}

func TestAuth_StorageError(t *testing.T) {
	creds := &mockCreds{err: errors.New("db down")}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer abc-def")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestAuth_TransactionError(t *testing.T) {
	a := mw.NewAuth(failingTx{err: errors.New("begin failed")}, &mockCreds{}, &mockSessions{}, &mockPerms{}, cookies)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: cookies.Name, Value: "c1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuth_RequirePermission_Allowed(t *testing.T) {
	a := newAuth(&mockCreds{}, &mockSessions{}, &mockPerms{granted: map[string]bool{"admin": true}})
	handler := a.RequirePermission("admin")(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(mw.SetUser(req.Context(), alice))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_RequirePermission_Denied(t *testing.T) {
	a := newAuth(&mockCreds{}, &mockSessions{}, &mockPerms{granted: map[string]bool{"view": true}})
	handler := a.RequirePermission("admin")(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(mw.SetUser(req.Context(), alice))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
}

func TestAuth_RequirePermission_Unauthenticated(t *testing.T) {
	a := newAuth(&mockCreds{}, &mockSessions{}, &mockPerms{granted: map[string]bool{"admin": true}})
	handler := a.RequirePermission("admin")(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", errBody(t, w)["code"])
}

func TestAuth_RequirePermission_ResolverError(t *testing.T) {
	a := newAuth(&mockCreds{}, &mockSessions{}, &mockPerms{err: errors.New("redis down")})
	handler := a.RequirePermission("admin")(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(mw.SetUser(req.Context(), alice))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withUser(r *http.Request) *http.Request {
	return r.WithContext(mw.SetUser(r.Context(), alice))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withUser(httptest.NewRequest("GET", "/test", nil)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:user:1"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	rl := mw.NewRateLimit(mc, 60, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withUser(httptest.NewRequest("GET", "/test", nil)))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_NoUser_PassThrough(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 1, 1)
	handler := rl.Limit(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withUser(httptest.NewRequest("GET", "/test", nil)))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_LoginByClientIP(t *testing.T) {
	mc := &mockCache{counter: 10}
	rl := mw.NewRateLimit(mc, 60, 10)
	handler := rl.LimitLogin(okHandler())

	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, []string{"ratelimit:login:10.1.2.3"}, mc.keys)
}

func TestRateLimit_FailedAuthBlocksAfterBudget(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, 3)
	creds := &mockCreds{users: map[string]*models.User{"alice:pw": alice}}
	handler := rl.LimitFailedAuth(newAuth(creds, &mockSessions{}, &mockPerms{}).Authenticate(whoHandler()))

	var codes []int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/me", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		req.SetBasicAuth("alice", "guess")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{401, 401, 401, 429, 429}, codes)
	assert.Equal(t, []string{"ratelimit:authfail:10.1.2.3", "ratelimit:authfail:10.1.2.3", "ratelimit:authfail:10.1.2.3"}, mc.keys)
	assert.Len(t, creds.calls, 3, "blocked attempts must not reach the authenticator")

	// The correct password is refused too until the window expires.
	req := httptest.NewRequest("GET", "/me", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.SetBasicAuth("alice", "pw")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimit_FailedAuthIgnoresSuccesses(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, 1)
	creds := &mockCreds{users: map[string]*models.User{"alice:pw": alice}}
	handler := rl.LimitFailedAuth(newAuth(creds, &mockSessions{}, &mockPerms{}).Authenticate(whoHandler()))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/me", nil)
		req.SetBasicAuth("alice", "pw")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, mc.keys)
}

func TestRateLimit_FailedAuthSkipsRequestsWithoutHeader(t *testing.T) {
	mc := &mockCache{counter: 100}
	rl := mw.NewRateLimit(mc, 60, 1)
	handler := rl.LimitFailedAuth(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

func TestRateLimit_LoginKeysOnSocketPeer(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, 10)
	handler := rl.LimitLogin(okHandler())

	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-IP", "203.0.113.8")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"ratelimit:login:10.1.2.3"}, mc.keys)
}

// ========================================
// Cookie Tests
// ========================================

func TestCookies_SetClearRead(t *testing.T) {
	w := httptest.NewRecorder()
	cookies.Set(w, "v1")
	set := w.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, "v1", set[0].Value)
	assert.Equal(t, "/", set[0].Path)
	assert.Equal(t, http.SameSiteStrictMode, set[0].SameSite)

	w = httptest.NewRecorder()
	cookies.Clear(w)
	set = w.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, -1, set[0].MaxAge)

	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", cookies.Read(req))
	req.AddCookie(&http.Cookie{Name: cookies.Name, Value: "v2"})
	assert.Equal(t, "v2", cookies.Read(req))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestLogger_AssignsRequestID(t *testing.T) {
	var seen string
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(mw.RequestIDHeader))
}

func TestLogger_ReusesWellFormedRequestID(t *testing.T) {
	handler := mw.Logger(okHandler())
	const id = "6f1c2b9e-3a4d-4e5f-8a7b-1c2d3e4f5a6b"

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(mw.RequestIDHeader, id)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(mw.RequestIDHeader))

	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(mw.RequestIDHeader, "<script>")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Header().Get(mw.RequestIDHeader))
}

func TestLogger_RecordsIdentityNotSecret(t *testing.T) {
	logs := captureLogs(t)
	creds := &mockCreds{users: map[string]*models.User{"abc-topsecret": alice}}
	a := newAuth(creds, &mockSessions{}, &mockPerms{})
	handler := mw.Logger(a.Authenticate(whoHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer abc-topsecret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	out := logs.String()
	assert.Contains(t, out, `"user_id":1`)
	assert.Contains(t, out, `"auth_method":"api_key"`)
	assert.NotContains(t, out, "topsecret")
}

func TestLogger_AnonymousRequestHasNoIdentity(t *testing.T) {
	logs := captureLogs(t)
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, logs.String(), `"path":"/health"`)
	assert.NotContains(t, logs.String(), "user_id")
}

func TestRecovery_LogsRequestID(t *testing.T) {
	logs := captureLogs(t)
	handler := mw.Logger(mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), `"request_id":"`+w.Header().Get(mw.RequestIDHeader)+`"`)
}
