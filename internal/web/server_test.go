// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/internal/account/memory"
	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/token"
)

type capturedMail struct {
	mu     sync.Mutex
	verify []string
	reset  []string
}

func (m *capturedMail) SendVerification(_ context.Context, _, tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, tok)
}

func (m *capturedMail) SendPasswordReset(_ context.Context, _, tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset = append(m.reset, tok)
}

func (m *capturedMail) lastVerify(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verify)
	return m.verify[len(m.verify)-1]
}

func (m *capturedMail) lastReset(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.reset)
	return m.reset[len(m.reset)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	srv  *Server
	mail *capturedMail
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	codec, err := token.NewCodec([]byte("web-test-secret"))
	require.NoError(t, err)
	mail := &capturedMail{}
	svc, err := auth.NewServiceWithLogger(auth.Config{}, memory.NewStore(), codec, auth.NewArgon2idHasher(), mail, quietLogger())
	require.NoError(t, err)

	srv, err := NewServer(cfg, svc, quietLogger())
	require.NoError(t, err)
	return &harness{srv: srv, mail: mail}
}

type request struct {
	method  string
	path    string
	json    any
	form    url.Values
	cookies []*http.Cookie
	header  map[string]string
}

func (h *harness) do(t *testing.T, r request) *http.Response {
	t.Helper()
	return send(t, h.srv, r)
}

func send(t *testing.T, srv *Server, r request) *http.Response {
	t.Helper()
	var body io.Reader
	var contentType string
	switch {
	case r.json != nil:
		raw, err := json.Marshal(r.json)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
		contentType = "application/json"
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func detail(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[errorResponse](t, resp).Detail
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (h *harness) register(t *testing.T, email, username, password string) accountResponse {
	t.Helper()
	resp := h.do(t, request{method: http.MethodPost, path: "/register", json: map[string]string{
		"email": email, "username": username, "password": password,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[accountResponse](t, resp)
}

func (h *harness) login(t *testing.T, username, password string) (*http.Response, tokenResponse) {
	t.Helper()
	resp := h.do(t, request{method: http.MethodPost, path: "/token", form: url.Values{
		"username": {username}, "password": {password},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp, decode[tokenResponse](t, resp)
}

func TestRegister(t *testing.T) {
	h := newHarness(t, Config{})

	got := h.register(t, "alice@example.com", "alice", "secret123")
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "user", got.Role)
	assert.False(t, got.IsEmailVerified)

	tests := []struct {
		name   string
		body   map[string]string
		detail string
	}{
		{"duplicate email", map[string]string{"email": "ALICE@example.com", "username": "alice2", "password": "secret123"}, "Email already registered"},
		{"duplicate username", map[string]string{"email": "other@example.com", "username": "alice", "password": "secret123"}, "Username already taken"},
		{"bad email", map[string]string{"email": "not-an-email", "username": "bob", "password": "secret123"}, "Invalid email"},
		{"missing username", map[string]string{"email": "bob@example.com", "password": "secret123"}, "Invalid username"},
		{"short username", map[string]string{"email": "bob@example.com", "username": "ab", "password": "secret123"}, "Username must be 3-30 letters, digits, underscores or hyphens"},
		{"weak password", map[string]string{"email": "bob@example.com", "username": "bob", "password": "password"}, "Password must be at least 8 characters and contain a letter and a digit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, request{method: http.MethodPost, path: "/register", json: tt.body})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.detail, detail(t, resp))
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.srv.App().Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid request", detail(t, resp))
	})
}

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t, Config{})
	h.register(t, "alice@example.com", "alice", "secret123")
	tok := h.mail.lastVerify(t)

	resp := h.do(t, request{method: http.MethodPost, path: "/verify-email", json: map[string]string{"token": tok}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, msgVerified, decode[messageResponse](t, resp).Message)

	resp = h.do(t, request{method: http.MethodPost, path: "/verify-email", json: map[string]string{"token": tok}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", detail(t, resp))

	resp = h.do(t, request{method: http.MethodPost, path: "/verify-email", json: map[string]string{"token": "garbage"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginAndRefresh(t *testing.T) {
	h := newHarness(t, Config{CookieSecure: true})
	h.register(t, "alice@example.com", "alice", "secret123")

	resp, tok := h.login(t, "alice", "secret123")
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)

	cookie := cookieNamed(resp, RefreshCookie)
	require.NotNil(t, cookie, "refresh cookie must be set")
	assert.Equal(t, "/refresh", cookie.Path)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)

	t.Run("login by email", func(t *testing.T) {
		h.login(t, "alice@example.com", "secret123")
	})

	t.Run("rotation", func(t *testing.T) {
		first, _ := h.login(t, "alice", "secret123")
		old := cookieNamed(first, RefreshCookie)

		resp := h.do(t, request{method: http.MethodPost, path: "/refresh", cookies: []*http.Cookie{old}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		rotated := cookieNamed(resp, RefreshCookie)
		require.NotNil(t, rotated)
		assert.NotEqual(t, old.Value, rotated.Value)
		assert.NotEmpty(t, decode[tokenResponse](t, resp).AccessToken)

		replay := h.do(t, request{method: http.MethodPost, path: "/refresh", cookies: []*http.Cookie{old}})
		assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
		assert.Equal(t, "Invalid or expired refresh token", detail(t, replay))
	})

	t.Run("missing cookie", func(t *testing.T) {
		resp := h.do(t, request{method: http.MethodPost, path: "/refresh"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t, Config{})
	h.register(t, "alice@example.com", "alice", "secret123")

	var bodies []string
	for _, form := range []url.Values{
		{"username": {"alice"}, "password": {"wrong-pass1"}},
		{"username": {"nobody"}, "password": {"secret123"}},
		{"username": {"nobody@example.com"}, "password": {"secret123"}},
	} {
		resp := h.do(t, request{method: http.MethodPost, path: "/token", form: form})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(raw))
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
	assert.JSONEq(t, `{"detail":"Invalid credentials"}`, bodies[0])
}

func TestMe(t *testing.T) {
	h := newHarness(t, Config{})
	h.register(t, "alice@example.com", "alice", "secret123")
	_, tok := h.login(t, "alice", "secret123")

	resp := h.do(t, request{method: http.MethodGet, path: "/me", header: map[string]string{
		"Authorization": "Bearer " + tok.AccessToken,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", decode[accountResponse](t, resp).Username)

	resp = h.do(t, request{method: http.MethodGet, path: "/me"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, request{method: http.MethodGet, path: "/me", header: map[string]string{"Authorization": "Basic abc"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, Config{})
	h.register(t, "alice@example.com", "alice", "secret123")
	loginResp, _ := h.login(t, "alice", "secret123")
	refresh := cookieNamed(loginResp, RefreshCookie)

	resp := h.do(t, request{method: http.MethodPost, path: "/logout", cookies: []*http.Cookie{refresh}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cleared := map[string]string{}
	for _, c := range resp.Cookies() {
		assert.Empty(t, c.Value)
		assert.True(t, c.Expires.Before(time.Now()), "cookie %s must be expired", c.Name)
		cleared[c.Name] = c.Path
	}
	assert.Equal(t, "/refresh", cleared[RefreshCookie])
	assert.Contains(t, cleared, CSRFCookie)

	resp = h.do(t, request{method: http.MethodPost, path: "/refresh", cookies: []*http.Cookie{refresh}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "logout revokes the refresh token")

	t.Run("without a session", func(t *testing.T) {
		resp := h.do(t, request{method: http.MethodPost, path: "/logout"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t, Config{})
	h.register(t, "alice@example.com", "alice", "secret123")

	known := h.do(t, request{method: http.MethodPost, path: "/request-password-reset", json: map[string]string{"email": "alice@example.com"}})
	unknown := h.do(t, request{method: http.MethodPost, path: "/request-password-reset", json: map[string]string{"email": "ghost@example.com"}})
	assert.Equal(t, http.StatusOK, known.StatusCode)
	assert.Equal(t, http.StatusOK, unknown.StatusCode)
	knownBody, err := io.ReadAll(known.Body)
	require.NoError(t, err)
	unknownBody, err := io.ReadAll(unknown.Body)
	require.NoError(t, err)
	assert.Equal(t, knownBody, unknownBody, "responses must not reveal whether the email exists")
	assert.JSONEq(t, `{"message":"`+msgResetSent+`"}`, string(knownBody))

	tok := h.mail.lastReset(t)

	resp := h.do(t, request{method: http.MethodPost, path: "/reset-password", json: map[string]string{
		"token": tok, "password": "newpass123", "confirm_password": "newpass124",
	}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Passwords do not match", detail(t, resp))

	resp = h.do(t, request{method: http.MethodPost, path: "/reset-password", json: map[string]string{
		"token": tok, "password": "newpass123", "confirm_password": "newpass123",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, request{method: http.MethodPost, path: "/reset-password", json: map[string]string{
		"token": tok, "password": "another123", "confirm_password": "another123",
	}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "reset tokens are single use")

	h.login(t, "alice", "newpass123")
}

func TestCSRF(t *testing.T) {
	h := newHarness(t, Config{CSRFEnforce: true})

	resp := h.do(t, request{method: http.MethodGet, path: "/csrf-token"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[csrfResponse](t, resp)
	assert.Len(t, body.CSRFToken, 64)

	cookie := cookieNamed(resp, CSRFCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, body.CSRFToken, cookie.Value)
	assert.Equal(t, 8*60*60, cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.HttpOnly)

	reg := map[string]string{"email": "alice@example.com", "username": "alice", "password": "secret123"}

	resp = h.do(t, request{method: http.MethodPost, path: "/register", json: reg})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF token missing or invalid", detail(t, resp))

	resp = h.do(t, request{method: http.MethodPost, path: "/register", json: reg,
		cookies: []*http.Cookie{cookie},
		header:  map[string]string{CSRFHeader: strings.Repeat("0", 64)},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, request{method: http.MethodPost, path: "/register", json: reg,
		cookies: []*http.Cookie{cookie},
		header:  map[string]string{CSRFHeader: body.CSRFToken},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, request{method: http.MethodGet, path: "/ping"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "safe methods skip the check")
}

func TestCORS(t *testing.T) {
	h := newHarness(t, Config{CORSOrigins: []string{"https://app.example.com"}})

	resp := h.do(t, request{method: http.MethodOptions, path: "/token", header: map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = h.do(t, request{method: http.MethodGet, path: "/ping", header: map[string]string{"Origin": "https://evil.example.com"}})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig(t *testing.T) {
	wild := corsConfig([]string{"*"})
	assert.Equal(t, "*", wild.AllowOrigins)
	assert.False(t, wild.AllowCredentials)

	listed := corsConfig([]string{"http://localhost:5173", "https://app.example.com"})
	assert.Equal(t, "http://localhost:5173,https://app.example.com", listed.AllowOrigins)
	assert.True(t, listed.AllowCredentials)
}

func TestRateLimiter(t *testing.T) {
	h := newHarness(t, Config{RateLimiter: NewRateLimiter(2, time.Minute)})

	for range 2 {
		resp := h.do(t, request{method: http.MethodGet, path: "/ping"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := h.do(t, request{method: http.MethodGet, path: "/ping"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests", detail(t, resp))
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, Config{BodyLimit: 64})
	resp := h.do(t, request{method: http.MethodPost, path: "/request-password-reset", json: map[string]string{
		"email": strings.Repeat("a", 100) + "@example.com",
	}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, Config{})
	resp := h.do(t, request{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, detail(t, resp))
}

func TestNewServer_RequiresFlows(t *testing.T) {
	_, err := NewServer(Config{}, nil, nil)
	require.Error(t, err)
}

func TestServer_StartStop(t *testing.T) {
	h := newHarness(t, Config{Addr: "127.0.0.1:0"})

	errCh, err := h.srv.Start()
	require.NoError(t, err)
	_, err = h.srv.Start()
	require.Error(t, err, "second start must fail")

	resp, err := http.Get("http://" + h.srv.Addr() + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Stop(ctx))
	require.NoError(t, h.srv.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected serve error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}
