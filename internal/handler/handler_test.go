package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufkecer/auth-backend/internal/domain"
	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/repository/memory"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/session"
)

const testSecret = "test-secret"

type linkRecorder struct {
	mu    sync.Mutex
	links []domain.ResetLink
}

func (n *linkRecorder) SendResetLink(_ context.Context, link *domain.ResetLink) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, *link)
	return nil
}

func (n *linkRecorder) last(t *testing.T) domain.ResetLink {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.links)
	return n.links[len(n.links)-1]
}

type testServer struct {
	handler  http.Handler
	notifier *linkRecorder
}

func newTestServer(t *testing.T, mutate func(*RouterConfig)) *testServer {
	t.Helper()
	notifier := &linkRecorder{}
	hasher := service.NewArgon2Hasher(service.Argon2Params{Memory: 1024, Time: 1, Threads: 1, SaltLength: 16, KeyLength: 32})
	accounts := service.NewAccountService(memory.New(), hasher, notifier, "https://accounts.example.com", 6*time.Hour)

	cfg := RouterConfig{
		Accounts:       accounts,
		Sessions:       session.NewManager(securecookie.GenerateRandomKey(32), false),
		JWTSecret:      testSecret,
		AllowedOrigins: "*",
		CSRFKey:        securecookie.GenerateRandomKey(32),
		DisableCSRF:    true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testServer{handler: NewRouter(cfg), notifier: notifier}
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookies(cookies []*http.Cookie) requestOption {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func (s *testServer) do(method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		raw, _ := json.Marshal(b)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:1234"
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decode(t, rec, &resp)
	return resp.Error
}

func register(t *testing.T, s *testServer, email, password string) domain.AuthResponse {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/auth/register", domain.RegisterRequest{Email: email, Password: password, PasswordConfirm: password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp domain.AuthResponse
	decode(t, rec, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	resp := register(t, s, "Alice@Example.com", "Password1!")
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	userID, err := middleware.ParseToken(resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "alice@example.com", "Password1!")

	tests := []struct {
		name    string
		body    domain.RegisterRequest
		status  int
		message string
	}{
		{name: "mismatch", body: domain.RegisterRequest{Email: "bob@example.com", Password: "Password1!", PasswordConfirm: "Password2!"}, status: http.StatusConflict, message: "passwords do not match"},
		{name: "duplicate", body: domain.RegisterRequest{Email: "alice@example.com", Password: "Password1!", PasswordConfirm: "Password1!"}, status: http.StatusConflict, message: "email already exists"},
		{name: "short password", body: domain.RegisterRequest{Email: "bob@example.com", Password: "short", PasswordConfirm: "short"}, status: http.StatusBadRequest, message: "Password must be at least 8 characters"},
		{name: "bad email", body: domain.RegisterRequest{Email: "bob", Password: "Password1!", PasswordConfirm: "Password1!"}, status: http.StatusBadRequest, message: "Email is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/auth/register", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorOf(t, rec))
		})
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_Form(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/v1/auth/register", url.Values{
		"email":           {"carol@example.com"},
		"password":        {"Password1!"},
		"passwordConfirm": {"Password1!"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "alice@example.com", "Password1!")

	rec := s.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Email: "alice@example.com", Password: "Password1!"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.AuthResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Email: "alice@example.com", Password: "WrongPass1!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", errorOf(t, rec))
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) {
		cfg.LoginLimiter = middleware.NewRateLimiter(2, time.Minute)
	})

	body := domain.LoginRequest{Email: "alice@example.com", Password: "Password1!"}
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/auth/login", body).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/auth/login", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/v1/auth/login", body).Code)
}

func TestMe_BearerAndSession(t *testing.T) {
	s := newTestServer(t, nil)
	auth := register(t, s, "alice@example.com", "Password1!")

	rec := s.do(http.MethodGet, "/api/v1/me", nil, withHeader("Authorization", "Bearer "+auth.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	var user domain.User
	decode(t, rec, &user)
	assert.Equal(t, auth.User.ID, user.ID)
	assert.NotContains(t, rec.Body.String(), "argon2id")

	login := s.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Email: "alice@example.com", Password: "Password1!"})
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()

	rec = s.do(http.MethodGet, "/api/v1/me", nil, withCookies(cookies))
	assert.Equal(t, http.StatusOK, rec.Code)

	logout := s.do(http.MethodPost, "/api/v1/auth/logout", nil, withCookies(cookies))
	require.Equal(t, http.StatusOK, logout.Code)

	rec = s.do(http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPassword_UnknownUser(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/v1/auth/forgot-password", domain.ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", errorOf(t, rec))
}

func TestResetStatus(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "alice@example.com", "Password1!")
	rec := s.do(http.MethodPost, "/api/v1/auth/forgot-password", domain.ForgotPasswordRequest{Email: "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	link := s.notifier.last(t)

	rec = s.do(http.MethodGet, "/api/v1/auth/reset-password/"+link.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.ResetStatusResponse
	decode(t, rec, &status)
	assert.Equal(t, domain.ResetStatusIssued, status.Status)
	assert.Equal(t, "alice@example.com", status.Email)
	assert.True(t, link.ExpiresAt.Equal(status.ExpiresAt))

	rec = s.do(http.MethodGet, "/api/v1/auth/reset-password/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPassword_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/v1/auth/reset-password", domain.ResetPasswordInput{Password: "NewPass1!", PasswordConfirm: "NewPass1!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reset token is required", errorOf(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/auth/reset-password", domain.ResetPasswordInput{ResetToken: "abc", Password: "NewPass1!", PasswordConfirm: "NewPass2!"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/reset-password", domain.ResetPasswordInput{ResetToken: "abc", Password: "NewPass1!", PasswordConfirm: "NewPass1!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid reset token", errorOf(t, rec))
}

// TestAliceEndToEnd walks the whole flow: register, request a reset, use
// the delivered link, then log in with the new password only.
func TestAliceEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "alice@example.com", "Password1!")

	rec := s.do(http.MethodPost, "/api/v1/auth/forgot-password", domain.ForgotPasswordRequest{Email: "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	link := s.notifier.last(t)
	require.True(t, strings.HasSuffix(link.URL, "/forgot-password/"+link.Token))

	rec = s.do(http.MethodPost, "/api/v1/auth/reset-password", domain.ResetPasswordInput{
		ResetToken:      link.Token,
		Password:        "NewPass1!",
		PasswordConfirm: "NewPass1!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Email: "alice@example.com", Password: "Password1!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Email: "alice@example.com", Password: "NewPass1!"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/reset-password", domain.ResetPasswordInput{
		ResetToken:      link.Token,
		Password:        "Attacker1!",
		PasswordConfirm: "Attacker1!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "replayed token must be rejected")

	rec = s.do(http.MethodGet, "/api/v1/auth/reset-password/"+link.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCSRF(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) {
		cfg.DisableCSRF = false
	})
	body := domain.LoginRequest{Email: "alice@example.com", Password: "Password1!"}

	rec := s.do(http.MethodPost, "/api/v1/auth/login", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid CSRF token", errorOf(t, rec))

	tokenResp := s.do(http.MethodGet, "/api/v1/auth/csrf", nil)
	require.Equal(t, http.StatusOK, tokenResp.Code)
	token := tokenResp.Header().Get(CSRFTokenHeader)
	require.NotEmpty(t, token)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", body,
		withCookies(tokenResp.Result().Cookies()),
		withHeader(CSRFTokenHeader, token),
	)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "request passes CSRF and reaches the handler")

	rec = s.do(http.MethodGet, "/api/v1/auth/reset-password/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reads are not CSRF protected")
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) {
		cfg.APIKey = "k"
	})

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/auth/reset-password/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/auth/reset-password/abc", nil, withHeader("X-API-Key", "k")).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil).Code, "health is not gated")
}
