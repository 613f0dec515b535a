package handler

import (
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/session"
)

const (
	maxBodyBytes = 1 << 20
	csrfMaxAge   = 86400
)

// RouterConfig carries what NewRouter wires together. Nil limiters
// disable rate limiting.
type RouterConfig struct {
	Accounts *service.AccountService
	Sessions *session.Manager

	JWTSecret      string
	APIKey         string
	AllowedOrigins string

	CSRFKey       []byte
	DisableCSRF   bool
	SecureCookies bool

	LoginLimiter          *middleware.RateLimiter
	ForgotPasswordLimiter *middleware.RateLimiter
}

func limit(rl *middleware.RateLimiter, h http.HandlerFunc) http.Handler {
	if rl == nil {
		return h
	}
	return rl.Middleware(h)
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	log.Debugf("CSRF check failed for %v: %v", r.Method, csrf.FailureReason(r))
	writeError(w, http.StatusForbidden, "invalid CSRF token")
}

// NewRouter returns the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.JWTSecret, cfg.Accounts, cfg.Sessions)
	userHandler := NewUserHandler(cfg.Accounts)

	r := mux.NewRouter()

	// Global middleware: Recovery → Logging → CORS → Security Headers → MaxBytesReader
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet, http.MethodOptions)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	// Form posts go through the CSRF protected subrouter. Clients fetch
	// the token from /auth/csrf and send it back with the cookie.
	forms := api.NewRoute().Subrouter()
	if !cfg.DisableCSRF {
		forms.Use(csrf.Protect(
			cfg.CSRFKey,
			csrf.Path("/"),
			csrf.MaxAge(csrfMaxAge),
			csrf.Secure(cfg.SecureCookies),
			csrf.RequestHeader(CSRFTokenHeader),
			csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
		))
	}

	forms.HandleFunc("/auth/csrf", authHandler.CSRF).Methods(http.MethodGet, http.MethodOptions)
	forms.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost, http.MethodOptions)
	forms.Handle("/auth/login", limit(cfg.LoginLimiter, authHandler.Login)).Methods(http.MethodPost, http.MethodOptions)
	forms.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost, http.MethodOptions)
	forms.Handle("/auth/forgot-password", limit(cfg.ForgotPasswordLimiter, authHandler.ForgotPassword)).Methods(http.MethodPost, http.MethodOptions)
	forms.HandleFunc("/auth/reset-password", authHandler.ResetPassword).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/auth/reset-password/{token}", authHandler.ResetStatus).Methods(http.MethodGet, http.MethodOptions)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret, sessionReader(cfg.Sessions)))
	protected.HandleFunc("/me", userHandler.Me).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// sessionReader avoids handing a typed nil to the auth middleware.
func sessionReader(m *session.Manager) middleware.SessionReader {
	if m == nil {
		return nil
	}
	return m
}
