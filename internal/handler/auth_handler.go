package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/yusufkecer/auth-backend/internal/domain"
	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/session"
)

// CSRFTokenHeader carries the CSRF token to and from clients.
const CSRFTokenHeader = "X-CSRF-Token"

type AuthHandler struct {
	jwtSecret string
	accounts  *service.AccountService
	sessions  *session.Manager
}

func NewAuthHandler(jwtSecret string, accounts *service.AccountService, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{
		jwtSecret: jwtSecret,
		accounts:  accounts,
		sessions:  sessions,
	}
}

// CSRF hands out the token that form posts must echo back.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	token := csrf.Token(r)
	w.Header().Set(CSRFTokenHeader, token)
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.login(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.login(w, r, http.StatusOK, user)
}

// login issues a bearer token and a session cookie for user.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	token, err := middleware.GenerateToken(user.ID, user.Email, h.jwtSecret)
	if err != nil {
		log.Errorf("Failed to generate token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	if h.sessions != nil {
		if err := h.sessions.NewSession(w, r, user.ID); err != nil {
			log.Errorf("Failed to create session: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
	}

	writeJSON(w, status, domain.AuthResponse{Token: token, User: user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions != nil {
		err := h.sessions.DelSession(w, r)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			log.Errorf("Failed to delete session: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to logout")
			return
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "a password reset link has been sent"})
}

// ResetStatus reports whether the token in the path can still be used.
func (h *AuthHandler) ResetStatus(w http.ResponseWriter, r *http.Request) {
	req, err := h.accounts.CheckResetToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.ResetStatusResponse{
		Status:    domain.ResetStatusIssued,
		Email:     req.Email,
		ExpiresAt: req.ExpiresAt,
	})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordInput
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.ResetToken, req.Password, req.PasswordConfirm); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset successful"})
}
