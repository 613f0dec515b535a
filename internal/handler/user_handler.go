package handler

import (
	"net/http"

	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/service"
)

type UserHandler struct {
	accounts *service.AccountService
}

func NewUserHandler(accounts *service.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// Me returns the logged in user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
