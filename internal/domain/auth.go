package domain

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email           string `json:"email" schema:"email"`
	Password        string `json:"password" schema:"password"`
	PasswordConfirm string `json:"passwordConfirm" schema:"passwordConfirm"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" schema:"email"`
	Password string `json:"password" schema:"password"`
}

// AuthResponse is returned after a successful register or login.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
