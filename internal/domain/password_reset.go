package domain

import "time"

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" schema:"email"`
}

// ResetPasswordInput is the body of POST /auth/reset-password.
type ResetPasswordInput struct {
	ResetToken      string `json:"resetToken" schema:"resetToken"`
	Password        string `json:"password" schema:"password"`
	PasswordConfirm string `json:"passwordConfirm" schema:"passwordConfirm"`
}

// ResetStatusResponse is returned by GET /auth/reset-password/{token}.
type ResetStatusResponse struct {
	Status    ResetStatus `json:"status"`
	Email     string      `json:"email"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// ResetStatus is the lifecycle state of a ResetPasswordRequest.
type ResetStatus string

const (
	ResetStatusIssued   ResetStatus = "issued"
	ResetStatusConsumed ResetStatus = "consumed"
	ResetStatusExpired  ResetStatus = "expired"
)

// ResetPasswordRequest authorizes one password change for Email until
// ExpiresAt. Only the SHA-256 hash of the bearer token is stored.
type ResetPasswordRequest struct {
	ID         string
	TokenHash  string
	Email      string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Status evaluates the request state at now. A request whose expiry equals
// now is already expired. Consumption wins over expiry.
func (r *ResetPasswordRequest) Status(now time.Time) ResetStatus {
	switch {
	case r.ConsumedAt != nil:
		return ResetStatusConsumed
	case !now.Before(r.ExpiresAt):
		return ResetStatusExpired
	default:
		return ResetStatusIssued
	}
}

// ResetLink is what gets delivered to the user after a forgot-password
// request. Token is the plaintext bearer secret.
type ResetLink struct {
	RequestID string
	Email     string
	Token     string
	URL       string
	ExpiresAt time.Time
	Reused    bool
}
