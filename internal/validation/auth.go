// Package validation checks user supplied credential fields before they reach
// the account service.
package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 32
)

// Error reports one invalid field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalid(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// NormalizeEmail trims surrounding space and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email checks that email is a bare address with a dotted domain.
func Email(email string) error {
	if email == "" {
		return invalid("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("email", "Email is invalid")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") || strings.HasSuffix(email, ".") {
		return invalid("email", "Email is invalid")
	}
	return nil
}

// Password checks the length bounds, counted in characters.
func Password(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n == 0:
		return invalid("password", "Password is required")
	case n < PasswordMinLength:
		return invalid("password", "Password must be at least 8 characters")
	case n > PasswordMaxLength:
		return invalid("password", "Password must be less than 32 characters")
	}
	return nil
}

// PasswordConfirm only checks presence; equality is the caller's concern so
// that a mismatch can be reported distinctly.
func PasswordConfirm(confirm string) error {
	if confirm == "" {
		return invalid("passwordConfirm", "Please confirm your password")
	}
	return nil
}

// Login validates the login form.
func Login(email, password string) error {
	if err := Email(email); err != nil {
		return err
	}
	return Password(password)
}

// Register validates the registration form.
func Register(email, password, confirm string) error {
	if err := Login(email, password); err != nil {
		return err
	}
	return PasswordConfirm(confirm)
}

// ResetPassword validates the reset form apart from the token, which the
// service reports with its own error.
func ResetPassword(password, confirm string) error {
	if err := Password(password); err != nil {
		return err
	}
	return PasswordConfirm(confirm)
}
