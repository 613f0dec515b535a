package service

import (
	"errors"
	"fmt"

	"github.com/yusufkecer/auth-backend/internal/validation"
)

var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingToken       = errors.New("reset token is required")
	ErrInvalidToken       = errors.New("invalid reset token")
	ErrExpiredToken       = errors.New("request has expired, please submit a new request")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInternal marks persistence and hashing failures. The wrapped cause
	// is for logs only.
	ErrInternal = errors.New("internal error")
)

var knownErrors = []error{
	ErrPasswordMismatch,
	ErrDuplicateEmail,
	ErrUserNotFound,
	ErrMissingToken,
	ErrInvalidToken,
	ErrExpiredToken,
	ErrInvalidCredentials,
	ErrInternal,
}

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// classify passes through errors the service already reports and wraps
// everything else as ErrInternal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		return err
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return internalError(op, err)
}
