package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yusufkecer/auth-backend/internal/domain"
	"github.com/yusufkecer/auth-backend/internal/repository"
	"github.com/yusufkecer/auth-backend/internal/validation"
)

// DefaultResetTokenTTL is how long a reset request stays valid.
const DefaultResetTokenTTL = 6 * time.Hour

// AccountService registers users, checks credentials and runs the password
// reset flow. Every multi-step operation runs in one store transaction.
type AccountService struct {
	store    repository.Store
	hasher   Hasher
	notifier Notifier
	baseURL  string
	ttl      time.Duration

	now func() time.Time
}

func NewAccountService(store repository.Store, hasher Hasher, notifier Notifier, baseURL string, ttl time.Duration) *AccountService {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &AccountService{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		baseURL:  baseURL,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Register creates a user. The password must be confirmed.
func (s *AccountService) Register(ctx context.Context, email, password, passwordConfirm string) (*domain.User, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.Register(email, password, passwordConfirm); err != nil {
		return nil, err
	}
	if password != passwordConfirm {
		return nil, ErrPasswordMismatch
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError("create user", err)
	}

	log.Infof("User registered: %v", user.ID)
	return user, nil
}

// Authenticate returns the user owning email when password matches. Unknown
// emails and wrong passwords are indistinguishable.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.Login(email, password); err != nil {
		return nil, err
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, internalError("get user", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, internalError("verify password", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns the user with id or ErrUserNotFound.
func (s *AccountService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, internalError("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RequestPasswordReset issues a reset link for email. An active request for
// the same email is reused: it keeps its id and expiry and gets a fresh
// token, which invalidates any link sent before. Delivery failures are
// logged, not returned.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*domain.ResetLink, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.Email(email); err != nil {
		return nil, err
	}

	token, tokenHash, err := newResetToken()
	if err != nil {
		return nil, internalError("generate token", err)
	}

	now := s.now()
	link := &domain.ResetLink{Email: email, Token: token, URL: s.resetURL(token)}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		active, err := tx.ResetRequests.FindActiveByEmail(ctx, email, now)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			req := active[0]
			if err := tx.ResetRequests.RotateToken(ctx, req.ID, tokenHash); err != nil {
				return err
			}
			link.RequestID = req.ID
			link.ExpiresAt = req.ExpiresAt
			link.Reused = true
			return nil
		}

		req := &domain.ResetPasswordRequest{
			ID:        uuid.NewString(),
			TokenHash: tokenHash,
			Email:     email,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		if err := tx.ResetRequests.Create(ctx, req); err != nil {
			return err
		}
		link.RequestID = req.ID
		link.ExpiresAt = req.ExpiresAt
		return nil
	})
	if err != nil {
		return nil, classify("request password reset", err)
	}

	if link.Reused {
		log.Debugf("Reusing reset request %v", link.RequestID)
	} else {
		log.Debugf("Created reset request %v", link.RequestID)
	}

	if err := s.notifier.SendResetLink(ctx, link); err != nil {
		log.Warnf("Failed to deliver reset link for request %v: %v", link.RequestID, err)
	}
	return link, nil
}

// CheckResetToken reports whether token can still be used. The result is
// advisory; ResetPassword checks again.
func (s *AccountService) CheckResetToken(ctx context.Context, token string) (*domain.ResetPasswordRequest, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	req, err := s.store.ResetRequests().GetByTokenHash(ctx, hashResetToken(token))
	if err != nil {
		return nil, internalError("get reset request", err)
	}
	if err := checkUsable(req, s.now()); err != nil {
		return nil, err
	}
	return req, nil
}

// ResetPassword sets a new password for the owner of token and consumes the
// reset request. A token works at most once.
func (s *AccountService) ResetPassword(ctx context.Context, token, password, passwordConfirm string) error {
	if token == "" {
		return ErrMissingToken
	}
	if err := validation.ResetPassword(password, passwordConfirm); err != nil {
		return err
	}
	if password != passwordConfirm {
		return ErrPasswordMismatch
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return internalError("hash password", err)
	}

	tokenHash := hashResetToken(token)
	now := s.now()
	var requestID string

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		req, err := tx.ResetRequests.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			return err
		}
		if err := checkUsable(req, now); err != nil {
			return err
		}

		user, err := tx.Users.GetByEmail(ctx, req.Email)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrInvalidToken
		}

		if err := tx.Users.UpdatePassword(ctx, user.ID, passwordHash, now); err != nil {
			return err
		}
		ok, err := tx.ResetRequests.Consume(ctx, req.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidToken
		}
		requestID = req.ID
		return nil
	})
	if err != nil {
		return classify("reset password", err)
	}

	log.Infof("Password reset with request %v", requestID)
	return nil
}

// checkUsable maps a looked up request to the error a caller sees. A
// consumed request is invalid even after it has expired.
func checkUsable(req *domain.ResetPasswordRequest, now time.Time) error {
	if req == nil {
		return ErrInvalidToken
	}
	switch req.Status(now) {
	case domain.ResetStatusConsumed:
		return ErrInvalidToken
	case domain.ResetStatusExpired:
		return ErrExpiredToken
	}
	return nil
}

func (s *AccountService) resetURL(token string) string {
	return s.baseURL + "/forgot-password/" + token
}
