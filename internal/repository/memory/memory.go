// Package memory provides an in-process repository.Store. Transactions hold
// a single mutex and restore a snapshot when they fail, which makes them
// serializable. It backs the "memory" database driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yusufkecer/auth-backend/internal/domain"
	"github.com/yusufkecer/auth-backend/internal/repository"
)

// Store keeps users and reset requests in maps keyed by id.
type Store struct {
	mu     sync.Mutex
	users  map[string]domain.User
	resets map[string]domain.ResetPasswordRequest
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:  make(map[string]domain.User),
		resets: make(map[string]domain.ResetPasswordRequest),
	}
}

// Users returns a store whose calls each lock the mutex. It must not be used
// from inside InTx.
func (s *Store) Users() repository.UserStore {
	return &userStore{s: s}
}

// ResetRequests has the same restriction as Users.
func (s *Store) ResetRequests() repository.ResetRequestStore {
	return &resetStore{s: s}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, resets := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.users, s.resets = users, resets
			panic(p)
		}
		if err != nil {
			s.users, s.resets = users, resets
		}
	}()

	return fn(ctx, repository.Tx{
		Users:         &userStore{s: s, inTx: true},
		ResetRequests: &resetStore{s: s, inTx: true},
	})
}

func (s *Store) snapshot() (map[string]domain.User, map[string]domain.ResetPasswordRequest) {
	users := make(map[string]domain.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	resets := make(map[string]domain.ResetPasswordRequest, len(s.resets))
	for k, v := range s.resets {
		resets[k] = cloneReset(v)
	}
	return users, resets
}

// with runs fn under the mutex unless the caller already holds it.
func (s *Store) with(inTx bool, fn func()) {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn()
}

func cloneReset(r domain.ResetPasswordRequest) domain.ResetPasswordRequest {
	if r.ConsumedAt != nil {
		t := *r.ConsumedAt
		r.ConsumedAt = &t
	}
	return r
}

type userStore struct {
	s    *Store
	inTx bool
}

func (u *userStore) Create(_ context.Context, user *domain.User) (err error) {
	u.s.with(u.inTx, func() {
		for _, existing := range u.s.users {
			if existing.Email == user.Email {
				err = repository.ErrDuplicateEmail
				return
			}
		}
		u.s.users[user.ID] = *user
	})
	return err
}

func (u *userStore) GetByEmail(_ context.Context, email string) (found *domain.User, _ error) {
	u.s.with(u.inTx, func() {
		for _, existing := range u.s.users {
			if existing.Email == email {
				user := existing
				found = &user
				return
			}
		}
	})
	return found, nil
}

func (u *userStore) GetByID(_ context.Context, id string) (found *domain.User, _ error) {
	u.s.with(u.inTx, func() {
		if existing, ok := u.s.users[id]; ok {
			found = &existing
		}
	})
	return found, nil
}

func (u *userStore) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) (err error) {
	u.s.with(u.inTx, func() {
		existing, ok := u.s.users[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		existing.PasswordHash = passwordHash
		existing.UpdatedAt = at
		u.s.users[id] = existing
	})
	return err
}

type resetStore struct {
	s    *Store
	inTx bool
}

func (r *resetStore) Create(_ context.Context, req *domain.ResetPasswordRequest) error {
	r.s.with(r.inTx, func() {
		r.s.resets[req.ID] = cloneReset(*req)
	})
	return nil
}

func (r *resetStore) FindActiveByEmail(_ context.Context, email string, now time.Time) (active []domain.ResetPasswordRequest, _ error) {
	r.s.with(r.inTx, func() {
		for _, req := range r.s.resets {
			if req.Email == email && req.ConsumedAt == nil && req.ExpiresAt.After(now) {
				active = append(active, cloneReset(req))
			}
		}
	})
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (r *resetStore) GetByID(_ context.Context, id string) (found *domain.ResetPasswordRequest, _ error) {
	r.s.with(r.inTx, func() {
		if req, ok := r.s.resets[id]; ok {
			c := cloneReset(req)
			found = &c
		}
	})
	return found, nil
}

func (r *resetStore) GetByTokenHash(_ context.Context, tokenHash string) (found *domain.ResetPasswordRequest, _ error) {
	r.s.with(r.inTx, func() {
		for _, req := range r.s.resets {
			if req.TokenHash == tokenHash {
				c := cloneReset(req)
				found = &c
				return
			}
		}
	})
	return found, nil
}

func (r *resetStore) RotateToken(_ context.Context, id, tokenHash string) (err error) {
	r.s.with(r.inTx, func() {
		req, ok := r.s.resets[id]
		if !ok || req.ConsumedAt != nil {
			err = repository.ErrNotFound
			return
		}
		req.TokenHash = tokenHash
		r.s.resets[id] = req
	})
	return err
}

func (r *resetStore) Consume(_ context.Context, id string, at time.Time) (consumed bool, _ error) {
	r.s.with(r.inTx, func() {
		req, ok := r.s.resets[id]
		if !ok || req.ConsumedAt != nil {
			return
		}
		t := at
		req.ConsumedAt = &t
		r.s.resets[id] = req
		consumed = true
	})
	return consumed, nil
}

func (r *resetStore) DeleteStale(_ context.Context, before time.Time) (n int64, _ error) {
	r.s.with(r.inTx, func() {
		for id, req := range r.s.resets {
			if req.ExpiresAt.Before(before) || (req.ConsumedAt != nil && req.ConsumedAt.Before(before)) {
				delete(r.s.resets, id)
				n++
			}
		}
	})
	return n, nil
}
